package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saasid/internal/federation"
	"saasid/internal/identity"
	"saasid/internal/journal"
	"saasid/internal/policy"
	"saasid/internal/roles"
	"saasid/internal/userstore"
	"saasid/pkg/apperr"
	"saasid/pkg/config"
	"saasid/pkg/lease"
	"saasid/pkg/token"
)

// fakeIdentity tracks live domains so tests can assert zero residue
// after rollback.
type fakeIdentity struct {
	mu      sync.Mutex
	seq     int
	domains map[string]string // id -> tenant
	clients map[string]string // id -> domain

	failCreateIdentity bool
	failDeleteDomain   bool
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{domains: map[string]string{}, clients: map[string]string{}}
}

func (f *fakeIdentity) CreateDomain(_ context.Context, tenantID string) (identity.DomainHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("domain-%d", f.seq)
	f.domains[id] = tenantID
	return identity.DomainHandle{ID: id, ARN: "arn:test:userpool/" + id, Name: tenantID}, nil
}

func (f *fakeIdentity) CreateClient(_ context.Context, domain identity.DomainHandle) (identity.ClientHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("client-%d", f.seq)
	f.clients[id] = domain.ID
	return identity.ClientHandle{ID: id, Name: domain.Name + "-client"}, nil
}

func (f *fakeIdentity) CreateIdentity(_ context.Context, domainID string, attrs identity.Attributes) (identity.Created, error) {
	if f.failCreateIdentity {
		return identity.Created{}, apperr.New(apperr.IdentityCreationFailed, "attribute rejected")
	}
	return identity.Created{ExternalID: attrs.UserName, SubjectID: "sub-" + attrs.UserName}, nil
}

func (f *fakeIdentity) DeleteDomain(_ context.Context, domainID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteDomain {
		return apperr.New(apperr.UpstreamFailure, "throttled")
	}
	if _, ok := f.domains[domainID]; !ok {
		return apperr.Newf(apperr.NotFound, "no domain %s", domainID)
	}
	delete(f.domains, domainID)
	for cid, did := range f.clients {
		if did == domainID {
			delete(f.clients, cid)
		}
	}
	return nil
}

func (f *fakeIdentity) ListIdentities(context.Context, string, *token.Credentials) ([]identity.Summary, error) {
	return nil, nil
}

type fakeFederation struct {
	mu      sync.Mutex
	seq     int
	brokers map[string]bool
	rules   map[string]federation.RoleRefs

	failCreate   bool
	failSetRules bool
}

func newFakeFederation() *fakeFederation {
	return &fakeFederation{brokers: map[string]bool{}, rules: map[string]federation.RoleRefs{}}
}

func (f *fakeFederation) CreateBroker(_ context.Context, domain identity.DomainHandle, client identity.ClientHandle) (federation.BrokerHandle, error) {
	if f.failCreate {
		return federation.BrokerHandle{}, apperr.New(apperr.UpstreamFailure, "broker limit exceeded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("broker-%d", f.seq)
	f.brokers[id] = true
	return federation.BrokerHandle{ID: id}, nil
}

func (f *fakeFederation) SetRoleSelectionRules(_ context.Context, _ identity.DomainHandle, _ identity.ClientHandle, broker federation.BrokerHandle, refs federation.RoleRefs) error {
	if f.failSetRules {
		return apperr.New(apperr.UpstreamFailure, "rules rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[broker.ID] = refs
	return nil
}

func (f *fakeFederation) DeleteBroker(_ context.Context, brokerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.brokers[brokerID] {
		return apperr.Newf(apperr.NotFound, "no broker %s", brokerID)
	}
	delete(f.brokers, brokerID)
	delete(f.rules, brokerID)
	return nil
}

type fakeRoles struct {
	mu    sync.Mutex
	roles map[string]bool

	failAdmin bool
}

func newFakeRoles() *fakeRoles { return &fakeRoles{roles: map[string]bool{}} }

func (f *fakeRoles) create(name string) (roles.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[name] = true
	return roles.Handle{Name: name, ARN: "arn:test:role/" + name}, nil
}

func (f *fakeRoles) CreateAuthRole(_ context.Context, tenantID, _ string) (roles.Handle, error) {
	return f.create(roles.AuthRoleName("SaaS", tenantID))
}

func (f *fakeRoles) CreateAdminRole(_ context.Context, tenantID, _, _ string, _ policy.DataResources) (roles.Handle, error) {
	if f.failAdmin {
		return roles.Handle{}, apperr.New(apperr.UpstreamFailure, "role quota exceeded")
	}
	return f.create(roles.AdminRoleName("SaaS", tenantID))
}

func (f *fakeRoles) CreateUserRole(_ context.Context, tenantID, _, _ string, _ policy.DataResources) (roles.Handle, error) {
	return f.create(roles.UserRoleName("SaaS", tenantID))
}

func (f *fakeRoles) DeleteRole(_ context.Context, roleName, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.roles[roleName] {
		return apperr.Newf(apperr.NotFound, "no role %s", roleName)
	}
	delete(f.roles, roleName)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]userstore.Record // tenantID/id
}

func newFakeStore() *fakeStore { return &fakeStore{records: map[string]userstore.Record{}} }

func storeKey(tenantID, id string) string { return tenantID + "/" + id }

func (f *fakeStore) Put(_ context.Context, rec userstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[storeKey(rec.TenantID, rec.ID)] = rec
	return nil
}

func (f *fakeStore) SetSub(_ context.Context, tenantID, id, sub string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[storeKey(tenantID, id)]
	if !ok {
		return apperr.Newf(apperr.NotFound, "no record (%s,%s)", tenantID, id)
	}
	rec.Sub = sub
	f.records[storeKey(tenantID, id)] = rec
	return nil
}

func (f *fakeStore) Get(_ context.Context, tenantID, id string) (userstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[storeKey(tenantID, id)]
	if !ok {
		return userstore.Record{}, apperr.Newf(apperr.NotFound, "no record (%s,%s)", tenantID, id)
	}
	return rec, nil
}

func (f *fakeStore) LookupByID(_ context.Context, id string) (userstore.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return userstore.Record{}, false, nil
}

func (f *fakeStore) PurgeTenant(_ context.Context, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, rec := range f.records {
		if rec.TenantID == tenantID {
			delete(f.records, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DescribeDataResources(context.Context) (policy.DataResources, error) {
	return policy.DataResources{
		UserTableARN:    "arn:test:table/User",
		OrderTableARN:   "arn:test:table/Order",
		ProductTableARN: "arn:test:table/Product",
	}, nil
}

// fakeJournal is an in-memory journal the tests inspect for leftover
// entries.
type fakeJournal struct {
	mu      sync.Mutex
	entries map[string]journal.Entry
}

func newFakeJournal() *fakeJournal { return &fakeJournal{entries: map[string]journal.Entry{}} }

func (f *fakeJournal) Begin(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[tenantID] = journal.Entry{TenantID: tenantID, Step: "Start", StartedAt: time.Now(), UpdatedAt: time.Now()}
	return nil
}

func (f *fakeJournal) Advance(_ context.Context, tenantID, step string, h journal.Handles) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entries[tenantID]
	e.TenantID = tenantID
	e.Step = step
	e.Handles = h
	e.UpdatedAt = time.Now()
	f.entries[tenantID] = e
	return nil
}

func (f *fakeJournal) Finish(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, tenantID)
	return nil
}

func (f *fakeJournal) Stale(_ context.Context, _ time.Duration) ([]journal.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []journal.Entry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fixture struct {
	orch       *Orchestrator
	identity   *fakeIdentity
	federation *fakeFederation
	roles      *fakeRoles
	store      *fakeStore
	journal    *fakeJournal
	lease      lease.Lease
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		identity:   newFakeIdentity(),
		federation: newFakeFederation(),
		roles:      newFakeRoles(),
		store:      newFakeStore(),
		journal:    newFakeJournal(),
		lease:      lease.NewMemory(),
	}
	cfg := config.Config{
		RolePrefix:       "SaaS",
		StepTimeout:      time.Second,
		WorkflowDeadline: 5 * time.Second,
	}
	f.orch = New(zap.NewNop().Sugar(), f.identity, f.federation, f.roles, f.store, f.journal, f.lease, cfg)
	return f
}

func registerReq(tenantID string) RegisterRequest {
	return RegisterRequest{
		TenantID:    tenantID,
		UserName:    "admin@example.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Tier:        "Standard",
		CompanyName: "Example Co",
	}
}

func TestRegisterTenantAdminHappyPath(t *testing.T) {
	f := newFixture(t)

	rec, err := f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	require.NoError(t, err)

	assert.Equal(t, "TENANT1", rec.TenantID)
	assert.Equal(t, "admin@example.com", rec.ID)
	assert.Equal(t, RoleAdmin, rec.Role)
	assert.Equal(t, "sub-admin@example.com", rec.Sub)
	assert.NotEmpty(t, rec.AuthDomainID)
	assert.NotEmpty(t, rec.ClientID)
	assert.NotEmpty(t, rec.BrokerID)

	// One of everything, wired together.
	assert.Len(t, f.identity.domains, 1)
	assert.Len(t, f.identity.clients, 1)
	assert.Len(t, f.federation.brokers, 1)
	assert.Len(t, f.roles.roles, 3)

	refs, ok := f.federation.rules[rec.BrokerID]
	require.True(t, ok, "role selection rules installed on the broker")
	assert.Contains(t, refs.AdminRoleARN, "SaaS_TENANT1_AdminRole")
	assert.Contains(t, refs.UserRoleARN, "SaaS_TENANT1_UserRole")
	assert.Contains(t, refs.AuthRoleARN, "SaaS_TENANT1_AuthRole")

	// Stored record carries the subject id from the second write phase.
	stored, err := f.store.Get(context.Background(), "TENANT1", "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, rec.Sub, stored.Sub)

	// Completed workflows leave no journal entry.
	assert.Empty(t, f.journal.entries)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.RegisterTenantAdmin(context.Background(), RegisterRequest{UserName: "a@b.c"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))

	req := registerReq("TENANT1")
	req.UserName = "not-an-email"
	_, err = f.orch.RegisterTenantAdmin(context.Background(), req)
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))

	// Nothing was provisioned for rejected requests.
	assert.Empty(t, f.identity.domains)
}

func TestRegisterRollbackOnRoleFailure(t *testing.T) {
	f := newFixture(t)
	f.roles.failAdmin = true

	_, err := f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.UpstreamFailure))

	// Everything created before the failure was torn back down.
	assert.Empty(t, f.identity.domains)
	assert.Empty(t, f.identity.clients)
	assert.Empty(t, f.federation.brokers)
	assert.Empty(t, f.roles.roles)
	assert.Empty(t, f.store.records)
	assert.Empty(t, f.journal.entries, "clean rollback removes the journal entry")
}

func TestRegisterRollbackOnIdentityRejection(t *testing.T) {
	f := newFixture(t)
	f.identity.failCreateIdentity = true

	_, err := f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.IdentityCreationFailed))

	assert.Empty(t, f.identity.domains)
	assert.Empty(t, f.federation.brokers)
	assert.Empty(t, f.roles.roles)
}

func TestRegisterIncompleteRollbackKeepsJournalEntry(t *testing.T) {
	f := newFixture(t)
	f.federation.failSetRules = true
	f.identity.failDeleteDomain = true

	_, err := f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	require.Error(t, err)

	// The domain survived a failed compensation, so the journal entry
	// must survive for the reconciliation sweep.
	e, ok := f.journal.entries["TENANT1"]
	require.True(t, ok)
	assert.Equal(t, "RollbackIncomplete", e.Step)
	assert.NotEmpty(t, e.Handles.AuthDomainID)
}

func TestRegisterConcurrentSameTenantConflicts(t *testing.T) {
	f := newFixture(t)

	release, err := f.lease.Acquire(context.Background(), "TENANT1", time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.Empty(t, f.identity.domains)
}

func TestDeprovisionFullBundle(t *testing.T) {
	f := newFixture(t)

	rec, err := f.orch.RegisterTenantAdmin(context.Background(), registerReq("TENANT1"))
	require.NoError(t, err)

	err = f.orch.DeprovisionTenant(context.Background(), DeprovisionRequest{
		TenantID:     "TENANT1",
		AuthDomainID: rec.AuthDomainID,
		BrokerID:     rec.BrokerID,
	})
	require.NoError(t, err)

	assert.Empty(t, f.identity.domains)
	assert.Empty(t, f.federation.brokers)
	assert.Empty(t, f.roles.roles)
	assert.Empty(t, f.store.records)
}

func TestDeprovisionIsIdempotent(t *testing.T) {
	f := newFixture(t)

	// Nothing exists; every delete hits NotFound and succeeds anyway.
	err := f.orch.DeprovisionTenant(context.Background(), DeprovisionRequest{
		TenantID:     "TENANT1",
		AuthDomainID: "domain-gone",
		BrokerID:     "broker-gone",
	})
	assert.NoError(t, err)
}

func TestDeprovisionPartialBundle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Put(context.Background(), userstore.Record{TenantID: "TENANT1", ID: "a@b.c"}))

	// Only records and roles were ever created; empty handle ids skip
	// the domain and broker steps entirely.
	err := f.orch.DeprovisionTenant(context.Background(), DeprovisionRequest{TenantID: "TENANT1"})
	require.NoError(t, err)
	assert.Empty(t, f.store.records)
}

func TestDeprovisionRequiresTenantID(t *testing.T) {
	f := newFixture(t)
	err := f.orch.DeprovisionTenant(context.Background(), DeprovisionRequest{})
	assert.True(t, apperr.IsKind(err, apperr.InvalidArgument))
}

func TestReconcileStaleCleansAbandonedWorkflow(t *testing.T) {
	f := newFixture(t)

	// Simulate a crash after the broker step: resources exist, journal
	// entry still present.
	domain, err := f.identity.CreateDomain(context.Background(), "TENANT1")
	require.NoError(t, err)
	client, err := f.identity.CreateClient(context.Background(), domain)
	require.NoError(t, err)
	broker, err := f.federation.CreateBroker(context.Background(), domain, client)
	require.NoError(t, err)
	require.NoError(t, f.journal.Begin(context.Background(), "TENANT1"))
	require.NoError(t, f.journal.Advance(context.Background(), "TENANT1", "BrokerCreated", journal.Handles{
		AuthDomainID: domain.ID,
		ClientID:     client.ID,
		BrokerID:     broker.ID,
	}))

	require.NoError(t, f.orch.ReconcileStale(context.Background(), 0))

	assert.Empty(t, f.identity.domains)
	assert.Empty(t, f.federation.brokers)
	assert.Empty(t, f.journal.entries)
}
