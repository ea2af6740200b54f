// Package orchestrator sequences the tenant identity lifecycle: the
// strictly ordered provisioning pipeline (domain, client, broker,
// roles, selection rules, admin identity, user record) and its reverse
// for deprovisioning. There is no transaction boundary across the
// backing systems, so correctness rests on careful sequencing, a
// per-tenant lease, and reverse-order compensation on failure.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"saasid/internal/federation"
	"saasid/internal/identity"
	"saasid/internal/journal"
	"saasid/internal/roles"
	"saasid/internal/userstore"
	"saasid/pkg/apperr"
	"saasid/pkg/config"
	"saasid/pkg/lease"
)

// RegisterRequest provisions a tenant and its admin identity.
type RegisterRequest struct {
	TenantID    string `json:"tenantId"`
	UserName    string `json:"userName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Tier        string `json:"tier"`
	CompanyName string `json:"companyName"`
}

// DeprovisionRequest tears a tenant's identity infrastructure down.
// Domain and broker ids may be empty when only part of the bundle
// exists; every step is independently idempotent.
type DeprovisionRequest struct {
	TenantID     string `json:"tenantId"`
	AuthDomainID string `json:"userPoolId"`
	BrokerID     string `json:"identityPoolId"`
}

const (
	RoleAdmin = "TENANT_ADMIN"
	RoleUser  = "TENANT_USER"
)

type Orchestrator struct {
	log        *zap.SugaredLogger
	identity   identity.Provisioner
	federation federation.Provisioner
	roles      roles.Provisioner
	store      userstore.Store
	journal    journal.Journal
	lease      lease.Lease

	rolePrefix  string
	stepTimeout time.Duration
	deadline    time.Duration
}

func New(
	log *zap.SugaredLogger,
	idp identity.Provisioner,
	fed federation.Provisioner,
	rp roles.Provisioner,
	store userstore.Store,
	jr journal.Journal,
	ls lease.Lease,
	cfg config.Config,
) *Orchestrator {
	return &Orchestrator{
		log:         log,
		identity:    idp,
		federation:  fed,
		roles:       rp,
		store:       store,
		journal:     jr,
		lease:       ls,
		rolePrefix:  cfg.RolePrefix,
		stepTimeout: cfg.StepTimeout,
		deadline:    cfg.WorkflowDeadline,
	}
}

// undoStep is one compensating action, executed in reverse order on
// failure.
type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// step runs one forward step under the per-step timeout.
func (o *Orchestrator) step(ctx context.Context, workflow, name string, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	start := time.Now()
	err := fn(sctx)
	stepDuration.WithLabelValues(workflow, name).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	return nil
}

// RegisterTenantAdmin runs the full provisioning workflow and returns
// the persisted admin user record, subject id included.
func (o *Orchestrator) RegisterTenantAdmin(ctx context.Context, req RegisterRequest) (userstore.Record, error) {
	if err := validateRegister(req); err != nil {
		return userstore.Record{}, err
	}

	// At-most-one in-flight workflow per tenant: domain creation is not
	// idempotent on tenant id.
	release, err := o.lease.Acquire(ctx, req.TenantID, o.deadline+time.Minute)
	if err != nil {
		workflowsTotal.WithLabelValues("provision", "rejected").Inc()
		return userstore.Record{}, err
	}
	defer release()

	if err := o.journal.Begin(ctx, req.TenantID); err != nil {
		return userstore.Record{}, err
	}

	wctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	rec, err := o.provision(wctx, req)
	if err != nil {
		workflowsTotal.WithLabelValues("provision", "failed").Inc()
		return userstore.Record{}, err
	}
	if err := o.journal.Finish(ctx, req.TenantID); err != nil {
		o.log.Warnw("journal finish", "tenant", req.TenantID, "err", err)
	}
	workflowsTotal.WithLabelValues("provision", "completed").Inc()
	return rec, nil
}

func (o *Orchestrator) provision(ctx context.Context, req RegisterRequest) (rec userstore.Record, err error) {
	var (
		undos   []undoStep
		handles journal.Handles
	)
	defer func() {
		if err != nil {
			o.rollback(ctx, req.TenantID, handles, undos)
		}
	}()

	advance := func(step string) {
		if jerr := o.journal.Advance(ctx, req.TenantID, step, handles); jerr != nil {
			o.log.Warnw("journal advance", "tenant", req.TenantID, "step", step, "err", jerr)
		}
	}

	var domain identity.DomainHandle
	if err = o.step(ctx, "provision", "DomainCreated", func(ctx context.Context) error {
		var serr error
		domain, serr = o.identity.CreateDomain(ctx, req.TenantID)
		return serr
	}); err != nil {
		return userstore.Record{}, err
	}
	handles.AuthDomainID = domain.ID
	undos = append(undos, undoStep{"delete domain", func(ctx context.Context) error {
		return swallowNotFound(o.identity.DeleteDomain(ctx, domain.ID))
	}})
	advance("DomainCreated")

	var client identity.ClientHandle
	if err = o.step(ctx, "provision", "ClientCreated", func(ctx context.Context) error {
		var serr error
		client, serr = o.identity.CreateClient(ctx, domain)
		return serr
	}); err != nil {
		return userstore.Record{}, err
	}
	// The client dies with its domain; no separate compensation.
	handles.ClientID = client.ID
	advance("ClientCreated")

	var broker federation.BrokerHandle
	if err = o.step(ctx, "provision", "BrokerCreated", func(ctx context.Context) error {
		var serr error
		broker, serr = o.federation.CreateBroker(ctx, domain, client)
		return serr
	}); err != nil {
		return userstore.Record{}, err
	}
	handles.BrokerID = broker.ID
	undos = append(undos, undoStep{"delete broker", func(ctx context.Context) error {
		return swallowNotFound(o.federation.DeleteBroker(ctx, broker.ID))
	}})
	advance("BrokerCreated")

	var refs federation.RoleRefs
	if err = o.step(ctx, "provision", "RolesCreated", func(ctx context.Context) error {
		res, serr := o.store.DescribeDataResources(ctx)
		if serr != nil {
			return serr
		}

		authRole, serr := o.roles.CreateAuthRole(ctx, req.TenantID, broker.ID)
		if serr != nil {
			return serr
		}
		handles.AuthRoleName = authRole.Name
		undos = append(undos, undoStep{"delete auth role", func(ctx context.Context) error {
			return swallowNotFound(o.roles.DeleteRole(ctx, authRole.Name, ""))
		}})

		adminRole, serr := o.roles.CreateAdminRole(ctx, req.TenantID, broker.ID, domain.ARN, res)
		if serr != nil {
			return serr
		}
		handles.AdminRoleName = adminRole.Name
		undos = append(undos, undoStep{"delete admin role", func(ctx context.Context) error {
			return swallowNotFound(o.roles.DeleteRole(ctx, adminRole.Name, roles.AdminPolicyName))
		}})

		userRole, serr := o.roles.CreateUserRole(ctx, req.TenantID, broker.ID, domain.ARN, res)
		if serr != nil {
			return serr
		}
		handles.UserRoleName = userRole.Name
		undos = append(undos, undoStep{"delete user role", func(ctx context.Context) error {
			return swallowNotFound(o.roles.DeleteRole(ctx, userRole.Name, roles.UserPolicyName))
		}})

		refs = federation.RoleRefs{
			AuthRoleARN:  authRole.ARN,
			AdminRoleARN: adminRole.ARN,
			UserRoleARN:  userRole.ARN,
		}
		return nil
	}); err != nil {
		return userstore.Record{}, err
	}
	advance("RolesCreated")

	if err = o.step(ctx, "provision", "RulesInstalled", func(ctx context.Context) error {
		return o.federation.SetRoleSelectionRules(ctx, domain, client, broker, refs)
	}); err != nil {
		return userstore.Record{}, err
	}
	advance("RulesInstalled")

	var created identity.Created
	if err = o.step(ctx, "provision", "IdentityCreated", func(ctx context.Context) error {
		var serr error
		created, serr = o.identity.CreateIdentity(ctx, domain.ID, identity.Attributes{
			TenantID:  req.TenantID,
			UserName:  req.UserName,
			Email:     req.UserName,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      RoleAdmin,
			Tier:      req.Tier,
		})
		return serr
	}); err != nil {
		return userstore.Record{}, err
	}
	advance("IdentityCreated")

	rec = userstore.Record{
		TenantID:     req.TenantID,
		ID:           req.UserName,
		UserName:     req.UserName,
		Email:        req.UserName,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         RoleAdmin,
		Tier:         req.Tier,
		CompanyName:  req.CompanyName,
		AccountName:  req.CompanyName,
		OwnerName:    req.CompanyName,
		AuthDomainID: domain.ID,
		ClientID:     client.ID,
		BrokerID:     broker.ID,
	}
	if err = o.step(ctx, "provision", "RecordPersisted", func(ctx context.Context) error {
		// Two-phase write: provisional fields first, subject id once known.
		if serr := o.store.Put(ctx, rec); serr != nil {
			return serr
		}
		undos = append(undos, undoStep{"purge user records", func(ctx context.Context) error {
			_, perr := o.store.PurgeTenant(ctx, req.TenantID)
			return perr
		}})
		return o.store.SetSub(ctx, req.TenantID, rec.ID, created.SubjectID)
	}); err != nil {
		return userstore.Record{}, err
	}
	rec.Sub = created.SubjectID
	advance("RecordPersisted")

	return rec, nil
}

// rollback executes the accumulated compensations in reverse creation
// order. Cleanup failures are logged, never re-raised, and cleanup is
// not cancellable: a caller that gave up must not leak cloud resources.
func (o *Orchestrator) rollback(ctx context.Context, tenantID string, handles journal.Handles, undos []undoStep) {
	rctx := context.WithoutCancel(ctx)
	clean := true
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		uctx, cancel := context.WithTimeout(rctx, o.stepTimeout)
		if err := u.fn(uctx); err != nil {
			o.log.Errorw("rollback step failed", "tenant", tenantID, "step", u.name, "err", err)
			rollbackStepsTotal.WithLabelValues(u.name, "failed").Inc()
			clean = false
		} else {
			rollbackStepsTotal.WithLabelValues(u.name, "ok").Inc()
		}
		cancel()
	}
	if clean {
		if err := o.journal.Finish(rctx, tenantID); err != nil {
			o.log.Warnw("journal finish after rollback", "tenant", tenantID, "err", err)
		}
		return
	}
	// Leave the entry for the reconciliation sweep.
	if err := o.journal.Advance(rctx, tenantID, "RollbackIncomplete", handles); err != nil {
		o.log.Warnw("journal mark rollback incomplete", "tenant", tenantID, "err", err)
	}
}

// DeprovisionTenant tears down the bundle in reverse dependency order:
// domain, broker, roles (admin, user, then the policy-less auth role),
// then the tenant's user records. Every step swallows NotFound so a
// retry after partial failure is a no-op for completed steps.
func (o *Orchestrator) DeprovisionTenant(ctx context.Context, req DeprovisionRequest) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return apperr.New(apperr.InvalidArgument, "tenant id is required")
	}

	wctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	if req.AuthDomainID != "" {
		if err := o.step(wctx, "deprovision", "DomainDeleted", func(ctx context.Context) error {
			return swallowNotFound(o.identity.DeleteDomain(ctx, req.AuthDomainID))
		}); err != nil {
			workflowsTotal.WithLabelValues("deprovision", "failed").Inc()
			return err
		}
	}

	if req.BrokerID != "" {
		if err := o.step(wctx, "deprovision", "BrokerDeleted", func(ctx context.Context) error {
			return swallowNotFound(o.federation.DeleteBroker(ctx, req.BrokerID))
		}); err != nil {
			workflowsTotal.WithLabelValues("deprovision", "failed").Inc()
			return err
		}
	}

	if err := o.step(wctx, "deprovision", "RolesDeleted", func(ctx context.Context) error {
		if err := swallowNotFound(o.roles.DeleteRole(ctx, roles.AdminRoleName(o.rolePrefix, req.TenantID), roles.AdminPolicyName)); err != nil {
			return err
		}
		if err := swallowNotFound(o.roles.DeleteRole(ctx, roles.UserRoleName(o.rolePrefix, req.TenantID), roles.UserPolicyName)); err != nil {
			return err
		}
		return swallowNotFound(o.roles.DeleteRole(ctx, roles.AuthRoleName(o.rolePrefix, req.TenantID), ""))
	}); err != nil {
		workflowsTotal.WithLabelValues("deprovision", "failed").Inc()
		return err
	}

	if err := o.step(wctx, "deprovision", "UserRecordsPurged", func(ctx context.Context) error {
		n, err := o.store.PurgeTenant(ctx, req.TenantID)
		if err == nil {
			o.log.Infow("tenant user records purged", "tenant", req.TenantID, "count", n)
		}
		return err
	}); err != nil {
		workflowsTotal.WithLabelValues("deprovision", "failed").Inc()
		return err
	}

	workflowsTotal.WithLabelValues("deprovision", "completed").Inc()
	return nil
}

// ReconcileStale finishes cleanup for workflows abandoned by a crashed
// process: anything journaled and untouched for longer than age is
// deprovisioned from its recorded handles.
func (o *Orchestrator) ReconcileStale(ctx context.Context, age time.Duration) error {
	entries, err := o.journal.Stale(ctx, age)
	if err != nil {
		return err
	}
	for _, e := range entries {
		o.log.Warnw("reconciling abandoned workflow", "tenant", e.TenantID, "step", e.Step, "age", time.Since(e.UpdatedAt))
		err := o.DeprovisionTenant(ctx, DeprovisionRequest{
			TenantID:     e.TenantID,
			AuthDomainID: e.Handles.AuthDomainID,
			BrokerID:     e.Handles.BrokerID,
		})
		if err != nil {
			o.log.Errorw("reconcile failed", "tenant", e.TenantID, "err", err)
			continue
		}
		if err := o.journal.Finish(ctx, e.TenantID); err != nil {
			o.log.Warnw("journal finish after reconcile", "tenant", e.TenantID, "err", err)
		}
	}
	return nil
}

func validateRegister(req RegisterRequest) error {
	switch {
	case strings.TrimSpace(req.TenantID) == "":
		return apperr.New(apperr.InvalidArgument, "tenant id is required")
	case strings.TrimSpace(req.UserName) == "":
		return apperr.New(apperr.InvalidArgument, "user name is required")
	case !strings.Contains(req.UserName, "@"):
		return apperr.New(apperr.InvalidArgument, "user name must be an email address")
	}
	return nil
}

// swallowNotFound turns NotFound into success: deleting what is
// already gone completed someone's work, not failed ours.
func swallowNotFound(err error) error {
	if err == nil || apperr.IsKind(err, apperr.NotFound) {
		return nil
	}
	return err
}
