package userapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saasid/internal/identity"
	"saasid/internal/orchestrator"
	"saasid/internal/policy"
	"saasid/internal/userstore"
	"saasid/pkg/apperr"
	"saasid/pkg/token"
)

type fakeLifecycle struct {
	registerErr     error
	deprovisionErr  error
	lastRegister    orchestrator.RegisterRequest
	lastDeprovision orchestrator.DeprovisionRequest
}

func (f *fakeLifecycle) RegisterTenantAdmin(_ context.Context, req orchestrator.RegisterRequest) (userstore.Record, error) {
	f.lastRegister = req
	if f.registerErr != nil {
		return userstore.Record{}, f.registerErr
	}
	return userstore.Record{
		TenantID:     req.TenantID,
		ID:           req.UserName,
		UserName:     req.UserName,
		Role:         orchestrator.RoleAdmin,
		AuthDomainID: "pool-1",
		ClientID:     "client-1",
		BrokerID:     "idpool-1",
		Sub:          "sub-1",
	}, nil
}

func (f *fakeLifecycle) DeprovisionTenant(_ context.Context, req orchestrator.DeprovisionRequest) error {
	f.lastDeprovision = req
	return f.deprovisionErr
}

type fakeRecords struct {
	byID map[string]userstore.Record
}

func (f *fakeRecords) Put(context.Context, userstore.Record) error          { return nil }
func (f *fakeRecords) SetSub(context.Context, string, string, string) error { return nil }
func (f *fakeRecords) Get(context.Context, string, string) (userstore.Record, error) {
	return userstore.Record{}, apperr.New(apperr.NotFound, "not implemented")
}
func (f *fakeRecords) LookupByID(_ context.Context, id string) (userstore.Record, bool, error) {
	rec, ok := f.byID[id]
	return rec, ok, nil
}
func (f *fakeRecords) PurgeTenant(context.Context, string) (int, error) { return 0, nil }
func (f *fakeRecords) DescribeDataResources(context.Context) (policy.DataResources, error) {
	return policy.DataResources{}, nil
}

type fakeDirectory struct {
	lastDomainID string
	lastCreds    *token.Credentials
	users        []identity.Summary
}

func (f *fakeDirectory) CreateDomain(context.Context, string) (identity.DomainHandle, error) {
	return identity.DomainHandle{}, nil
}
func (f *fakeDirectory) CreateClient(context.Context, identity.DomainHandle) (identity.ClientHandle, error) {
	return identity.ClientHandle{}, nil
}
func (f *fakeDirectory) CreateIdentity(context.Context, string, identity.Attributes) (identity.Created, error) {
	return identity.Created{}, nil
}
func (f *fakeDirectory) DeleteDomain(context.Context, string) error { return nil }
func (f *fakeDirectory) ListIdentities(_ context.Context, domainID string, creds *token.Credentials) ([]identity.Summary, error) {
	f.lastDomainID = domainID
	f.lastCreds = creds
	return f.users, nil
}

func newTestApp(t *testing.T, lc *fakeLifecycle, store *fakeRecords, dir *fakeDirectory, brokerURL string) http.Handler {
	t.Helper()
	if store == nil {
		store = &fakeRecords{byID: map[string]userstore.Record{}}
	}
	if dir == nil {
		dir = &fakeDirectory{}
	}
	app := New(zap.NewNop().Sugar(), lc, store, dir, token.NewBroker(brokerURL))
	return app.Handler()
}

func TestHealth(t *testing.T) {
	h := newTestApp(t, &fakeLifecycle{}, nil, nil, "http://unused")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestRegisterTenantAdmin(t *testing.T) {
	lc := &fakeLifecycle{}
	h := newTestApp(t, lc, nil, nil, "http://unused")

	body, _ := json.Marshal(orchestrator.RegisterRequest{
		TenantID: "TENANT1",
		UserName: "admin@example.com",
		Tier:     "Standard",
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/user/reg", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "TENANT1", lc.lastRegister.TenantID)

	var rec userstore.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "pool-1", rec.AuthDomainID)
	assert.Equal(t, "sub-1", rec.Sub)
}

func TestRegisterBadJSON(t *testing.T) {
	h := newTestApp(t, &fakeLifecycle{}, nil, nil, "http://unused")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/user/reg", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRegisterErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.InvalidArgument, http.StatusBadRequest},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Conflict, http.StatusConflict},
		{apperr.IdentityCreationFailed, http.StatusUnprocessableEntity},
		{apperr.UpstreamFailure, http.StatusBadGateway},
	} {
		lc := &fakeLifecycle{registerErr: apperr.New(tc.kind, "nope")}
		h := newTestApp(t, lc, nil, nil, "http://unused")

		body, _ := json.Marshal(orchestrator.RegisterRequest{TenantID: "T", UserName: "a@b.c"})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/user/reg", bytes.NewReader(body)))
		assert.Equal(t, tc.status, rr.Code, "kind %s", tc.kind)

		var prob map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &prob))
		assert.Equal(t, string(tc.kind), prob["title"])
	}
}

func TestProblemDetailOmitsUpstreamPayload(t *testing.T) {
	cause := errors.New("AccessDeniedException: User arn:aws:iam::123456789012:user/internal-svc is not authorized")
	lc := &fakeLifecycle{registerErr: apperr.Wrap(cause, apperr.UpstreamFailure, "create user pool")}
	h := newTestApp(t, lc, nil, nil, "http://unused")

	body, _ := json.Marshal(orchestrator.RegisterRequest{TenantID: "T", UserName: "a@b.c"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/user/reg", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadGateway, rr.Code)
	var prob map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &prob))
	assert.Equal(t, "create user pool", prob["detail"])
	assert.NotContains(t, rr.Body.String(), "AccessDenied")
	assert.NotContains(t, rr.Body.String(), "arn:aws:iam")
}

func TestDeprovisionTenant(t *testing.T) {
	lc := &fakeLifecycle{}
	h := newTestApp(t, lc, nil, nil, "http://unused")

	body, _ := json.Marshal(orchestrator.DeprovisionRequest{
		TenantID:     "TENANT1",
		AuthDomainID: "pool-1",
		BrokerID:     "idpool-1",
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/user/tenants", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pool-1", lc.lastDeprovision.AuthDomainID)
}

func TestGetUserPool(t *testing.T) {
	store := &fakeRecords{byID: map[string]userstore.Record{
		"admin@example.com": {TenantID: "TENANT1", ID: "admin@example.com", AuthDomainID: "pool-1"},
	}}
	h := newTestApp(t, &fakeLifecycle{}, store, nil, "http://unused")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/pool/admin@example.com", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"isExist":true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/pool/ghost@example.com", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"isExist":false}`, rr.Body.String())
}

func TestListUsers(t *testing.T) {
	broker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/user", r.URL.Path)
		_ = json.NewEncoder(w).Encode(token.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "s", SessionToken: "sess"})
	}))
	defer broker.Close()

	dir := &fakeDirectory{users: []identity.Summary{{UserName: "admin@example.com", Enabled: true, Status: "CONFIRMED"}}}
	h := newTestApp(t, &fakeLifecycle{}, nil, dir, broker.URL)

	tok, err := jwt.NewBuilder().Issuer("https://cognito-idp.us-east-1.amazonaws.com/pool-1").Build()
	require.NoError(t, err)
	raw, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("test-secret")))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer "+string(raw))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pool-1", dir.lastDomainID)
	require.NotNil(t, dir.lastCreds)
	assert.Equal(t, "AKIA", dir.lastCreds.AccessKeyID)

	var users []identity.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "admin@example.com", users[0].UserName)
}

func TestListUsersWithoutBearer(t *testing.T) {
	h := newTestApp(t, &fakeLifecycle{}, nil, nil, "http://unused")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
