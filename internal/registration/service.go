// Package registration is the public tenant-onboarding surface. It
// mints the tenant identifier, drives the user service through the
// provisioning workflow, and records the resulting tenant in the
// tenant service.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"saasid/internal/orchestrator"
	"saasid/internal/userstore"
	"saasid/pkg/apperr"
)

// Request is the self-service signup payload.
type Request struct {
	UserName    string `json:"userName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName"`
	Tier        string `json:"tier"`
}

// Result reports the newly onboarded tenant.
type Result struct {
	TenantID string           `json:"tenantId"`
	Admin    userstore.Record `json:"admin"`
}

type Service struct {
	userService   string
	tenantService string
	client        *http.Client
}

func NewService(userServiceURL, tenantServiceURL string) *Service {
	return &Service{
		userService:   strings.TrimRight(userServiceURL, "/"),
		tenantService: strings.TrimRight(tenantServiceURL, "/"),
		client:        &http.Client{Timeout: 60 * time.Second},
	}
}

// NewTenantID mints a globally unique tenant identifier.
func NewTenantID() string {
	return "TENANT" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register onboards a new tenant. The user name must not already exist
// in any tenant: user ids are globally unique across the system.
func (s *Service) Register(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.UserName) == "" {
		return Result{}, apperr.New(apperr.InvalidArgument, "user name is required")
	}
	if req.Tier == "" {
		req.Tier = "Standard"
	}

	taken, err := s.userExists(ctx, req.UserName)
	if err != nil {
		return Result{}, err
	}
	if taken {
		return Result{}, apperr.Newf(apperr.Conflict, "user %s already exists", req.UserName)
	}

	tenantID := NewTenantID()
	admin, err := s.registerAdmin(ctx, orchestrator.RegisterRequest{
		TenantID:    tenantID,
		UserName:    req.UserName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Tier:        req.Tier,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		return Result{}, err
	}

	if err := s.createTenant(ctx, req, admin); err != nil {
		return Result{}, err
	}
	return Result{TenantID: tenantID, Admin: admin}, nil
}

func (s *Service) userExists(ctx context.Context, userName string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.userService+"/user/pool/"+userName, nil)
	if err != nil {
		return false, apperr.Wrap(err, apperr.UpstreamFailure, "build user lookup")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, apperr.Wrap(err, apperr.UpstreamFailure, "user service unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, apperr.Newf(apperr.UpstreamFailure, "user lookup returned %d", resp.StatusCode)
	}
	var body struct {
		IsExist bool `json:"isExist"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, apperr.Wrap(err, apperr.UpstreamFailure, "decode user lookup")
	}
	return body.IsExist, nil
}

func (s *Service) registerAdmin(ctx context.Context, req orchestrator.RegisterRequest) (userstore.Record, error) {
	var rec userstore.Record
	if err := s.post(ctx, s.userService+"/user/reg", req, &rec, http.StatusCreated); err != nil {
		return userstore.Record{}, err
	}
	return rec, nil
}

func (s *Service) createTenant(ctx context.Context, req Request, admin userstore.Record) error {
	body := map[string]string{
		"tenantId":       admin.TenantID,
		"ownerName":      fmt.Sprintf("%s %s", req.FirstName, req.LastName),
		"email":          req.UserName,
		"companyName":    req.CompanyName,
		"tier":           req.Tier,
		"userPoolId":     admin.AuthDomainID,
		"clientId":       admin.ClientID,
		"identityPoolId": admin.BrokerID,
	}
	return s.post(ctx, s.tenantService+"/tenant", body, nil, http.StatusCreated)
}

// post sends v as JSON and decodes the response into out when the
// status matches. Problem responses are surfaced with their detail and
// the kind the status implies.
func (s *Service) post(ctx context.Context, url string, v, out any, want int) error {
	raw, _ := json.Marshal(v)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "backend unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return problemError(resp)
	}
	if out == nil {
		return nil
	}
	return apperr.Wrap(json.NewDecoder(resp.Body).Decode(out), apperr.UpstreamFailure, "decode response")
}

func problemError(resp *http.Response) error {
	var prob struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&prob)
	detail := prob.Detail
	if detail == "" {
		detail = fmt.Sprintf("backend returned %d", resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperr.New(apperr.InvalidArgument, detail)
	case http.StatusConflict:
		return apperr.New(apperr.Conflict, detail)
	case http.StatusUnprocessableEntity:
		return apperr.New(apperr.IdentityCreationFailed, detail)
	default:
		return apperr.New(apperr.UpstreamFailure, detail)
	}
}
