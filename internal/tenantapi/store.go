// Package tenantapi is the tenant-management HTTP surface: CRUD over
// tenant records in PostgreSQL. Tenant records are the control-plane
// view of a tenant; the identity infrastructure itself is owned by the
// user service.
package tenantapi

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"saasid/pkg/apperr"
)

// Tenant is the durable tenant row. DELETE deactivates instead of
// removing the row so the identifiers stay resolvable during teardown.
type Tenant struct {
	ID           string    `json:"tenantId"`
	OwnerName    string    `json:"ownerName"`
	Email        string    `json:"email"`
	CompanyName  string    `json:"companyName"`
	Tier         string    `json:"tier"`
	AuthDomainID string    `json:"userPoolId"`
	ClientID     string    `json:"clientId"`
	BrokerID     string    `json:"identityPoolId"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Update carries the mutable tenant fields.
type Update struct {
	CompanyName string `json:"companyName"`
	Tier        string `json:"tier"`
}

type Store interface {
	Create(ctx context.Context, t Tenant) error
	Get(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Update(ctx context.Context, id string, u Update) (Tenant, error)
	// Deactivate marks the tenant inactive. Unknown ids fail with
	// NotFound.
	Deactivate(ctx context.Context, id string) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Store { return &pgStore{pool: pool} }

// EnsureSchema creates the tenants table if absent. Safe to call
// repeatedly (idempotent).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenants (
  id text PRIMARY KEY,
  owner_name text NOT NULL DEFAULT '',
  email text NOT NULL DEFAULT '',
  company_name text NOT NULL DEFAULT '',
  tier text NOT NULL DEFAULT 'Standard',
  user_pool_id text NOT NULL DEFAULT '',
  client_id text NOT NULL DEFAULT '',
  identity_pool_id text NOT NULL DEFAULT '',
  active boolean NOT NULL DEFAULT true,
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

const tenantColumns = `id, owner_name, email, company_name, tier,
  user_pool_id, client_id, identity_pool_id, active, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.OwnerName, &t.Email, &t.CompanyName, &t.Tier,
		&t.AuthDomainID, &t.ClientID, &t.BrokerID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *pgStore) Create(ctx context.Context, t Tenant) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tenants
	  (id, owner_name, email, company_name, tier, user_pool_id, client_id, identity_pool_id)
	  VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.OwnerName, t.Email, t.CompanyName, t.Tier, t.AuthDomainID, t.ClientID, t.BrokerID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Newf(apperr.Conflict, "tenant %s already exists", t.ID)
	}
	return apperr.Wrap(err, apperr.UpstreamFailure, "create tenant")
}

func (s *pgStore) Get(ctx context.Context, id string) (Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.Newf(apperr.NotFound, "no tenant %s", id)
	}
	if err != nil {
		return Tenant{}, apperr.Wrap(err, apperr.UpstreamFailure, "get tenant")
	}
	return t, nil
}

func (s *pgStore) List(ctx context.Context) ([]Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "list tenants")
	}
	defer rows.Close()
	out := []Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.UpstreamFailure, "scan tenant")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgStore) Update(ctx context.Context, id string, u Update) (Tenant, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx, `UPDATE tenants
	  SET company_name=$2, tier=$3, updated_at=NOW()
	  WHERE id=$1
	  RETURNING `+tenantColumns, id, u.CompanyName, u.Tier))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, apperr.Newf(apperr.NotFound, "no tenant %s", id)
	}
	if err != nil {
		return Tenant{}, apperr.Wrap(err, apperr.UpstreamFailure, "update tenant")
	}
	return t, nil
}

func (s *pgStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET active=false, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "deactivate tenant")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Newf(apperr.NotFound, "no tenant %s", id)
	}
	return nil
}
