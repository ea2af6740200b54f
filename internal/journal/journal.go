// Package journal persists workflow progress so a process crash
// mid-provisioning leaves a record that a reconciliation sweep can use
// to finish cleaning up, instead of orphaned cloud resources.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"saasid/pkg/apperr"
)

// Handles are the external identifiers accumulated so far by one
// workflow. Only what cleanup needs is recorded.
type Handles struct {
	AuthDomainID  string `json:"authDomainId,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	BrokerID      string `json:"brokerId,omitempty"`
	AuthRoleName  string `json:"authRoleName,omitempty"`
	AdminRoleName string `json:"adminRoleName,omitempty"`
	UserRoleName  string `json:"userRoleName,omitempty"`
}

// Entry is one journaled workflow.
type Entry struct {
	TenantID  string
	Step      string
	Handles   Handles
	StartedAt time.Time
	UpdatedAt time.Time
}

// Journal records workflow progress before each step. The no-op
// implementation keeps single-node dev deployments running without a
// database, at the cost of crash recovery.
type Journal interface {
	Begin(ctx context.Context, tenantID string) error
	Advance(ctx context.Context, tenantID, step string, h Handles) error
	// Finish removes the entry: the workflow either completed or rolled
	// its resources back, so there is nothing left to reconcile.
	Finish(ctx context.Context, tenantID string) error
	// Stale returns workflows untouched for longer than age; these are
	// presumed abandoned by a crashed process.
	Stale(ctx context.Context, age time.Duration) ([]Entry, error)
}

type pgJournal struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed journal.
func NewPostgres(pool *pgxpool.Pool) Journal {
	return &pgJournal{pool: pool}
}

// EnsureSchema creates the journal table if absent. Safe to call
// repeatedly (idempotent).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS provisioning_workflows (
  tenant_id text PRIMARY KEY,
  step text NOT NULL,
  handles jsonb NOT NULL DEFAULT '{}'::jsonb,
  started_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW()
);
`)
	return err
}

func (j *pgJournal) Begin(ctx context.Context, tenantID string) error {
	_, err := j.pool.Exec(ctx, `INSERT INTO provisioning_workflows(tenant_id, step)
	  VALUES ($1, 'Start')
	  ON CONFLICT (tenant_id) DO UPDATE SET step='Start', handles='{}'::jsonb, started_at=NOW(), updated_at=NOW()`, tenantID)
	return apperr.Wrap(err, apperr.UpstreamFailure, "journal begin")
}

func (j *pgJournal) Advance(ctx context.Context, tenantID, step string, h Handles) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return apperr.Wrap(err, apperr.UpstreamFailure, "journal marshal")
	}
	_, err = j.pool.Exec(ctx, `UPDATE provisioning_workflows
	  SET step=$2, handles=$3, updated_at=NOW() WHERE tenant_id=$1`, tenantID, step, raw)
	return apperr.Wrap(err, apperr.UpstreamFailure, "journal advance")
}

func (j *pgJournal) Finish(ctx context.Context, tenantID string) error {
	_, err := j.pool.Exec(ctx, `DELETE FROM provisioning_workflows WHERE tenant_id=$1`, tenantID)
	return apperr.Wrap(err, apperr.UpstreamFailure, "journal finish")
}

func (j *pgJournal) Stale(ctx context.Context, age time.Duration) ([]Entry, error) {
	rows, err := j.pool.Query(ctx, `SELECT tenant_id, step, handles, started_at, updated_at
	  FROM provisioning_workflows WHERE updated_at < NOW() - make_interval(secs => $1)`, age.Seconds())
	if err != nil {
		return nil, apperr.Wrap(err, apperr.UpstreamFailure, "journal stale query")
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var (
			e   Entry
			raw []byte
		)
		if err := rows.Scan(&e.TenantID, &e.Step, &raw, &e.StartedAt, &e.UpdatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.UpstreamFailure, "journal stale scan")
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &e.Handles)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type noopJournal struct{}

// NewNoop returns a journal that records nothing.
func NewNoop() Journal { return noopJournal{} }

func (noopJournal) Begin(context.Context, string) error                    { return nil }
func (noopJournal) Advance(context.Context, string, string, Handles) error { return nil }
func (noopJournal) Finish(context.Context, string) error                   { return nil }
func (noopJournal) Stale(context.Context, time.Duration) ([]Entry, error) {
	return nil, nil
}
