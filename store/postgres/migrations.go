package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nityam-7/TELSTAR/store/migrate"
)

// Migrations is the migration group for the TELSTAR store (PostgreSQL).
var Migrations = migrate.NewGroup("telstar")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_telstar_plans",
			Version: "20250101000001",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_plans (
    id                 TEXT PRIMARY KEY,
    seq                BIGSERIAL NOT NULL UNIQUE,
    name               TEXT NOT NULL,
    type               TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'active',
    rate_per_unit      NUMERIC NOT NULL,
    currency           TEXT NOT NULL,
    billing_cycle_days INTEGER NOT NULL CHECK (billing_cycle_days > 0),
    description        TEXT NOT NULL DEFAULT '',
    prepaid_balance    NUMERIC,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_telstar_plans_active_name ON telstar_plans (name) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_telstar_plans_type_status ON telstar_plans (type, status);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_customers",
			Version: "20250101000002",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_customers (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    phone         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_subscriptions",
			Version: "20250101000003",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_subscriptions (
    id            TEXT PRIMARY KEY,
    seq           BIGSERIAL NOT NULL UNIQUE,
    customer_id   TEXT NOT NULL REFERENCES telstar_customers (id),
    plan_id       TEXT NOT NULL REFERENCES telstar_plans (id),
    plan_type     TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'active',
    started_at    TIMESTAMPTZ NOT NULL,
    superseded_at TIMESTAMPTZ,
    balance       NUMERIC,
    currency      TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_telstar_subs_one_active ON telstar_subscriptions (customer_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_telstar_subs_customer ON telstar_subscriptions (customer_id, started_at DESC, seq DESC);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_invoices",
			Version: "20250101000004",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_invoices (
    id              TEXT PRIMARY KEY,
    number          BIGSERIAL NOT NULL UNIQUE,
    customer_id     TEXT NOT NULL REFERENCES telstar_customers (id),
    subscription_id TEXT NOT NULL REFERENCES telstar_subscriptions (id),
    plan_id         TEXT NOT NULL,
    plan_type       TEXT NOT NULL,
    units           NUMERIC NOT NULL CHECK (units >= 0),
    rate_per_unit   NUMERIC NOT NULL,
    amount          NUMERIC NOT NULL,
    currency        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    period_start    TIMESTAMPTZ NOT NULL,
    period_end      TIMESTAMPTZ NOT NULL,
    issued_at       TIMESTAMPTZ NOT NULL,
    paid_at         TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_telstar_invoices_customer ON telstar_invoices (customer_id, issued_at DESC, number DESC);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_usage",
			Version: "20250101000005",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_usage (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL,
    subscription_id TEXT NOT NULL REFERENCES telstar_subscriptions (id),
    units           NUMERIC NOT NULL CHECK (units >= 0),
    recorded_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telstar_usage_sub_time ON telstar_usage (subscription_id, recorded_at);
`,
		},
	)
}

// executor adapts a pgx pool to migrate.Executor.
type executor struct {
	pool *pgxpool.Pool
}

func (e executor) EnsureHistory(ctx context.Context) error {
	_, err := e.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS telstar_migrations (
    grp        TEXT NOT NULL,
    version    TEXT NOT NULL,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (grp, version)
)`)
	return err
}

func (e executor) Applied(ctx context.Context, group string) (map[string]bool, error) {
	rows, err := e.pool.Query(ctx, `SELECT version FROM telstar_migrations WHERE grp = $1`, group)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (e executor) Apply(ctx context.Context, group string, m *migrate.Migration) error {
	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO telstar_migrations (grp, version, name) VALUES ($1, $2, $3)`,
			group, m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record version: %w", err)
		}
		return nil
	})
}
