package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Nityam-7/TELSTAR/store/migrate"
)

// Migrations is the migration group for the TELSTAR store (SQLite).
var Migrations = migrate.NewGroup("telstar")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_telstar_plans",
			Version: "20250101000001",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_plans (
    seq                INTEGER PRIMARY KEY AUTOINCREMENT,
    id                 TEXT NOT NULL UNIQUE,
    name               TEXT NOT NULL,
    type               TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'active',
    rate_per_unit      TEXT NOT NULL,
    currency           TEXT NOT NULL,
    billing_cycle_days INTEGER NOT NULL,
    description        TEXT NOT NULL DEFAULT '',
    prepaid_balance    TEXT,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
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
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_subscriptions",
			Version: "20250101000003",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_subscriptions (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL UNIQUE,
    customer_id   TEXT NOT NULL REFERENCES telstar_customers (id),
    plan_id       TEXT NOT NULL REFERENCES telstar_plans (id),
    plan_type     TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'active',
    started_at    TEXT NOT NULL,
    superseded_at TEXT,
    balance       TEXT,
    currency      TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_telstar_subs_one_active ON telstar_subscriptions (customer_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_telstar_subs_customer ON telstar_subscriptions (customer_id, started_at);
`,
		},
		&migrate.Migration{
			Name:    "create_telstar_invoices",
			Version: "20250101000004",
			Up: `
CREATE TABLE IF NOT EXISTS telstar_invoices (
    number          INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    customer_id     TEXT NOT NULL REFERENCES telstar_customers (id),
    subscription_id TEXT NOT NULL REFERENCES telstar_subscriptions (id),
    plan_id         TEXT NOT NULL,
    plan_type       TEXT NOT NULL,
    units           TEXT NOT NULL,
    rate_per_unit   TEXT NOT NULL,
    amount          TEXT NOT NULL,
    currency        TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    period_start    TEXT NOT NULL,
    period_end      TEXT NOT NULL,
    issued_at       TEXT NOT NULL,
    paid_at         TEXT,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telstar_invoices_customer ON telstar_invoices (customer_id, issued_at, number);
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
    units           TEXT NOT NULL,
    recorded_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_telstar_usage_sub_time ON telstar_usage (subscription_id, recorded_at);
`,
		},
	)
}

// executor adapts a *sql.DB to migrate.Executor.
type executor struct {
	db *sql.DB
}

func (e executor) EnsureHistory(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS telstar_migrations (
    grp        TEXT NOT NULL,
    version    TEXT NOT NULL,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    PRIMARY KEY (grp, version)
)`)
	return err
}

func (e executor) Applied(ctx context.Context, group string) (map[string]bool, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT version FROM telstar_migrations WHERE grp = ?`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (e executor) Apply(ctx context.Context, group string, m *migrate.Migration) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO telstar_migrations (grp, version, name, applied_at) VALUES (?, ?, ?, ?)`,
		group, m.Version, m.Name, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
