// Package postgres implements store.Store on PostgreSQL using pgx.
// LockCustomer takes a row lock on the customer, so concurrent writers for
// one customer queue behind each other while other customers proceed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	telstarstore "github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/store/migrate"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// compile-time interface check
var _ telstarstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses dsn and connects a pool. maxConns <= 0 keeps the pgx default.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("telstar/postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telstar/postgres: connect: %w", err)
	}
	return New(pool), nil
}

// New creates a store on an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(executor{pool: s.pool}, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("telstar/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Transactions ====================

// dbExecutor abstracts pgxpool.Pool and pgx.Tx.
type dbExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type txInfo struct {
	owner *Store
	tx    pgx.Tx
}

func (s *Store) txFrom(ctx context.Context) pgx.Tx {
	if info, ok := ctx.Value(txKey{}).(txInfo); ok && info.owner == s {
		return info.tx
	}
	return nil
}

func (s *Store) conn(ctx context.Context) dbExecutor {
	if tx := s.txFrom(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	// BeginFunc rolls back on error or panic.
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, txInfo{owner: s, tx: tx}))
	})
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := s.conn(ctx).Exec(ctx, sql, args...)
	if isUniqueViolation(err) {
		return tag, telstar.ErrAlreadyExists
	}
	return tag, err
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	err := s.conn(ctx).QueryRow(ctx, `
INSERT INTO telstar_plans (id, name, type, status, rate_per_unit, currency, billing_cycle_days,
    description, prepaid_balance, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING seq`,
		p.ID.String(), p.Name, string(p.Type), string(p.Status), p.RatePerUnit.Amount,
		p.RatePerUnit.Currency, p.BillingCycleDays, p.Description, prepaidBalance(p),
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.Seq)
	if isUniqueViolation(err) {
		return telstar.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := scanPlan(s.conn(ctx).QueryRow(ctx,
		`SELECT `+planColumns+` FROM telstar_plans WHERE id = $1`, planID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrPlanNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetActivePlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	p, err := scanPlan(s.conn(ctx).QueryRow(ctx,
		`SELECT `+planColumns+` FROM telstar_plans WHERE name = $1 AND status = $2`,
		name, string(plan.StatusActive)))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrPlanNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var q query
	if opts.Type != "" {
		q.where("type", string(opts.Type))
	}
	if opts.Status != "" {
		q.where("status", string(opts.Status))
	}
	sql, args := q.build(`SELECT `+planColumns+` FROM telstar_plans`, `seq ASC`, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPlan)
}

func (s *Store) RetirePlan(ctx context.Context, planID id.PlanID) error {
	tag, err := s.exec(ctx,
		`UPDATE telstar_plans SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(plan.StatusRetired), planID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return telstar.ErrPlanNotFound
	}
	return nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.exec(ctx, `
INSERT INTO telstar_customers (id, name, email, phone, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID.String(), c.Name, c.Email, c.Phone, c.PasswordHash, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return s.getCustomer(ctx, `id = $1`, customerID.String())
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return s.getCustomer(ctx, `email = $1`, email)
}

func (s *Store) getCustomer(ctx context.Context, cond, value string) (*customer.Customer, error) {
	c, err := scanCustomer(s.conn(ctx).QueryRow(ctx,
		`SELECT `+customerColumns+` FROM telstar_customers WHERE `+cond, value))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

// LockCustomer holds the customer's row lock until the transaction ends.
// Outside a transaction the lock is released immediately.
func (s *Store) LockCustomer(ctx context.Context, customerID id.CustomerID) error {
	var locked string
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT id FROM telstar_customers WHERE id = $1 FOR UPDATE`, customerID.String()).Scan(&locked)
	if isNoRows(err) {
		return telstar.ErrCustomerNotFound
	}
	return err
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	balance, currency := subscriptionBalance(sub)
	err := s.conn(ctx).QueryRow(ctx, `
INSERT INTO telstar_subscriptions (id, customer_id, plan_id, plan_type, status, started_at,
    superseded_at, balance, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING seq`,
		sub.ID.String(), sub.CustomerID.String(), sub.PlanID.String(), string(sub.PlanType),
		string(sub.Status), sub.StartedAt, sub.SupersededAt, balance, currency,
		sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.Seq)
	if isUniqueViolation(err) {
		return telstar.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.conn(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM telstar_subscriptions WHERE id = $1`, subID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.conn(ctx).QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM telstar_subscriptions WHERE customer_id = $1 AND status = $2`,
		customerID.String(), string(subscription.StatusActive)))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrNoActiveSubscription
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var q query
	q.where("customer_id", customerID.String())
	if opts.Status != "" {
		q.where("status", string(opts.Status))
	}
	sql, args := q.build(`SELECT `+subscriptionColumns+` FROM telstar_subscriptions`,
		`started_at DESC, seq DESC`, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSubscription)
}

func (s *Store) SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	tag, err := s.exec(ctx, `
UPDATE telstar_subscriptions SET status = $1, superseded_at = $2, updated_at = $2
WHERE id = $3 AND status = $4`,
		string(subscription.StatusSuperseded), at, subID.String(), string(subscription.StatusActive))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return fmt.Errorf("%w: subscription %s is not active", telstar.ErrInvalidState, subID)
}

func (s *Store) UpdateSubscriptionBalance(ctx context.Context, sub *subscription.Subscription) error {
	balance, _ := subscriptionBalance(sub)
	tag, err := s.exec(ctx,
		`UPDATE telstar_subscriptions SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, sub.UpdatedAt, sub.ID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return telstar.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	err := s.conn(ctx).QueryRow(ctx, `
INSERT INTO telstar_invoices (id, customer_id, subscription_id, plan_id, plan_type, units,
    rate_per_unit, amount, currency, status, period_start, period_end, issued_at, paid_at,
    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING number`,
		inv.ID.String(), inv.CustomerID.String(), inv.SubscriptionID.String(), inv.PlanID.String(),
		string(inv.PlanType), inv.Units, inv.RatePerUnit.Amount, inv.Amount.Amount, inv.Amount.Currency,
		string(inv.Status), inv.PeriodStart, inv.PeriodEnd, inv.IssuedAt, inv.PaidAt,
		inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.Number)
	if isUniqueViolation(err) {
		return telstar.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := scanInvoice(s.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM telstar_invoices WHERE id = $1`, invID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var q query
	q.where("customer_id", customerID.String())
	if opts.Status != "" {
		q.where("status", string(opts.Status))
	}
	sql, args := q.build(`SELECT `+invoiceColumns+` FROM telstar_invoices`,
		`issued_at DESC, number DESC`, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanInvoice)
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	tag, err := s.exec(ctx, `
UPDATE telstar_invoices SET status = $1, paid_at = $2, updated_at = $2
WHERE id = $3 AND status = $4`,
		string(invoice.StatusPaid), paidAt, invID.String(), string(invoice.StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetInvoice(ctx, invID); err != nil {
		return err
	}
	return telstar.ErrAlreadyPaid
}

// ==================== Usage Store ====================

func (s *Store) RecordUsage(ctx context.Context, r *usage.Record) error {
	_, err := s.exec(ctx, `
INSERT INTO telstar_usage (id, customer_id, subscription_id, units, recorded_at)
VALUES ($1, $2, $3, $4, $5)`,
		r.ID.String(), r.CustomerID.String(), r.SubscriptionID.String(), r.Units, r.RecordedAt,
	)
	return err
}

func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.conn(ctx).QueryRow(ctx, `
SELECT COALESCE(SUM(units), 0) FROM telstar_usage
WHERE subscription_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		subID.String(), from, to).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// ==================== Helpers ====================

// query accumulates equality filters with numbered placeholders.
type query struct {
	conds []string
	args  []any
}

func (q *query) where(column string, value any) {
	q.args = append(q.args, value)
	q.conds = append(q.conds, column+" = $"+strconv.Itoa(len(q.args)))
}

func (q *query) build(selectFrom, orderBy string, limit, offset int) (string, []any) {
	var b strings.Builder
	b.WriteString(selectFrom)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)

	args := q.args
	if limit > 0 {
		args = append(args, limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	if offset > 0 {
		args = append(args, offset)
		b.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
