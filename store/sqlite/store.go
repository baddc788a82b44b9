// Package sqlite implements store.Store on SQLite using the pure-Go
// modernc.org/sqlite driver. The pool holds a single connection, so
// transactions are serialized and LockCustomer has nothing to add.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"foreign_keys(1)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("telstar/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return New(db), nil
}

// New wraps an existing handle. The caller should limit it to one open
// connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	orch := migrate.NewOrchestrator(executor{db: s.db}, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("telstar/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Transactions ====================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

type txState struct {
	owner *Store
	tx    *sql.Tx
}

func (s *Store) txFrom(ctx context.Context) *sql.Tx {
	if st, ok := ctx.Value(txKey{}).(*txState); ok && st.owner == s {
		return st.tx
	}
	return nil
}

func (s *Store) conn(ctx context.Context) querier {
	if tx := s.txFrom(ctx); tx != nil {
		return tx
	}
	return s.db
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("telstar/sqlite: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, &txState{owner: s, tx: tx})); err != nil {
		_ = tx.Rollback() //nolint:errcheck // fn's error wins
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("telstar/sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return nil, telstar.ErrAlreadyExists
	}
	return res, err
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	res, err := s.exec(ctx, `
INSERT INTO telstar_plans (id, name, type, status, rate_per_unit, currency, billing_cycle_days,
    description, prepaid_balance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, string(p.Type), string(p.Status), p.RatePerUnit.Amount,
		p.RatePerUnit.Currency, p.BillingCycleDays, p.Description, prepaidBalance(p),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.Seq = seq
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := scanPlan(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM telstar_plans WHERE id = ?`, planID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrPlanNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GetActivePlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	p, err := scanPlan(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM telstar_plans WHERE name = ? AND status = ?`,
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
	var (
		where []string
		args  []any
	)
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(opts.Type))
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	query := `SELECT ` + planColumns + ` FROM telstar_plans` + whereClause(where) + ` ORDER BY seq ASC`
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) RetirePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.exec(ctx,
		`UPDATE telstar_plans SET status = ?, updated_at = ? WHERE id = ?`,
		string(plan.StatusRetired), formatTime(time.Now()), planID.String())
	if err != nil {
		return err
	}
	return requireAffected(res, telstar.ErrPlanNotFound)
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.exec(ctx, `
INSERT INTO telstar_customers (id, name, email, phone, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.Email, c.Phone, c.PasswordHash,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return err
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return s.getCustomer(ctx, "id", customerID.String())
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return s.getCustomer(ctx, "email", email)
}

func (s *Store) getCustomer(ctx context.Context, column, value string) (*customer.Customer, error) {
	c, err := scanCustomer(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM telstar_customers WHERE `+column+` = ?`, value))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrCustomerNotFound
		}
		return nil, err
	}
	return c, nil
}

// LockCustomer only checks existence; the single connection already
// serializes transactions.
func (s *Store) LockCustomer(ctx context.Context, customerID id.CustomerID) error {
	var one int
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT 1 FROM telstar_customers WHERE id = ?`, customerID.String()).Scan(&one)
	if isNoRows(err) {
		return telstar.ErrCustomerNotFound
	}
	return err
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	balance, currency := subscriptionBalance(sub)
	res, err := s.exec(ctx, `
INSERT INTO telstar_subscriptions (id, customer_id, plan_id, plan_type, status, started_at,
    superseded_at, balance, currency, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID.String(), sub.CustomerID.String(), sub.PlanID.String(), string(sub.PlanType),
		string(sub.Status), formatTime(sub.StartedAt), formatNullTime(sub.SupersededAt),
		balance, currency, formatTime(sub.CreatedAt), formatTime(sub.UpdatedAt),
	)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sub.Seq = seq
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM telstar_subscriptions WHERE id = ?`, subID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*subscription.Subscription, error) {
	sub, err := scanSubscription(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM telstar_subscriptions WHERE customer_id = ? AND status = ?`,
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
	where := []string{"customer_id = ?"}
	args := []any{customerID.String()}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	query := `SELECT ` + subscriptionColumns + ` FROM telstar_subscriptions` + whereClause(where) +
		` ORDER BY started_at DESC, seq DESC`
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.exec(ctx, `
UPDATE telstar_subscriptions SET status = ?, superseded_at = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(subscription.StatusSuperseded), formatTime(at), formatTime(at),
		subID.String(), string(subscription.StatusActive))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return fmt.Errorf("%w: subscription %s is not active", telstar.ErrInvalidState, subID)
}

func (s *Store) UpdateSubscriptionBalance(ctx context.Context, sub *subscription.Subscription) error {
	balance, _ := subscriptionBalance(sub)
	res, err := s.exec(ctx,
		`UPDATE telstar_subscriptions SET balance = ?, updated_at = ? WHERE id = ?`,
		balance, formatTime(sub.UpdatedAt), sub.ID.String())
	if err != nil {
		return err
	}
	return requireAffected(res, telstar.ErrSubscriptionNotFound)
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.exec(ctx, `
INSERT INTO telstar_invoices (id, customer_id, subscription_id, plan_id, plan_type, units,
    rate_per_unit, amount, currency, status, period_start, period_end, issued_at, paid_at,
    created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.CustomerID.String(), inv.SubscriptionID.String(), inv.PlanID.String(),
		string(inv.PlanType), inv.Units, inv.RatePerUnit.Amount, inv.Amount.Amount, inv.Amount.Currency,
		string(inv.Status), formatTime(inv.PeriodStart), formatTime(inv.PeriodEnd),
		formatTime(inv.IssuedAt), formatNullTime(inv.PaidAt),
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt),
	)
	if err != nil {
		return err
	}
	number, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.Number = number
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := scanInvoice(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM telstar_invoices WHERE id = ?`, invID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, telstar.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	where := []string{"customer_id = ?"}
	args := []any{customerID.String()}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(opts.Status))
	}

	query := `SELECT ` + invoiceColumns + ` FROM telstar_invoices` + whereClause(where) +
		` ORDER BY issued_at DESC, number DESC`
	query, args = paginate(query, args, opts.Limit, opts.Offset)

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	res, err := s.exec(ctx, `
UPDATE telstar_invoices SET status = ?, paid_at = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(invoice.StatusPaid), formatTime(paidAt), formatTime(paidAt),
		invID.String(), string(invoice.StatusPending))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
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
VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.CustomerID.String(), r.SubscriptionID.String(), r.Units, formatTime(r.RecordedAt),
	)
	return err
}

// SumUsage adds the units in Go; SQLite's SUM would go through float64.
func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
SELECT units FROM telstar_usage
WHERE subscription_id = ? AND recorded_at >= ? AND recorded_at < ?`,
		subID.String(), formatTime(from), formatTime(to))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var units decimal.Decimal
		if err := rows.Scan(&units); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(units)
	}
	return total, rows.Err()
}

// ==================== Helpers ====================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	return query + ` LIMIT ? OFFSET ?`, append(args, limit, offset)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
