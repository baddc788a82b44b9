package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/store/sqlite"
	"github.com/Nityam-7/TELSTAR/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := sqlite.Open(filepath.Join(t.TempDir(), "telstar.db"))
		require.NoError(t, err)
		require.NoError(t, s.Migrate(context.Background()))
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "telstar.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM telstar_migrations`).Scan(&n))
	assert.Equal(t, len(sqlite.Migrations.Migrations()), n)
}

func newMock(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.New(db), mock
}

func TestTransactionRollsBackOnDriverError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO telstar_customers").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), func(ctx context.Context) error {
		return s.CreateCustomer(ctx, storetest.NewCustomer("io@example.com"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommitFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO telstar_customers").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err := s.Transaction(context.Background(), func(ctx context.Context) error {
		return s.CreateCustomer(ctx, storetest.NewCustomer("locked@example.com"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCustomerNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("FROM telstar_customers WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetCustomer(context.Background(), id.NewCustomerID())
	assert.ErrorIs(t, err, telstar.ErrCustomerNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInvoicePaidOnPaidInvoice(t *testing.T) {
	s, mock := newMock(t)
	invID := id.NewInvoiceID()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05.000000000Z")

	mock.ExpectExec("UPDATE telstar_invoices SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM telstar_invoices WHERE id").WillReturnRows(
		sqlmock.NewRows([]string{
			"number", "id", "customer_id", "subscription_id", "plan_id", "plan_type", "units",
			"rate_per_unit", "amount", "currency", "status", "period_start", "period_end",
			"issued_at", "paid_at", "created_at", "updated_at",
		}).AddRow(
			int64(7), invID.String(), id.NewCustomerID().String(), id.NewSubscriptionID().String(),
			id.NewPlanID().String(), "POSTPAID", "100", "0.05", "5.00", "usd", "paid",
			ts, ts, ts, ts, ts, ts,
		),
	)

	err := s.MarkInvoicePaid(context.Background(), invID, time.Now())
	assert.ErrorIs(t, err, telstar.ErrAlreadyPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverErrorPassesThrough(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("FROM telstar_plans").WillReturnError(errors.New("no such table: telstar_plans"))

	_, err := s.GetActivePlanByName(context.Background(), "Gold")
	require.Error(t, err)
	assert.False(t, telstar.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
