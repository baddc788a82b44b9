package invoicepdf_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/invoicepdf"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/types"
)

func statement(status invoice.Status) *invoice.Statement {
	issued := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	inv := &invoice.Invoice{
		ID:          id.NewInvoiceID(),
		Number:      42,
		CustomerID:  id.NewCustomerID(),
		PlanID:      id.NewPlanID(),
		PlanType:    plan.TypePostpaid,
		Units:       decimal.NewFromInt(100),
		RatePerUnit: types.MustParse("0.05", "usd"),
		Amount:      types.USD(500),
		Status:      status,
		PeriodStart: issued.AddDate(0, 0, -30),
		PeriodEnd:   issued,
		IssuedAt:    issued,
	}
	if status == invoice.StatusPaid {
		inv.PaidAt = &issued
	}
	return &invoice.Statement{
		Invoice:       inv,
		CustomerName:  "Zoë Müller",
		CustomerEmail: "zoe@example.com",
		PlanName:      "Basic",
		Currency:      "usd",
	}
}

func TestFormatterMetadata(t *testing.T) {
	f := invoicepdf.New()
	assert.Equal(t, "invoice-pdf", f.Name())
	assert.Equal(t, invoicepdf.FormatPDF, f.Format())
	assert.Equal(t, "application/pdf", f.ContentType())
}

func TestRenderProducesPDF(t *testing.T) {
	for _, status := range []invoice.Status{invoice.StatusPending, invoice.StatusPaid} {
		t.Run(string(status), func(t *testing.T) {
			var buf bytes.Buffer
			err := invoicepdf.New(invoicepdf.WithIssuer("Acme Telecom")).
				Render(context.Background(), statement(status), &buf)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
			assert.Greater(t, buf.Len(), 500)
		})
	}
}

func TestRenderRejectsEmptyStatement(t *testing.T) {
	var buf bytes.Buffer
	err := invoicepdf.New().Render(context.Background(), &invoice.Statement{}, &buf)
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
