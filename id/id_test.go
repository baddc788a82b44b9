package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Nityam-7/TELSTAR/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CustomerID", id.NewCustomerID, "cust_"},
		{"PlanID", id.NewPlanID, "plan_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"InvoiceID", id.NewInvoiceID, "inv_"},
		{"UsageID", id.NewUsageID, "use_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CustomerID", id.NewCustomerID, id.ParseCustomerID},
		{"PlanID", id.NewPlanID, id.ParsePlanID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"InvoiceID", id.NewInvoiceID, id.ParseInvoiceID},
		{"UsageID", id.NewUsageID, id.ParseUsageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	invID := id.NewInvoiceID().String()

	if _, err := id.ParsePlanID(invID); err == nil {
		t.Error("expected ParsePlanID to reject an invoice ID")
	}
	if _, err := id.ParseCustomerID(invID); err == nil {
		t.Error("expected ParseCustomerID to reject an invoice ID")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not-a-typeid", "inv_!!!"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("expected nil driver value, got %v, %v", v, err)
	}
}

func TestJSONText(t *testing.T) {
	original := id.NewSubscriptionID()

	data, err := json.Marshal(struct {
		ID id.ID `json:"id"`
	}{original})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back struct {
		ID id.ID `json:"id"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.ID.Equal(original) {
		t.Errorf("got %q, want %q", back.ID, original)
	}
}

func TestScan(t *testing.T) {
	original := id.NewCustomerID()

	tests := []struct {
		name  string
		input any
		nil   bool
	}{
		{"string", original.String(), false},
		{"bytes", []byte(original.String()), false},
		{"nil", nil, true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got id.ID
			if err := got.Scan(tt.input); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if got.IsNil() != tt.nil {
				t.Fatalf("IsNil = %v, want %v", got.IsNil(), tt.nil)
			}
			if !tt.nil && !got.Equal(original) {
				t.Errorf("got %q, want %q", got, original)
			}
		})
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}
