package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	"github.com/Nityam-7/TELSTAR/subscription"
)

// Response texts clients match on.
const (
	msgRegistered         = "User registered successfully"
	msgCredentialsMissing = "Email and password are required."
)

var maxBillingCycle = decimal.NewFromInt(plan.MaxBillingCycleDays)

// healthz handles GET /healthz.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// register handles POST /register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.engine.RegisterCustomer(r.Context(), customer.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":      c.ID.String(),
		"message": msgRegistered,
	})
}

// login handles POST /login. Missing fields answer with a plain-text body.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(msgCredentialsMissing)) //nolint:errcheck // client went away
		return
	}

	tok, err := s.engine.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if StatusFor(err) == http.StatusUnauthorized {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"auth": false, "token": nil})
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"auth":      true,
		"token":     tok.Value,
		"expiresAt": tok.ExpiresAt,
	})
}

// addPlan handles POST /admin/addPlan. A plan with an existing name
// replaces it unless "replace": false is sent.
func (s *Server) addPlan(w http.ResponseWriter, r *http.Request) {
	var req addPlanRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	spec := plan.Spec{
		Name:           req.PlanName,
		Type:           plan.Type(strings.ToUpper(strings.TrimSpace(req.PlanType))),
		RatePerUnit:    req.RatePerUnit,
		PrepaidBalance: req.PrepaidBalance,
		Description:    req.Description,
		Replace:        req.Replace == nil || *req.Replace,
	}

	cycle := req.BillingCycleDays
	if cycle == nil {
		cycle = req.BillingCycle
	}
	if cycle != nil {
		if !cycle.IsInteger() {
			s.writeError(w, r, telstar.ValidationError{Field: "billingCycle", Message: "must be a whole number of days"})
			return
		}
		if !cycle.IsPositive() || cycle.GreaterThan(maxBillingCycle) {
			s.writeError(w, r, telstar.ValidationError{Field: "billingCycle", Message: "must be between 1 and " + maxBillingCycle.String()})
			return
		}
		spec.BillingCycleDays = int(cycle.IntPart())
	}

	p, err := s.engine.AddPlan(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"plan": newPlanDTO(p)})
}

// listPlans handles GET /prepaidPlans and GET /postpaidPlans.
func (s *Server) listPlans(t plan.Type, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := s.engine.ListPlans(r.Context(), t)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{key: newPlanDTOs(plans)})
	}
}

// choosePlan handles POST /choosePlan.
func (s *Server) choosePlan(w http.ResponseWriter, r *http.Request) {
	var req choosePlanRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}

	sub, err := s.engine.Enroll(r.Context(), req.CustomerMail, req.PlanName, plan.Type(req.PlanType))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Plan purchased successfully",
		"subscription": newSubscriptionDTO(sub, strings.TrimSpace(req.PlanName)),
	})
}

// generateInvoice handles POST /generateInvoice.
func (s *Server) generateInvoice(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}

	inv, err := s.engine.GenerateInvoice(r.Context(), req.CustomerMail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"invoice": newInvoiceDTO(inv)})
}

// getInvoice handles GET /invoices/{id}.
func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvoice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceDTO(inv))
}

// payPostpaidInvoice handles POST /payPostpaidInvoice.
func (s *Server) payPostpaidInvoice(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}

	invoiceID, err := id.ParseInvoiceID(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		s.writeError(w, r, telstar.ErrInvoiceNotFound)
		return
	}

	res, err := s.engine.PayPostpaidInvoice(r.Context(), telstar.Payment{
		CustomerEmail: req.CustomerMail,
		InvoiceID:     invoiceID,
		ChangePlan:    req.ChangePlan,
		NewPlanName:   req.NewPlanName,
		NewPlanType:   plan.Type(req.NewPlanType),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body := map[string]any{
		"message":     res.Message,
		"invoice":     newInvoiceDTO(res.Invoice),
		"planChanged": res.PlanChanged,
	}
	if res.Subscription != nil {
		body["subscription"] = newSubscriptionDTO(res.Subscription, "")
	}
	writeJSON(w, http.StatusOK, body)
}

// viewInvoiceHistory handles POST /viewInvoiceHistory.
func (s *Server) viewInvoiceHistory(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}

	invoices, err := s.engine.ListInvoiceHistory(r.Context(), req.CustomerMail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list := make([]invoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		list = append(list, newInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoiceList": list})
}

// viewHistory handles POST /viewHistory.
func (s *Server) viewHistory(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}

	subs, err := s.engine.ListSubscriptionHistory(r.Context(), req.CustomerMail)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.withPlanNames(r, subs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plansList": list})
}

// downloadInvoice handles GET /downloadInvoice/{id}.
func (s *Server) downloadInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvoice(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	contentType, err := s.engine.RenderInvoice(r.Context(), inv.ID, "pdf", &buf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="invoice-`+inv.ID.String()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w) //nolint:errcheck // client went away
}

// recordUsage handles POST /usage.
func (s *Server) recordUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if !s.decodeOwned(w, r, &req, func() string { return req.CustomerMail }) {
		return
	}
	if req.Units == nil {
		s.writeError(w, r, telstar.ValidationError{Field: "units", Message: "is required"})
		return
	}

	rec, err := s.engine.RecordUsage(r.Context(), req.CustomerMail, *req.Units)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"usage": newUsageDTO(rec)})
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// decodeOwned decodes the body and rejects requests for another customer
// than the authenticated one.
func (s *Server) decodeOwned(w http.ResponseWriter, r *http.Request, dest any, mail func() string) bool {
	if err := decodeJSON(r, dest); err != nil {
		s.writeError(w, r, err)
		return false
	}
	if !ownsMail(r.Context(), mail()) {
		writeErrorMessage(w, http.StatusForbidden, "token does not belong to this customer")
		return false
	}
	return true
}

// lookupInvoice loads the invoice named by the {id} path variable. Another
// customer's invoice is reported as not found.
func (s *Server) lookupInvoice(w http.ResponseWriter, r *http.Request) (*invoice.Invoice, bool) {
	invoiceID, err := id.ParseInvoiceID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, telstar.ErrInvoiceNotFound)
		return nil, false
	}

	inv, err := s.engine.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if c, ok := CustomerFromContext(r.Context()); ok && !c.ID.Equal(inv.CustomerID) {
		s.writeError(w, r, telstar.ErrInvoiceNotFound)
		return nil, false
	}
	return inv, true
}

func (s *Server) withPlanNames(r *http.Request, subs []*subscription.Subscription) ([]subscriptionDTO, error) {
	names := make(map[string]string)
	out := make([]subscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		key := sub.PlanID.String()
		name, ok := names[key]
		if !ok {
			p, err := s.engine.GetPlan(r.Context(), sub.PlanID)
			if err != nil {
				return nil, err
			}
			name = p.Name
			names[key] = name
		}
		out = append(out, newSubscriptionDTO(sub, name))
	}
	return out, nil
}
