// Package telstar is a subscription billing engine for telecom rate plans.
//
// Customers enroll in prepaid or postpaid plans, usage is billed per unit at
// the plan's rate, and invoices move through a pending to paid lifecycle.
// The engine is a library: HTTP, persistence and document rendering are
// adapters in their own packages.
//
// # Quick Start
//
//	import (
//	    "github.com/Nityam-7/TELSTAR"
//	    "github.com/Nityam-7/TELSTAR/store/postgres"
//	)
//
//	s, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := telstar.New(s, telstar.WithUsageSource(usage.NewStoreSource(s)))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop(ctx)
//
// # Core Concepts
//
// Plans are immutable catalog entries of one of two variants:
//
//	rate := decimal.RequireFromString("0.05")
//	balance := decimal.RequireFromString("100")
//	p, err := e.AddPlan(ctx, plan.Spec{
//	    Name:             "Talk 100",
//	    Type:             plan.TypePrepaid,
//	    RatePerUnit:      &rate,
//	    BillingCycleDays: 30,
//	    PrepaidBalance:   &balance,
//	})
//
// Enrolling supersedes the customer's current subscription, so a customer
// has at most one active subscription at any time:
//
//	sub, err := e.Enroll(ctx, "alice@example.com", "Talk 100", plan.TypePrepaid)
//
// Generating an invoice bills the current cycle. Prepaid invoices are paid
// from the subscription's balance immediately; postpaid invoices stay
// pending until PayPostpaidInvoice, which can also switch plans atomically:
//
//	inv, err := e.GenerateInvoice(ctx, "alice@example.com")
//	res, err := e.PayPostpaidInvoice(ctx, telstar.Payment{
//	    CustomerEmail: "alice@example.com",
//	    InvoiceID:     inv.ID,
//	})
//
// # Errors
//
// Every failure belongs to one class reported by KindOf: validation, not
// found, conflict, invalid credentials, insufficient balance, invalid state
// or storage. Store failures the engine cannot classify surface as
// *StorageError and are never retried.
//
// # TypeID
//
// Records use TypeID identifiers:
//
//	cust_01h2xcejqtf2nbrexx3vqjhp41  // Customer ID
//	plan_01h2xcejqtf2nbrexx3vqjhp41  // Plan ID
//	inv_01h455vb4pex5vsknk084sn02q   // Invoice ID
package telstar
