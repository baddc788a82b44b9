// Package mongo implements store.Store on MongoDB. Transactions need a
// replica set. LockCustomer bumps a version field on the customer document,
// so concurrent transactions for one customer conflict and the driver
// retries the loser.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/customer"
	"github.com/Nityam-7/TELSTAR/id"
	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plan"
	telstarstore "github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/subscription"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Collection name constants.
const (
	colPlans         = "telstar_plans"
	colCustomers     = "telstar_customers"
	colSubscriptions = "telstar_subscriptions"
	colInvoices      = "telstar_invoices"
	colUsage         = "telstar_usage"
	colCounters      = "telstar_counters"
)

// compile-time interface check
var _ telstarstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("telstar/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // ping error wins
		return nil, fmt.Errorf("telstar/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// New creates a store on an existing client. Close disconnects it.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("telstar/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==================== Transactions ====================

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// Transaction runs fn in a multi-document transaction. fn may run more than
// once when the server reports a transient conflict.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("telstar/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(context.WithValue(ctx, txKey{}, s))
	})
	return err
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// nextSeq advances a named counter. Inside a transaction a rolled-back
// caller also rolls back the counter.
func (s *Store) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("telstar/mongo: next %s seq: %w", name, err)
	}
	return doc.Seq, nil
}

func (s *Store) insert(ctx context.Context, col string, doc any) error {
	_, err := s.col(col).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return telstar.ErrAlreadyExists
		}
		return fmt.Errorf("telstar/mongo: insert into %s: %w", col, err)
	}
	return nil
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	seq, err := s.nextSeq(ctx, colPlans)
	if err != nil {
		return err
	}
	m := toPlanModel(p)
	m.Seq = seq
	if err := s.insert(ctx, colPlans, m); err != nil {
		return err
	}
	p.Seq = seq
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"_id": planID.String()})
}

func (s *Store) GetActivePlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	return s.findPlan(ctx, bson.M{"name": name, "status": string(plan.StatusActive)})
}

func (s *Store) findPlan(ctx context.Context, filter bson.M) (*plan.Plan, error) {
	var m planModel
	if err := s.col(colPlans).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, telstar.ErrPlanNotFound
		}
		return nil, fmt.Errorf("telstar/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	filter := bson.M{}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []planModel
	if err := s.find(ctx, colPlans, filter, bson.D{{Key: "seq", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, 0, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) RetirePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.col(colPlans).UpdateOne(ctx,
		bson.M{"_id": planID.String()},
		bson.M{"$set": bson.M{"status": string(plan.StatusRetired), "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("telstar/mongo: retire plan: %w", err)
	}
	if res.MatchedCount == 0 {
		return telstar.ErrPlanNotFound
	}
	return nil
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	return s.insert(ctx, colCustomers, toCustomerModel(c))
}

func (s *Store) GetCustomer(ctx context.Context, customerID id.CustomerID) (*customer.Customer, error) {
	return s.findCustomer(ctx, bson.M{"_id": customerID.String()})
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return s.findCustomer(ctx, bson.M{"email": email})
}

func (s *Store) findCustomer(ctx context.Context, filter bson.M) (*customer.Customer, error) {
	var m customerModel
	if err := s.col(colCustomers).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, telstar.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("telstar/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) LockCustomer(ctx context.Context, customerID id.CustomerID) error {
	res, err := s.col(colCustomers).UpdateOne(ctx,
		bson.M{"_id": customerID.String()},
		bson.M{"$inc": bson.M{"lock_version": int64(1)}},
	)
	if err != nil {
		return fmt.Errorf("telstar/mongo: lock customer: %w", err)
	}
	if res.MatchedCount == 0 {
		return telstar.ErrCustomerNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	seq, err := s.nextSeq(ctx, colSubscriptions)
	if err != nil {
		return err
	}
	m := toSubscriptionModel(sub)
	m.Seq = seq
	if err := s.insert(ctx, colSubscriptions, m); err != nil {
		return err
	}
	sub.Seq = seq
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := s.findSubscription(ctx, bson.M{"_id": subID.String()})
	if isNoDocuments(err) {
		return nil, telstar.ErrSubscriptionNotFound
	}
	return sub, err
}

func (s *Store) GetActiveSubscription(ctx context.Context, customerID id.CustomerID) (*subscription.Subscription, error) {
	sub, err := s.findSubscription(ctx, bson.M{
		"customer_id": customerID.String(),
		"status":      string(subscription.StatusActive),
	})
	if isNoDocuments(err) {
		return nil, telstar.ErrNoActiveSubscription
	}
	return sub, err
}

func (s *Store) findSubscription(ctx context.Context, filter bson.M) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.col(colSubscriptions).FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, err
		}
		return nil, fmt.Errorf("telstar/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, customerID id.CustomerID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []subscriptionModel
	sort := bson.D{{Key: "started_at", Value: -1}, {Key: "seq", Value: -1}}
	if err := s.find(ctx, colSubscriptions, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) SupersedeSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.col(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID.String(), "status": string(subscription.StatusActive)},
		bson.M{"$set": bson.M{
			"status":        string(subscription.StatusSuperseded),
			"superseded_at": at,
			"updated_at":    at,
		}},
	)
	if err != nil {
		return fmt.Errorf("telstar/mongo: supersede subscription: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return fmt.Errorf("%w: subscription %s is not active", telstar.ErrInvalidState, subID)
}

func (s *Store) UpdateSubscriptionBalance(ctx context.Context, sub *subscription.Subscription) error {
	set := bson.M{"updated_at": sub.UpdatedAt}
	update := bson.M{"$set": set}
	if sub.Balance != nil {
		set["balance"] = toDecimal128(sub.Balance.Amount)
		set["currency"] = sub.Balance.Currency
	} else {
		update["$unset"] = bson.M{"balance": ""}
	}

	res, err := s.col(colSubscriptions).UpdateOne(ctx, bson.M{"_id": sub.ID.String()}, update)
	if err != nil {
		return fmt.Errorf("telstar/mongo: update subscription balance: %w", err)
	}
	if res.MatchedCount == 0 {
		return telstar.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	number, err := s.nextSeq(ctx, colInvoices)
	if err != nil {
		return err
	}
	m := toInvoiceModel(inv)
	m.Number = number
	if err := s.insert(ctx, colInvoices, m); err != nil {
		return err
	}
	inv.Number = number
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := s.col(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, telstar.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("telstar/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, customerID id.CustomerID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"customer_id": customerID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []invoiceModel
	sort := bson.D{{Key: "issued_at", Value: -1}, {Key: "number", Value: -1}}
	if err := s.find(ctx, colInvoices, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time) error {
	res, err := s.col(colInvoices).UpdateOne(ctx,
		bson.M{"_id": invID.String(), "status": string(invoice.StatusPending)},
		bson.M{"$set": bson.M{
			"status":     string(invoice.StatusPaid),
			"paid_at":    paidAt,
			"updated_at": paidAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("telstar/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.GetInvoice(ctx, invID); err != nil {
		return err
	}
	return telstar.ErrAlreadyPaid
}

// ==================== Usage Store ====================

func (s *Store) RecordUsage(ctx context.Context, r *usage.Record) error {
	return s.insert(ctx, colUsage, toUsageModel(r))
}

func (s *Store) SumUsage(ctx context.Context, subID id.SubscriptionID, from, to time.Time) (decimal.Decimal, error) {
	var models []usageModel
	filter := bson.M{
		"subscription_id": subID.String(),
		"recorded_at":     bson.M{"$gte": from, "$lt": to},
	}
	if err := s.find(ctx, colUsage, filter, nil, 0, 0, &models); err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, m := range models {
		units, err := fromDecimal128(m.Units)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(units)
	}
	return total, nil
}

// ==================== Helpers ====================

func (s *Store) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, out any) error {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cur, err := s.col(col).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("telstar/mongo: find in %s: %w", col, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("telstar/mongo: decode %s: %w", col, err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for every collection.
// The partial unique indexes enforce one active plan per name and one active
// subscription per customer.
func migrationIndexes() map[string][]mongo.IndexModel {
	active := bson.M{"status": "active"}
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(active),
			},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}, {Key: "seq", Value: 1}}},
		},
		colCustomers: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "customer_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(active),
			},
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "started_at", Value: -1}, {Key: "seq", Value: -1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "issued_at", Value: -1}, {Key: "number", Value: -1}}},
		},
		colUsage: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "recorded_at", Value: 1}}},
		},
	}
}
