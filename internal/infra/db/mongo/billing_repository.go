package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbilling "stayhub/internal/domain/billing"
	domainbooking "stayhub/internal/domain/booking"
)

type CommissionRepository struct {
	col *mongo.Collection
}

func NewCommissionRepository(db *mongo.Database) *CommissionRepository {
	col := db.Collection("billing_commission")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "booking_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &CommissionRepository{col: col}
}

func (r *CommissionRepository) ByBooking(ctx context.Context, id domainbooking.BookingID) (*domainbilling.Commission, error) {
	var doc commissionDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbilling.ErrCommissionNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *CommissionRepository) Upsert(ctx context.Context, commission *domainbilling.Commission) error {
	doc := newCommissionDocument(commission)
	_, err := r.col.UpdateOne(ctx, bson.M{"booking_id": doc.BookingID}, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type commissionDocument struct {
	ID           string        `bson:"_id"`
	BookingID    string        `bson:"booking_id"`
	OwnerAmount  moneyDocument `bson:"owner_amount"`
	TenantAmount moneyDocument `bson:"tenant_amount"`
	TotalAmount  moneyDocument `bson:"total_amount"`
	OwnerRate    string        `bson:"owner_rate"`
	TenantRate   string        `bson:"tenant_rate"`
	CreatedAt    int64         `bson:"created_at"`
	UpdatedAt    int64         `bson:"updated_at"`
}

func newCommissionDocument(c *domainbilling.Commission) commissionDocument {
	return commissionDocument{
		ID:           c.ID,
		BookingID:    string(c.BookingID),
		OwnerAmount:  newMoneyDocument(c.OwnerAmount),
		TenantAmount: newMoneyDocument(c.TenantAmount),
		TotalAmount:  newMoneyDocument(c.TotalAmount),
		OwnerRate:    c.OwnerRate.String(),
		TenantRate:   c.TenantRate.String(),
		CreatedAt:    c.CreatedAt.UnixMilli(),
		UpdatedAt:    c.UpdatedAt.UnixMilli(),
	}
}

func (d commissionDocument) toAggregate() *domainbilling.Commission {
	return &domainbilling.Commission{
		ID:           d.ID,
		BookingID:    domainbooking.BookingID(d.BookingID),
		OwnerAmount:  d.OwnerAmount.toMoney(),
		TenantAmount: d.TenantAmount.toMoney(),
		TotalAmount:  d.TotalAmount.toMoney(),
		OwnerRate:    decimalFromString(d.OwnerRate),
		TenantRate:   decimalFromString(d.TenantRate),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
	}
}

type TransactionRepository struct {
	col *mongo.Collection
}

func NewTransactionRepository(db *mongo.Database) *TransactionRepository {
	col := db.Collection("billing_transaction")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "external_ref", Value: 1}},
	})
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "type", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return &TransactionRepository{col: col}
}

func (r *TransactionRepository) ByID(ctx context.Context, id string) (*domainbilling.Transaction, error) {
	var doc transactionDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbilling.ErrTransactionNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *TransactionRepository) ByExternalRef(ctx context.Context, ref string) (*domainbilling.Transaction, error) {
	var doc transactionDocument
	if err := r.col.FindOne(ctx, bson.M{"external_ref": ref}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbilling.ErrTransactionNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *TransactionRepository) LatestByBooking(ctx context.Context, id domainbooking.BookingID, txType domainbilling.TransactionType) (*domainbilling.Transaction, error) {
	filter := bson.M{"booking_id": string(id), "type": string(txType)}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var doc transactionDocument
	if err := r.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbilling.ErrTransactionNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domainbilling.Transaction) error {
	doc := newTransactionDocument(tx)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type transactionDocument struct {
	ID          string        `bson:"_id"`
	Type        string        `bson:"type"`
	Status      string        `bson:"status"`
	Amount      moneyDocument `bson:"amount"`
	UserID      string        `bson:"user_id,omitempty"`
	BookingID   string        `bson:"booking_id,omitempty"`
	PayoutID    string        `bson:"payout_id,omitempty"`
	ExternalRef string        `bson:"external_ref,omitempty"`
	Description string        `bson:"description,omitempty"`
	ReviewNote  string        `bson:"review_note,omitempty"`
	CreatedAt   int64         `bson:"created_at"`
	UpdatedAt   int64         `bson:"updated_at"`
	ProcessedAt *int64        `bson:"processed_at,omitempty"`
}

func newTransactionDocument(t *domainbilling.Transaction) transactionDocument {
	doc := transactionDocument{
		ID:          t.ID,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Amount:      newMoneyDocument(t.Amount),
		UserID:      t.UserID,
		BookingID:   string(t.BookingID),
		PayoutID:    t.PayoutID,
		ExternalRef: t.ExternalRef,
		Description: t.Description,
		ReviewNote:  t.ReviewNote,
		CreatedAt:   t.CreatedAt.UnixMilli(),
		UpdatedAt:   t.UpdatedAt.UnixMilli(),
	}
	if t.ProcessedAt != nil {
		ms := t.ProcessedAt.UnixMilli()
		doc.ProcessedAt = &ms
	}
	return doc
}

func (d transactionDocument) toAggregate() *domainbilling.Transaction {
	t := &domainbilling.Transaction{
		ID:          d.ID,
		Type:        domainbilling.TransactionType(d.Type),
		Status:      domainbilling.TransactionStatus(d.Status),
		Amount:      d.Amount.toMoney(),
		UserID:      d.UserID,
		BookingID:   domainbooking.BookingID(d.BookingID),
		PayoutID:    d.PayoutID,
		ExternalRef: d.ExternalRef,
		Description: d.Description,
		ReviewNote:  d.ReviewNote,
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
	if d.ProcessedAt != nil {
		ts := timestampToTime(*d.ProcessedAt)
		t.ProcessedAt = &ts
	}
	return t
}
