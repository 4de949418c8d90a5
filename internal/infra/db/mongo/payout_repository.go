package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayhub/internal/domain/booking"
	domainpayout "stayhub/internal/domain/payout"
)

type PayoutRepository struct {
	col *mongo.Collection
}

func NewPayoutRepository(db *mongo.Database) *PayoutRepository {
	col := db.Collection("agg_payout")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "booking_ids", Value: 1}, {Key: "status", Value: 1}},
	})
	// One live payout per booking. Partial filters cannot express a status
	// set, so documents carry a denormalized live flag for the index.
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "booking_ids", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"live": true}),
	})
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}},
	})
	return &PayoutRepository{col: col}
}

func (r *PayoutRepository) ByID(ctx context.Context, id string) (*domainpayout.Payout, error) {
	var doc payoutDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpayout.ErrPayoutNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

// Save uses the document version as an optimistic lock, identical to the
// booking repository: a stale version matches nothing and surfaces as
// ErrConcurrentUpdate.
func (r *PayoutRepository) Save(ctx context.Context, p *domainpayout.Payout) error {
	doc := newPayoutDocument(p)
	filter := bson.M{"_id": doc.ID, "version": p.Version}
	doc.Version = p.Version + 1
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if p.Version == 0 && doc.Live {
				return domainpayout.ErrAlreadyLive
			}
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	p.Version = doc.Version
	return nil
}

func (r *PayoutRepository) LiveByBooking(ctx context.Context, id domainbooking.BookingID) ([]*domainpayout.Payout, error) {
	filter := bson.M{
		"booking_ids": string(id),
		"status": bson.M{"$nin": bson.A{
			string(domainpayout.StatusCompleted),
			string(domainpayout.StatusFailed),
			string(domainpayout.StatusCancelled),
		}},
	}
	return r.find(ctx, filter, bson.D{{Key: "created_at", Value: 1}})
}

func (r *PayoutRepository) DueScheduled(ctx context.Context, now time.Time) ([]*domainpayout.Payout, error) {
	filter := bson.M{
		"status":       string(domainpayout.StatusScheduled),
		"scheduled_at": bson.M{"$lte": now.UnixMilli()},
	}
	return r.find(ctx, filter, bson.D{{Key: "scheduled_at", Value: 1}})
}

func (r *PayoutRepository) ListReady(ctx context.Context) ([]*domainpayout.Payout, error) {
	return r.find(ctx, bson.M{"status": string(domainpayout.StatusReady)}, bson.D{{Key: "created_at", Value: 1}})
}

func (r *PayoutRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]*domainpayout.Payout, error) {
	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainpayout.Payout
	for cursor.Next(ctx) {
		var doc payoutDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

type payoutDocument struct {
	ID            string        `bson:"_id"`
	OwnerID       string        `bson:"owner_id"`
	Amount        moneyDocument `bson:"amount"`
	Status        string        `bson:"status"`
	BookingIDs    []string      `bson:"booking_ids"`
	ScheduledAt   int64         `bson:"scheduled_at"`
	PeriodStart   int64         `bson:"period_start"`
	PeriodEnd     int64         `bson:"period_end"`
	ExternalRef   string        `bson:"external_ref,omitempty"`
	FailureReason string        `bson:"failure_reason,omitempty"`
	Notes         []string      `bson:"notes,omitempty"`
	Live          bool          `bson:"live"`
	CreatedAt     int64         `bson:"created_at"`
	UpdatedAt     int64         `bson:"updated_at"`
	ProcessedAt   *int64        `bson:"processed_at,omitempty"`
	Version       int64         `bson:"version"`
}

func newPayoutDocument(p *domainpayout.Payout) payoutDocument {
	ids := make([]string, 0, len(p.BookingIDs))
	for _, id := range p.BookingIDs {
		ids = append(ids, string(id))
	}
	doc := payoutDocument{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Amount:        newMoneyDocument(p.Amount),
		Status:        string(p.Status),
		BookingIDs:    ids,
		ScheduledAt:   p.ScheduledAt.UnixMilli(),
		PeriodStart:   p.PeriodStart.UnixMilli(),
		PeriodEnd:     p.PeriodEnd.UnixMilli(),
		ExternalRef:   p.ExternalRef,
		FailureReason: p.FailureReason,
		Notes:         p.Notes,
		Live:          !p.IsTerminal(),
		CreatedAt:     p.CreatedAt.UnixMilli(),
		UpdatedAt:     p.UpdatedAt.UnixMilli(),
		Version:       p.Version,
	}
	if p.ProcessedAt != nil {
		ms := p.ProcessedAt.UnixMilli()
		doc.ProcessedAt = &ms
	}
	return doc
}

func (d payoutDocument) toAggregate() *domainpayout.Payout {
	ids := make([]domainbooking.BookingID, 0, len(d.BookingIDs))
	for _, id := range d.BookingIDs {
		ids = append(ids, domainbooking.BookingID(id))
	}
	p := &domainpayout.Payout{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Amount:        d.Amount.toMoney(),
		Status:        domainpayout.Status(d.Status),
		BookingIDs:    ids,
		ScheduledAt:   timestampToTime(d.ScheduledAt),
		PeriodStart:   timestampToTime(d.PeriodStart),
		PeriodEnd:     timestampToTime(d.PeriodEnd),
		ExternalRef:   d.ExternalRef,
		FailureReason: d.FailureReason,
		Notes:         d.Notes,
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
		Version:       d.Version,
	}
	if d.ProcessedAt != nil {
		ts := timestampToTime(*d.ProcessedAt)
		p.ProcessedAt = &ts
	}
	return p
}
