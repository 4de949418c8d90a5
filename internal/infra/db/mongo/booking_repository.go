package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayhub/internal/app/uow"
	domainbooking "stayhub/internal/domain/booking"
	domaincancel "stayhub/internal/domain/cancellation"
	domainpricing "stayhub/internal/domain/pricing"
	domainrange "stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var ErrConcurrentUpdate = uow.ErrConcurrentUpdate

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("agg_booking")}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate()
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) ConfirmedPaidWithoutPayout(ctx context.Context) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"status":         string(domainbooking.StatusConfirmed),
		"payment_status": string(domainbooking.PaymentPaid),
	}
	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainbooking.Booking
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		agg, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, cursor.Err()
}

type moneyDocument struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

func newMoneyDocument(m money.Money) moneyDocument {
	return moneyDocument{Amount: m.Amount, Currency: m.Currency}
}

func (d moneyDocument) toMoney() money.Money {
	return money.Money{Amount: d.Amount, Currency: d.Currency}
}

type quoteDocument struct {
	Nights          int           `bson:"nights"`
	BasePrice       moneyDocument `bson:"base_price"`
	CleaningFee     moneyDocument `bson:"cleaning_fee"`
	SecurityDeposit moneyDocument `bson:"security_deposit"`
	ServiceFee      moneyDocument `bson:"service_fee"`
	DiscountAmount  moneyDocument `bson:"discount_amount"`
	Total           moneyDocument `bson:"total"`
	PromoCode       string        `bson:"promo_code,omitempty"`
}

type bookingDocument struct {
	ID             string        `bson:"_id"`
	PropertyID     string        `bson:"property_id"`
	OwnerID        string        `bson:"owner_id"`
	TenantID       string        `bson:"tenant_id,omitempty"`
	Range          rangeDocument `bson:"range"`
	Guests         int           `bson:"guests"`
	Price          quoteDocument `bson:"price"`
	Policy         string        `bson:"policy"`
	Status         string        `bson:"status"`
	PaymentStatus  string        `bson:"payment_status"`
	ExternalSource bool          `bson:"external_source"`
	CancelledAt    *int64        `bson:"cancelled_at,omitempty"`
	CancelledBy    string        `bson:"cancelled_by,omitempty"`
	CreatedAt      int64         `bson:"created_at"`
	UpdatedAt      int64         `bson:"updated_at"`
	Version        int64         `bson:"version"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	doc := bookingDocument{
		ID:         string(b.ID),
		PropertyID: b.PropertyID,
		OwnerID:    b.OwnerID,
		TenantID:   b.TenantID,
		Range:      rangeDocument{CheckIn: b.Range.CheckIn.UnixMilli(), CheckOut: b.Range.CheckOut.UnixMilli()},
		Guests:     b.Guests,
		Price: quoteDocument{
			Nights:          b.Price.Nights,
			BasePrice:       newMoneyDocument(b.Price.BasePrice),
			CleaningFee:     newMoneyDocument(b.Price.CleaningFee),
			SecurityDeposit: newMoneyDocument(b.Price.SecurityDeposit),
			ServiceFee:      newMoneyDocument(b.Price.ServiceFee),
			DiscountAmount:  newMoneyDocument(b.Price.DiscountAmount),
			Total:           newMoneyDocument(b.Price.Total),
			PromoCode:       b.Price.PromoCode,
		},
		Policy:         string(b.Policy),
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		ExternalSource: b.ExternalSource,
		CancelledBy:    b.CancelledBy,
		CreatedAt:      b.CreatedAt.UnixMilli(),
		UpdatedAt:      b.UpdatedAt.UnixMilli(),
		Version:        b.Version,
	}
	if b.CancelledAt != nil {
		ms := b.CancelledAt.UnixMilli()
		doc.CancelledAt = &ms
	}
	return doc
}

func (d bookingDocument) toAggregate() (*domainbooking.Booking, error) {
	dr := domainrange.DateRange{CheckIn: timestampToTime(d.Range.CheckIn), CheckOut: timestampToTime(d.Range.CheckOut)}
	agg := &domainbooking.Booking{
		ID:         domainbooking.BookingID(d.ID),
		PropertyID: d.PropertyID,
		OwnerID:    d.OwnerID,
		TenantID:   d.TenantID,
		Range:      dr,
		Guests:     d.Guests,
		Price: domainpricing.Quote{
			Nights:          d.Price.Nights,
			BasePrice:       d.Price.BasePrice.toMoney(),
			CleaningFee:     d.Price.CleaningFee.toMoney(),
			SecurityDeposit: d.Price.SecurityDeposit.toMoney(),
			ServiceFee:      d.Price.ServiceFee.toMoney(),
			DiscountAmount:  d.Price.DiscountAmount.toMoney(),
			Total:           d.Price.Total.toMoney(),
			PromoCode:       d.Price.PromoCode,
		},
		Policy:         domaincancel.PolicyTier(d.Policy),
		Status:         domainbooking.Status(d.Status),
		PaymentStatus:  domainbooking.PaymentStatus(d.PaymentStatus),
		ExternalSource: d.ExternalSource,
		CancelledBy:    d.CancelledBy,
		CreatedAt:      timestampToTime(d.CreatedAt),
		UpdatedAt:      timestampToTime(d.UpdatedAt),
		Version:        d.Version,
	}
	if d.CancelledAt != nil {
		ts := timestampToTime(*d.CancelledAt)
		agg.CancelledAt = &ts
	}
	return agg, nil
}

type rangeDocument struct {
	CheckIn  int64 `bson:"check_in"`
	CheckOut int64 `bson:"check_out"`
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func decimalFromString(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
