package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "stayhub/internal/domain/booking"
)

type PromoRepository struct {
	col *mongo.Collection
}

func NewPromoRepository(db *mongo.Database) *PromoRepository {
	return &PromoRepository{col: db.Collection("promo_code")}
}

func (r *PromoRepository) ByCode(ctx context.Context, code string) (*domainbooking.PromoCode, error) {
	var doc promoDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": code}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrPromoNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PromoRepository) Save(ctx context.Context, promo *domainbooking.PromoCode) error {
	doc := newPromoDocument(promo)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type promoDocument struct {
	ID              string `bson:"_id"`
	PropertyID      string `bson:"property_id"`
	TenantID        string `bson:"tenant_id,omitempty"`
	DiscountPercent string `bson:"discount_percent"`
	Active          bool   `bson:"active"`
	ExpiresAt       int64  `bson:"expires_at"`
	CreatedAt       int64  `bson:"created_at"`
}

func newPromoDocument(p *domainbooking.PromoCode) promoDocument {
	return promoDocument{
		ID:              p.Code,
		PropertyID:      p.PropertyID,
		TenantID:        p.TenantID,
		DiscountPercent: p.DiscountPercent.String(),
		Active:          p.Active,
		ExpiresAt:       p.ExpiresAt.UnixMilli(),
		CreatedAt:       p.CreatedAt.UnixMilli(),
	}
}

func (d promoDocument) toAggregate() *domainbooking.PromoCode {
	return &domainbooking.PromoCode{
		Code:            d.ID,
		PropertyID:      d.PropertyID,
		TenantID:        d.TenantID,
		DiscountPercent: decimalFromString(d.DiscountPercent),
		Active:          d.Active,
		ExpiresAt:       timestampToTime(d.ExpiresAt),
		CreatedAt:       timestampToTime(d.CreatedAt),
	}
}
