package mongo

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainitem "garagesale/internal/domain/item"
	domainuser "garagesale/internal/domain/user"
)

type ItemRepository struct {
	col *mongo.Collection
}

func NewItemRepository(db *mongo.Database) *ItemRepository {
	return &ItemRepository{col: db.Collection("items")}
}

func (r *ItemRepository) ByID(ctx context.Context, id domainitem.ID) (*domainitem.Item, error) {
	var doc itemDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainitem.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ItemRepository) Save(ctx context.Context, item *domainitem.Item) error {
	if item == nil || strings.TrimSpace(string(item.ID)) == "" {
		return domainitem.ErrIDRequired
	}
	doc := newItemDocument(item)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

type itemDocument struct {
	ID         string `bson:"_id"`
	Title      string `bson:"title"`
	Category   string `bson:"category"`
	PriceCents int64  `bson:"price_cents"`
	SellerID   string `bson:"seller_id"`
	Status     string `bson:"status"`
	CreatedAt  int64  `bson:"created_at"`
}

func newItemDocument(i *domainitem.Item) itemDocument {
	return itemDocument{
		ID:         string(i.ID),
		Title:      i.Title,
		Category:   i.Category,
		PriceCents: i.PriceCents,
		SellerID:   string(i.Seller),
		Status:     string(i.Status),
		CreatedAt:  i.CreatedAt.UnixMilli(),
	}
}

func (d itemDocument) toAggregate() *domainitem.Item {
	return &domainitem.Item{
		ID:         domainitem.ID(d.ID),
		Title:      d.Title,
		Category:   d.Category,
		PriceCents: d.PriceCents,
		Seller:     domainuser.ID(d.SellerID),
		Status:     domainitem.Status(d.Status),
		CreatedAt:  timestampToTime(d.CreatedAt),
	}
}
