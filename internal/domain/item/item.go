package item

import (
	"context"
	"errors"
	"strings"
	"time"

	"garagesale/internal/domain/user"
)

var (
	ErrIDRequired     = errors.New("item: id is required")
	ErrTitleRequired  = errors.New("item: title is required")
	ErrSellerRequired = errors.New("item: seller is required")
	ErrInvalidPrice   = errors.New("item: price must not be negative")
	ErrNotFound       = errors.New("item: not found")
)

type ID string

type Status string

const (
	StatusAvailable Status = "available"
	StatusSold      Status = "sold"
)

// Item is the listing reference the chat subsystem hangs conversations on.
// Listing creation, search and uploads live outside this service; only
// existence and the seller reference matter here.
type Item struct {
	ID         ID
	Title      string
	Category   string
	PriceCents int64
	Seller     user.ID
	Status     Status
	CreatedAt  time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Item, error)
	Save(ctx context.Context, item *Item) error
}

type CreateParams struct {
	ID         ID
	Title      string
	Category   string
	PriceCents int64
	Seller     user.ID
	Status     Status
	CreatedAt  time.Time
}

func NewItem(params CreateParams) (*Item, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if strings.TrimSpace(string(params.Seller)) == "" {
		return nil, ErrSellerRequired
	}
	if params.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	status := params.Status
	if status == "" {
		status = StatusAvailable
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	return &Item{
		ID:         ID(id),
		Title:      title,
		Category:   strings.TrimSpace(params.Category),
		PriceCents: params.PriceCents,
		Seller:     params.Seller,
		Status:     status,
		CreatedAt:  now.UTC(),
	}, nil
}
