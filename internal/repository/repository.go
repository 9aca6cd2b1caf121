// Package repository defines the persistence contracts used by the
// services and their gorm implementations.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrInvalidItemType = errors.New("invalid item type")
)

type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Normalize clamps page/limit to sane defaults (page >= 1, 1 <= limit <= 100).
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

type UserQuery struct {
	Page
	Role   models.Role
	Search string
}

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, q UserQuery) ([]models.User, int64, error)
}

type ListingQuery struct {
	Page
	Approved *bool
	OwnerID  *uuid.UUID
	Status   models.ListingStatus
	Purpose  models.DealType
	City     string
	Search   string
	MinPrice float64
	MaxPrice float64
	Sort     string // latest | price_low | price_high | popular
}

// ListingStore persists one listing kind.
type ListingStore interface {
	Kind() models.ListingKind
	Create(ctx context.Context, l models.Listing) error
	Get(ctx context.Context, id uuid.UUID) (models.Listing, error)
	List(ctx context.Context, q ListingQuery) ([]models.Listing, int64, error)
	// Update writes the editable columns only. Ownership, moderation state,
	// status, views and images keep their stored values.
	Update(ctx context.Context, l models.Listing) error
	// UpdateImages replaces the image list with fn's result while holding
	// the row, and returns the stored list.
	UpdateImages(ctx context.Context, id uuid.UUID, fn func([]models.Image) ([]models.Image, error)) ([]models.Image, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
	SetApproved(ctx context.Context, id uuid.UUID, approved bool) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.ListingStatus) error
}

// ListingRegistry resolves a listing kind tag to the store that owns it.
type ListingRegistry map[models.ListingKind]ListingStore

func (r ListingRegistry) For(kind models.ListingKind) (ListingStore, error) {
	s, ok := r[kind]
	if !ok {
		return nil, ErrInvalidItemType
	}
	return s, nil
}

type FavoriteStore interface {
	// Toggle adds the membership when absent and removes it when present.
	// It reports the state after the call.
	Toggle(ctx context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error)
	IsFavorite(ctx context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error)
	Count(ctx context.Context, kind models.ListingKind, listingID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error)
	DeleteByListing(ctx context.Context, kind models.ListingKind, listingID uuid.UUID) error
}

type DealQuery struct {
	Page
	// Party restricts results to deals where the user is buyer or seller.
	// Nil means no restriction (admin).
	Party  *uuid.UUID
	AsRole string // "", "buyer" or "seller"
	Status models.DealStatus
}

type DealStore interface {
	Create(ctx context.Context, d *models.Deal) error
	Get(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	// GetForUpdate locks the row when the store supports it.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	GetByDealID(ctx context.Context, dealID string) (*models.Deal, error)
	List(ctx context.Context, q DealQuery) ([]models.Deal, int64, error)
	Update(ctx context.Context, d *models.Deal) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ConsultationQuery struct {
	Page
	UserID   *uuid.UUID
	Status   models.ConsultationStatus
	Category string
}

type ConsultationStore interface {
	Create(ctx context.Context, c *models.Consultation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Consultation, error)
	List(ctx context.Context, q ConsultationQuery) ([]models.Consultation, int64, error)
	Update(ctx context.Context, c *models.Consultation) error
}

type NotificationStore interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipient string, unreadOnly bool, p Page) ([]models.Notification, int64, error)
	MarkRead(ctx context.Context, recipient, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipient string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, recipient string) (int64, error)
}

// Stores groups the stores that take part in a unit of work.
type Stores struct {
	Users         UserStore
	Listings      ListingRegistry
	Favorites     FavoriteStore
	Deals         DealStore
	Consultations ConsultationStore
}

// Transactor runs fn against stores bound to one transaction; an error
// returned by fn rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}
