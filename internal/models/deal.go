package models

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DealType string

const (
	DealSale DealType = "sale"
	DealRent DealType = "rent"
)

func (t DealType) Valid() bool { return t == DealSale || t == DealRent }

// ClosedStatus is the listing status a completed deal of this type leaves behind.
func (t DealType) ClosedStatus() ListingStatus {
	if t == DealRent {
		return ListingRented
	}
	return ListingSold
}

type DealStatus string

const (
	DealPending   DealStatus = "pending"   // waiting for the seller
	DealApproved  DealStatus = "approved"  // accepted by seller/admin
	DealRejected  DealStatus = "rejected"  // declined by seller/admin
	DealCancelled DealStatus = "cancelled" // withdrawn by either party
	DealCompleted DealStatus = "completed" // finalized, listing closed
)

func (s DealStatus) Terminal() bool {
	return s == DealCompleted || s == DealRejected || s == DealCancelled
}

type Rating struct {
	Score   int       `json:"score"`
	Comment string    `json:"comment,omitempty"`
	RatedAt time.Time `json:"rated_at"`
}

type Deal struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DealID string    `gorm:"type:varchar(24);uniqueIndex;not null" json:"deal_id"` // e.g. MFX3K2A9QZ7TB

	BuyerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"buyer_id"`
	SellerID uuid.UUID `gorm:"type:uuid;not null;index" json:"seller_id"`

	// item + item_type form a tagged reference into one of the listing tables.
	ItemID   uuid.UUID   `gorm:"type:uuid;not null;index" json:"item_id"`
	ItemType ListingKind `gorm:"type:varchar(20);not null" json:"item_type"`

	DealType DealType   `gorm:"type:varchar(10);not null" json:"deal_type"`
	Status   DealStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Price    float64    `json:"price"`
	Message  string     `gorm:"type:text" json:"message,omitempty"`

	CancellationReason string     `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CancelledBy        *uuid.UUID `gorm:"type:uuid" json:"cancelled_by,omitempty"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// BuyerRating is given by the buyer, SellerRating by the seller.
	BuyerRating  *Rating `gorm:"type:jsonb;serializer:json" json:"buyer_rating,omitempty"`
	SellerRating *Rating `gorm:"type:jsonb;serializer:json" json:"seller_rating,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Deal) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return
}

// IsParty reports whether the user is the buyer or the seller.
func (d *Deal) IsParty(userID uuid.UUID) bool {
	return d.BuyerID == userID || d.SellerID == userID
}

// VisibleTo reports whether p may read the deal.
func (d *Deal) VisibleTo(p Principal) bool {
	return p.IsAdmin() || d.IsParty(p.UserID)
}

// Counterpart returns the other party of the deal for userID.
func (d *Deal) Counterpart(userID uuid.UUID) uuid.UUID {
	if d.BuyerID == userID {
		return d.SellerID
	}
	return d.BuyerID
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateDealID builds a base-36 millisecond timestamp followed by a
// 5 character random base-36 suffix, uppercased.
func GenerateDealID(now time.Time) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < 5; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(now.UnixNano() % int64(len(base36)))
		}
		b.WriteByte(base36[n.Int64()])
	}
	return strings.ToUpper(b.String())
}
