// Package deal implements the deal lifecycle between a buyer and the owner
// of a listing.
package deal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/metrics"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/validation"
)

// Notifier is told about every successful deal change.
type Notifier interface {
	DealChanged(ctx context.Context, d *models.Deal, actor models.Principal, typ models.NotificationType)
}

// Action is a requested deal state change.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

type rule struct {
	from   []models.DealStatus
	to     models.DealStatus
	buyer  bool // buyer may perform it too
	notify models.NotificationType
}

var rules = map[Action]rule{
	ActionApprove:  {from: []models.DealStatus{models.DealPending}, to: models.DealApproved, notify: models.NotifDealApproved},
	ActionReject:   {from: []models.DealStatus{models.DealPending}, to: models.DealRejected, notify: models.NotifDealRejected},
	ActionComplete: {from: []models.DealStatus{models.DealApproved}, to: models.DealCompleted, notify: models.NotifDealCompleted},
	ActionCancel:   {from: []models.DealStatus{models.DealPending, models.DealApproved}, to: models.DealCancelled, buyer: true, notify: models.NotifDealCancelled},
}

// ParseAction maps a request status ("approved", "cancelled", ...) or an
// action verb to an Action.
func ParseAction(s string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return ActionApprove, true
	case "reject", "rejected":
		return ActionReject, true
	case "complete", "completed":
		return ActionComplete, true
	case "cancel", "cancelled", "canceled":
		return ActionCancel, true
	}
	return "", false
}

// Service runs the deal state machine. Writes that depend on the current
// row go through Tx with the deal locked.
type Service struct {
	Deals    repository.DealStore
	Listings repository.ListingRegistry
	Tx       repository.Transactor
	Notify   Notifier
	Log      *zap.SugaredLogger

	now func() time.Time
}

func NewService(deals repository.DealStore, listings repository.ListingRegistry, tx repository.Transactor, notify Notifier, log *zap.SugaredLogger) *Service {
	return &Service{Deals: deals, Listings: listings, Tx: tx, Notify: notify, Log: log, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func invalidTransition(from models.DealStatus, action Action) *apperror.Error {
	return apperror.Invalid("INVALID_TRANSITION", "status", "cannot "+string(action)+" a "+string(from)+" deal")
}

// CreateInput opens a deal on the listing item_type/item_id. DealType and
// Price default to the listing purpose and price.
type CreateInput struct {
	ItemID   string          `json:"item_id" validate:"required,uuid"`
	ItemType string          `json:"item_type" validate:"required"`
	DealType models.DealType `json:"deal_type" validate:"omitempty,oneof=sale rent"`
	Price    float64         `json:"price" validate:"gte=0"`
	Message  string          `json:"message" validate:"max=2000"`
}

const maxIDAttempts = 3

// Create opens a pending deal between the caller and the listing owner.
func (s *Service) Create(ctx context.Context, p models.Principal, in CreateInput) (*models.Deal, error) {
	kind, ok := models.ParseKind(in.ItemType)
	if !ok {
		return nil, apperror.Invalid("INVALID_ITEM_TYPE", "item_type", "item_type must be one of car, property, land, machine")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	itemID, _ := uuid.Parse(in.ItemID)

	st, err := s.Listings.For(kind)
	if err != nil {
		return nil, apperror.Invalid("INVALID_ITEM_TYPE", "item_type", "unknown listing kind")
	}
	l, err := st.Get(ctx, itemID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("Listing not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	b := l.Common()
	if !b.Approved {
		return nil, apperror.NotFound("Listing not found")
	}
	if b.OwnerID == p.UserID {
		return nil, apperror.Invalid("SELF_DEAL", "item_id", "you cannot open a deal on your own listing")
	}
	if b.Status != models.ListingAvailable {
		return nil, apperror.Conflict("LISTING_UNAVAILABLE", "Listing is not available")
	}

	dealType := in.DealType
	if dealType == "" {
		dealType = b.Purpose
	}
	if dealType != b.Purpose {
		return nil, apperror.Invalid("DEAL_TYPE_MISMATCH", "deal_type", "listing is offered for "+string(b.Purpose))
	}
	price := in.Price
	if price == 0 {
		price = b.Price
	}

	d := &models.Deal{
		BuyerID:  p.UserID,
		SellerID: b.OwnerID,
		ItemID:   b.ID,
		ItemType: kind,
		DealType: dealType,
		Status:   models.DealPending,
		Price:    price,
		Message:  strings.TrimSpace(in.Message),
	}
	for attempt := 0; ; attempt++ {
		d.DealID = models.GenerateDealID(s.now())
		err = s.Deals.Create(ctx, d)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt+1 >= maxIDAttempts {
			return nil, apperror.Internal(err)
		}
	}

	metrics.DealTransitions.WithLabelValues(string(d.Status)).Inc()
	if s.Notify != nil {
		s.Notify.DealChanged(ctx, d, p, models.NotifDealCreated)
	}
	return d, nil
}

// Get accepts either the uuid or the human readable deal id. Deals the
// caller is not part of are reported as missing.
func (s *Service) Get(ctx context.Context, p models.Principal, ref string) (*models.Deal, error) {
	var (
		d   *models.Deal
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		d, err = s.Deals.Get(ctx, id)
	} else {
		d, err = s.Deals.GetByDealID(ctx, strings.ToUpper(strings.TrimSpace(ref)))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("Deal not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !d.VisibleTo(p) {
		return nil, apperror.NotFound("Deal not found")
	}
	return d, nil
}

// List returns the deals visible to p. Non-admins only ever see deals they
// are a party of.
func (s *Service) List(ctx context.Context, p models.Principal, q repository.DealQuery) ([]models.Deal, int64, error) {
	if !p.IsAdmin() {
		id := p.UserID
		q.Party = &id
	} else if q.AsRole != "" && q.Party == nil {
		id := p.UserID
		q.Party = &id
	}
	if q.AsRole != "" && q.AsRole != "buyer" && q.AsRole != "seller" {
		return nil, 0, apperror.Invalid("INVALID_ROLE", "role", "role must be buyer or seller")
	}
	if q.Status != "" {
		if _, ok := validStatuses[q.Status]; !ok {
			return nil, 0, apperror.Invalid("INVALID_STATUS", "status", "unknown deal status")
		}
	}
	out, total, err := s.Deals.List(ctx, q)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

var validStatuses = map[models.DealStatus]struct{}{
	models.DealPending: {}, models.DealApproved: {}, models.DealRejected: {},
	models.DealCancelled: {}, models.DealCompleted: {},
}

// Transition applies action to the deal. The deal row is locked for the
// duration; completion also closes the listing in the same transaction.
func (s *Service) Transition(ctx context.Context, p models.Principal, id uuid.UUID, action Action, reason string) (*models.Deal, error) {
	r, ok := rules[action]
	if !ok {
		return nil, apperror.Invalid("INVALID_TRANSITION", "status", "unknown deal action")
	}
	reason = strings.TrimSpace(reason)

	var out *models.Deal
	err := s.Tx.WithinTx(ctx, func(tx repository.Stores) error {
		d, err := tx.Deals.GetForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("Deal not found")
		}
		if err != nil {
			return apperror.Internal(err)
		}
		if !d.VisibleTo(p) {
			return apperror.NotFound("Deal not found")
		}
		if !p.IsAdmin() && d.SellerID != p.UserID && !(r.buyer && d.BuyerID == p.UserID) {
			return apperror.Forbidden("You are not allowed to " + string(action) + " this deal")
		}
		if !allowed(r.from, d.Status) {
			return invalidTransition(d.Status, action)
		}
		if action == ActionCancel && reason == "" {
			return apperror.Invalid("REASON_REQUIRED", "cancellation_reason", "cancellation_reason is required")
		}

		now := s.now().UTC()
		d.Status = r.to
		switch action {
		case ActionApprove:
			d.ApprovedAt = &now
		case ActionReject:
			d.RejectedAt = &now
		case ActionCancel:
			d.CancelledAt = &now
			d.CancellationReason = reason
			by := p.UserID
			d.CancelledBy = &by
		case ActionComplete:
			d.CompletedAt = &now
		}
		if err := tx.Deals.Update(ctx, d); err != nil {
			return apperror.Internal(err)
		}

		if action == ActionComplete {
			if err := closeListing(ctx, tx, d); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.DealTransitions.WithLabelValues(string(out.Status)).Inc()
	if s.Notify != nil {
		s.Notify.DealChanged(ctx, out, p, r.notify)
	}
	return out, nil
}

func allowed(from []models.DealStatus, cur models.DealStatus) bool {
	for _, f := range from {
		if f == cur {
			return true
		}
	}
	return false
}

func closeListing(ctx context.Context, tx repository.Stores, d *models.Deal) error {
	st, err := tx.Listings.For(d.ItemType)
	if err != nil {
		return apperror.Internal(err)
	}
	err = st.SetStatus(ctx, d.ItemID, d.DealType.ClosedStatus())
	if errors.Is(err, repository.ErrNotFound) {
		// listing was removed after the deal was approved; the deal still completes
		return nil
	}
	if err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// RateInput is a 1..5 score with an optional comment.
type RateInput struct {
	Score   int    `json:"score" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// Rate records the caller's rating of a completed deal. Each party rates
// once; the row is locked so concurrent ratings from both sides are kept.
func (s *Service) Rate(ctx context.Context, p models.Principal, id uuid.UUID, in RateInput) (*models.Deal, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var out *models.Deal
	err := s.Tx.WithinTx(ctx, func(tx repository.Stores) error {
		d, err := tx.Deals.GetForUpdate(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("Deal not found")
		}
		if err != nil {
			return apperror.Internal(err)
		}
		if !d.IsParty(p.UserID) {
			if p.IsAdmin() {
				return apperror.Forbidden("Only the buyer or the seller can rate a deal")
			}
			return apperror.NotFound("Deal not found")
		}
		if d.Status != models.DealCompleted {
			return apperror.Invalid("DEAL_NOT_COMPLETED", "status", "only completed deals can be rated")
		}

		rating := &models.Rating{Score: in.Score, Comment: strings.TrimSpace(in.Comment), RatedAt: s.now().UTC()}
		if d.BuyerID == p.UserID {
			if d.BuyerRating != nil {
				return apperror.Conflict("ALREADY_RATED", "You have already rated this deal")
			}
			d.BuyerRating = rating
		} else {
			if d.SellerRating != nil {
				return apperror.Conflict("ALREADY_RATED", "You have already rated this deal")
			}
			d.SellerRating = rating
		}
		if err := tx.Deals.Update(ctx, d); err != nil {
			return apperror.Internal(err)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Notify != nil {
		s.Notify.DealChanged(ctx, out, p, models.NotifDealRated)
	}
	return out, nil
}

// Delete removes a deal that has not completed. Admin only.
func (s *Service) Delete(ctx context.Context, p models.Principal, id uuid.UUID) error {
	if !p.IsAdmin() {
		return apperror.Forbidden("Admin access required")
	}
	d, err := s.Deals.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("Deal not found")
	}
	if err != nil {
		return apperror.Internal(err)
	}
	if d.Status == models.DealCompleted {
		return apperror.Conflict("DEAL_COMPLETED", "Completed deals cannot be deleted")
	}
	if err := s.Deals.Delete(ctx, id); err != nil {
		return apperror.Internal(err)
	}
	return nil
}
