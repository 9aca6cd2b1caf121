// Package listing serves the four listing kinds: public browsing,
// owner/admin mutation, favorites, images and the moderation queue.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/storage"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/validation"
)

const MaxImages = 12

// ImageStore is the object storage used for listing photos.
type ImageStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Notifier is told when a listing passes moderation.
type Notifier interface {
	ListingApproved(ctx context.Context, l models.Listing)
}

// Service serves every listing kind through the registry. Images is nil
// when object storage is not configured.
type Service struct {
	Listings  repository.ListingRegistry
	Favorites repository.FavoriteStore
	Images    ImageStore
	Notify    Notifier
	Log       *zap.SugaredLogger
}

func NewService(listings repository.ListingRegistry, favorites repository.FavoriteStore, images ImageStore, notify Notifier, log *zap.SugaredLogger) *Service {
	return &Service{Listings: listings, Favorites: favorites, Images: images, Notify: notify, Log: log}
}

// Detail is a listing as seen by one viewer.
type Detail struct {
	Listing        models.Listing `json:"listing"`
	IsFavorite     bool           `json:"is_favorite"`
	FavoritesCount int64          `json:"favorites_count"`
}

func (s *Service) store(kind models.ListingKind) (repository.ListingStore, error) {
	st, err := s.Listings.For(kind)
	if err != nil {
		return nil, apperror.Invalid("INVALID_ITEM_TYPE", "kind", "unknown listing kind")
	}
	return st, nil
}

func (s *Service) load(ctx context.Context, kind models.ListingKind, id uuid.UUID) (repository.ListingStore, models.Listing, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, nil, err
	}
	l, err := st.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperror.NotFound("Listing not found")
	}
	if err != nil {
		return nil, nil, apperror.Internal(err)
	}
	return st, l, nil
}

// canManage reports whether p may mutate the listing: admins always,
// owners only their own.
func canManage(p models.Principal, l models.Listing) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Role == models.RoleOwner && l.Common().OwnerID == p.UserID
}

// visibleTo hides unapproved listings from everyone but admins and the owner.
func visibleTo(viewer *models.Principal, l models.Listing) bool {
	if l.Common().Approved {
		return true
	}
	return viewer != nil && canManage(*viewer, l)
}

// List returns approved listings only.
func (s *Service) List(ctx context.Context, kind models.ListingKind, q repository.ListingQuery) ([]models.Listing, int64, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, 0, err
	}
	approved := true
	q.Approved = &approved
	q.OwnerID = nil
	out, total, err := st.List(ctx, q)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

// ListMine returns the caller's own listings including unapproved ones.
func (s *Service) ListMine(ctx context.Context, p models.Principal, kind models.ListingKind, q repository.ListingQuery) ([]models.Listing, int64, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, 0, err
	}
	q.OwnerID = &p.UserID
	q.Approved = nil
	out, total, err := st.List(ctx, q)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

// Get returns a listing and counts the view.
func (s *Service) Get(ctx context.Context, kind models.ListingKind, id uuid.UUID, viewer *models.Principal) (Detail, error) {
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return Detail{}, err
	}
	if !visibleTo(viewer, l) {
		return Detail{}, apperror.NotFound("Listing not found")
	}

	if err := st.IncrementViews(ctx, id); err != nil {
		s.Log.Warnf("increment views %s/%s: %v", kind, id, err)
	} else {
		l.Common().Views++
	}

	d := Detail{Listing: l}
	if d.FavoritesCount, err = s.Favorites.Count(ctx, kind, id); err != nil {
		return Detail{}, apperror.Internal(err)
	}
	if viewer != nil {
		if d.IsFavorite, err = s.Favorites.IsFavorite(ctx, kind, id, viewer.UserID); err != nil {
			return Detail{}, apperror.Internal(err)
		}
	}
	return d, nil
}

func normalizeImages(images []models.Image) {
	primary := -1
	for i := range images {
		if images[i].IsPrimary {
			if primary >= 0 {
				images[i].IsPrimary = false
				continue
			}
			primary = i
		}
	}
	if primary < 0 && len(images) > 0 {
		images[0].IsPrimary = true
	}
}

// Create stores a new listing owned by the caller. Admin listings go live
// immediately; owner listings wait for moderation.
func (s *Service) Create(ctx context.Context, p models.Principal, l models.Listing) (models.Listing, error) {
	if !p.IsAdmin() && p.Role != models.RoleOwner {
		return nil, apperror.Forbidden("Only owners and admins can create listings")
	}
	st, err := s.store(l.Kind())
	if err != nil {
		return nil, err
	}

	b := l.Common()
	b.ID = uuid.Nil
	b.OwnerID = p.UserID
	b.Approved = p.IsAdmin()
	b.Views = 0
	b.Status = models.ListingAvailable
	if b.Purpose == "" {
		b.Purpose = models.DealSale
	}
	if b.Currency == "" {
		b.Currency = "ETB"
	}
	normalizeImages(b.Images)

	if err := validation.Struct(l); err != nil {
		return nil, err
	}
	if err := st.Create(ctx, l); err != nil {
		return nil, apperror.Internal(err)
	}
	return l, nil
}

// Update applies a JSON merge patch. Ownership, moderation state, counters
// and images are managed by their own operations and cannot be patched.
func (s *Service) Update(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID, patch []byte) (models.Listing, error) {
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, l) {
		return nil, apperror.Forbidden("You cannot modify this listing")
	}

	keep := *l.Common()
	if err := json.Unmarshal(patch, l); err != nil {
		return nil, apperror.Invalid("INVALID_BODY", "body", "invalid JSON body")
	}
	b := l.Common()
	b.ID = keep.ID
	b.OwnerID = keep.OwnerID
	b.Approved = keep.Approved
	b.Views = keep.Views
	b.Status = keep.Status
	b.Images = keep.Images
	b.CreatedAt = keep.CreatedAt

	if err := validation.Struct(l); err != nil {
		return nil, err
	}
	if err := st.Update(ctx, l); err != nil {
		return nil, apperror.Internal(err)
	}
	return l, nil
}

// Delete removes the listing, its favorites and its stored images.
func (s *Service) Delete(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID) error {
	_, l, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}
	if !canManage(p, l) {
		return apperror.Forbidden("You cannot delete this listing")
	}
	return s.remove(ctx, kind, l)
}

func (s *Service) remove(ctx context.Context, kind models.ListingKind, l models.Listing) error {
	st, err := s.store(kind)
	if err != nil {
		return err
	}
	b := l.Common()
	if err := st.Delete(ctx, b.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("Listing not found")
		}
		return apperror.Internal(err)
	}
	if err := s.Favorites.DeleteByListing(ctx, kind, b.ID); err != nil {
		s.Log.Warnf("delete favorites %s/%s: %v", kind, b.ID, err)
	}
	if s.Images != nil {
		for _, img := range b.Images {
			if img.StorageID == "" {
				continue
			}
			if err := s.Images.Delete(ctx, img.StorageID); err != nil {
				s.Log.Warnf("delete image %s: %v", img.StorageID, err)
			}
		}
	}
	return nil
}

// SetStatus changes the listing status within the kind's allowed set.
func (s *Service) SetStatus(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID, status models.ListingStatus) (models.Listing, error) {
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, l) {
		return nil, apperror.Forbidden("You cannot modify this listing")
	}
	if !kind.AllowsStatus(status) {
		return nil, apperror.Invalid("INVALID_STATUS", "status", fmt.Sprintf("status %q is not valid for %s listings", status, kind))
	}
	if err := st.SetStatus(ctx, id, status); err != nil {
		return nil, apperror.Internal(err)
	}
	l.Common().Status = status
	return l, nil
}

// ToggleFavorite flips the caller's membership and reports the new state.
func (s *Service) ToggleFavorite(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID) (bool, int64, error) {
	_, l, err := s.load(ctx, kind, id)
	if err != nil {
		return false, 0, err
	}
	if !visibleTo(&p, l) {
		return false, 0, apperror.NotFound("Listing not found")
	}
	on, err := s.Favorites.Toggle(ctx, kind, id, p.UserID)
	if err != nil {
		return false, 0, apperror.Internal(err)
	}
	n, err := s.Favorites.Count(ctx, kind, id)
	if err != nil {
		return false, 0, apperror.Internal(err)
	}
	return on, n, nil
}

// FavoriteItem is one entry of a user's favorites with its listing.
type FavoriteItem struct {
	Kind      models.ListingKind `json:"kind"`
	Listing   models.Listing     `json:"listing"`
	CreatedAt time.Time          `json:"favorited_at"`
}

// ListFavorites lists the caller's favorites across every kind. Listings that
// were removed or are no longer approved are skipped.
func (s *Service) ListFavorites(ctx context.Context, userID uuid.UUID) ([]FavoriteItem, error) {
	favs, err := s.Favorites.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	out := make([]FavoriteItem, 0, len(favs))
	for _, f := range favs {
		st, err := s.Listings.For(f.Kind)
		if err != nil {
			continue
		}
		l, err := st.Get(ctx, f.ListingID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperror.Internal(err)
		}
		if !l.Common().Approved {
			continue
		}
		out = append(out, FavoriteItem{Kind: f.Kind, Listing: l, CreatedAt: f.CreatedAt})
	}
	return out, nil
}

// AddImage resizes and uploads one photo. The first photo becomes primary.
func (s *Service) AddImage(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID, data []byte) (models.Listing, error) {
	if s.Images == nil {
		return nil, apperror.Unavailable("Image storage is not configured")
	}
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, l) {
		return nil, apperror.Forbidden("You cannot modify this listing")
	}
	b := l.Common()
	if len(b.Images) >= MaxImages {
		return nil, tooManyImages()
	}

	jpg, err := storage.PrepareImage(data)
	if err != nil {
		return nil, apperror.Invalid("INVALID_IMAGE", "image", "file is not a supported image")
	}
	key := fmt.Sprintf("listings/%s/%s/%s.jpg", kind, id, uuid.NewString())
	url, err := s.Images.Upload(ctx, key, "image/jpeg", jpg)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	imgs, err := st.UpdateImages(ctx, id, func(cur []models.Image) ([]models.Image, error) {
		if len(cur) >= MaxImages {
			return nil, tooManyImages()
		}
		return append(cur, models.Image{URL: url, StorageID: key, IsPrimary: len(cur) == 0}), nil
	})
	if err != nil {
		if derr := s.Images.Delete(ctx, key); derr != nil {
			s.Log.Warnf("cleanup image %s: %v", key, derr)
		}
		return nil, imagesError(err)
	}
	b.Images = imgs
	return l, nil
}

func tooManyImages() *apperror.Error {
	return apperror.Invalid("TOO_MANY_IMAGES", "image", fmt.Sprintf("a listing can have at most %d images", MaxImages))
}

func imagesError(err error) error {
	if e, ok := apperror.As(err); ok {
		return e
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("Listing not found")
	}
	return apperror.Internal(err)
}

// RemoveImage deletes one photo; if it was primary the next one takes over.
func (s *Service) RemoveImage(ctx context.Context, p models.Principal, kind models.ListingKind, id uuid.UUID, storageID string) (models.Listing, error) {
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, l) {
		return nil, apperror.Forbidden("You cannot modify this listing")
	}
	imgs, err := st.UpdateImages(ctx, id, func(cur []models.Image) ([]models.Image, error) {
		idx := -1
		for i, img := range cur {
			if img.StorageID == storageID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, apperror.NotFound("Image not found")
		}
		kept := make([]models.Image, 0, len(cur)-1)
		kept = append(kept, cur[:idx]...)
		kept = append(kept, cur[idx+1:]...)
		normalizeImages(kept)
		return kept, nil
	})
	if err != nil {
		return nil, imagesError(err)
	}
	l.Common().Images = imgs
	if s.Images != nil {
		if err := s.Images.Delete(ctx, storageID); err != nil {
			s.Log.Warnf("delete image %s: %v", storageID, err)
		}
	}
	return l, nil
}

// Pending returns the moderation queue of one kind.
func (s *Service) Pending(ctx context.Context, kind models.ListingKind, page repository.Page) ([]models.Listing, int64, error) {
	st, err := s.store(kind)
	if err != nil {
		return nil, 0, err
	}
	approved := false
	out, total, err := st.List(ctx, repository.ListingQuery{Page: page, Approved: &approved, Sort: "latest"})
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

// Approve flips the moderation flag in place.
func (s *Service) Approve(ctx context.Context, kind models.ListingKind, id uuid.UUID) (models.Listing, error) {
	st, l, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := st.SetApproved(ctx, id, true); err != nil {
		return nil, apperror.Internal(err)
	}
	l.Common().Approved = true
	if s.Notify != nil {
		s.Notify.ListingApproved(ctx, l)
	}
	return l, nil
}

// Reject hard-deletes the listing. There is no undo.
func (s *Service) Reject(ctx context.Context, kind models.ListingKind, id uuid.UUID) error {
	_, l, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, kind, l)
}
