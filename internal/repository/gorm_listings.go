package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

// gormListingStore serves one listing table. T is the concrete model
// (models.Car, ...) and PT its pointer type implementing models.Listing.
type gormListingStore[T any, PT interface {
	*T
	models.Listing
}] struct {
	db   *gorm.DB
	kind models.ListingKind
}

func newGormListingStore[T any, PT interface {
	*T
	models.Listing
}](db *gorm.DB) *gormListingStore[T, PT] {
	return &gormListingStore[T, PT]{db: db, kind: PT(new(T)).Kind()}
}

// NewGormListingRegistry wires one gorm store per listing kind.
func NewGormListingRegistry(db *gorm.DB) ListingRegistry {
	return ListingRegistry{
		models.KindCar:      newGormListingStore[models.Car](db),
		models.KindProperty: newGormListingStore[models.Property](db),
		models.KindLand:     newGormListingStore[models.Land](db),
		models.KindMachine:  newGormListingStore[models.Machine](db),
	}
}

func (s *gormListingStore[T, PT]) Kind() models.ListingKind { return s.kind }

func (s *gormListingStore[T, PT]) Create(ctx context.Context, l models.Listing) error {
	return translate(s.db.WithContext(ctx).Create(l).Error)
}

func (s *gormListingStore[T, PT]) Get(ctx context.Context, id uuid.UUID) (models.Listing, error) {
	var row T
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return PT(&row), nil
}

func (s *gormListingStore[T, PT]) List(ctx context.Context, q ListingQuery) ([]models.Listing, int64, error) {
	q.Page = q.Page.Normalize()
	tx := s.db.WithContext(ctx).Model(new(T))

	if q.Approved != nil {
		tx = tx.Where("approved = ?", *q.Approved)
	}
	if q.OwnerID != nil {
		tx = tx.Where("owner_id = ?", *q.OwnerID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Purpose != "" {
		tx = tx.Where("purpose = ?", q.Purpose)
	}
	if q.City != "" {
		tx = tx.Where("LOWER(location_city) = ?", strings.ToLower(q.City))
	}
	if q.Search != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(q.Search)+"%")
	}
	if q.MinPrice > 0 {
		tx = tx.Where("price >= ?", q.MinPrice)
	}
	if q.MaxPrice > 0 {
		tx = tx.Where("price <= ?", q.MaxPrice)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch q.Sort {
	case "price_low":
		tx = tx.Order("price ASC")
	case "price_high":
		tx = tx.Order("price DESC")
	case "popular":
		tx = tx.Order("views DESC")
	default:
		tx = tx.Order("created_at DESC")
	}

	var rows []T
	if err := tx.Limit(q.Limit).Offset(q.Offset()).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]models.Listing, 0, len(rows))
	for i := range rows {
		out = append(out, PT(&rows[i]))
	}
	return out, total, nil
}

// managedColumns change through their own operations, never through Update.
var managedColumns = []string{"id", "owner_id", "status", "approved", "views", "images", "created_at"}

func (s *gormListingStore[T, PT]) Update(ctx context.Context, l models.Listing) error {
	res := s.db.WithContext(ctx).Model(l).Select("*").Omit(managedColumns...).Updates(l)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormListingStore[T, PT]) UpdateImages(ctx context.Context, id uuid.UUID, fn func([]models.Image) ([]models.Image, error)) ([]models.Image, error) {
	var out []models.Image
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row T
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		next, err := fn(PT(&row).Common().Images)
		if err != nil {
			return err
		}
		if err := tx.Model(new(T)).Where("id = ?", id).
			UpdateColumn("images", datatypes.JSONSlice[models.Image](next)).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (s *gormListingStore[T, PT]) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(new(T), "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementViews is a plain read-modify-write in SQL; concurrent readers
// may race, which is acceptable for a display counter.
func (s *gormListingStore[T, PT]) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return s.updateColumn(ctx, id, "views", gorm.Expr("views + 1"))
}

func (s *gormListingStore[T, PT]) SetApproved(ctx context.Context, id uuid.UUID, approved bool) error {
	return s.updateColumn(ctx, id, "approved", approved)
}

func (s *gormListingStore[T, PT]) SetStatus(ctx context.Context, id uuid.UUID, status models.ListingStatus) error {
	return s.updateColumn(ctx, id, "status", status)
}

func (s *gormListingStore[T, PT]) updateColumn(ctx context.Context, id uuid.UUID, col string, val any) error {
	res := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).UpdateColumn(col, val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type GormFavoriteStore struct {
	DB *gorm.DB
}

func NewGormFavoriteStore(db *gorm.DB) *GormFavoriteStore {
	return &GormFavoriteStore{DB: db}
}

func (s *GormFavoriteStore) Toggle(ctx context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error) {
	var added bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("kind = ? AND listing_id = ? AND user_id = ?", kind, listingID, userID).
			Delete(&models.Favorite{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			added = false
			return nil
		}
		added = true
		return tx.Create(&models.Favorite{Kind: kind, ListingID: listingID, UserID: userID}).Error
	})
	return added, translate(err)
}

func (s *GormFavoriteStore) IsFavorite(ctx context.Context, kind models.ListingKind, listingID, userID uuid.UUID) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Favorite{}).
		Where("kind = ? AND listing_id = ? AND user_id = ?", kind, listingID, userID).
		Count(&n).Error
	return n > 0, err
}

func (s *GormFavoriteStore) Count(ctx context.Context, kind models.ListingKind, listingID uuid.UUID) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Favorite{}).
		Where("kind = ? AND listing_id = ?", kind, listingID).
		Count(&n).Error
	return n, err
}

func (s *GormFavoriteStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	var out []models.Favorite
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *GormFavoriteStore) DeleteByListing(ctx context.Context, kind models.ListingKind, listingID uuid.UUID) error {
	return s.DB.WithContext(ctx).
		Where("kind = ? AND listing_id = ?", kind, listingID).
		Delete(&models.Favorite{}).Error
}
