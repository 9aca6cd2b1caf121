package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

type GormDealStore struct {
	DB *gorm.DB
}

func NewGormDealStore(db *gorm.DB) *GormDealStore {
	return &GormDealStore{DB: db}
}

func (s *GormDealStore) Create(ctx context.Context, d *models.Deal) error {
	return translate(s.DB.WithContext(ctx).Create(d).Error)
}

func (s *GormDealStore) Get(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var d models.Deal
	if err := s.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *GormDealStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var d models.Deal
	if err := s.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *GormDealStore) GetByDealID(ctx context.Context, dealID string) (*models.Deal, error) {
	var d models.Deal
	if err := s.DB.WithContext(ctx).First(&d, "deal_id = ?", dealID).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (s *GormDealStore) List(ctx context.Context, q DealQuery) ([]models.Deal, int64, error) {
	q.Page = q.Page.Normalize()
	tx := s.DB.WithContext(ctx).Model(&models.Deal{})

	if q.Party != nil {
		switch q.AsRole {
		case "buyer":
			tx = tx.Where("buyer_id = ?", *q.Party)
		case "seller":
			tx = tx.Where("seller_id = ?", *q.Party)
		default:
			tx = tx.Where("buyer_id = ? OR seller_id = ?", *q.Party, *q.Party)
		}
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Deal
	if err := tx.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset()).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update never writes deal_id; it is assigned once on insert.
func (s *GormDealStore) Update(ctx context.Context, d *models.Deal) error {
	res := s.DB.WithContext(ctx).Model(d).Select("*").Omit("id", "deal_id", "created_at").Updates(d)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormDealStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.DB.WithContext(ctx).Delete(&models.Deal{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type GormConsultationStore struct {
	DB *gorm.DB
}

func NewGormConsultationStore(db *gorm.DB) *GormConsultationStore {
	return &GormConsultationStore{DB: db}
}

func (s *GormConsultationStore) Create(ctx context.Context, c *models.Consultation) error {
	return translate(s.DB.WithContext(ctx).Create(c).Error)
}

func (s *GormConsultationStore) Get(ctx context.Context, id uuid.UUID) (*models.Consultation, error) {
	var c models.Consultation
	if err := s.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *GormConsultationStore) List(ctx context.Context, q ConsultationQuery) ([]models.Consultation, int64, error) {
	q.Page = q.Page.Normalize()
	tx := s.DB.WithContext(ctx).Model(&models.Consultation{})
	if q.UserID != nil {
		tx = tx.Where("user_id = ?", *q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Consultation
	if err := tx.Order("date_time ASC").Limit(q.Limit).Offset(q.Offset()).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *GormConsultationStore) Update(ctx context.Context, c *models.Consultation) error {
	return translate(s.DB.WithContext(ctx).Save(c).Error)
}

// NewGormStores binds every gorm store to db (a pool or a transaction).
func NewGormStores(db *gorm.DB) Stores {
	return Stores{
		Users:         NewGormUserStore(db),
		Listings:      NewGormListingRegistry(db),
		Favorites:     NewGormFavoriteStore(db),
		Deals:         NewGormDealStore(db),
		Consultations: NewGormConsultationStore(db),
	}
}

type GormTransactor struct {
	DB *gorm.DB
}

func NewGormTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{DB: db}
}

func (t *GormTransactor) WithinTx(ctx context.Context, fn func(tx Stores) error) error {
	return t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStores(tx))
	})
}
