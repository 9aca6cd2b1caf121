package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
)

// translate maps gorm sentinels onto repository ones.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

type GormUserStore struct {
	DB *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{DB: db}
}

func (s *GormUserStore) Create(ctx context.Context, u *models.User) error {
	return translate(s.DB.WithContext(ctx).Create(u).Error)
}

func (s *GormUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormUserStore) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormUserStore) Update(ctx context.Context, u *models.User) error {
	return translate(s.DB.WithContext(ctx).Save(u).Error)
}

func (s *GormUserStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return translate(s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login", at).Error)
}

func (s *GormUserStore) List(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	q.Page = q.Page.Normalize()
	tx := s.DB.WithContext(ctx).Model(&models.User{})
	if q.Role != "" {
		tx = tx.Where("role = ?", q.Role)
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		tx = tx.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.User
	if err := tx.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset()).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
