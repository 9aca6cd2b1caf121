package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConsultationStatus string

const (
	ConsultationPending     ConsultationStatus = "pending"
	ConsultationAccepted    ConsultationStatus = "accepted"
	ConsultationRescheduled ConsultationStatus = "rescheduled"
	ConsultationCancelled   ConsultationStatus = "cancelled"
	ConsultationCompleted   ConsultationStatus = "completed"
)

// Consultation is a standalone advisory booking, unrelated to deals.
type Consultation struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID   *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Category string     `gorm:"type:varchar(20);not null;index" json:"category"`

	Name    string `gorm:"not null" json:"name"`
	Email   string `gorm:"not null" json:"email"`
	Phone   string `gorm:"type:varchar(30);not null" json:"phone"`
	Message string `gorm:"type:text" json:"message"`

	DateTime  time.Time          `gorm:"not null;index" json:"date_time"`
	Status    ConsultationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AdminNote string             `gorm:"type:text" json:"admin_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Consultation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
