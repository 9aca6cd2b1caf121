package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// internal/models/user.go
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"phone"`

	Password   string `gorm:"not null" json:"-"`
	Role       Role   `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive   bool   `gorm:"default:true" json:"is_active"`
	IsVerified bool   `gorm:"default:false" json:"is_verified"`
	AvatarURL  string `gorm:"type:text" json:"avatar_url,omitempty"`

	VerificationCode    string     `gorm:"type:varchar(12)" json:"-"`
	VerificationExpires *time.Time `json:"-"`
	ResetCode           string     `gorm:"type:varchar(12)" json:"-"`
	ResetExpires        *time.Time `json:"-"`

	LastLogin *time.Time `json:"last_login,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}
