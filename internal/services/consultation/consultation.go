// Package consultation books advisory sessions and lets admins move them
// through their lifecycle.
package consultation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/validation"
)

// Notifier is told when a booking changes status.
type Notifier interface {
	ConsultationUpdated(ctx context.Context, c *models.Consultation)
}

var transitions = map[models.ConsultationStatus][]models.ConsultationStatus{
	models.ConsultationPending:     {models.ConsultationAccepted, models.ConsultationRescheduled, models.ConsultationCancelled},
	models.ConsultationAccepted:    {models.ConsultationRescheduled, models.ConsultationCompleted, models.ConsultationCancelled},
	models.ConsultationRescheduled: {models.ConsultationAccepted, models.ConsultationRescheduled, models.ConsultationCompleted, models.ConsultationCancelled},
}

// CanTransition reports whether a consultation may move from one status to another.
func CanTransition(from, to models.ConsultationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Service books consultations and moves them through their statuses.
type Service struct {
	Store  repository.ConsultationStore
	Notify Notifier
	Log    *zap.SugaredLogger

	now func() time.Time
}

func NewService(store repository.ConsultationStore, notify Notifier, log *zap.SugaredLogger) *Service {
	return &Service{Store: store, Notify: notify, Log: log, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput is a booking request; DateTime must lie in the future.
type CreateInput struct {
	Category string    `json:"category" validate:"required,oneof=vehicle property land machinery general"`
	Name     string    `json:"name" validate:"required,max=120"`
	Email    string    `json:"email" validate:"required,email"`
	Phone    string    `json:"phone" validate:"required,ethphone"`
	Message  string    `json:"message" validate:"max=2000"`
	DateTime time.Time `json:"date_time"`
}

// Create books a consultation. user is nil for anonymous visitors.
func (s *Service) Create(ctx context.Context, user *models.Principal, in CreateInput) (*models.Consultation, error) {
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	fields := apperror.FieldErrors{}
	if err := validation.Struct(in); err != nil {
		e, ok := apperror.As(err)
		if !ok {
			return nil, err
		}
		fields = e.Fields
	}
	switch {
	case in.DateTime.IsZero():
		fields.Add("date_time", "date_time is required")
	case !in.DateTime.After(s.now()):
		fields.Add("date_time", "date_time must be in the future")
	}
	if err := apperror.Validation(fields); err != nil {
		return nil, err
	}

	c := &models.Consultation{
		Category: in.Category,
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Message:  strings.TrimSpace(in.Message),
		DateTime: in.DateTime.UTC(),
		Status:   models.ConsultationPending,
	}
	if user != nil {
		id := user.UserID
		c.UserID = &id
	}
	if err := s.Store.Create(ctx, c); err != nil {
		return nil, apperror.Internal(err)
	}
	return c, nil
}

// List is the admin view over every booking.
func (s *Service) List(ctx context.Context, q repository.ConsultationQuery) ([]models.Consultation, int64, error) {
	out, total, err := s.Store.List(ctx, q)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

// Mine lists the consultations booked while signed in as p.
func (s *Service) Mine(ctx context.Context, p models.Principal, page repository.Page) ([]models.Consultation, int64, error) {
	id := p.UserID
	return s.List(ctx, repository.ConsultationQuery{Page: page, UserID: &id})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Consultation, error) {
	c, err := s.Store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NotFound("Consultation not found")
	}
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return c, nil
}

// StatusInput moves a booking to Status. Rescheduling needs a new DateTime.
type StatusInput struct {
	Status    models.ConsultationStatus `json:"status" validate:"required"`
	DateTime  *time.Time                `json:"date_time"`
	AdminNote *string                   `json:"admin_note" validate:"omitempty,max=2000"`
}

// UpdateStatus moves the consultation along its lifecycle. Rescheduling
// requires a new future date.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*models.Consultation, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, in.Status) {
		return nil, apperror.Invalid("INVALID_TRANSITION", "status", "cannot move a "+string(c.Status)+" consultation to "+string(in.Status))
	}
	if in.Status == models.ConsultationRescheduled {
		if in.DateTime == nil {
			return nil, apperror.Invalid("DATE_REQUIRED", "date_time", "date_time is required when rescheduling")
		}
		if !in.DateTime.After(s.now()) {
			return nil, apperror.Invalid("INVALID_DATE", "date_time", "date_time must be in the future")
		}
		c.DateTime = in.DateTime.UTC()
	}
	c.Status = in.Status
	if in.AdminNote != nil {
		c.AdminNote = strings.TrimSpace(*in.AdminNote)
	}
	if err := s.Store.Update(ctx, c); err != nil {
		return nil, apperror.Internal(err)
	}
	if s.Notify != nil && c.UserID != nil {
		s.Notify.ConsultationUpdated(ctx, c)
	}
	return c, nil
}
