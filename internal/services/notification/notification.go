// Package notification records in-app notifications, pushes them to the
// recipient's open websockets and optionally mirrors them by email.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/mailer"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
)

const (
	EventNotification = "notification"
	EventDealUpdated  = "deal_updated"
)

// Pusher delivers a realtime event to every connection of a user.
type Pusher interface {
	SendToUser(userID uuid.UUID, payload any)
}

// Event is the websocket frame sent to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Notice is a notification before it is addressed and stored.
type Notice struct {
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]any
	Email   bool
}

// Publisher implements the Notifier contracts of the deal, listing and
// consultation services.
type Publisher struct {
	Store repository.NotificationStore // nil when mongo is not configured
	Push  Pusher
	Mail  mailer.Sender
	Users repository.UserStore
	Log   *zap.SugaredLogger

	now  func() time.Time
	mail sync.WaitGroup
}

func NewPublisher(store repository.NotificationStore, push Pusher, mail mailer.Sender, users repository.UserStore, log *zap.SugaredLogger) *Publisher {
	return &Publisher{Store: store, Push: push, Mail: mail, Users: users, Log: log, now: time.Now}
}

func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Wait blocks until queued emails have been handed to the mailer.
func (p *Publisher) Wait() { p.mail.Wait() }

// Publish stores the notice for recipient and pushes it. Failures are logged;
// a notification never fails the operation that caused it.
func (p *Publisher) Publish(ctx context.Context, recipient uuid.UUID, n Notice) *models.Notification {
	rec := &models.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient.String(),
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Channels:  models.Channels{InApp: true, Email: n.Email && p.Mail != nil},
		CreatedAt: p.now().UTC(),
	}
	if p.Store != nil {
		if err := p.Store.Insert(ctx, rec); err != nil {
			p.Log.Errorw("store notification", "recipient", rec.Recipient, "type", rec.Type, "error", err)
		}
	}
	if p.Push != nil {
		p.Push.SendToUser(recipient, Event{Type: EventNotification, Data: rec})
	}
	if rec.Channels.Email {
		p.email(recipient, rec)
	}
	return rec
}

func (p *Publisher) email(recipient uuid.UUID, rec *models.Notification) {
	if p.Users == nil {
		return
	}
	p.mail.Add(1)
	go func() {
		defer p.mail.Done()
		ctx := context.Background()
		u, err := p.Users.GetByID(ctx, recipient)
		if err != nil {
			p.Log.Warnw("notification email recipient", "user", recipient, "error", err)
			return
		}
		err = p.Mail.Send(ctx, mailer.Message{
			To:       u.Email,
			Subject:  rec.Title,
			Template: mailer.TemplateNotification,
			Data:     map[string]string{"Title": rec.Title, "Message": rec.Message},
		})
		if err != nil {
			p.Log.Warnw("send notification email", "user", recipient, "error", err)
		}
	}()
}

var dealNotices = map[models.NotificationType]struct {
	title, message string
	email          bool
}{
	models.NotifDealCreated:   {"New deal request", "You received a new deal request %s.", true},
	models.NotifDealApproved:  {"Deal approved", "Deal %s has been approved.", true},
	models.NotifDealRejected:  {"Deal rejected", "Deal %s has been rejected.", true},
	models.NotifDealCancelled: {"Deal cancelled", "Deal %s has been cancelled.", true},
	models.NotifDealCompleted: {"Deal completed", "Deal %s has been completed.", true},
	models.NotifDealRated:     {"New rating", "You received a rating on deal %s.", false},
}

// DealChanged notifies every party other than the actor and pushes a
// deal_updated event to both parties.
func (p *Publisher) DealChanged(ctx context.Context, d *models.Deal, actor models.Principal, typ models.NotificationType) {
	tmpl, ok := dealNotices[typ]
	if !ok {
		p.Log.Warnw("unknown deal notification", "type", typ)
		return
	}
	data := map[string]any{
		"deal_id":   d.DealID,
		"id":        d.ID.String(),
		"status":    string(d.Status),
		"item_type": string(d.ItemType),
		"item_id":   d.ItemID.String(),
	}
	if typ == models.NotifDealCancelled && d.CancellationReason != "" {
		data["reason"] = d.CancellationReason
	}
	for _, party := range []uuid.UUID{d.BuyerID, d.SellerID} {
		if party == actor.UserID {
			continue
		}
		p.Publish(ctx, party, Notice{
			Type:    typ,
			Title:   tmpl.title,
			Message: fmt.Sprintf(tmpl.message, d.DealID),
			Data:    data,
			Email:   tmpl.email,
		})
	}
	if p.Push != nil {
		ev := Event{Type: EventDealUpdated, Data: d}
		p.Push.SendToUser(d.BuyerID, ev)
		p.Push.SendToUser(d.SellerID, ev)
	}
}

// ListingApproved tells the owner their listing is live.
func (p *Publisher) ListingApproved(ctx context.Context, l models.Listing) {
	b := l.Common()
	p.Publish(ctx, b.OwnerID, Notice{
		Type:    models.NotifListingApproved,
		Title:   "Listing approved",
		Message: fmt.Sprintf("Your listing %q is now live.", b.Title),
		Data:    map[string]any{"kind": string(l.Kind()), "id": b.ID.String()},
		Email:   true,
	})
}

// ConsultationUpdated tells a signed-in requester about a status change.
func (p *Publisher) ConsultationUpdated(ctx context.Context, c *models.Consultation) {
	if c.UserID == nil {
		return
	}
	p.Publish(ctx, *c.UserID, Notice{
		Type:    models.NotifConsultationUpdated,
		Title:   "Consultation " + string(c.Status),
		Message: fmt.Sprintf("Your %s consultation on %s is now %s.", c.Category, c.DateTime.Format("Jan 2, 2006 15:04 MST"), c.Status),
		Data:    map[string]any{"id": c.ID.String(), "status": string(c.Status)},
		Email:   true,
	})
}

// List returns the user's notifications, newest first.
func (p *Publisher) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page repository.Page) ([]models.Notification, int64, error) {
	if p.Store == nil {
		return []models.Notification{}, 0, nil
	}
	out, total, err := p.Store.ListByRecipient(ctx, userID.String(), unreadOnly, page)
	if err != nil {
		return nil, 0, apperror.Internal(err)
	}
	return out, total, nil
}

func (p *Publisher) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if p.Store == nil {
		return 0, nil
	}
	n, err := p.Store.CountUnread(ctx, userID.String())
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications read.
func (p *Publisher) MarkRead(ctx context.Context, userID uuid.UUID, id string) error {
	if p.Store == nil {
		return apperror.NotFound("Notification not found")
	}
	err := p.Store.MarkRead(ctx, userID.String(), id, p.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return apperror.NotFound("Notification not found")
	}
	if err != nil {
		return apperror.Internal(err)
	}
	return nil
}

func (p *Publisher) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if p.Store == nil {
		return 0, nil
	}
	n, err := p.Store.MarkAllRead(ctx, userID.String(), p.now().UTC())
	if err != nil {
		return 0, apperror.Internal(err)
	}
	return n, nil
}
