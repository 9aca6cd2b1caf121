package models

import "time"

type NotificationType string

const (
	NotifDealCreated   NotificationType = "deal_created"
	NotifDealApproved  NotificationType = "deal_approved"
	NotifDealRejected  NotificationType = "deal_rejected"
	NotifDealCancelled NotificationType = "deal_cancelled"
	NotifDealCompleted NotificationType = "deal_completed"
	NotifDealRated     NotificationType = "deal_rated"

	NotifListingApproved NotificationType = "listing_approved"

	NotifConsultationUpdated NotificationType = "consultation_updated"
)

// NotificationTTL is how long a notification document lives before the
// TTL index removes it.
const NotificationTTL = 30 * 24 * time.Hour

type Channels struct {
	InApp bool `json:"in_app" bson:"in_app"`
	Email bool `json:"email" bson:"email"`
	SMS   bool `json:"sms" bson:"sms"`
}

type Notification struct {
	ID        string           `json:"id" bson:"_id"`
	Recipient string           `json:"recipient" bson:"recipient"`
	Type      NotificationType `json:"type" bson:"type"`
	Title     string           `json:"title" bson:"title"`
	Message   string           `json:"message" bson:"message"`
	Data      map[string]any   `json:"data,omitempty" bson:"data,omitempty"`
	Channels  Channels         `json:"channels" bson:"channels"`
	Read      bool             `json:"read" bson:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty" bson:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}
