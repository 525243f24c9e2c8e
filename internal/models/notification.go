package models

import "time"

// NotificationType categorizes portal notifications for UI rendering.
type NotificationType string

const (
	NotificationTypeClearance NotificationType = "CLEARANCE"
	NotificationTypeGeneral   NotificationType = "GENERAL"
)

// Notification is a persisted message addressed to one user. Delivery is
// best-effort: the approval write is the durable fact, a failed notification
// is logged and dropped.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	Type        NotificationType `db:"type" json:"type"`
	Read        bool             `db:"read" json:"read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// NotificationEvent is an unpersisted fan-out instruction produced by a
// clearance transition, consumed by the notification dispatcher.
type NotificationEvent struct {
	RecipientID string
	Title       string
	Message     string
	Type        NotificationType
}
