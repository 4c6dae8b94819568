package models

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

type MessageStatus string

const (
	MessageStatusPending      MessageStatus = "pending"
	MessageStatusInFlight     MessageStatus = "in_flight"
	MessageStatusSent         MessageStatus = "sent"
	MessageStatusFailed       MessageStatus = "failed"
	MessageStatusDeadLettered MessageStatus = "dead_lettered"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageStatusSent, MessageStatusFailed, MessageStatusDeadLettered:
		return true
	default:
		return false
	}
}

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
	MessageTypeMedia    MessageType = "media"
)

// IsSupported reports whether the gateway client knows how to send the type.
func (t MessageType) IsSupported() bool {
	switch t {
	case MessageTypeText, MessageTypeTemplate, MessageTypeMedia:
		return true
	default:
		return false
	}
}

var (
	ErrEmptyDestination  = errors.New("destination is empty")
	ErrUnsupportedType   = errors.New("unsupported message type")
	ErrEmptyContent      = errors.New("message has neither content nor payload")
	ErrMissingInstanceID = errors.New("instance id is empty")
)

// QueuedMessage is one unit of outbound work.
type QueuedMessage struct {
	ID                int64          `db:"id" json:"id"`
	InstanceID        string         `db:"instance_id" json:"instance_id"`
	Destination       string         `db:"destination" json:"destination"`
	Type              MessageType    `db:"message_type" json:"message_type"`
	Content           string         `db:"content" json:"content"`
	Payload           types.JSONText `db:"payload" json:"payload,omitempty"`
	Priority          int            `db:"priority" json:"priority"`
	Status            MessageStatus  `db:"status" json:"status"`
	AttemptCount      int            `db:"attempt_count" json:"attempt_count"`
	LastError         sql.NullString `db:"last_error" json:"last_error,omitempty"`
	ProviderMessageID sql.NullString `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ScheduledAt       time.Time      `db:"scheduled_at" json:"scheduled_at"`
	ClaimedAt         sql.NullTime   `db:"claimed_at" json:"claimed_at,omitempty"`
	ClaimedBy         sql.NullString `db:"claimed_by" json:"claimed_by,omitempty"`
	SentAt            sql.NullTime   `db:"sent_at" json:"sent_at,omitempty"`
	DeliveredAt       sql.NullTime   `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            sql.NullTime   `db:"read_at" json:"read_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Validate checks the fields the gateway needs to attempt a send.
func (m *QueuedMessage) Validate() error {
	if strings.TrimSpace(m.InstanceID) == "" {
		return ErrMissingInstanceID
	}
	if strings.TrimSpace(m.Destination) == "" {
		return ErrEmptyDestination
	}
	if !m.Type.IsSupported() {
		return ErrUnsupportedType
	}
	if m.Content == "" && len(m.Payload) == 0 {
		return ErrEmptyContent
	}
	return nil
}

// DeliveryStatus is reported by the provider after a message was accepted.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
)
