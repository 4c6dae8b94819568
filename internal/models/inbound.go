package models

import "time"

// InboundEvent is one normalized incoming notification. It is never mutated
// after it has been recorded.
type InboundEvent struct {
	ID                int64     `db:"id" json:"id"`
	InstanceID        string    `db:"instance_id" json:"instance_id"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id"`
	SenderID          string    `db:"sender_id" json:"sender_id"`
	Text              string    `db:"text" json:"text"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
