// Package api contains the HTTP contract of the service: request and
// response types, the ServerInterface implemented by handlers and the chi
// binding that decodes path and query parameters.
package api

import (
	"time"
)

// Defines values for HealthResponseStatus.
const (
	Healthy   HealthResponseStatus = "healthy"
	Unhealthy HealthResponseStatus = "unhealthy"
	Degraded  HealthResponseStatus = "degraded"
)

// Defines values for HealthResponseDatabaseStatus.
const (
	HealthResponseDatabaseStatusConnected    HealthResponseDatabaseStatus = "connected"
	HealthResponseDatabaseStatusDisconnected HealthResponseDatabaseStatus = "disconnected"
)

// Defines values for HealthResponseRedisStatus.
const (
	HealthResponseRedisStatusConnected    HealthResponseRedisStatus = "connected"
	HealthResponseRedisStatusDisconnected HealthResponseRedisStatus = "disconnected"
	HealthResponseRedisStatusDisabled     HealthResponseRedisStatus = "disabled"
)

// Defines values for HealthResponseDispatcherStatus.
const (
	HealthResponseDispatcherStatusRunning HealthResponseDispatcherStatus = "running"
	HealthResponseDispatcherStatusStopped HealthResponseDispatcherStatus = "stopped"
)

// Defines values for ListDeadLettersParamsStatus.
const (
	ListDeadLettersParamsStatusDeadLettered ListDeadLettersParamsStatus = "dead_lettered"
	ListDeadLettersParamsStatusFailed       ListDeadLettersParamsStatus = "failed"
)

// Defines values for MessageType.
const (
	MessageTypeText     MessageType = "text"
	MessageTypeTemplate MessageType = "template"
	MessageTypeMedia    MessageType = "media"
)

// Defines values for WebhookAckStatus.
const (
	WebhookAckStatusAccepted  WebhookAckStatus = "accepted"
	WebhookAckStatusDuplicate WebhookAckStatus = "duplicate"
	WebhookAckStatusIgnored   WebhookAckStatus = "ignored"
)

// EnqueueMessageRequest defines model for EnqueueMessageRequest.
type EnqueueMessageRequest struct {
	Destination string                  `json:"destination"`
	Type        *MessageType            `json:"type,omitempty"`
	Content     *string                 `json:"content,omitempty"`
	Payload     *map[string]interface{} `json:"payload,omitempty"`
	Priority    *int                    `json:"priority,omitempty"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status           HealthResponseStatus            `json:"status"`
	Timestamp        time.Time                       `json:"timestamp"`
	DatabaseStatus   *HealthResponseDatabaseStatus   `json:"database_status,omitempty"`
	RedisStatus      *HealthResponseRedisStatus      `json:"redis_status,omitempty"`
	DispatcherStatus *HealthResponseDispatcherStatus `json:"dispatcher_status,omitempty"`
	ActiveWorkers    *int                            `json:"active_workers,omitempty"`
}

// HealthResponseStatus defines model for HealthResponse.Status.
type HealthResponseStatus string

// HealthResponseDatabaseStatus defines model for HealthResponse.DatabaseStatus.
type HealthResponseDatabaseStatus string

// HealthResponseRedisStatus defines model for HealthResponse.RedisStatus.
type HealthResponseRedisStatus string

// HealthResponseDispatcherStatus defines model for HealthResponse.DispatcherStatus.
type HealthResponseDispatcherStatus string

// InstanceResponse defines model for InstanceResponse.
type InstanceResponse struct {
	Id             string     `json:"id"`
	State          string     `json:"state"`
	Suspended      bool       `json:"suspended"`
	BackoffLevel   int        `json:"backoff_level"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

// Message defines model for Message.
type Message struct {
	Id                int64       `json:"id"`
	InstanceId        string      `json:"instance_id"`
	Destination       string      `json:"destination"`
	Type              MessageType `json:"type"`
	Content           *string     `json:"content,omitempty"`
	Priority          int         `json:"priority"`
	Status            string      `json:"status"`
	AttemptCount      int         `json:"attempt_count"`
	LastError         *string     `json:"last_error,omitempty"`
	ProviderMessageId *string     `json:"provider_message_id,omitempty"`
	ScheduledAt       time.Time   `json:"scheduled_at"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// MessageListResponse defines model for MessageListResponse.
type MessageListResponse struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// MessageType defines model for MessageType.
type MessageType string

// Pagination defines model for Pagination.
type Pagination struct {
	CurrentPage  int `json:"current_page"`
	ItemsPerPage int `json:"items_per_page"`
	TotalItems   int `json:"total_items"`
	TotalPages   int `json:"total_pages"`
}

// WebhookAck defines model for WebhookAck.
type WebhookAck struct {
	Status WebhookAckStatus `json:"status"`
}

// WebhookAckStatus defines model for WebhookAck.Status.
type WebhookAckStatus string

// ListDeadLettersParams defines parameters for ListDeadLetters.
type ListDeadLettersParams struct {
	// InstanceId restricts the list to one instance
	InstanceId *string `form:"instance_id,omitempty" json:"instance_id,omitempty"`

	// Page number (1-based)
	Page *int `form:"page,omitempty" json:"page,omitempty"`

	// Limit is the number of items per page
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`

	// Status selects terminal failures instead of dead letters
	Status *ListDeadLettersParamsStatus `form:"status,omitempty" json:"status,omitempty"`
}

// ListDeadLettersParamsStatus defines parameters for ListDeadLetters.
type ListDeadLettersParamsStatus string

// EnqueueMessageJSONRequestBody defines body for EnqueueMessage for application/json ContentType.
type EnqueueMessageJSONRequestBody = EnqueueMessageRequest
