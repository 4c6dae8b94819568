// Package gateway talks to the instance-based messaging provider and turns
// its responses into delivery outcomes.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/popeskul/chatrelay/internal/models"
)

//go:generate mockgen -source=gateway.go -destination=mocks/mock_gateway.go -package=mocks

// Outcome classifies a send attempt.
type Outcome int

const (
	// TransientError covers network failures, timeouts and 5xx responses.
	TransientError Outcome = iota
	Delivered
	Throttled
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Throttled:
		return "throttled"
	case Rejected:
		return "rejected"
	default:
		return "transient_error"
	}
}

// Result is the classified response of one send call.
type Result struct {
	Outcome           Outcome
	ProviderMessageID string
	// RetryAfter is the provider's hint for Throttled, zero when absent.
	RetryAfter time.Duration
	Reason     string
	Err        error
}

func (r Result) Error() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Outcome, r.Err)
	case r.Reason != "":
		return fmt.Sprintf("%s: %s", r.Outcome, r.Reason)
	default:
		return r.Outcome.String()
	}
}

// Payload is the message body handed to the provider.
type Payload struct {
	Type    models.MessageType
	Content string
	// Extra carries type specific fields, e.g. url_file and file_name for media.
	Extra json.RawMessage
}

// PayloadFrom builds the payload of a queued message.
func PayloadFrom(msg *models.QueuedMessage) Payload {
	return Payload{
		Type:    msg.Type,
		Content: msg.Content,
		Extra:   json.RawMessage(msg.Payload),
	}
}

// Client is the provider API used by the dispatcher and the allow-list guard.
type Client interface {
	Send(ctx context.Context, inst *models.Instance, destination string, payload Payload) Result
	State(ctx context.Context, inst *models.Instance) (models.InstanceState, error)
	AllowedRecipients(ctx context.Context, inst *models.Instance) ([]string, error)
}
