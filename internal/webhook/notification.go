// Package webhook normalizes provider notifications and records inbound
// messages exactly once.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/popeskul/chatrelay/internal/gateway"
	"github.com/popeskul/chatrelay/internal/models"
)

// ErrMalformed marks a notification that cannot be processed. It is logged
// and dropped, never returned to the provider as a failure.
var ErrMalformed = errors.New("malformed notification")

const (
	TypeIncomingMessage = "incomingMessageReceived"
	TypeOutgoingStatus  = "outgoingMessageStatus"
	TypeStateChanged    = "stateInstanceChanged"
)

// FlexID accepts both JSON strings and numbers; the provider sends instance
// ids as numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// Notification is the provider webhook body. Besides the provider's nested
// format, the flat form {providerMessageId, senderId, instanceId, text,
// timestamp} is accepted for incoming messages.
type Notification struct {
	TypeWebhook  string `json:"typeWebhook"`
	InstanceData struct {
		IDInstance FlexID `json:"idInstance"`
	} `json:"instanceData"`
	Timestamp  int64  `json:"timestamp"`
	IDMessage  string `json:"idMessage"`
	SenderData struct {
		ChatID string `json:"chatId"`
		Sender string `json:"sender"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
	} `json:"messageData"`
	Status        string `json:"status"`
	StateInstance string `json:"stateInstance"`

	ProviderMessageID string `json:"providerMessageId"`
	SenderID          string `json:"senderId"`
	InstanceID        FlexID `json:"instanceId"`
	Text              string `json:"text"`
}

// Parse decodes a raw webhook body.
func Parse(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &n, nil
}

// Kind returns the notification type. Flat notifications are incoming
// messages.
func (n *Notification) Kind() string {
	if n.TypeWebhook == "" && n.ProviderMessageID != "" {
		return TypeIncomingMessage
	}
	return n.TypeWebhook
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Instance returns the owning instance id.
func (n *Notification) Instance() string {
	return firstNonEmpty(string(n.InstanceData.IDInstance), string(n.InstanceID))
}

// MessageID returns the provider message id.
func (n *Notification) MessageID() string {
	return firstNonEmpty(n.IDMessage, n.ProviderMessageID)
}

func (n *Notification) receivedAt(now time.Time) time.Time {
	if n.Timestamp > 0 {
		return time.Unix(n.Timestamp, 0).UTC()
	}
	return now
}

// InboundEvent normalizes an incoming message notification.
func (n *Notification) InboundEvent(now time.Time) (*models.InboundEvent, error) {
	event := &models.InboundEvent{
		InstanceID:        n.Instance(),
		ProviderMessageID: n.MessageID(),
		SenderID:          firstNonEmpty(n.SenderData.ChatID, n.SenderData.Sender, n.SenderID),
		Text: firstNonEmpty(
			n.MessageData.TextMessageData.TextMessage,
			n.MessageData.ExtendedTextMessageData.Text,
			n.Text,
		),
		ReceivedAt: n.receivedAt(now),
	}

	switch {
	case event.InstanceID == "":
		return nil, fmt.Errorf("%w: missing instance id", ErrMalformed)
	case event.ProviderMessageID == "":
		return nil, fmt.Errorf("%w: missing message id", ErrMalformed)
	case event.SenderID == "":
		return nil, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	return event, nil
}

// StatusUpdate is a delivery receipt for an outbound message.
type StatusUpdate struct {
	InstanceID        string
	ProviderMessageID string
	Status            models.DeliveryStatus
	At                time.Time
}

// Receipt extracts a delivery receipt. ok is false for statuses that carry
// no delivery information (sent, failed, noAccount, ...).
func (n *Notification) Receipt(now time.Time) (update *StatusUpdate, ok bool, err error) {
	if n.MessageID() == "" {
		return nil, false, fmt.Errorf("%w: missing message id", ErrMalformed)
	}

	var status models.DeliveryStatus
	switch n.Status {
	case "delivered":
		status = models.DeliveryStatusDelivered
	case "read":
		status = models.DeliveryStatusRead
	default:
		return nil, false, nil
	}

	return &StatusUpdate{
		InstanceID:        n.Instance(),
		ProviderMessageID: n.MessageID(),
		Status:            status,
		At:                n.receivedAt(now),
	}, true, nil
}

// StateChange extracts the new connection state of the instance.
func (n *Notification) StateChange() (instanceID string, state models.InstanceState, err error) {
	instanceID = n.Instance()
	if instanceID == "" || n.StateInstance == "" {
		return "", "", fmt.Errorf("%w: missing instance or state", ErrMalformed)
	}
	return instanceID, gateway.MapState(n.StateInstance), nil
}
