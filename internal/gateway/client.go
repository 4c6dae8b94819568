package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/models"
)

// StatusQuotaExceeded is the provider code for quota and allow-list violations.
const StatusQuotaExceeded = 466

const (
	methodSendMessage    = "sendMessage"
	methodSendFileByURL  = "sendFileByUrl"
	methodStateInstance  = "getStateInstance"
	methodAllowedNumbers = "allowedNumbers"
)

var ErrUnsupportedPayload = errors.New("unsupported payload type")

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendFileRequest struct {
	ChatID   string `json:"chatId"`
	URLFile  string `json:"urlFile"`
	FileName string `json:"fileName"`
	Caption  string `json:"caption,omitempty"`
}

type mediaFields struct {
	URLFile  string `json:"url_file"`
	FileName string `json:"file_name"`
}

type sendResponse struct {
	IDMessage string `json:"idMessage"`
}

type stateResponse struct {
	StateInstance string `json:"stateInstance"`
}

// HTTPClient is the resty based Client.
type HTTPClient struct {
	client   *resty.Client
	baseURL  string
	breakers *breakers
	logger   *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg config.GatewayConfig, logger *zap.Logger) *HTTPClient {
	client := resty.New().
		SetTimeout(cfg.TimeoutDuration()).
		SetHeader("Content-Type", "application/json")

	return &HTTPClient{
		client:   client,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		breakers: newBreakers(cfg.CircuitBreaker, logger),
		logger:   logger,
	}
}

func (c *HTTPClient) endpoint(inst *models.Instance, method string) string {
	base := c.baseURL
	if inst.BaseURL != "" {
		base = strings.TrimRight(inst.BaseURL, "/")
	}
	return fmt.Sprintf("%s/waInstance%s/%s/%s", base, inst.ID, method, inst.APIToken)
}

// ChatID converts a recipient identifier into the provider chat id.
// Bare numbers are personal chats.
func ChatID(destination string) string {
	d := strings.TrimPrefix(strings.TrimSpace(destination), "+")
	if strings.Contains(d, "@") {
		return d
	}
	return d + "@c.us"
}

func buildRequest(destination string, p Payload) (method string, body interface{}, err error) {
	chatID := ChatID(destination)

	switch p.Type {
	case models.MessageTypeText, models.MessageTypeTemplate:
		return methodSendMessage, sendMessageRequest{ChatID: chatID, Message: p.Content}, nil
	case models.MessageTypeMedia:
		var f mediaFields
		if len(p.Extra) > 0 {
			if err := json.Unmarshal(p.Extra, &f); err != nil {
				return "", nil, fmt.Errorf("failed to decode media payload: %w", err)
			}
		}
		if f.URLFile == "" {
			return "", nil, fmt.Errorf("media payload without url_file: %w", ErrUnsupportedPayload)
		}
		if f.FileName == "" {
			f.FileName = f.URLFile[strings.LastIndex(f.URLFile, "/")+1:]
		}
		return methodSendFileByURL, sendFileRequest{
			ChatID:   chatID,
			URLFile:  f.URLFile,
			FileName: f.FileName,
			Caption:  p.Content,
		}, nil
	default:
		return "", nil, fmt.Errorf("%q: %w", p.Type, ErrUnsupportedPayload)
	}
}

// Send posts one message. It never returns an unclassified failure.
func (c *HTTPClient) Send(ctx context.Context, inst *models.Instance, destination string, payload Payload) Result {
	method, body, err := buildRequest(destination, payload)
	if err != nil {
		return Result{Outcome: Rejected, Reason: err.Error(), Err: err}
	}

	return c.breakers.execute(inst.ID, func() Result {
		var out sendResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&out).
			Post(c.endpoint(inst, method))
		if err != nil {
			return Result{Outcome: TransientError, Err: err}
		}

		res := Classify(resp.StatusCode(), resp.Header(), out.IDMessage, time.Now())
		if res.Outcome != Delivered && res.Reason == "" {
			res.Reason = strings.TrimSpace(resp.String())
		}
		return res
	})
}

// Classify maps a provider response onto an outcome.
func Classify(status int, header http.Header, providerMessageID string, now time.Time) Result {
	switch {
	case status >= 200 && status < 300:
		if providerMessageID == "" {
			return Result{Outcome: TransientError, Reason: "response without message id"}
		}
		return Result{Outcome: Delivered, ProviderMessageID: providerMessageID}
	case status == http.StatusTooManyRequests:
		return Result{Outcome: Throttled, RetryAfter: parseRetryAfter(header.Get("Retry-After"), now)}
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly:
		return Result{Outcome: TransientError, Reason: http.StatusText(status)}
	case status == StatusQuotaExceeded:
		return Result{Outcome: Rejected, Reason: "quota or allow-list exceeded"}
	case status >= 400 && status < 500:
		return Result{Outcome: Rejected, Reason: fmt.Sprintf("status %d", status)}
	default:
		return Result{Outcome: TransientError, Reason: fmt.Sprintf("status %d", status)}
	}
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// MapState converts the provider's stateInstance value.
func MapState(state string) models.InstanceState {
	switch state {
	case "authorized":
		return models.InstanceStateConnected
	case "notAuthorized", "starting":
		return models.InstanceStateAwaitingAuth
	default:
		return models.InstanceStateDisconnected
	}
}

// State queries the connection state of an instance.
func (c *HTTPClient) State(ctx context.Context, inst *models.Instance) (models.InstanceState, error) {
	var out stateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.endpoint(inst, methodStateInstance))
	if err != nil {
		return "", fmt.Errorf("failed to get instance state: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to get instance state: status %d", resp.StatusCode())
	}

	return MapState(out.StateInstance), nil
}

// AllowedRecipients fetches the recipients the account may message. The
// provider answers either with a bare list or with {"allowedNumbers": [...]}.
func (c *HTTPClient) AllowedRecipients(ctx context.Context, inst *models.Instance) ([]string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(c.endpoint(inst, methodAllowedNumbers))
	if err != nil {
		return nil, fmt.Errorf("failed to get allowed numbers: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get allowed numbers: status %d", resp.StatusCode())
	}

	return decodeAllowed(resp.Body())
}

func decodeAllowed(body []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		AllowedNumbers []string `json:"allowedNumbers"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode allowed numbers: %w", err)
	}
	return wrapped.AllowedNumbers, nil
}
