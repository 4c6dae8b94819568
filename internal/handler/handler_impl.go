// Package handler provides HTTP request handlers for the application.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/middleware"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/service"
)

const maxWebhookBody = 1 << 20

const (
	errorCodeInvalidRequest   = "INVALID_REQUEST"
	errorCodeInvalidMessage   = "INVALID_MESSAGE"
	errorCodeNotFound         = "NOT_FOUND"
	errorCodeUnauthorized     = "UNAUTHORIZED"
	errorCodeStoreUnavailable = "STORE_UNAVAILABLE"
)

const (
	errorMessageInvalidBody          = "Request body is not valid JSON"
	errorMessageInstanceNotFound     = "Instance not found"
	errorMessageUnauthorized         = "Invalid webhook token"
	errorMessageFailedToEnqueue      = "Failed to enqueue message"
	errorMessageFailedToRetrieve     = "Failed to retrieve dead-lettered messages"
	errorMessageFailedToUpdate       = "Failed to update instance"
	errorMessageFailedToStoreWebhook = "Failed to store notification"
	errorMessageFailedToReadWebhook  = "Failed to read notification"
	errorMessageInvalidStatus        = "status must be dead_lettered or failed"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type Handler struct {
	service       *service.Service
	webhookSecret string
	logger        *zap.Logger
}

// NewHandler creates a new handler instance that implements api.ServerInterface.
// An empty webhookSecret disables webhook authentication.
func NewHandler(service *service.Service, webhookSecret string, logger *zap.Logger) api.ServerInterface {
	return &Handler{
		service:       service,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// EnqueueMessage implements api.ServerInterface.
func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request, instanceId string) {
	var req api.EnqueueMessageRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, errorMessageInvalidBody)
		return
	}

	msg := &models.QueuedMessage{
		InstanceID:  instanceId,
		Destination: req.Destination,
	}
	if req.Type != nil {
		msg.Type = models.MessageType(*req.Type)
	}
	if req.Content != nil {
		msg.Content = *req.Content
	}
	if req.Priority != nil {
		msg.Priority = *req.Priority
	}
	if req.ScheduledAt != nil {
		msg.ScheduledAt = *req.ScheduledAt
	}
	if req.Payload != nil {
		raw, err := json.Marshal(*req.Payload)
		if err != nil {
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, errorMessageInvalidBody)
			return
		}
		msg.Payload = types.JSONText(raw)
	}

	if err := h.service.Queue.Enqueue(r.Context(), msg); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMessage):
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidMessage, err.Error())
		case errors.Is(err, repository.ErrNotFound):
			h.sendError(w, r, http.StatusNotFound, errorCodeNotFound, errorMessageInstanceNotFound)
		default:
			h.logger.Error("Failed to enqueue message",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("instanceID", instanceId),
				zap.Error(err))
			h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToEnqueue)
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, service.ToAPIMessage(msg))
}

// ListDeadLetters implements api.ServerInterface.
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request, params api.ListDeadLettersParams) {
	page := defaultPage
	limit := defaultLimit

	if params.Page != nil && *params.Page >= 1 {
		page = *params.Page
	}

	if params.Limit != nil && *params.Limit >= 1 && *params.Limit <= maxLimit {
		limit = *params.Limit
	}

	var instanceID string
	if params.InstanceId != nil {
		instanceID = *params.InstanceId
	}

	status := models.MessageStatusDeadLettered
	if params.Status != nil {
		switch *params.Status {
		case api.ListDeadLettersParamsStatusDeadLettered:
		case api.ListDeadLettersParamsStatusFailed:
			status = models.MessageStatusFailed
		default:
			h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, errorMessageInvalidStatus)
			return
		}
	}

	result, err := h.service.Queue.ListDeadLettered(r.Context(), instanceID, status, page, limit)
	if err != nil {
		h.logger.Error("Failed to list dead-lettered messages",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRetrieve)
		return
	}

	render.JSON(w, r, result)
}

// SuspendInstance implements api.ServerInterface.
func (h *Handler) SuspendInstance(w http.ResponseWriter, r *http.Request, instanceId string) {
	h.renderInstance(w, r, instanceId, h.service.Instance.Suspend)
}

// ResumeInstance implements api.ServerInterface.
func (h *Handler) ResumeInstance(w http.ResponseWriter, r *http.Request, instanceId string) {
	h.renderInstance(w, r, instanceId, h.service.Instance.Resume)
}

func (h *Handler) renderInstance(
	w http.ResponseWriter,
	r *http.Request,
	instanceID string,
	op func(ctx context.Context, id string) (*api.InstanceResponse, error),
) {
	resp, err := op(r.Context(), instanceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, r, http.StatusNotFound, errorCodeNotFound, errorMessageInstanceNotFound)
			return
		}
		h.logger.Error("Failed to update instance",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("instanceID", instanceID),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToUpdate)
		return
	}

	render.JSON(w, r, resp)
}

// ReceiveWebhook implements api.ServerInterface. Every notification the
// store accepted, skipped or already knew is acknowledged with 200 so the
// provider does not redeliver it.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.sendError(w, r, http.StatusUnauthorized, errorCodeUnauthorized, errorMessageUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, errorMessageFailedToReadWebhook)
		return
	}

	status, err := h.service.Webhook.Handle(r.Context(), body)
	if err != nil {
		h.logger.Error("Failed to handle webhook",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.sendError(w, r, http.StatusServiceUnavailable, errorCodeStoreUnavailable, errorMessageFailedToStoreWebhook)
		return
	}

	render.JSON(w, r, api.WebhookAck{Status: status})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.webhookSecret == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookSecret)) == 1
}

// HealthCheck implements api.ServerInterface.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health.GetHealth()

	response := api.HealthResponse{
		Status:    health.Status,
		Timestamp: time.Now(),
	}

	if health.DispatcherStatus != "" {
		status := health.DispatcherStatus
		response.DispatcherStatus = &status
		workers := health.ActiveWorkers
		response.ActiveWorkers = &workers
	}

	if health.DatabaseStatus != "" {
		status := health.DatabaseStatus
		response.DatabaseStatus = &status
	}

	if health.RedisStatus != "" {
		status := health.RedisStatus
		response.RedisStatus = &status
	}

	// Degraded still answers 200 so the instance stays in rotation.
	if health.Status == api.Unhealthy {
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, response)
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, api.ErrorResponse{
		Error:   errorCode,
		Message: message,
		Timestamp: func() *time.Time {
			t := time.Now()
			return &t
		}(),
	})
}
