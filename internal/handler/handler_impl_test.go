package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/handler"
	"github.com/popeskul/chatrelay/internal/middleware"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/service"
	"github.com/popeskul/chatrelay/internal/service/mocks"
)

func withRequestID(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "test-request-id"))
}

func decodeError(t *testing.T, body []byte) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestHandler_EnqueueMessage(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockQueueService)
		expectedStatus int
		expectedBody   func(*testing.T, []byte)
	}{
		{
			name: "success",
			body: `{"destination":"255700","content":"Hello","priority":2}`,
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().
					Enqueue(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, msg *models.QueuedMessage) error {
						assert.Equal(t, "1101", msg.InstanceID)
						assert.Equal(t, "255700", msg.Destination)
						assert.Equal(t, 2, msg.Priority)
						msg.ID = 7
						msg.Type = models.MessageTypeText
						msg.Status = models.MessageStatusPending
						return nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.Message
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, int64(7), resp.Id)
				assert.Equal(t, "pending", resp.Status)
				assert.Equal(t, api.MessageTypeText, resp.Type)
			},
		},
		{
			name: "media payload is passed through",
			body: `{"destination":"255700","type":"media","payload":{"url_file":"https://x/y.png"}}`,
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().
					Enqueue(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, msg *models.QueuedMessage) error {
						assert.Equal(t, models.MessageTypeMedia, msg.Type)
						assert.JSONEq(t, `{"url_file":"https://x/y.png"}`, string(msg.Payload))
						return nil
					})
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   func(*testing.T, []byte) {},
		},
		{
			name:           "malformed body",
			body:           `{"destination":`,
			setupMocks:     func(*mocks.MockQueueService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody: func(t *testing.T, body []byte) {
				assert.Equal(t, "INVALID_REQUEST", decodeError(t, body).Error)
			},
		},
		{
			name: "invalid message",
			body: `{"destination":""}`,
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
					Return(fmt.Errorf("%w: %v", service.ErrInvalidMessage, models.ErrEmptyDestination))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: func(t *testing.T, body []byte) {
				resp := decodeError(t, body)
				assert.Equal(t, "INVALID_MESSAGE", resp.Error)
				assert.Contains(t, resp.Message, "destination is empty")
			},
		},
		{
			name: "unknown instance",
			body: `{"destination":"255700","content":"Hi"}`,
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().Enqueue(gomock.Any(), gomock.Any()).
					Return(fmt.Errorf("failed to enqueue message: %w", repository.ErrNotFound))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody: func(t *testing.T, body []byte) {
				assert.Equal(t, "NOT_FOUND", decodeError(t, body).Error)
			},
		},
		{
			name: "storage error",
			body: `{"destination":"255700","content":"Hi"}`,
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody: func(t *testing.T, body []byte) {
				resp := decodeError(t, body)
				assert.Equal(t, middleware.ErrorCodeInternal, resp.Error)
				assert.Equal(t, "Failed to enqueue message", resp.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			queue := mocks.NewMockQueueService(ctrl)
			tt.setupMocks(queue)

			h := handler.NewHandler(&service.Service{Queue: queue}, "", zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/instances/1101/messages", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			h.EnqueueMessage(w, withRequestID(req), "1101")

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.expectedBody(t, w.Body.Bytes())
		})
	}
}

func TestHandler_ListDeadLetters(t *testing.T) {
	intPtr := func(i int) *int { return &i }
	strPtr := func(s string) *string { return &s }
	statusPtr := func(s api.ListDeadLettersParamsStatus) *api.ListDeadLettersParamsStatus { return &s }

	tests := []struct {
		name           string
		params         api.ListDeadLettersParams
		setupMocks     func(*mocks.MockQueueService)
		expectedStatus int
	}{
		{
			name:   "defaults",
			params: api.ListDeadLettersParams{},
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().ListDeadLettered(gomock.Any(), "", models.MessageStatusDeadLettered, 1, 20).
					Return(&api.MessageListResponse{Messages: []api.Message{}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "explicit paging and instance",
			params: api.ListDeadLettersParams{InstanceId: strPtr("1101"), Page: intPtr(3), Limit: intPtr(50)},
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().ListDeadLettered(gomock.Any(), "1101", models.MessageStatusDeadLettered, 3, 50).
					Return(&api.MessageListResponse{Messages: []api.Message{}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "out of range values fall back to defaults",
			params: api.ListDeadLettersParams{Page: intPtr(0), Limit: intPtr(500)},
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().ListDeadLettered(gomock.Any(), "", models.MessageStatusDeadLettered, 1, 20).
					Return(&api.MessageListResponse{Messages: []api.Message{}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "terminal failures",
			params: api.ListDeadLettersParams{Status: statusPtr(api.ListDeadLettersParamsStatusFailed)},
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().ListDeadLettered(gomock.Any(), "", models.MessageStatusFailed, 1, 20).
					Return(&api.MessageListResponse{Messages: []api.Message{}}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown status",
			params:         api.ListDeadLettersParams{Status: statusPtr("pending")},
			setupMocks:     func(m *mocks.MockQueueService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "storage error",
			params: api.ListDeadLettersParams{},
			setupMocks: func(m *mocks.MockQueueService) {
				m.EXPECT().ListDeadLettered(gomock.Any(), "", models.MessageStatusDeadLettered, 1, 20).Return(nil, errors.New("database error"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			queue := mocks.NewMockQueueService(ctrl)
			tt.setupMocks(queue)

			h := handler.NewHandler(&service.Service{Queue: queue}, "", zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/messages/dead-letters", nil)
			w := httptest.NewRecorder()

			h.ListDeadLetters(w, withRequestID(req), tt.params)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandler_SuspendResume(t *testing.T) {
	next := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name           string
		suspend        bool
		setupMocks     func(*mocks.MockInstanceService)
		expectedStatus int
		expectedBody   func(*testing.T, []byte)
	}{
		{
			name:    "suspend",
			suspend: true,
			setupMocks: func(m *mocks.MockInstanceService) {
				m.EXPECT().Suspend(gomock.Any(), "1101").
					Return(&api.InstanceResponse{Id: "1101", State: "connected", Suspended: true, BackoffLevel: 2, NextEligibleAt: &next}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.InstanceResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.True(t, resp.Suspended)
				assert.Equal(t, 2, resp.BackoffLevel)
				require.NotNil(t, resp.NextEligibleAt)
				assert.True(t, next.Equal(*resp.NextEligibleAt))
			},
		},
		{
			name: "resume",
			setupMocks: func(m *mocks.MockInstanceService) {
				m.EXPECT().Resume(gomock.Any(), "1101").
					Return(&api.InstanceResponse{Id: "1101", State: "connected"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, body []byte) {
				var resp api.InstanceResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.False(t, resp.Suspended)
			},
		},
		{
			name:    "unknown instance",
			suspend: true,
			setupMocks: func(m *mocks.MockInstanceService) {
				m.EXPECT().Suspend(gomock.Any(), "1101").Return(nil, repository.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody: func(t *testing.T, body []byte) {
				assert.Equal(t, "Instance not found", decodeError(t, body).Message)
			},
		},
		{
			name: "storage error",
			setupMocks: func(m *mocks.MockInstanceService) {
				m.EXPECT().Resume(gomock.Any(), "1101").Return(nil, errors.New("database error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody: func(t *testing.T, body []byte) {
				assert.Equal(t, middleware.ErrorCodeInternal, decodeError(t, body).Error)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			instances := mocks.NewMockInstanceService(ctrl)
			tt.setupMocks(instances)

			h := handler.NewHandler(&service.Service{Instance: instances}, "", zap.NewNop())
			w := httptest.NewRecorder()

			if tt.suspend {
				h.SuspendInstance(w, withRequestID(httptest.NewRequest(http.MethodPost, "/instances/1101/suspend", nil)), "1101")
			} else {
				h.ResumeInstance(w, withRequestID(httptest.NewRequest(http.MethodPost, "/instances/1101/resume", nil)), "1101")
			}

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.expectedBody(t, w.Body.Bytes())
		})
	}
}

func TestHandler_ReceiveWebhook(t *testing.T) {
	const payload = `{"typeWebhook":"incomingMessageReceived","idMessage":"M1"}`

	tests := []struct {
		name           string
		secret         string
		authHeader     string
		setupMocks     func(*mocks.MockWebhookService)
		expectedStatus int
		expectedAck    api.WebhookAckStatus
	}{
		{
			name: "accepted without secret",
			setupMocks: func(m *mocks.MockWebhookService) {
				m.EXPECT().Handle(gomock.Any(), []byte(payload)).Return(api.WebhookAckStatusAccepted, nil)
			},
			expectedStatus: http.StatusOK,
			expectedAck:    api.WebhookAckStatusAccepted,
		},
		{
			name:       "duplicate with valid token",
			secret:     "s3cret",
			authHeader: "Bearer s3cret",
			setupMocks: func(m *mocks.MockWebhookService) {
				m.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(api.WebhookAckStatusDuplicate, nil)
			},
			expectedStatus: http.StatusOK,
			expectedAck:    api.WebhookAckStatusDuplicate,
		},
		{
			name: "ignored notification still acknowledged",
			setupMocks: func(m *mocks.MockWebhookService) {
				m.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(api.WebhookAckStatusIgnored, nil)
			},
			expectedStatus: http.StatusOK,
			expectedAck:    api.WebhookAckStatusIgnored,
		},
		{
			name:           "wrong token",
			secret:         "s3cret",
			authHeader:     "Bearer nope",
			setupMocks:     func(*mocks.MockWebhookService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing token",
			secret:         "s3cret",
			setupMocks:     func(*mocks.MockWebhookService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "store unavailable",
			setupMocks: func(m *mocks.MockWebhookService) {
				m.EXPECT().Handle(gomock.Any(), gomock.Any()).Return(api.WebhookAckStatus(""), errors.New("connection refused"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			webhooks := mocks.NewMockWebhookService(ctrl)
			tt.setupMocks(webhooks)

			h := handler.NewHandler(&service.Service{Webhook: webhooks}, tt.secret, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", strings.NewReader(payload))
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			h.ReceiveWebhook(w, withRequestID(req))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedAck != "" {
				var ack api.WebhookAck
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
				assert.Equal(t, tt.expectedAck, ack.Status)
			}
		})
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name           string
		health         *service.HealthStatus
		expectedStatus int
		expectedBody   func(*testing.T, api.HealthResponse)
	}{
		{
			name: "healthy",
			health: &service.HealthStatus{
				Status:           api.Healthy,
				DispatcherStatus: api.HealthResponseDispatcherStatusRunning,
				DatabaseStatus:   api.HealthResponseDatabaseStatusConnected,
				RedisStatus:      api.HealthResponseRedisStatusConnected,
				ActiveWorkers:    3,
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, resp api.HealthResponse) {
				assert.Equal(t, api.Healthy, resp.Status)
				require.NotNil(t, resp.ActiveWorkers)
				assert.Equal(t, 3, *resp.ActiveWorkers)
				require.NotNil(t, resp.RedisStatus)
				assert.Equal(t, api.HealthResponseRedisStatusConnected, *resp.RedisStatus)
			},
		},
		{
			name: "degraded answers 200",
			health: &service.HealthStatus{
				Status:           api.Degraded,
				DispatcherStatus: api.HealthResponseDispatcherStatusStopped,
				DatabaseStatus:   api.HealthResponseDatabaseStatusConnected,
				RedisStatus:      api.HealthResponseRedisStatusDisabled,
			},
			expectedStatus: http.StatusOK,
			expectedBody: func(t *testing.T, resp api.HealthResponse) {
				assert.Equal(t, api.Degraded, resp.Status)
				require.NotNil(t, resp.DispatcherStatus)
				assert.Equal(t, api.HealthResponseDispatcherStatusStopped, *resp.DispatcherStatus)
			},
		},
		{
			name: "unhealthy answers 503",
			health: &service.HealthStatus{
				Status:         api.Unhealthy,
				DatabaseStatus: api.HealthResponseDatabaseStatusDisconnected,
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody: func(t *testing.T, resp api.HealthResponse) {
				assert.Equal(t, api.Unhealthy, resp.Status)
				assert.Nil(t, resp.DispatcherStatus)
				assert.Nil(t, resp.RedisStatus)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			health := mocks.NewMockHealthService(ctrl)
			health.EXPECT().GetHealth().Return(tt.health)

			h := handler.NewHandler(&service.Service{Health: health}, "", zap.NewNop())
			w := httptest.NewRecorder()

			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp api.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			tt.expectedBody(t, resp)
		})
	}
}

func TestHandler_Routing(t *testing.T) {
	ctrl := gomock.NewController(t)
	queue := mocks.NewMockQueueService(ctrl)
	instances := mocks.NewMockInstanceService(ctrl)

	queue.EXPECT().ListDeadLettered(gomock.Any(), "1101", models.MessageStatusFailed, 2, 10).
		Return(&api.MessageListResponse{Messages: []api.Message{}, Pagination: api.Pagination{CurrentPage: 2}}, nil)
	instances.EXPECT().Suspend(gomock.Any(), "1101").Return(&api.InstanceResponse{Id: "1101", Suspended: true}, nil)

	h := handler.NewHandler(&service.Service{Queue: queue, Instance: instances}, "", zap.NewNop())
	server := httptest.NewServer(api.Handler(h))
	defer server.Close()

	resp, err := http.Get(server.URL + "/messages/dead-letters?instance_id=1101&page=2&limit=10&status=failed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Post(server.URL+"/instances/1101/suspend", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(server.URL + "/messages/dead-letters?page=abc")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}
