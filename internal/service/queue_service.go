package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

var ErrInvalidMessage = errors.New("invalid message")

type queueService struct {
	cfg       config.QueueConfig
	repo      repository.Repository
	cache     ProviderIDCache
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewQueueService(
	cfg config.QueueConfig,
	repo repository.Repository,
	cache ProviderIDCache,
	publisher events.Publisher,
	logger *zap.Logger,
) QueueService {
	if cache == nil {
		cache = noProviderCache{}
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}

	return &queueService{
		cfg:       cfg,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue validates msg and stores it as pending.
func (s *queueService) Enqueue(ctx context.Context, msg *models.QueuedMessage) error {
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	msg.Destination = strings.TrimSpace(msg.Destination)
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if err := s.repo.Message().Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.logger.Debug("Message enqueued",
		zap.Int64("messageID", msg.ID),
		zap.String("instanceID", msg.InstanceID),
		zap.Int("priority", msg.Priority))
	return nil
}

func (s *queueService) Get(ctx context.Context, id int64) (*models.QueuedMessage, error) {
	return s.repo.Message().Get(ctx, id)
}

// ClaimNext returns nil, nil when the instance has nothing eligible.
func (s *queueService) ClaimNext(ctx context.Context, instanceID, workerID string) (*models.QueuedMessage, error) {
	msg, err := s.repo.Message().ClaimNext(ctx, instanceID, workerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to claim message: %w", err)
	}
	return msg, nil
}

func (s *queueService) MarkSent(ctx context.Context, msg *models.QueuedMessage, providerMessageID string) error {
	if err := s.repo.Message().MarkSent(ctx, msg.ID, providerMessageID, s.now()); err != nil {
		return fmt.Errorf("failed to mark message %d sent: %w", msg.ID, err)
	}

	if err := s.cache.Put(ctx, providerMessageID, msg.ID); err != nil {
		s.logger.Warn("Failed to cache provider message ID",
			zap.String("providerMessageID", providerMessageID),
			zap.Error(err))
	}

	s.logger.Info("Message sent",
		zap.Int64("messageID", msg.ID),
		zap.String("instanceID", msg.InstanceID),
		zap.String("providerMessageID", providerMessageID))
	return nil
}

// MarkFailed records a failed attempt and returns the resulting status.
func (s *queueService) MarkFailed(ctx context.Context, msg *models.QueuedMessage, reason string, retryable bool, retryAt time.Time) (models.MessageStatus, error) {
	status, err := s.repo.Message().MarkFailed(ctx, msg.ID, repository.FailParams{
		Error:      reason,
		Retryable:  retryable,
		RetryAt:    retryAt,
		MaxRetries: s.cfg.MaxRetries,
		Now:        s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to record failure of message %d: %w", msg.ID, err)
	}

	switch status {
	case models.MessageStatusDeadLettered:
		s.publish(ctx, events.KindDeadLettered, msg, reason)
	case models.MessageStatusFailed:
		s.publish(ctx, events.KindFailed, msg, reason)
	}

	s.logger.Warn("Send attempt failed",
		zap.Int64("messageID", msg.ID),
		zap.String("instanceID", msg.InstanceID),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return status, nil
}

func (s *queueService) DeadLetter(ctx context.Context, msg *models.QueuedMessage, reason string) error {
	if err := s.repo.Message().DeadLetter(ctx, msg.ID, reason, s.now()); err != nil {
		return fmt.Errorf("failed to dead-letter message %d: %w", msg.ID, err)
	}

	s.publish(ctx, events.KindDeadLettered, msg, reason)
	s.logger.Warn("Message dead-lettered",
		zap.Int64("messageID", msg.ID),
		zap.String("instanceID", msg.InstanceID),
		zap.String("reason", reason))
	return nil
}

// Release returns a claimed message to pending without counting an attempt.
func (s *queueService) Release(ctx context.Context, id int64) error {
	if err := s.repo.Message().Release(ctx, id, s.now()); err != nil {
		return fmt.Errorf("failed to release message %d: %w", id, err)
	}
	return nil
}

// RecoverStuck requeues messages whose claim is older than the claim timeout.
func (s *queueService) RecoverStuck(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.repo.Message().RequeueStuck(ctx, now.Add(-s.cfg.ClaimTimeoutDuration()), now)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck messages: %w", err)
	}

	if len(ids) > 0 {
		s.logger.Warn("Requeued stuck messages", zap.Int64s("messageIDs", ids))
	}
	return len(ids), nil
}

// ListDeadLettered pages through messages that will not be sent: dead-lettered
// ones by default, or terminal failures when status is failed.
func (s *queueService) ListDeadLettered(ctx context.Context, instanceID string, status models.MessageStatus, page, limit int) (*api.MessageListResponse, error) {
	switch status {
	case "":
		status = models.MessageStatusDeadLettered
	case models.MessageStatusDeadLettered, models.MessageStatusFailed:
	default:
		return nil, fmt.Errorf("status %q is not a terminal failure", status)
	}

	filter := repository.ListFilter{
		InstanceID: instanceID,
		Status:     status,
		Offset:     (page - 1) * limit,
		Limit:      limit,
	}

	messages, err := s.repo.Message().ListByStatus(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s messages: %w", status, err)
	}

	totalCount, err := s.repo.Message().CountByStatus(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	totalPages := int(totalCount) / limit
	if int(totalCount)%limit > 0 {
		totalPages++
	}

	responses := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		responses = append(responses, ToAPIMessage(msg))
	}

	return &api.MessageListResponse{
		Messages: responses,
		Pagination: api.Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   int(totalCount),
			ItemsPerPage: limit,
		},
	}, nil
}

// MarkDeliveryStatus applies a delivery receipt to the sent message with the
// given provider id.
func (s *queueService) MarkDeliveryStatus(ctx context.Context, providerMessageID string, status models.DeliveryStatus, at time.Time) error {
	id, ok, err := s.cache.Get(ctx, providerMessageID)
	if err != nil {
		s.logger.Warn("Provider message ID cache lookup failed",
			zap.String("providerMessageID", providerMessageID),
			zap.Error(err))
	}

	if !ok {
		msg, err := s.repo.Message().FindByProviderID(ctx, providerMessageID)
		if err != nil {
			return err
		}
		id = msg.ID
	}

	return s.repo.Message().MarkDeliveryStatus(ctx, id, status, at)
}

func (s *queueService) publish(ctx context.Context, kind events.Kind, msg *models.QueuedMessage, reason string) {
	err := s.publisher.Publish(ctx, events.Event{
		Kind:        kind,
		InstanceID:  msg.InstanceID,
		MessageID:   msg.ID,
		Destination: msg.Destination,
		Reason:      reason,
		At:          s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("kind", string(kind)),
			zap.Int64("messageID", msg.ID),
			zap.Error(err))
	}
}

// ToAPIMessage converts a queued message into its API representation.
func ToAPIMessage(msg *models.QueuedMessage) api.Message {
	m := api.Message{
		Id:           msg.ID,
		InstanceId:   msg.InstanceID,
		Destination:  msg.Destination,
		Type:         api.MessageType(msg.Type),
		Priority:     msg.Priority,
		Status:       string(msg.Status),
		AttemptCount: msg.AttemptCount,
		ScheduledAt:  msg.ScheduledAt,
		CreatedAt:    msg.CreatedAt,
		UpdatedAt:    msg.UpdatedAt,
	}

	if msg.Content != "" {
		content := msg.Content
		m.Content = &content
	}
	if msg.LastError.Valid {
		m.LastError = &msg.LastError.String
	}
	if msg.ProviderMessageID.Valid {
		m.ProviderMessageId = &msg.ProviderMessageID.String
	}
	return m
}
