package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/events"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
	"github.com/popeskul/chatrelay/internal/webhook"
)

type webhookService struct {
	repo      repository.Repository
	queue     QueueService
	replies   ReplyEvaluator
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewWebhookService(
	repo repository.Repository,
	queue QueueService,
	replies ReplyEvaluator,
	publisher events.Publisher,
	logger *zap.Logger,
) WebhookService {
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}

	return &webhookService{
		repo:      repo,
		queue:     queue,
		replies:   replies,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle processes one provider notification. Notifications that cannot be
// used are acknowledged as ignored; only storage failures return an error.
func (s *webhookService) Handle(ctx context.Context, body []byte) (api.WebhookAckStatus, error) {
	n, err := webhook.Parse(body)
	if err != nil {
		s.logger.Warn("Ignoring malformed webhook", zap.Error(err))
		return api.WebhookAckStatusIgnored, nil
	}

	var status api.WebhookAckStatus
	switch n.Kind() {
	case webhook.TypeIncomingMessage:
		status, err = s.handleIncoming(ctx, n)
	case webhook.TypeOutgoingStatus:
		status, err = s.handleReceipt(ctx, n)
	case webhook.TypeStateChanged:
		status, err = s.handleStateChange(ctx, n)
	default:
		s.logger.Debug("Ignoring webhook type", zap.String("type", n.Kind()))
		return api.WebhookAckStatusIgnored, nil
	}

	if errors.Is(err, webhook.ErrMalformed) {
		s.logger.Warn("Ignoring malformed webhook",
			zap.String("type", n.Kind()),
			zap.Error(err))
		return api.WebhookAckStatusIgnored, nil
	}
	return status, err
}

func (s *webhookService) handleIncoming(ctx context.Context, n *webhook.Notification) (api.WebhookAckStatus, error) {
	status := api.WebhookAckStatusAccepted
	var answered *models.InboundEvent

	err := s.repo.InTx(ctx, func(tx repository.Repository) error {
		if _, err := tx.Instance().Get(ctx, n.Instance()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				status = api.WebhookAckStatusIgnored
				return nil
			}
			return err
		}

		event, err := webhook.Ingest(ctx, tx.Inbound(), n, s.now())
		if err != nil {
			return err
		}
		if event == nil {
			status = api.WebhookAckStatusDuplicate
			return nil
		}

		if s.replies == nil {
			return nil
		}
		rule, err := s.replies.Evaluate(ctx, tx, event)
		if err != nil {
			return err
		}
		if rule != nil {
			answered = event
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to process inbound message: %w", err)
	}

	if answered != nil {
		s.replies.Replied(ctx, answered)
	}

	if status == api.WebhookAckStatusIgnored {
		s.logger.Warn("Webhook for unknown instance", zap.String("instanceID", n.Instance()))
	}
	return status, nil
}

func (s *webhookService) handleReceipt(ctx context.Context, n *webhook.Notification) (api.WebhookAckStatus, error) {
	update, ok, err := n.Receipt(s.now())
	if err != nil {
		return "", err
	}
	if !ok {
		return api.WebhookAckStatusIgnored, nil
	}

	err = s.queue.MarkDeliveryStatus(ctx, update.ProviderMessageID, update.Status, update.At)
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrInvalidTransition):
		s.logger.Debug("Receipt for unknown message",
			zap.String("providerMessageID", update.ProviderMessageID),
			zap.String("status", string(update.Status)))
		return api.WebhookAckStatusIgnored, nil
	case err != nil:
		return "", fmt.Errorf("failed to apply delivery receipt: %w", err)
	}
	return api.WebhookAckStatusAccepted, nil
}

func (s *webhookService) handleStateChange(ctx context.Context, n *webhook.Notification) (api.WebhookAckStatus, error) {
	instanceID, state, err := n.StateChange()
	if err != nil {
		return "", err
	}

	err = s.repo.Instance().UpdateState(ctx, instanceID, state)
	if errors.Is(err, repository.ErrNotFound) {
		return api.WebhookAckStatusIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to update instance state: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Kind:       events.KindStateChanged,
		InstanceID: instanceID,
		Reason:     string(state),
		At:         s.now(),
	}); err != nil {
		s.logger.Warn("Failed to publish event", zap.Error(err))
	}

	s.logger.Info("Instance state changed",
		zap.String("instanceID", instanceID),
		zap.String("state", string(state)))
	return api.WebhookAckStatusAccepted, nil
}
