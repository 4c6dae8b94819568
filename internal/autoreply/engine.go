// Package autoreply answers inbound messages with the first matching rule.
//
// Rule precedence is fixed: among enabled rules that match the text and have
// not reached their daily cap, the lowest priority value wins and ties go to
// the newest rule (highest id). Selection is a pure function of the rule set,
// the text and the day, so repeated evaluation is deterministic.
package autoreply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/popeskul/chatrelay/internal/config"
	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

func normalize(s string, caseSensitive bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if !caseSensitive {
		s = cases.Fold().String(s)
	}
	return s
}

// Matches reports whether text triggers the rule. Exact rules compare the
// whole text, others look for the trigger anywhere in it, so "hi" matches
// "history".
func Matches(rule *models.AutoReplyRule, text string) bool {
	trigger := normalize(rule.TriggerText, rule.CaseSensitive)
	if trigger == "" {
		return false
	}

	t := normalize(text, rule.CaseSensitive)
	if rule.ExactMatch {
		return t == trigger
	}
	return strings.Contains(t, trigger)
}

func precedes(a, b *models.AutoReplyRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID > b.ID
}

// Select picks the rule that answers text on the day starting at dayStart,
// or nil when none applies.
func Select(rules []*models.AutoReplyRule, text string, dayStart time.Time) *models.AutoReplyRule {
	var best *models.AutoReplyRule
	for _, r := range rules {
		if !r.Enabled || r.CapReached(dayStart) || !Matches(r, text) {
			continue
		}
		if best == nil || precedes(r, best) {
			best = r
		}
	}
	return best
}

// DayStart returns midnight of the day containing t in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Engine evaluates inbound events and enqueues replies.
type Engine struct {
	enabled  bool
	priority int
	loc      *time.Location
	cooldown Cooldown
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(cfg config.AutoReplyConfig, cooldown Cooldown, logger *zap.Logger) *Engine {
	if cooldown == nil {
		cooldown = NoCooldown{}
	}
	return &Engine{
		enabled:  cfg.Enabled,
		priority: cfg.ReplyPriority,
		loc:      cfg.Location(),
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Evaluate selects a rule for the event, records its use and enqueues the
// reply through repo. It returns the applied rule, or nil when the event is
// answered by silence. The sender cooldown is only checked here; callers
// open it with Replied once repo's writes are committed.
func (e *Engine) Evaluate(ctx context.Context, repo repository.Repository, event *models.InboundEvent) (*models.AutoReplyRule, error) {
	if !e.enabled {
		return nil, nil
	}

	rules, err := repo.Rule().ListEnabled(ctx, event.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	now := e.now()
	dayStart := DayStart(now, e.loc)

	rule := Select(rules, event.Text, dayStart)
	if rule == nil {
		return nil, nil
	}

	active, err := e.cooldown.Active(ctx, event.InstanceID, event.SenderID)
	if err != nil {
		e.logger.Warn("Cooldown check failed, replying anyway",
			zap.String("instanceID", event.InstanceID),
			zap.Error(err))
	} else if active {
		e.logger.Debug("Sender in cooldown",
			zap.String("instanceID", event.InstanceID),
			zap.String("senderID", event.SenderID))
		return nil, nil
	}

	// A concurrent evaluation may take the last use of the day; fall back to
	// the next candidate in that case.
	for rule != nil {
		recorded, err := repo.Rule().RecordUse(ctx, rule.ID, dayStart, now)
		if err != nil {
			return nil, fmt.Errorf("failed to record rule use: %w", err)
		}
		if recorded {
			break
		}
		rules = without(rules, rule.ID)
		rule = Select(rules, event.Text, dayStart)
	}
	if rule == nil {
		return nil, nil
	}

	reply := &models.QueuedMessage{
		InstanceID:  event.InstanceID,
		Destination: event.SenderID,
		Type:        models.MessageTypeText,
		Content:     rule.ResponseText,
		Priority:    e.priority,
	}
	if err := reply.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reply for rule %d: %w", rule.ID, err)
	}
	if err := repo.Message().Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to enqueue reply: %w", err)
	}

	e.logger.Info("Auto-reply enqueued",
		zap.String("instanceID", event.InstanceID),
		zap.Int64("ruleID", rule.ID),
		zap.Int64("messageID", reply.ID))

	return rule, nil
}

// Replied opens the sender cooldown after a reply to event was committed.
// A failure is logged; the next message from the sender may get a reply.
func (e *Engine) Replied(ctx context.Context, event *models.InboundEvent) {
	if err := e.cooldown.Start(ctx, event.InstanceID, event.SenderID); err != nil {
		e.logger.Warn("Failed to start sender cooldown",
			zap.String("instanceID", event.InstanceID),
			zap.String("senderID", event.SenderID),
			zap.Error(err))
	}
}

func without(rules []*models.AutoReplyRule, id int64) []*models.AutoReplyRule {
	out := make([]*models.AutoReplyRule, 0, len(rules))
	for _, r := range rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
