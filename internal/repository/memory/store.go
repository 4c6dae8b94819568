// Package memory provides an in-process implementation of the repository
// interfaces. It backs single-node development mode and unit tests; every
// operation holds one mutex, which gives the same atomic claim and
// transition guarantees as the Postgres implementation.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/popeskul/chatrelay/internal/models"
	"github.com/popeskul/chatrelay/internal/repository"
)

type inboundKey struct {
	instanceID        string
	providerMessageID string
}

// Store keeps all tables in maps guarded by a single mutex.
type Store struct {
	mu        sync.Mutex
	instances map[string]*models.Instance
	messages  map[int64]*models.QueuedMessage
	inbound   map[inboundKey]*models.InboundEvent
	rules     map[int64]*models.AutoReplyRule
	nextMsgID int64
	nextEvtID int64
	nextRule  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		instances: make(map[string]*models.Instance),
		messages:  make(map[int64]*models.QueuedMessage),
		inbound:   make(map[inboundKey]*models.InboundEvent),
		rules:     make(map[int64]*models.AutoReplyRule),
	}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) Ping() error { return nil }

// InTx runs fn directly; the store has no rollback.
func (s *Store) InTx(_ context.Context, fn func(tx repository.Repository) error) error {
	return fn(s)
}

func (s *Store) Instance() repository.InstanceRepository { return instanceRepo{s} }
func (s *Store) Message() repository.MessageRepository   { return messageRepo{s} }
func (s *Store) Inbound() repository.InboundRepository   { return inboundRepo{s} }
func (s *Store) Rule() repository.RuleRepository         { return ruleRepo{s} }

// PutInstance inserts or replaces an instance.
func (s *Store) PutInstance(inst *models.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *inst
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.instances[c.ID] = &c
}

// AddRule inserts a rule and assigns its id.
func (s *Store) AddRule(rule *models.AutoReplyRule) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRule++
	c := *rule
	c.ID = s.nextRule
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.rules[c.ID] = &c
	rule.ID = c.ID
	return c.ID
}

// RuleByID returns a copy of a rule.
func (s *Store) RuleByID(id int64) (*models.AutoReplyRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, false
	}
	c := *r
	return &c, true
}

// Messages returns copies of all messages ordered by id.
func (s *Store) Messages() []*models.QueuedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.QueuedMessage, 0, len(s.messages))
	for _, m := range s.messages {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InboundCount returns the number of recorded inbound events.
func (s *Store) InboundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound)
}

type instanceRepo struct{ s *Store }

func (r instanceRepo) Get(_ context.Context, id string) (*models.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inst, ok := r.s.instances[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *inst
	return &c, nil
}

func (r instanceRepo) ListEnabled(_ context.Context) ([]*models.Instance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Instance
	for _, inst := range r.s.instances {
		if inst.Enabled {
			c := *inst
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r instanceRepo) UpdateState(_ context.Context, id string, state models.InstanceState) error {
	return r.update(id, func(inst *models.Instance) { inst.State = state })
}

func (r instanceRepo) UpdateBackoff(_ context.Context, id string, level int, nextEligibleAt *time.Time) error {
	return r.update(id, func(inst *models.Instance) {
		inst.BackoffLevel = level
		inst.NextEligibleAt = sql.NullTime{}
		if nextEligibleAt != nil {
			inst.NextEligibleAt = sql.NullTime{Time: *nextEligibleAt, Valid: true}
		}
	})
}

func (r instanceRepo) SetSuspended(_ context.Context, id string, suspended bool) error {
	return r.update(id, func(inst *models.Instance) { inst.Suspended = suspended })
}

func (r instanceRepo) update(id string, fn func(*models.Instance)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inst, ok := r.s.instances[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(inst)
	inst.UpdatedAt = time.Now()
	return nil
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, msg *models.QueuedMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.instances[msg.InstanceID]; !ok {
		return fmt.Errorf("failed to create message: instance %q: %w", msg.InstanceID, repository.ErrNotFound)
	}

	now := time.Now()
	r.s.nextMsgID++
	msg.ID = r.s.nextMsgID
	msg.Status = models.MessageStatusPending
	if msg.ScheduledAt.IsZero() {
		msg.ScheduledAt = now
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	c := *msg
	r.s.messages[c.ID] = &c
	return nil
}

func (r messageRepo) Get(_ context.Context, id int64) (*models.QueuedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *m
	return &c, nil
}

func claimLess(a, b *models.QueuedMessage) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r messageRepo) ClaimNext(_ context.Context, instanceID, workerID string, now time.Time) (*models.QueuedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var next *models.QueuedMessage
	for _, m := range r.s.messages {
		if m.InstanceID != instanceID || m.Status != models.MessageStatusPending || m.ScheduledAt.After(now) {
			continue
		}
		if next == nil || claimLess(m, next) {
			next = m
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = models.MessageStatusInFlight
	next.ClaimedAt = sql.NullTime{Time: now, Valid: true}
	next.ClaimedBy = sql.NullString{String: workerID, Valid: true}
	next.UpdatedAt = now

	c := *next
	return &c, nil
}

func (r messageRepo) transition(id int64, from []models.MessageStatus, fn func(*models.QueuedMessage)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, st := range from {
		if m.Status == st {
			fn(m)
			return nil
		}
	}
	return repository.ErrInvalidTransition
}

func clearClaim(m *models.QueuedMessage) {
	m.ClaimedAt = sql.NullTime{}
	m.ClaimedBy = sql.NullString{}
}

func (r messageRepo) MarkSent(_ context.Context, id int64, providerMessageID string, now time.Time) error {
	return r.transition(id, []models.MessageStatus{models.MessageStatusInFlight}, func(m *models.QueuedMessage) {
		m.Status = models.MessageStatusSent
		m.ProviderMessageID = sql.NullString{String: providerMessageID, Valid: providerMessageID != ""}
		m.SentAt = sql.NullTime{Time: now, Valid: true}
		m.UpdatedAt = now
		clearClaim(m)
	})
}

func (r messageRepo) MarkFailed(_ context.Context, id int64, p repository.FailParams) (models.MessageStatus, error) {
	var status models.MessageStatus
	err := r.transition(id, []models.MessageStatus{models.MessageStatusInFlight}, func(m *models.QueuedMessage) {
		m.AttemptCount++
		m.LastError = sql.NullString{String: p.Error, Valid: true}
		switch {
		case m.AttemptCount > p.MaxRetries:
			m.Status = models.MessageStatusDeadLettered
		case !p.Retryable:
			m.Status = models.MessageStatusFailed
		default:
			m.Status = models.MessageStatusPending
			m.ScheduledAt = p.RetryAt
		}
		m.UpdatedAt = p.Now
		clearClaim(m)
		status = m.Status
	})
	return status, err
}

func (r messageRepo) DeadLetter(_ context.Context, id int64, reason string, now time.Time) error {
	from := []models.MessageStatus{models.MessageStatusPending, models.MessageStatusInFlight}
	return r.transition(id, from, func(m *models.QueuedMessage) {
		m.Status = models.MessageStatusDeadLettered
		m.LastError = sql.NullString{String: reason, Valid: true}
		m.UpdatedAt = now
		clearClaim(m)
	})
}

func (r messageRepo) Release(_ context.Context, id int64, now time.Time) error {
	return r.transition(id, []models.MessageStatus{models.MessageStatusInFlight}, func(m *models.QueuedMessage) {
		m.Status = models.MessageStatusPending
		m.UpdatedAt = now
		clearClaim(m)
	})
}

func (r messageRepo) RequeueStuck(_ context.Context, claimedBefore, now time.Time) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var ids []int64
	for _, m := range r.s.messages {
		if m.Status == models.MessageStatusInFlight && m.ClaimedAt.Valid && m.ClaimedAt.Time.Before(claimedBefore) {
			m.Status = models.MessageStatusPending
			m.UpdatedAt = now
			clearClaim(m)
			ids = append(ids, m.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r messageRepo) filter(f repository.ListFilter) []*models.QueuedMessage {
	var out []*models.QueuedMessage
	for _, m := range r.s.messages {
		if m.Status != f.Status {
			continue
		}
		if f.InstanceID != "" && m.InstanceID != f.InstanceID {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r messageRepo) ListByStatus(_ context.Context, f repository.ListFilter) ([]*models.QueuedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.filter(f)
	if f.Offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}
	return all[f.Offset:end], nil
}

func (r messageRepo) CountByStatus(_ context.Context, f repository.ListFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.filter(f))), nil
}

func (r messageRepo) FindByProviderID(_ context.Context, providerMessageID string) (*models.QueuedMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.messages {
		if m.ProviderMessageID.Valid && m.ProviderMessageID.String == providerMessageID {
			c := *m
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r messageRepo) MarkDeliveryStatus(_ context.Context, id int64, status models.DeliveryStatus, at time.Time) error {
	switch status {
	case models.DeliveryStatusDelivered, models.DeliveryStatusRead:
	default:
		return fmt.Errorf("unknown delivery status %q", status)
	}

	return r.transition(id, []models.MessageStatus{models.MessageStatusSent}, func(m *models.QueuedMessage) {
		if !m.DeliveredAt.Valid {
			m.DeliveredAt = sql.NullTime{Time: at, Valid: true}
		}
		if status == models.DeliveryStatusRead && !m.ReadAt.Valid {
			m.ReadAt = sql.NullTime{Time: at, Valid: true}
		}
		m.UpdatedAt = at
	})
}

type inboundRepo struct{ s *Store }

func (r inboundRepo) Record(_ context.Context, event *models.InboundEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := inboundKey{instanceID: event.InstanceID, providerMessageID: event.ProviderMessageID}
	if _, ok := r.s.inbound[key]; ok {
		return false, nil
	}

	r.s.nextEvtID++
	event.ID = r.s.nextEvtID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	c := *event
	r.s.inbound[key] = &c
	return true, nil
}

type ruleRepo struct{ s *Store }

func (r ruleRepo) ListEnabled(_ context.Context, instanceID string) ([]*models.AutoReplyRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.AutoReplyRule
	for _, rule := range r.s.rules {
		if !rule.Enabled {
			continue
		}
		if rule.InstanceID.Valid && rule.InstanceID.String != instanceID {
			continue
		}
		c := *rule
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r ruleRepo) RecordUse(_ context.Context, id int64, dayStart, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[id]
	if !ok || !rule.Enabled {
		return false, nil
	}
	if rule.CapReached(dayStart) {
		return false, nil
	}

	rule.CurrentUsesToday = rule.UsesOn(dayStart) + 1
	rule.LastUsedAt = sql.NullTime{Time: now, Valid: true}
	rule.UpdatedAt = now
	return true, nil
}
