package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/api"
	"github.com/popeskul/chatrelay/internal/repository"
)

type instanceService struct {
	repo    repository.Repository
	limiter RateLimiter
	logger  *zap.Logger
}

func NewInstanceService(repo repository.Repository, limiter RateLimiter, logger *zap.Logger) InstanceService {
	return &instanceService{repo: repo, limiter: limiter, logger: logger}
}

// Suspend stops all sends of the instance until it is resumed.
func (s *instanceService) Suspend(ctx context.Context, id string) (*api.InstanceResponse, error) {
	if err := s.limiter.Suspend(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("Instance suspended", zap.String("instanceID", id))
	return s.describe(ctx, id)
}

func (s *instanceService) Resume(ctx context.Context, id string) (*api.InstanceResponse, error) {
	if err := s.limiter.Resume(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("Instance resumed", zap.String("instanceID", id))
	return s.describe(ctx, id)
}

func (s *instanceService) describe(ctx context.Context, id string) (*api.InstanceResponse, error) {
	inst, err := s.repo.Instance().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	st, err := s.limiter.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &api.InstanceResponse{
		Id:           inst.ID,
		State:        string(inst.State),
		Suspended:    st.Suspended,
		BackoffLevel: st.Level,
	}
	if !st.NextEligibleAt.IsZero() {
		next := st.NextEligibleAt
		resp.NextEligibleAt = &next
	}
	return resp, nil
}
