package alerts

import (
	"context"
	"errors"

	"github.com/invio-erp/invio/internal/shared"
)

// ErrInvalidTransition indicates an alert status change that is not allowed.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// Service coordinates alert listing and lifecycle transitions.
type Service struct {
	repo Repository
}

// NewService constructs an alert service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenantID int64, req ListAlertsRequest) ([]PriceAlert, shared.Pagination, error) {
	alerts, total, err := s.repo.List(ctx, tenantID, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return alerts, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// Acknowledge marks an open alert as seen.
func (s *Service) Acknowledge(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusAcknowledged, StatusOpen)
}

// Resolve closes an alert from either open or acknowledged state.
func (s *Service) Resolve(ctx context.Context, id int64) error {
	return s.transition(ctx, id, StatusResolved, StatusOpen, StatusAcknowledged)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, from ...Status) error {
	alert, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, f := range from {
		if alert.Status == f {
			return s.repo.UpdateStatus(ctx, id, to)
		}
	}
	return ErrInvalidTransition
}
