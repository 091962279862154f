package cache

import (
	"context"
	"time"

	"fakturin/backend/internal/domain"
)

const dashboardPrefix = "dashboard:"

// DashboardCache holds computed dashboard summaries keyed by date window.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardSummary, ttl time.Duration) error
	// Invalidate drops every cached window. Called after invoice writes.
	Invalidate(ctx context.Context) error
}

func DashboardKey(startDate string, endDate string) string {
	return dashboardPrefix + startDate + ":" + endDate
}

type NoopDashboardCache struct{}

func (NoopDashboardCache) Get(_ context.Context, _ string) (*domain.DashboardSummary, bool, error) {
	return nil, false, nil
}

func (NoopDashboardCache) Set(_ context.Context, _ string, _ *domain.DashboardSummary, _ time.Duration) error {
	return nil
}

func (NoopDashboardCache) Invalidate(_ context.Context) error {
	return nil
}
