package order

import (
	"context"

	"github.com/Additional-Code/canteen/internal/ledger"
)

// TodayStats summarises today's orders.
func (s *Service) TodayStats(ctx context.Context) ledger.Stats {
	return s.ledger.TodayStats()
}

// Hourly returns today's orders bucketed per hour.
func (s *Service) Hourly(ctx context.Context) []ledger.HourCount {
	hours := s.ledger.HourlyDistribution()
	out := make([]ledger.HourCount, len(hours))
	for h, c := range hours {
		out[h] = ledger.HourCount{Hour: h, Count: c}
	}
	return out
}

// Weekly returns the trailing seven days, oldest first.
func (s *Service) Weekly(ctx context.Context) []ledger.DayStat {
	return s.ledger.WeeklyDistribution()
}

// TopCustomers ranks users by order count.
func (s *Service) TopCustomers(ctx context.Context, n int) []ledger.CustomerCount {
	return s.ledger.TopCustomers(n)
}

// PeakHours returns today's busiest hours.
func (s *Service) PeakHours(ctx context.Context, n int) []ledger.HourCount {
	return s.ledger.PeakHours(n)
}

// MealTypes counts orders per meal type.
func (s *Service) MealTypes(ctx context.Context) []ledger.MealCount {
	return s.ledger.MealTypeBreakdown()
}
