package assignment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/assignment-engine/generic"
)

const (
	// UtilizationWindowDays is the look-ahead of the utilization percentage.
	UtilizationWindowDays = 60

	standardWeeklyHours = 40
)

// utilizationBaseline is two standard months of hours (40h * 4 weeks * 2).
var utilizationBaseline = decimal.NewFromInt(standardWeeklyHours * 4 * 2)

// UtilizationPercentage is the user's booked hours in [today, today+60d]
// against two standard months, as a percentage rounded to 2 decimals.
// Concurrent calls for the same user share one computation, which runs
// detached from the first caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (s *Service) UtilizationPercentage(ctx context.Context, userID string) (float64, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(userID, func() (any, error) {
		return s.utilization(shared, userID)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		s.metrics.UtilizationQuery(res.Shared)
		if res.Err != nil {
			s.log(ctx, "UtilizationPercentage", "user_id", userID).Warn("utilization failed", "error", res.Err)
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

func (s *Service) utilization(ctx context.Context, userID string) (float64, error) {
	from := generic.DateOf(s.now())
	to := from.AddDays(UtilizationWindowDays)

	total, err := s.store.TotalAssignedHours(ctx, userID, generic.DateRange{From: &from, To: &to})
	if err != nil {
		return 0, fmt.Errorf("total assigned hours: %w", err)
	}
	return Percentage(total), nil
}

// Percentage converts booked hours to the utilization percentage.
func Percentage(hours decimal.Decimal) float64 {
	return hours.Div(utilizationBaseline).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
