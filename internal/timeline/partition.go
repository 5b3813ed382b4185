// Package timeline splits a product's lifetime into validity intervals during
// which its indexed attributes do not change.
package timeline

import (
	"errors"
	"slices"
	"time"

	"github.com/baker-beach/market-index/internal/domain"
)

// ErrInvalidSchedule is returned when the indexing start cannot be used.
var ErrInvalidSchedule = errors.New("invalid indexing schedule")

// Partition returns the contiguous, ascending intervals covering
// [start, horizon). Every price start strictly after start and before the
// horizon opens a new interval. Identical starts collapse into one breakpoint.
// No interval is returned when start is not before the horizon.
func Partition(start time.Time, prices []domain.Price, horizon time.Time) ([]domain.Interval, error) {
	if start.IsZero() || horizon.IsZero() {
		return nil, ErrInvalidSchedule
	}
	if !start.Before(horizon) {
		return nil, nil
	}

	points := make([]time.Time, 0, len(prices)+2)
	points = append(points, start, horizon)
	for _, p := range prices {
		if p.Start == nil {
			continue
		}
		if p.Start.After(start) && p.Start.Before(horizon) {
			points = append(points, *p.Start)
		}
	}

	slices.SortFunc(points, func(a, b time.Time) int { return a.Compare(b) })
	points = slices.CompactFunc(points, func(a, b time.Time) bool { return a.Equal(b) })

	intervals := make([]domain.Interval, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		intervals = append(intervals, domain.Interval{From: points[i], To: points[i+1]})
	}
	return intervals, nil
}
