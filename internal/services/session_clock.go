package services

import (
	"time"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/pkg/utils"
)

// Remaining projects a session that started at start and lasts durationHours
// (base duration plus extensions) onto now. It is pure.
//
// Percentage is the remaining share of the session in [0, 100].
func Remaining(start time.Time, durationHours float64, now time.Time) models.SessionProjection {
	total := utils.HoursToDuration(durationHours)
	remaining := start.Add(total).Sub(now)
	if remaining <= 0 || total <= 0 {
		return models.SessionProjection{Expired: true, RemainingMs: 0, Percentage: 0}
	}

	// round up so a live session never reports 0ms
	remainingMs := int64((remaining + time.Millisecond - 1) / time.Millisecond)
	pct := float64(remaining) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return models.SessionProjection{Expired: false, RemainingMs: remainingMs, Percentage: pct}
}

// ProjectBooking returns the session projection of b, or nil when its session
// never started. Completed and cancelled sessions are always reported as expired.
func ProjectBooking(b *models.Booking, now time.Time) *models.SessionProjection {
	if b.SessionStartTime == nil {
		return nil
	}
	if b.Status.IsTerminal() {
		return &models.SessionProjection{Expired: true}
	}
	p := Remaining(*b.SessionStartTime, b.TotalHours(), now)
	return &p
}
