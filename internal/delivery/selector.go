// Package delivery implements the scheduled-tip sweep: pure due-schedule
// selection and multi-channel dispatch.
package delivery

import (
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// DueWindow is how long after a delivery a schedule stays ineligible.
const DueWindow = 24 * time.Hour

// SweepOptions controls one sweep run.
type SweepOptions struct {
	// SendToAll selects every active schedule regardless of preferred time.
	SendToAll bool
	// Limit caps the number of candidates in SendToAll mode; zero means no cap.
	Limit int
	// Force skips the not-sent-recently filter.
	Force bool
}

// SelectDue returns the schedules eligible for delivery at now. In targeted
// mode (default) a schedule's preferred time must equal now's wall clock
// "HH:MM"; in SendToAll mode every active schedule is a candidate, capped by
// Limit. Unless Force is set, schedules delivered within DueWindow are
// filtered out. Inactive schedules are never selected. Input order is
// preserved; no further ordering is guaranteed.
func SelectDue(now time.Time, opts SweepOptions, schedules []models.UserSchedule) []models.UserSchedule {
	wall := now.Format("15:04")
	cutoff := now.Add(-DueWindow)

	var due []models.UserSchedule
	for _, s := range schedules {
		if !s.Schedule.Active {
			continue
		}
		if !opts.SendToAll && s.Schedule.PreferredTime != wall {
			continue
		}
		if !opts.Force && s.Schedule.LastSentAt != nil && !s.Schedule.LastSentAt.Before(cutoff) {
			continue
		}
		due = append(due, s)
		if opts.SendToAll && opts.Limit > 0 && len(due) >= opts.Limit {
			break
		}
	}
	return due
}
