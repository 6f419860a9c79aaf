package core

import (
	"context"
	"fmt"
	"time"

	"storepulse/internal/types"
)

// Compile-time assertion that PolicyEngineImpl implements PolicyEngine.
var _ PolicyEngine = (*PolicyEngineImpl)(nil)

// PolicyEngineImpl is the production implementation of PolicyEngine. It
// evaluates the tenant's quiet hours window to determine whether an alert
// should be dispatched immediately or deferred.
type PolicyEngineImpl struct {
	clock  types.Clock
	logger types.Logger
}

// NewPolicyEngine creates a new PolicyEngineImpl with the given clock and logger.
// The clock abstraction allows deterministic testing of time-dependent logic.
func NewPolicyEngine(clock types.Clock, logger types.Logger) *PolicyEngineImpl {
	return &PolicyEngineImpl{
		clock:  clock,
		logger: logger,
	}
}

// Evaluate checks the tenant's quiet hours and digest mode to determine the
// delivery policy for an alert.
//
// Decision logic:
//  1. Quiet hours active in the tenant's timezone -> defer until window end
//  2. Digest mode on and the alert was created inside the current digest
//     window -> defer until the window closes
//  3. Otherwise -> deliver immediately
//
// Malformed configuration fails open: the alert is delivered rather than
// silently stuck, and the error is logged for the merchant to fix.
func (e *PolicyEngineImpl) Evaluate(ctx context.Context, alert *types.Alert, settings *types.AlertSettings) (PolicyResult, error) {
	if settings == nil {
		return PolicyResult{
			Decision: PolicyDeliverImmediately,
			Reason:   "no delivery policy configured",
		}, nil
	}

	if settings.QuietHours != nil {
		result, err := e.evaluateQuietHours(settings.QuietHours)
		if err != nil {
			e.logger.Error("quiet hours evaluation failed, delivering anyway",
				"error", err.Error(),
				"alert_id", alert.ID,
				"tenant", alert.TenantID,
			)
			return PolicyResult{
				Decision: PolicyDeliverImmediately,
				Reason:   "quiet hours evaluation failed, fail-open",
			}, nil
		}
		if result != nil {
			return *result, nil
		}
	}

	if result := e.evaluateDigest(alert, settings); result != nil {
		return *result, nil
	}

	return PolicyResult{
		Decision: PolicyDeliverImmediately,
		Reason:   "no deferral policy applies",
	}, nil
}

// evaluateQuietHours checks if the current time falls within the configured
// quiet hours window. Returns a defer PolicyResult while in quiet hours, or
// nil when delivery may proceed.
func (e *PolicyEngineImpl) evaluateQuietHours(qh *types.QuietHours) (*PolicyResult, error) {
	tz := qh.Timezone
	if tz == "" {
		tz = "UTC"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	start, err := parseTimeOfDay(qh.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet hours start %q: %w", qh.Start, err)
	}

	end, err := parseTimeOfDay(qh.End)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet hours end %q: %w", qh.End, err)
	}

	now := e.clock.Now().In(loc)
	inQuiet, resumeAt := isInQuietPeriod(now, start, end)
	if !inQuiet {
		return nil, nil
	}

	resumeUTC := resumeAt.UTC()
	return &PolicyResult{
		Decision: PolicyDefer,
		Reason:   fmt.Sprintf("quiet hours active (%s-%s %s)", qh.Start, qh.End, tz),
		ResumeAt: &resumeUTC,
	}, nil
}

// digestDailyHour is the tenant-local hour at which daily digests go out.
const digestDailyHour = 8

// evaluateDigest batches alerts into the tenant's digest window. An alert
// created inside the current window is deferred until the window closes; one
// created in an earlier window has already waited a full cycle and is
// released, so an alert is never deferred twice by the same mode. Windows are
// computed in the tenant's quiet hours timezone, defaulting to UTC, and an
// invalid timezone fails open.
func (e *PolicyEngineImpl) evaluateDigest(alert *types.Alert, settings *types.AlertSettings) *PolicyResult {
	mode := settings.Digest
	if mode != types.DigestHourly && mode != types.DigestDaily {
		return nil
	}

	loc := time.UTC
	if settings.QuietHours != nil && settings.QuietHours.Timezone != "" {
		l, err := time.LoadLocation(settings.QuietHours.Timezone)
		if err != nil {
			e.logger.Error("digest timezone invalid, delivering anyway",
				"error", err.Error(),
				"alert_id", alert.ID,
				"tenant", alert.TenantID,
			)
			return nil
		}
		loc = l
	}

	now := e.clock.Now().In(loc)
	var windowStart time.Time
	if mode == types.DigestHourly {
		windowStart = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
	} else {
		windowStart = time.Date(now.Year(), now.Month(), now.Day(), digestDailyHour, 0, 0, 0, loc)
		if now.Before(windowStart) {
			windowStart = windowStart.AddDate(0, 0, -1)
		}
	}

	if alert.CreatedAt.Before(windowStart) {
		return nil
	}

	var windowEnd time.Time
	if mode == types.DigestHourly {
		windowEnd = windowStart.Add(time.Hour)
	} else {
		windowEnd = windowStart.AddDate(0, 0, 1)
	}

	resumeUTC := windowEnd.UTC()
	return &PolicyResult{
		Decision: PolicyDefer,
		Reason:   fmt.Sprintf("batched into %s digest", mode),
		ResumeAt: &resumeUTC,
	}
}

// timeOfDay represents a wall-clock time with hour and minute components.
type timeOfDay struct {
	hour   int
	minute int
}

// toMinutes converts a timeOfDay to minutes since midnight for comparison.
func (t timeOfDay) toMinutes() int {
	return t.hour*60 + t.minute
}

// parseTimeOfDay parses a "HH:MM" string into a timeOfDay.
func parseTimeOfDay(s string) (timeOfDay, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}

// isInQuietPeriod checks if the given time falls within the quiet period
// defined by start and end times. Handles overnight windows (e.g., 22:00-07:00).
// Returns whether the time is in the quiet period and the resumeAt time
// (when the quiet period ends in the same timezone).
func isInQuietPeriod(now time.Time, start, end timeOfDay) (bool, time.Time) {
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.toMinutes()
	endMinutes := end.toMinutes()

	if startMinutes <= endMinutes {
		// Same-day window (e.g., 13:00-15:00)
		if nowMinutes >= startMinutes && nowMinutes < endMinutes {
			resumeAt := time.Date(
				now.Year(), now.Month(), now.Day(),
				end.hour, end.minute, 0, 0, now.Location(),
			)
			return true, resumeAt
		}
	} else {
		// Overnight window (e.g., 22:00-07:00)
		if nowMinutes >= startMinutes || nowMinutes < endMinutes {
			if nowMinutes >= startMinutes {
				// Before midnight - resume is tomorrow at end time.
				tomorrow := now.AddDate(0, 0, 1)
				resumeAt := time.Date(
					tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
					end.hour, end.minute, 0, 0, now.Location(),
				)
				return true, resumeAt
			}
			// After midnight - resume is today at end time.
			resumeAt := time.Date(
				now.Year(), now.Month(), now.Day(),
				end.hour, end.minute, 0, 0, now.Location(),
			)
			return true, resumeAt
		}
	}

	return false, time.Time{}
}
