package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateRecurrence checks a recurrence rule without computing an occurrence.
func ValidateRecurrence(rec *domain.Recurrence) error {
	if rec == nil {
		return nil
	}
	switch rec.Type {
	case domain.RecurrenceDaily, domain.RecurrenceWeekly:
		if rec.Time == "" {
			return nil
		}
		_, _, err := parseClock(rec.Time)
		return err
	case domain.RecurrenceCron:
		_, err := cronParser.Parse(rec.Expression)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", rec.Expression, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence type %q", rec.Type)
	}
}

// NextOccurrence computes when a recurring job fires next. The base is the
// later of now and the previous fire time, so a late wake-up never produces
// an occurrence in the past. The result is returned in UTC.
func NextOccurrence(rec *domain.Recurrence, prev, now time.Time, loc *time.Location) (time.Time, error) {
	if rec == nil {
		return time.Time{}, fmt.Errorf("no recurrence")
	}
	if loc == nil {
		loc = time.UTC
	}
	base := prev
	if now.After(base) {
		base = now
	}
	base = base.In(loc)

	switch rec.Type {
	case domain.RecurrenceDaily, domain.RecurrenceWeekly:
		hour, minute := prev.In(loc).Hour(), prev.In(loc).Minute()
		if rec.Time != "" {
			h, m, err := parseClock(rec.Time)
			if err != nil {
				return time.Time{}, err
			}
			hour, minute = h, m
		}
		days := 1
		if rec.Type == domain.RecurrenceWeekly {
			days = 7
		}
		y, mo, d := base.Date()
		return time.Date(y, mo, d+days, hour, minute, 0, 0, loc).UTC(), nil
	case domain.RecurrenceCron:
		sched, err := cronParser.Parse(rec.Expression)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", rec.Expression, err)
		}
		next := sched.Next(base)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron expression %q never fires", rec.Expression)
		}
		return next.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence type %q", rec.Type)
	}
}

// parseClock parses "HH:mm".
func parseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:mm", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
