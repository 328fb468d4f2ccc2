package engine

import (
	"strings"
	"time"

	"accredo/internal/domain"
)

// DateLayout is the wire format for all date-only fields.
const DateLayout = "2006-01-02"

// Classify derives a record's lifecycle status from its expiration date.
// The function is total: a missing or unparseable date classifies as
// current, never as an error. "today" is injected so callers can pin the
// clock; comparisons are calendar-day granular, both window ends inclusive.
func Classify(validTo string, today time.Time, windowDays int) domain.RecordStatus {
	if strings.TrimSpace(validTo) == "" {
		return domain.RecordCurrent
	}
	exp, err := time.Parse(DateLayout, validTo)
	if err != nil {
		return domain.RecordCurrent
	}
	day := dateOnly(today)
	if exp.Before(day) {
		return domain.RecordExpired
	}
	if !exp.After(day.AddDate(0, 0, windowDays)) {
		return domain.RecordExpiring
	}
	return domain.RecordCurrent
}

// EffectiveStatus applies manual-override precedence: a stored manual
// status wins verbatim, otherwise the record is classified against today.
func EffectiveStatus(rec domain.RequirementRecord, today time.Time, windowDays int) domain.RecordStatus {
	if rec.ManualStatus != nil && *rec.ManualStatus != "" {
		return *rec.ManualStatus
	}
	return Classify(rec.ValidTo, today, windowDays)
}

// leadDays is the whole-day distance from today to the expiration date,
// negative once expired. Stored for reporting, never trusted for reads.
func leadDays(validTo string, today time.Time) int {
	if strings.TrimSpace(validTo) == "" {
		return 0
	}
	exp, err := time.Parse(DateLayout, validTo)
	if err != nil {
		return 0
	}
	return int(exp.Sub(dateOnly(today)).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
