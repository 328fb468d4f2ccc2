package engine_test

import (
	"testing"
	"time"

	"accredo/internal/domain"
	"accredo/internal/engine"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestClassifyBoundaries(t *testing.T) {
	today := day("2024-06-15")
	cases := []struct {
		name    string
		validTo string
		window  int
		want    domain.RecordStatus
	}{
		{"expired yesterday", "2024-06-14", 30, domain.RecordExpired},
		{"expires today", "2024-06-15", 30, domain.RecordExpiring},
		{"last day of window", "2024-07-15", 30, domain.RecordExpiring},
		{"first day past window", "2024-07-16", 30, domain.RecordCurrent},
		{"far future", "2030-01-01", 30, domain.RecordCurrent},
		{"zero window today", "2024-06-15", 0, domain.RecordExpiring},
		{"zero window tomorrow", "2024-06-16", 0, domain.RecordCurrent},
		{"empty date", "", 30, domain.RecordCurrent},
		{"garbage date", "not-a-date", 30, domain.RecordCurrent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Classify(tc.validTo, today, tc.window)
			if got != tc.want {
				t.Fatalf("Classify(%q, %s, %d) = %s, want %s", tc.validTo, today.Format("2006-01-02"), tc.window, got, tc.want)
			}
		})
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	lateEvening := time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)
	if got := engine.Classify("2024-06-15", lateEvening, 30); got != domain.RecordExpiring {
		t.Fatalf("expected expiring at end of expiry day, got %s", got)
	}
	if got := engine.Classify("2024-06-14", lateEvening, 30); got != domain.RecordExpired {
		t.Fatalf("expected expired, got %s", got)
	}
}

func TestEffectiveStatusManualOverride(t *testing.T) {
	today := day("2024-06-15")
	renewal := domain.RecordInRenewal
	rec := domain.RequirementRecord{ValidTo: "2024-01-01", ManualStatus: &renewal}
	if got := engine.EffectiveStatus(rec, today, 30); got != domain.RecordInRenewal {
		t.Fatalf("manual override not honored, got %s", got)
	}
	rec.ManualStatus = nil
	if got := engine.EffectiveStatus(rec, today, 30); got != domain.RecordExpired {
		t.Fatalf("expected classifier to resume after clear, got %s", got)
	}
}
