package scheduler_test

import (
	"testing"
	"time"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextOccurrence(t *testing.T) {
	prev := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  domain.Recurrence
		now  time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "daily on time",
			rec:  domain.Recurrence{Type: domain.RecurrenceDaily, Time: "09:00"},
			now:  prev.Add(time.Second),
			want: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "daily after a late wake never lands in the past",
			rec:  domain.Recurrence{Type: domain.RecurrenceDaily, Time: "09:00"},
			now:  time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "daily keeps time of day when none is given",
			rec:  domain.Recurrence{Type: domain.RecurrenceDaily},
			now:  prev,
			want: time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly",
			rec:  domain.Recurrence{Type: domain.RecurrenceWeekly, Time: "18:30"},
			now:  prev,
			want: time.Date(2026, 3, 9, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "daily in a local zone",
			rec:  domain.Recurrence{Type: domain.RecurrenceDaily, Time: "09:00"},
			now:  prev,
			loc:  saoPaulo,
			want: time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "cron",
			rec:  domain.Recurrence{Type: domain.RecurrenceCron, Expression: "0 9 * * 1-5"},
			now:  time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC), // Friday
			want: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scheduler.NextOccurrence(&tt.rec, prev, tt.now, tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrence_Invalid(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, rec := range []domain.Recurrence{
		{Type: domain.RecurrenceDaily, Time: "25:00"},
		{Type: domain.RecurrenceWeekly, Time: "noon"},
		{Type: domain.RecurrenceCron, Expression: "* *"},
		{Type: "hourly"},
	} {
		_, err := scheduler.NextOccurrence(&rec, now, now, nil)
		assert.Error(t, err, "%+v", rec)
		assert.Error(t, scheduler.ValidateRecurrence(&rec), "%+v", rec)
	}
	assert.NoError(t, scheduler.ValidateRecurrence(nil))
}
