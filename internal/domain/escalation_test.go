package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	policy := DefaultEscalationPolicy()

	assert.Equal(t, 24*time.Hour, policy.Threshold(TicketPriorityNormal))
	assert.Equal(t, 12*time.Hour, policy.Threshold(TicketPriorityVIP))
	// urgent never gets a longer fuse than VIP
	assert.Equal(t, 12*time.Hour, policy.Threshold(TicketPriorityUrgent))
}

func TestDueAt(t *testing.T) {
	policy := DefaultEscalationPolicy()
	arrived := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, arrived.Add(24*time.Hour), policy.DueAt(TicketPriorityNormal, arrived, nil))
	assert.Equal(t, arrived.Add(12*time.Hour), policy.DueAt(TicketPriorityVIP, arrived, nil))

	// an urgent ticket with an earlier running clock keeps it
	earlier := arrived.Add(2 * time.Hour)
	assert.Equal(t, earlier, policy.DueAt(TicketPriorityUrgent, arrived, &earlier))

	// a later existing deadline does not stretch the urgent fuse
	later := arrived.Add(48 * time.Hour)
	assert.Equal(t, arrived.Add(12*time.Hour), policy.DueAt(TicketPriorityUrgent, arrived, &later))
}

func TestLevelBoundaries(t *testing.T) {
	policy := DefaultEscalationPolicy()
	arrived := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	dueVIP := arrived.Add(12 * time.Hour) // grace points at +3h and +9h past due
	dueNormal := arrived.Add(24 * time.Hour)

	tests := []struct {
		name     string
		priority TicketPriority
		dueAt    *time.Time
		now      time.Time
		want     EscalationLevel
	}{
		{"no obligation", TicketPriorityVIP, nil, arrived.Add(100 * time.Hour), EscalationNone},
		{"before due", TicketPriorityVIP, &dueVIP, dueVIP.Add(-time.Second), EscalationNone},
		{"exactly due", TicketPriorityVIP, &dueVIP, dueVIP, EscalationDue},
		{"inside first grace", TicketPriorityVIP, &dueVIP, dueVIP.Add(time.Hour), EscalationDue},
		{"at first grace boundary", TicketPriorityVIP, &dueVIP, dueVIP.Add(3 * time.Hour), EscalationUrgent},
		{"inside second grace", TicketPriorityVIP, &dueVIP, dueVIP.Add(7 * time.Hour), EscalationUrgent},
		{"at second grace boundary", TicketPriorityVIP, &dueVIP, dueVIP.Add(9 * time.Hour), EscalationOverdue},
		{"far past due", TicketPriorityVIP, &dueVIP, dueVIP.Add(200 * time.Hour), EscalationOverdue},
		{"normal at first grace", TicketPriorityNormal, &dueNormal, dueNormal.Add(6 * time.Hour), EscalationUrgent},
		{"normal at second grace", TicketPriorityNormal, &dueNormal, dueNormal.Add(18 * time.Hour), EscalationOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Level(tt.priority, tt.dueAt, tt.now))
		})
	}
}

// With a fixed due date the level never moves backwards as the clock
// advances.
func TestLevelMonotonic(t *testing.T) {
	policy := DefaultEscalationPolicy()
	due := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)

	prev := EscalationNone
	for step := 0; step <= 30*60; step += 17 {
		now := due.Add(time.Duration(step-60) * time.Minute)
		level := policy.Level(TicketPriorityVIP, &due, now)
		require.True(t, level.AtLeast(prev),
			"level regressed from %s to %s at %s", prev, level, now)
		prev = level
	}
	assert.Equal(t, EscalationOverdue, prev)
}

func TestLevelIdempotent(t *testing.T) {
	policy := DefaultEscalationPolicy()
	due := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	now := due.Add(4 * time.Hour)

	first := policy.Level(TicketPriorityVIP, &due, now)
	second := policy.Level(TicketPriorityVIP, &due, now)
	assert.Equal(t, first, second)
}

func TestDisplayLevelOverride(t *testing.T) {
	due := time.Now().Add(time.Hour)

	ticket := Ticket{Priority: TicketPriorityUrgent, DueAt: &due, EscalationLevel: EscalationNone}
	assert.Equal(t, EscalationUrgent, ticket.DisplayLevel())

	// no due date means no override either
	ticket = Ticket{Priority: TicketPriorityUrgent, EscalationLevel: EscalationNone}
	assert.Equal(t, EscalationNone, ticket.DisplayLevel())

	ticket = Ticket{Priority: TicketPriorityVIP, DueAt: &due, EscalationLevel: EscalationDue}
	assert.Equal(t, EscalationDue, ticket.DisplayLevel())
}
