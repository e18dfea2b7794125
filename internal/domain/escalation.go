package domain

import "time"

// EscalationLevel is the derived urgency of an unanswered ticket. It is never
// set directly; the sweep recomputes it from due_at, priority and the clock.
type EscalationLevel string

const (
	EscalationNone    EscalationLevel = "NONE"
	EscalationDue     EscalationLevel = "DUE"
	EscalationUrgent  EscalationLevel = "URGENT_ESCALATION"
	EscalationOverdue EscalationLevel = "OVERDUE"
)

// rank orders escalation levels for monotonicity checks.
func (l EscalationLevel) rank() int {
	switch l {
	case EscalationDue:
		return 1
	case EscalationUrgent:
		return 2
	case EscalationOverdue:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether l is the same as or above other.
func (l EscalationLevel) AtLeast(other EscalationLevel) bool {
	return l.rank() >= other.rank()
}

// EscalationPolicy fixes the follow-up thresholds and grace boundaries.
// Grace fractions are expressed relative to the priority threshold, so a
// 24h NORMAL ticket with fractions 0.25/0.75 escalates at due, due+6h and
// due+18h.
type EscalationPolicy struct {
	ThresholdNormal time.Duration
	ThresholdVIP    time.Duration
	Grace1Fraction  float64
	Grace2Fraction  float64
}

// DefaultEscalationPolicy matches the shipped configuration defaults.
func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{
		ThresholdNormal: 24 * time.Hour,
		ThresholdVIP:    12 * time.Hour,
		Grace1Fraction:  0.25,
		Grace2Fraction:  0.75,
	}
}

// Threshold returns the duration after which a reply is considered due.
// Urgent tickets never get a longer fuse than VIP ones.
func (p EscalationPolicy) Threshold(priority TicketPriority) time.Duration {
	switch priority {
	case TicketPriorityVIP, TicketPriorityUrgent:
		return p.ThresholdVIP
	default:
		return p.ThresholdNormal
	}
}

// DueAt computes the follow-up deadline for an obligation starting at
// arrivedAt. When an urgent ticket already has a running clock the new
// deadline never extends past the existing one.
func (p EscalationPolicy) DueAt(priority TicketPriority, arrivedAt time.Time, existing *time.Time) time.Time {
	due := arrivedAt.Add(p.Threshold(priority))
	if priority == TicketPriorityUrgent && existing != nil && existing.Before(due) {
		return *existing
	}
	return due
}

// Level is the pure escalation function: given the deadline, priority and
// the current time it yields the level. Running it twice with the same inputs
// yields the same output, which is what makes the sweep idempotent.
func (p EscalationPolicy) Level(priority TicketPriority, dueAt *time.Time, now time.Time) EscalationLevel {
	if dueAt == nil {
		return EscalationNone
	}
	if now.Before(*dueAt) {
		return EscalationNone
	}
	threshold := p.Threshold(priority)
	grace1 := time.Duration(float64(threshold) * p.Grace1Fraction)
	grace2 := time.Duration(float64(threshold) * p.Grace2Fraction)
	elapsed := now.Sub(*dueAt)
	switch {
	case elapsed >= grace2:
		return EscalationOverdue
	case elapsed >= grace1:
		return EscalationUrgent
	default:
		return EscalationDue
	}
}
