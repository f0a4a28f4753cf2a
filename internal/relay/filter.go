package relay

import (
	"github.com/businessweb01/dbmiddleware/internal/domain"
)

// Reason explains why a record was or was not forwarded.
type Reason string

const (
	ReasonEligible          Reason = "eligible"
	ReasonInvalidRecord     Reason = "invalid_record"
	ReasonAlreadyProcessed  Reason = "already_processed"
	ReasonStatusNotTerminal Reason = "status_not_terminal"
)

func (r Reason) String() string { return string(r) }

// Decision is the eligibility verdict for one observed record.
type Decision struct {
	Eligible bool
	Reason   Reason
	// Status carries the observed status for diagnostics when a record is
	// skipped for not being terminal.
	Status domain.Status
}

// Membership is the dedup-cache view the filter needs.
type Membership interface {
	Contains(id string) bool
}

// Filter decides whether an observed booking should be forwarded. It has no
// side effects; marking the dedup cache is the orchestrator's job.
type Filter struct {
	seen Membership
}

func NewFilter(seen Membership) *Filter {
	return &Filter{seen: seen}
}

// Decide applies the eligibility rules in order; the first matching rule wins.
func (f *Filter) Decide(b *domain.Booking) Decision {
	if b == nil || b.Validate() != nil {
		return Decision{Reason: ReasonInvalidRecord}
	}

	if f.seen != nil && f.seen.Contains(b.ID) {
		return Decision{Reason: ReasonAlreadyProcessed, Status: b.Status}
	}

	if !b.Status.IsTerminal() {
		return Decision{Reason: ReasonStatusNotTerminal, Status: b.Status}
	}

	return Decision{Eligible: true, Reason: ReasonEligible, Status: b.Status}
}
