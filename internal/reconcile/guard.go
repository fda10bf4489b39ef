// Package reconcile applies scraped match facts to persisted records
// under a protected state-transition policy. Noisy or wrong scraped data
// can never corrupt an already-finalized result: the guard is the single
// authority on which status and score writes are allowed.
package reconcile

import "matchsync/pkg/types"

// Decision is the guard's verdict for one proposed transition.
type Decision struct {
	// Status is the status the record is allowed to hold after this
	// pass. Equal to the current status when the proposal is refused.
	Status types.MatchStatus
	// AllowScore permits writing the scraped score pair.
	AllowScore bool
	// Rejected marks a proposal that was refused outright, logged at
	// warning level by the caller. Refusals are steady-state protection,
	// not faults.
	Rejected bool
}

// Authorize decides whether the transition from current to proposed is
// allowed and which fields may be written. Pure and deterministic given
// the two inputs.
//
// Matrix:
//
//	SCHEDULED -> LIVE       allowed, scores writable
//	SCHEDULED -> FINISHED   allowed, scores writable (match ended unobserved)
//	SCHEDULED -> POSTPONED  allowed, no scores
//	LIVE      -> LIVE       allowed, scores writable
//	LIVE      -> FINISHED   allowed, scores writable
//	LIVE      -> SCHEDULED  refused (regression guard)
//	LIVE      -> POSTPONED  refused (postponement only from SCHEDULED)
//	FINISHED  -> *          status frozen, scores correctable
//	POSTPONED -> *          frozen for this engine
func Authorize(current, proposed types.MatchStatus) Decision {
	// Terminal state: status never re-opens, but the source occasionally
	// corrects a finished score a few minutes after full time.
	if current == types.StatusFinished {
		return Decision{
			Status:     types.StatusFinished,
			AllowScore: true,
			Rejected:   proposed != types.StatusFinished,
		}
	}

	switch current {
	case types.StatusScheduled:
		switch proposed {
		case types.StatusLive:
			return Decision{Status: types.StatusLive, AllowScore: true}
		case types.StatusFinished:
			return Decision{Status: types.StatusFinished, AllowScore: true}
		case types.StatusPostponed:
			return Decision{Status: types.StatusPostponed}
		}
		return Decision{Status: types.StatusScheduled}

	case types.StatusLive:
		switch proposed {
		case types.StatusLive:
			return Decision{Status: types.StatusLive, AllowScore: true}
		case types.StatusFinished:
			return Decision{Status: types.StatusFinished, AllowScore: true}
		}
		// A scraped mis-read must not undo a confirmed "match has
		// started" fact.
		return Decision{Status: types.StatusLive, Rejected: true}

	case types.StatusPostponed:
		return Decision{Status: types.StatusPostponed, Rejected: proposed != types.StatusPostponed}
	}

	// Unknown persisted status: refuse to touch the record.
	return Decision{Status: current, Rejected: true}
}
