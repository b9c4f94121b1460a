// Package status maps poll outcomes onto the account's visible sync status.
package status

import (
	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

// Projection is the status write resulting from one outcome
type Projection struct {
	Status       accountentity.SyncStatus
	ErrorMessage *string
}

// Project computes the account status for an outcome. The boolean is false
// when the outcome must leave the stored status untouched.
func Project(o entity.Outcome) (Projection, bool) {
	switch o.Kind {
	case entity.OutcomeSuccess:
		return Projection{Status: accountentity.SyncStatusActive}, true
	case entity.OutcomeTransient:
		return Projection{Status: accountentity.SyncStatusError, ErrorMessage: message(o, "transient failure")}, true
	case entity.OutcomeTerminal:
		return Projection{Status: accountentity.SyncStatusTokenExpired, ErrorMessage: message(o, "token refresh rejected, reauthorization required")}, true
	case entity.OutcomeRateLimited:
		return Projection{Status: accountentity.SyncStatusRateLimited, ErrorMessage: message(o, "rate limited")}, true
	default:
		return Projection{}, false
	}
}

// Apply writes the projection onto acc and reports whether anything changed
func Apply(acc *accountentity.Account, o entity.Outcome) bool {
	p, ok := Project(o)
	if !ok {
		return false
	}
	acc.SyncStatus = p.Status
	acc.ErrorMessage = p.ErrorMessage
	return true
}

func message(o entity.Outcome, fallback string) *string {
	msg := o.Message
	if msg == "" && o.Err != nil {
		msg = o.Err.Error()
	}
	if msg == "" {
		msg = fallback
	}
	return &msg
}
