package status

import (
	"errors"
	"testing"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/polling/entity"
)

func TestProject(t *testing.T) {
	tests := []struct {
		name    string
		outcome entity.Outcome
		status  accountentity.SyncStatus
		write   bool
		message string
	}{
		{"success", entity.Outcome{Kind: entity.OutcomeSuccess, NewMentions: 3}, accountentity.SyncStatusActive, true, ""},
		{"transient", entity.Outcome{Kind: entity.OutcomeTransient, Message: "upstream 503"}, accountentity.SyncStatusError, true, "upstream 503"},
		{"transient from err", entity.Outcome{Kind: entity.OutcomeTransient, Err: errors.New("dial failed")}, accountentity.SyncStatusError, true, "dial failed"},
		{"terminal", entity.Outcome{Kind: entity.OutcomeTerminal}, accountentity.SyncStatusTokenExpired, true, "token refresh rejected, reauthorization required"},
		{"rate limited", entity.Outcome{Kind: entity.OutcomeRateLimited, Message: "window exhausted"}, accountentity.SyncStatusRateLimited, true, "window exhausted"},
		{"skipped", entity.Outcome{Kind: entity.OutcomeSkipped}, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Project(tt.outcome)
			if ok != tt.write {
				t.Fatalf("write = %v, want %v", ok, tt.write)
			}
			if p.Status != tt.status {
				t.Errorf("status = %q, want %q", p.Status, tt.status)
			}
			got := ""
			if p.ErrorMessage != nil {
				got = *p.ErrorMessage
			}
			if got != tt.message {
				t.Errorf("message = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestApply_SuccessClearsError(t *testing.T) {
	msg := "old"
	acc := &accountentity.Account{SyncStatus: accountentity.SyncStatusError, ErrorMessage: &msg}

	if !Apply(acc, entity.Outcome{Kind: entity.OutcomeSuccess}) {
		t.Fatal("expected a write")
	}
	if acc.SyncStatus != accountentity.SyncStatusActive || acc.ErrorMessage != nil {
		t.Errorf("unexpected account state: %s %v", acc.SyncStatus, acc.ErrorMessage)
	}
}

func TestApply_SkippedLeavesAccountUntouched(t *testing.T) {
	acc := &accountentity.Account{SyncStatus: accountentity.SyncStatusPaused}

	if Apply(acc, entity.Outcome{Kind: entity.OutcomeSkipped}) {
		t.Fatal("skipped outcome must not write")
	}
	if acc.SyncStatus != accountentity.SyncStatusPaused {
		t.Errorf("status changed to %s", acc.SyncStatus)
	}
}
