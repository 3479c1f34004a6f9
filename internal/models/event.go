package models

import (
	"encoding/json"

	"github.com/webhook-indexer/internal/errors"
	"github.com/webhook-indexer/internal/types"
)

// AccountEntry is one account touched by an inbound event.
type AccountEntry struct {
	Account             string          `json:"account"`
	NativeBalanceChange int64           `json:"nativeBalanceChange,omitempty"`
	TokenBalanceChanges json.RawMessage `json:"tokenBalanceChanges,omitempty"`
}

// WebhookEvent is one inbound account-activity notification from the
// upstream provider.
type WebhookEvent struct {
	Type         types.EventKind   `json:"type"`
	Slot         int64             `json:"slot"`
	Signature    string            `json:"signature"`
	FeePayer     string            `json:"feePayer"`
	Fee          int64             `json:"fee"`
	Description  string            `json:"description,omitempty"`
	AccountData  []AccountEntry    `json:"accountData"`
	Instructions []json.RawMessage `json:"instructions"`
}

// TouchedAccounts returns the set of distinct accounts the event touches.
// An event without account-level detail yields an empty set, which makes the
// whole dispatch a no-op.
func (e *WebhookEvent) TouchedAccounts() map[string]struct{} {
	accounts := make(map[string]struct{}, len(e.AccountData))
	for _, entry := range e.AccountData {
		if entry.Account != "" {
			accounts[entry.Account] = struct{}{}
		}
	}
	return accounts
}

// ValidateTransfer checks the fields required to persist a transfer record.
// Description is optional; everything else must be present and non-zero.
func (e *WebhookEvent) ValidateTransfer() error {
	switch {
	case e.Slot == 0:
		return errors.NewDataError("MISSING_FIELD", "transfer event missing slot")
	case e.Signature == "":
		return errors.NewDataError("MISSING_FIELD", "transfer event missing signature")
	case e.FeePayer == "":
		return errors.NewDataError("MISSING_FIELD", "transfer event missing feePayer")
	case e.Fee == 0:
		return errors.NewDataError("MISSING_FIELD", "transfer event missing fee")
	case len(e.AccountData) == 0:
		return errors.NewDataError("MISSING_FIELD", "transfer event missing accountData")
	case len(e.Instructions) == 0:
		return errors.NewDataError("MISSING_FIELD", "transfer event missing instructions")
	}
	return nil
}
