package models

import "github.com/webhook-indexer/internal/types"

// Setting binds one watched address to one owning user and one tenant
// database. Settings are immutable during dispatch; they are mutated only by
// the management plane.
type Setting struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	DatabaseID string        `json:"databaseId"`
	TargetAddr string        `json:"targetAddr"`
	Cluster    types.Cluster `json:"cluster"`
}
