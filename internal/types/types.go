// Package types defines shared domain types for the webhook indexer.
package types

import "strings"

// Cluster identifies which network a rule and its webhook subscription
// belong to. Each cluster has an independent upstream subscription and
// credential set.
type Cluster string

const (
	ClusterMainnet Cluster = "MAINNET"
	ClusterDevnet  Cluster = "DEVNET"
)

// NormalizeCluster maps free-form cluster strings onto a known Cluster.
// Unknown values default to mainnet, matching the credential selection of
// the upstream provider integration.
func NormalizeCluster(s string) Cluster {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEVNET":
		return ClusterDevnet
	default:
		return ClusterMainnet
	}
}

// IsValid reports whether the cluster is a known value
func (c Cluster) IsValid() bool {
	return c == ClusterMainnet || c == ClusterDevnet
}

// EventKind identifies the kind of an inbound webhook event.
type EventKind string

const (
	// EventTransfer is the only kind currently persisted. All other kinds
	// are accepted and dropped.
	EventTransfer EventKind = "TRANSFER"
)

// TransferTableName is the destination table created on demand in each
// tenant database.
const TransferTableName = "transfer_events"
