/*

This file contains the snapshot recorded for every keeper cycle.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CycleAction is what the keeper decided to do in a cycle.
type CycleAction string

const (
	CycleActionRebalance CycleAction = "REBALANCE"
	CycleActionSkip      CycleAction = "SKIP"
)

// CycleSnapshot captures the state before and after one keeper cycle.
type CycleSnapshot struct {
	SnapshotID    int64       `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleID       string      `json:"cycle_id"`
	CycleNumber   int         `json:"cycle_number"`
	Timestamp     time.Time   `json:"timestamp"`
	Action        CycleAction `json:"action"`
	TotalShares   sdkmath.Int `json:"total_shares"`
	CustodyBefore sdkmath.Int `json:"custody_before"`
	CustodyAfter  sdkmath.Int `json:"custody_after"`
	IdleBefore    sdkmath.Int `json:"idle_before"`
	IdleAfter     sdkmath.Int `json:"idle_after"`
	TxHash        string      `json:"tx_hash,omitempty"`
	Success       bool        `json:"success"`
	Message       string      `json:"message,omitempty"`
	FailedLegs    int         `json:"failed_legs"`
}
