/*

This file contains the types exchanged with the execution environment: transactions, the
events contracts emit while executing them, and the resulting receipts.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Transaction is a state-changing call submitted to the runtime.
type Transaction struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value sdkmath.Int    `json:"value"`
	Data  hexutil.Bytes  `json:"data"`
}

// EventKind names what a contract reported.
type EventKind string

const (
	EventInitialized     EventKind = "Initialized"
	EventDeposited       EventKind = "Deposited"
	EventForwarded       EventKind = "Forwarded"
	EventForwardFailed   EventKind = "ForwardFailed"
	EventWithdrawn       EventKind = "Withdrawn"
	EventPayoutFailed    EventKind = "PayoutFailed"
	EventRebalanced      EventKind = "Rebalanced"
	EventSwapped         EventKind = "Swapped"
	EventLendingDeposit  EventKind = "LendingDeposit"
	EventLendingWithdraw EventKind = "LendingWithdraw"
)

// Event is a log line emitted by a contract during a transaction. Events of reverted
// calls are discarded with the call.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Emitter common.Address `json:"emitter"`
	Account common.Address `json:"account"`
	Venue   common.Address `json:"venue,omitempty"`
	Leg     Leg            `json:"leg,omitempty"`
	Amount  sdkmath.Int    `json:"amount"`
	Shares  sdkmath.Int    `json:"shares"`
	Error   string         `json:"error,omitempty"`
}

// TransactionResult contains all transaction execution details
type TransactionResult struct {
	TxHash       string         `json:"tx_hash"`
	Nonce        uint64         `json:"nonce"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        sdkmath.Int    `json:"value"`
	Method       string         `json:"method"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ReturnData   hexutil.Bytes  `json:"return_data,omitempty"`
	Events       []Event        `json:"events"`
	Timestamp    time.Time      `json:"timestamp"`
}
