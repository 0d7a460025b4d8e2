package chain

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/hedgefund/internal/types"
)

// txJournal collects the events and commit hooks of one transaction. A reverted frame truncates
// both back to where they stood when the frame started.
type txJournal struct {
	events   []types.Event
	onCommit []func()
}

func (j *txJournal) truncate(events, hooks int) {
	if len(j.events) > events {
		j.events = j.events[:events]
	}
	if len(j.onCommit) > hooks {
		j.onCommit = j.onCommit[:hooks]
	}
}

// Frame is the view a contract has of the call executing it.
type Frame struct {
	rt        *Runtime
	self      common.Address
	caller    common.Address
	value     sdkmath.Int
	input     []byte
	depth     int
	simulated bool
	journal   *txJournal
}

// Self is the address of the executing contract.
func (f *Frame) Self() common.Address { return f.self }

// Caller is the immediate caller of this frame.
func (f *Frame) Caller() common.Address { return f.caller }

// Value is the currency attached to this call. It is already credited to Self.
func (f *Frame) Value() sdkmath.Int { return f.value }

// Input is the raw calldata.
func (f *Frame) Input() []byte { return f.input }

// Simulated reports whether the frame runs inside Runtime.Call, whose effects are always discarded.
func (f *Frame) Simulated() bool { return f.simulated }

// Balance returns the current balance of addr.
func (f *Frame) Balance(addr common.Address) sdkmath.Int { return f.rt.Balance(addr) }

// Call performs a value-bearing sub-call from Self. A failed sub-call reverts its own effects
// and returns the error; the calling frame decides whether to propagate it.
func (f *Frame) Call(ctx context.Context, to common.Address, value sdkmath.Int, data []byte) ([]byte, error) {
	if value.IsNil() {
		value = sdkmath.ZeroInt()
	}
	return f.rt.execute(ctx, f.self, to, value, data, f.depth+1, f.simulated, f.journal)
}

// Transfer sends plain value from Self to addr.
func (f *Frame) Transfer(ctx context.Context, to common.Address, value sdkmath.Int) error {
	_, err := f.Call(ctx, to, value, nil)
	return err
}

// Emit appends an event attributed to Self.
func (f *Frame) Emit(ev types.Event) {
	ev.Emitter = f.self
	f.journal.events = append(f.journal.events, ev)
}

// OnCommit registers fn to run once the enclosing transaction has committed. It is dropped if
// this frame or any caller reverts, and never runs for simulated calls.
func (f *Frame) OnCommit(fn func()) {
	f.journal.onCommit = append(f.journal.onCommit, fn)
}
