package vault

import (
	"context"
	"fmt"

	"github.com/elys-network/hedgefund/internal/chain"
	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/types"
)

// Contract exposes a Vault on the chain runtime through its call encoding.
type Contract struct {
	vault *Vault
}

// NewContract wraps v for deployment.
func NewContract(v *Vault) *Contract {
	return &Contract{vault: v}
}

// Vault returns the wrapped ledger.
func (c *Contract) Vault() *Vault { return c.vault }

// Execute decodes the calldata and dispatches to the ledger. Inputs that cannot be decoded are
// rejected before any ledger code runs.
func (c *Contract) Execute(ctx context.Context, frame *chain.Frame) ([]byte, error) {
	call, err := codec.Vault.Decode(frame.Input())
	if err != nil {
		return nil, err
	}
	name := call.Name()
	if frame.Value().IsPositive() && !codec.Vault.IsPayable(name) {
		return nil, fmt.Errorf("%w: %s does not accept value", codec.ErrMalformedInput, call.Method.Sig)
	}

	switch name {
	case codec.MethodInitialize:
		cfg, err := configFromCall(call)
		if err != nil {
			return nil, err
		}
		return nil, c.vault.Initialize(ctx, frame, frame.Caller(), cfg)

	case codec.MethodDeposit:
		_, err := c.vault.Deposit(ctx, frame, frame.Caller(), frame.Value())
		return nil, err

	case codec.MethodWithdraw:
		amount, err := call.Uint256(0)
		if err != nil {
			return nil, err
		}
		_, err = c.vault.Withdraw(ctx, frame, frame.Caller(), amount)
		return nil, err

	case codec.MethodRebalance:
		_, err := c.vault.Rebalance(ctx, frame, frame.Caller())
		return nil, err

	case codec.MethodGetUserInfo:
		addr, err := call.Address(0)
		if err != nil {
			return nil, err
		}
		return codec.Vault.PackOutput(name, c.vault.UserInfo(addr).String())

	case codec.MethodGetAgentInvests:
		return codec.Vault.PackOutput(name, c.vault.AgentInvests(frame).String())

	default:
		return nil, fmt.Errorf("%w: %s", codec.ErrUnknownSelector, call.Method.Sig)
	}
}

func configFromCall(call *codec.Call) (types.VaultConfig, error) {
	swapPrimary, err := call.Address(0)
	if err != nil {
		return types.VaultConfig{}, err
	}
	swapSecondary, err := call.Address(1)
	if err != nil {
		return types.VaultConfig{}, err
	}
	lending, err := call.Address(2)
	if err != nil {
		return types.VaultConfig{}, err
	}
	tokenA, err := call.Address(3)
	if err != nil {
		return types.VaultConfig{}, err
	}
	tokenB, err := call.Address(4)
	if err != nil {
		return types.VaultConfig{}, err
	}
	return types.VaultConfig{
		SwapVenuePrimary:   swapPrimary,
		SwapVenueSecondary: swapSecondary,
		LendingVenue:       lending,
		TokenA:             tokenA,
		TokenB:             tokenB,
	}, nil
}

// Snapshot implements chain.Snapshotter.
func (c *Contract) Snapshot() interface{} {
	return c.vault.State()
}

// Restore implements chain.Snapshotter.
func (c *Contract) Restore(snapshot interface{}) {
	if state, ok := snapshot.(types.LedgerState); ok {
		c.vault.restore(state)
	}
}

var (
	_ chain.Contract    = (*Contract)(nil)
	_ chain.Snapshotter = (*Contract)(nil)
	_ Environment       = (*chain.Frame)(nil)
)
