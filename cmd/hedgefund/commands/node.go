package commands

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/avm"
	"github.com/elys-network/hedgefund/internal/chain"
	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/config"
	"github.com/elys-network/hedgefund/internal/metrics"
	"github.com/elys-network/hedgefund/internal/state"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/vault"
	"github.com/elys-network/hedgefund/internal/venues"
	"github.com/elys-network/hedgefund/internal/web"
)

// node is one fully wired vault deployment.
type node struct {
	runtime  *chain.Runtime
	vault    *vault.Vault
	metrics  *metrics.Metrics
	recorder *state.Recorder // nil without a database
	keeper   *avm.AVM
	web      *web.WebServer
}

// newNode assembles the runtime, venues, vault, keeper and API from the loaded configuration.
// With a database configured the ledger and balances are restored before anything executes.
func newNode(ctx context.Context) (*node, error) {
	policy := config.VaultPolicy()
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	n := &node{metrics: metrics.New()}

	v, err := vault.New(policy, vault.WithObserver(n.metrics))
	if err != nil {
		return nil, err
	}
	n.vault = v
	n.runtime = chain.NewRuntime()

	if err := n.deploy(); err != nil {
		return nil, err
	}

	if state.DB != nil {
		if err := n.restore(ctx, policy); err != nil {
			return nil, err
		}
		n.recorder = state.NewRecorder(n.vault, n.runtime)
	}

	var next metrics.TransactionRecorder
	if n.recorder != nil {
		next = n.recorder
	}
	n.runtime.SetRecorder(n.metrics.Recorder(next))

	if !n.vault.State().Initialized {
		if err := n.initialize(ctx); err != nil {
			return nil, err
		}
	}

	keeperCfg := avm.Config{
		Chain:         n.runtime,
		Ledger:        n.vault,
		VaultAddress:  config.VaultAddress,
		KeeperAddress: config.KeeperAddress,
		MinRebalance:  config.KeeperMinRebalance,
		Schedule:      config.KeeperSchedule,
		Observe:       n.metrics.ObserveCycle,
	}
	if state.DB != nil {
		keeperCfg.NextCycleNumber = state.IncrementCycleNumber
		keeperCfg.SaveSnapshot = state.SaveCycleSnapshot
	}
	if n.keeper, err = avm.NewAVM(keeperCfg); err != nil {
		return nil, err
	}

	webCfg := web.Config{
		Port:          config.WebPort,
		Chain:         n.runtime,
		Ledger:        n.vault,
		VaultAddress:  config.VaultAddress,
		Metrics:       n.metrics,
		TxEnabled:     config.DevTxEnabled,
		FaucetEnabled: config.FaucetEnabled,
		FaucetMaxWei:  config.FaucetMaxWei,
	}
	if n.recorder != nil {
		webCfg.Persister = n.recorder
	}
	n.web = web.NewWebServer(webCfg)

	return n, nil
}

// deploy places the vault and the three venues at their configured addresses.
func (n *node) deploy() error {
	primary, err := venues.NewSwapPool(config.TokenAAddress, config.SwapPrimaryRate)
	if err != nil {
		return fmt.Errorf("primary swap venue: %w", err)
	}
	secondary, err := venues.NewSwapPool(config.TokenBAddress, config.SwapSecondaryRate)
	if err != nil {
		return fmt.Errorf("secondary swap venue: %w", err)
	}

	contracts := []struct {
		name     string
		address  common.Address
		contract chain.Contract
	}{
		{"vault", config.VaultAddress, vault.NewContract(n.vault)},
		{"swap_primary", config.SwapPrimaryAddress, primary},
		{"swap_secondary", config.SwapSecondaryAddress, secondary},
		{"lending", config.LendingAddress, venues.NewLendingPool()},
	}
	for _, c := range contracts {
		if err := n.runtime.Deploy(c.address, c.contract); err != nil {
			return fmt.Errorf("deploy %s: %w", c.name, err)
		}
		log.Info().Str("contract", c.name).Str("address", c.address.Hex()).Msg("Contract deployed")
	}
	return nil
}

// restore loads the persisted ledger and balances and reconciles the stored policy.
func (n *node) restore(ctx context.Context, policy vault.Policy) error {
	ledger, balances, err := state.LoadLedger(ctx)
	switch {
	case errors.Is(err, state.ErrLedgerNotFound):
		log.Info().Msg("No persisted ledger, starting from genesis")
		return state.ReconcilePolicy(ctx, policy, false)
	case err != nil:
		return err
	}

	if err := state.ReconcilePolicy(ctx, policy, len(ledger.Shares) > 0); err != nil {
		return err
	}
	if err := n.runtime.RestoreBalances(balances); err != nil {
		return err
	}
	if err := n.vault.Load(ledger); err != nil {
		return err
	}

	custody := n.runtime.Balance(config.VaultAddress)
	if ledger.IdleBalance.GT(custody) {
		return fmt.Errorf("%w: idle balance %s exceeds custody %s", vault.ErrInvariantViolation, ledger.IdleBalance, custody)
	}
	return nil
}

// initialize sends the one-time initialize transaction from the deployer.
func (n *node) initialize(ctx context.Context) error {
	data, err := codec.Vault.Pack(codec.MethodInitialize,
		config.SwapPrimaryAddress, config.SwapSecondaryAddress, config.LendingAddress,
		config.TokenAAddress, config.TokenBAddress)
	if err != nil {
		return err
	}
	result, err := n.runtime.SendTransaction(ctx, types.Transaction{
		From:  config.DeployerAddress,
		To:    config.VaultAddress,
		Value: sdkmath.ZeroInt(),
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	log.Info().Str("txHash", result.TxHash).Msg("Vault initialized")
	return nil
}
