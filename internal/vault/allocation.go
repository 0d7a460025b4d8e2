package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

var hundred = sdkmath.NewInt(100)

// Split divides amount into the three legs. portion_a and portion_b are floored percentages,
// half of portion_b (floored) stays idle and portion_c takes the remainder, so the parts always
// add back up to amount.
func Split(amount sdkmath.Int, params types.AllocationParameters) (types.Allocation, error) {
	if err := utils.ValidateAmount(amount); err != nil {
		return types.Allocation{}, err
	}
	if err := params.Validate(); err != nil {
		return types.Allocation{}, err
	}

	portionA, err := utils.MulDivFloor(amount, sdkmath.NewInt(params.PrimarySwapPercent), hundred)
	if err != nil {
		return types.Allocation{}, err
	}
	portionB, err := utils.MulDivFloor(amount, sdkmath.NewInt(params.SecondarySwapPercent), hundred)
	if err != nil {
		return types.Allocation{}, err
	}
	idleB := portionB.QuoRaw(2)

	return types.Allocation{
		Amount:   amount,
		PortionA: portionA,
		PortionB: portionB,
		IdleB:    idleB,
		SwapB:    portionB.Sub(idleB),
		PortionC: amount.Sub(portionA).Sub(portionB),
	}, nil
}

// Payout is floor(custody * shares / totalShares), or all of custody when totalShares is zero.
func Payout(custody, shares, totalShares sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return custody, nil
	}
	return utils.MulDivFloor(custody, shares, totalShares)
}

var (
	swapCalldata    = codec.Venue.MustPack(codec.MethodSwapETHForToken)
	lendingCalldata = codec.Venue.MustPack(codec.MethodDeposit)
)

// forwardAll sends each non-zero leg to its venue and records every outcome. Legs are
// independent: one failure does not stop the others.
func forwardAll(ctx context.Context, env Environment, cfg types.VaultConfig, alloc types.Allocation) []types.ForwardResult {
	results := make([]types.ForwardResult, 0, len(types.Legs))
	for _, leg := range types.Legs {
		result := types.ForwardResult{
			Leg:    leg,
			Venue:  cfg.VenueFor(leg),
			Token:  cfg.TokenFor(leg),
			Amount: alloc.Forwarded(leg),
		}
		if result.Amount.IsZero() {
			result.Skipped = true
			results = append(results, result)
			continue
		}

		data := swapCalldata
		if leg == types.LegLending {
			data = lendingCalldata
		}
		if _, err := env.Call(ctx, result.Venue, result.Amount, data); err != nil {
			result.Error = fmt.Sprintf("%s: %v", leg, err)
			env.Emit(types.Event{Kind: types.EventForwardFailed, Venue: result.Venue, Leg: leg, Amount: result.Amount, Error: err.Error()})
		} else {
			result.Success = true
			env.Emit(types.Event{Kind: types.EventForwarded, Venue: result.Venue, Leg: leg, Amount: result.Amount})
		}
		results = append(results, result)
	}
	return results
}
