package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/planner"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Rebalance moves deployed value from the current strategy to the one recommended for the
// vault's risk profile and token identity. Old steps are unwound deepest first, the freed
// underlying is deployed into the new steps in order, and any failure reverts the whole call.
// It returns nil when the vault already follows the recommendation.
func (v *Vault) Rebalance(caller common.Address) (*types.RebalanceSnapshot, error) {
	if err := access.Require(v.deps.Auth, access.RoleOperator, caller); err != nil {
		return nil, err
	}
	v.lockOperation()
	defer v.unlockOperation()

	if err := v.requireOperational(false); err != nil {
		return nil, err
	}
	if len(v.deps.Tokens.GetTokensHashToTokenList(v.tokensHash)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvableStrategy, v.tokensHash.Hex())
	}

	nextSteps := v.deps.Strategies.GetBestStrategy(v.config.RiskProfileCode, v.tokensHash)
	nextHash := registry.StrategyHash(v.tokensHash, nextSteps)
	if nextHash == v.investHash {
		v.log.Debug().Str("strategy", nextHash.Hex()).Msg("Vault already follows the recommended strategy")
		return nil, nil
	}
	if err := v.validateSteps(nextSteps); err != nil {
		v.log.Warn().Err(err).Str("strategy", nextHash.Hex()).Msg("Recommended strategy rejected")
		return nil, err
	}

	rebalanceID := v.newID()
	log := v.log.With().Str("rebalance_id", rebalanceID).Logger()
	log.Info().
		Str("from", v.investHash.Hex()).
		Str("to", nextHash.Hex()).
		Int("steps", len(nextSteps)).
		Msg("Starting rebalance")

	before, err := v.valueLocked()
	if err != nil {
		return nil, err
	}

	snap := v.ledger.Snapshot()
	receipts, err := v.migrate(nextSteps)
	var after sdkmath.Int
	if err == nil {
		after, err = v.valueWith(nextSteps)
	}
	if err == nil {
		err = checkValueJump(v.config.MaxVaultValueJump, before, before, after)
	}
	if err != nil {
		v.revert(snap)
		log.Error().Err(err).Msg("Rebalance aborted, no changes committed")
		return nil, err
	}
	v.commit(snap)

	snapshot := types.RebalanceSnapshot{
		RebalanceID:     rebalanceID,
		RebalanceNumber: v.rebalanceCount + 1,
		Vault:           v.address,
		Underlying:      v.underlying,
		Timestamp:       v.now().UTC(),
		FromStrategy:    v.investHash,
		ToStrategy:      nextHash,
		ValueBeforeUT:   before,
		ValueAfterUT:    after,
		IdleAfterUT:     v.idle(),
		TotalSupply:     v.ledger.TotalSupply(v.address),
		Receipts:        receipts,
	}
	v.investHash = nextHash
	v.investSteps = types.CopySteps(nextSteps)
	v.rebalanceCount++

	if v.deps.Recorder != nil {
		id, err := v.deps.Recorder.SaveRebalanceSnapshot(snapshot)
		if err != nil {
			log.Error().Err(err).Msg("Failed to record rebalance snapshot")
		} else {
			snapshot.SnapshotID = id
		}
	}

	log.Info().
		Str("strategy", nextHash.Hex()).
		Str("value_before", before.String()).
		Str("value_after", after.String()).
		Float64("value_after_units", v.units(after)).
		Str("idle_after", snapshot.IdleAfterUT.String()).
		Int("calls", len(receipts)).
		Msg("Rebalance committed")
	return &snapshot, nil
}

// migrate unwinds the deployed steps, settles, and deploys idle underlying into next.
func (v *Vault) migrate(next []types.StrategyStep) ([]types.CallReceipt, error) {
	receipts, err := v.runner.Execute(v.address, planner.PlanExit(v.investSteps, v.underlying))
	if err != nil {
		return nil, fmt.Errorf("unwind: %w", err)
	}
	v.settle()
	if len(next) == 0 {
		return receipts, nil
	}
	entered, err := v.runner.Execute(v.address, planner.PlanEntry(next, v.underlying))
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	return append(receipts, entered...), nil
}

// settle runs between unwind and deploy. Fees are charged on deposit and withdrawal, so there
// is nothing to harvest; the idle balance is logged for reconciliation.
func (v *Vault) settle() {
	v.log.Debug().Str("idle", v.idle().String()).Msg("Strategy unwound")
}

// validateSteps checks a recommendation against the registries and the vault's risk profile
// before any adapter is called.
func (v *Vault) validateSteps(steps []types.StrategyStep) error {
	if len(steps) == 0 {
		return nil
	}
	profile, ok := v.deps.RiskProfiles.GetRiskProfile(v.config.RiskProfileCode)
	if !ok {
		return fmt.Errorf("%w: code %d", ErrUnknownRiskProfile, v.config.RiskProfileCode)
	}
	for i, s := range steps {
		if s.OutputToken == (common.Address{}) {
			return fmt.Errorf("%w: step %d", ErrStepInvalidOutput, i)
		}
		pool, ok := v.deps.Pools.GetLiquidityPool(s.Pool)
		if !ok || !pool.Approved {
			return fmt.Errorf("%w: step %d pool %s", ErrStepNotApproved, i, s.Pool.Hex())
		}
		if !profile.Eligible(pool.Rating) {
			return fmt.Errorf("%w: step %d pool %s rated %d, profile %q accepts %d..%d",
				ErrStepRatingIneligible, i, s.Pool.Hex(), pool.Rating, profile.Name, profile.LowerRating, profile.UpperRating)
		}
		a, ok := v.deps.Pools.AdapterOf(s.Pool)
		if !ok || a == nil {
			return fmt.Errorf("%w: step %d pool %s", ErrStepAdapterUnbound, i, s.Pool.Hex())
		}
		if s.IsBorrow {
			if !profile.CanBorrow {
				return fmt.Errorf("%w: step %d, profile %q", ErrBorrowNotAllowed, i, profile.Name)
			}
			if _, ok := a.(adapter.BorrowAdapter); !ok {
				return fmt.Errorf("%w: step %d adapter %s cannot borrow", ErrStepAdapterUnbound, i, a.Name())
			}
		}
	}
	return nil
}

// SetEmergencyShutdown enters or leaves emergency shutdown. Entering unwinds every deployed
// step back to idle underlying in one atomic call and leaves the vault idle; deposits and
// rebalances are rejected until shutdown is lifted, withdrawals keep working.
func (v *Vault) SetEmergencyShutdown(caller common.Address, shutdown bool) error {
	if err := access.Require(v.deps.Auth, access.RoleGovernance, caller); err != nil {
		return err
	}
	v.lockOperation()
	defer v.unlockOperation()

	switch {
	case v.state == types.VaultUninitialized:
		return ErrNotInitialized
	case shutdown == (v.state == types.VaultEmergencyShutdown):
		return nil
	case !shutdown:
		v.state = types.VaultActive
		v.config.EmergencyShutdown = false
		v.log.Warn().Str("caller", caller.Hex()).Msg("Emergency shutdown lifted")
		return nil
	}

	snap := v.ledger.Snapshot()
	if _, err := v.runner.Execute(v.address, planner.PlanExit(v.investSteps, v.underlying)); err != nil {
		v.revert(snap)
		v.log.Error().Err(err).Msg("Emergency unwind failed, vault state unchanged")
		return err
	}
	v.commit(snap)

	from := v.investHash
	v.investHash = common.Hash{}
	v.investSteps = nil
	v.state = types.VaultEmergencyShutdown
	v.config.EmergencyShutdown = true
	v.log.Warn().
		Str("caller", caller.Hex()).
		Str("from", from.Hex()).
		Str("idle", v.idle().String()).
		Msg("Emergency shutdown, strategy unwound")
	return nil
}
