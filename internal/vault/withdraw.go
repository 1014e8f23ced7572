package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/planner"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/elys-network/stratvault/internal/whitelist"
	"github.com/ethereum/go-ethereum/common"
)

// Withdraw burns shares held by caller and pays their value, net of the withdrawal fee, to
// beneficiary. When idle underlying does not cover the payout, the shortfall is liquidated from
// the deployed strategy first. The amount paid to beneficiary is returned.
func (v *Vault) Withdraw(caller, beneficiary common.Address, shares, minAmountOut sdkmath.Int, proof []common.Hash) (sdkmath.Int, error) {
	v.lockOperation()
	defer v.unlockOperation()

	payout, err := v.withdraw(caller, beneficiary, shares, utils.NilToZero(minAmountOut), proof)
	if err != nil {
		v.log.Warn().Err(err).
			Str("caller", caller.Hex()).
			Str("beneficiary", beneficiary.Hex()).
			Str("shares", utils.NilToZero(shares).String()).
			Msg("Withdrawal rejected")
		return sdkmath.ZeroInt(), err
	}
	return payout, nil
}

func (v *Vault) withdraw(caller, beneficiary common.Address, shares, minAmountOut sdkmath.Int, proof []common.Hash) (sdkmath.Int, error) {
	// ===== CHECKS =====
	if err := v.requireOperational(true); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	if beneficiary == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: beneficiary is the zero address", ErrInvalidAmount)
	}
	if v.config.WhitelistEnabled && !whitelist.Verify(v.whitelistRoot, caller, proof) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNotWhitelisted, caller.Hex())
	}
	if held := v.ledger.BalanceOf(v.address, caller); held.LT(shares) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s holds %s, redeeming %s", ErrInsufficientShares, caller.Hex(), held, shares)
	}

	before, err := v.valueLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	supply := v.ledger.TotalSupply(v.address)
	gross, err := utils.MulDiv(shares, before, supply)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrInsufficientShares, err)
	}
	if !gross.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s shares redeem for nothing", ErrInsufficientShares, shares)
	}

	// ===== EFFECTS =====
	snap := v.ledger.Snapshot()
	res, err := v.applyWithdraw(caller, beneficiary, shares, gross, minAmountOut)
	if err == nil {
		err = v.checkJumpWith(res.steps, before, before.Sub(res.net).Sub(res.feePaid))
	}
	if err != nil {
		v.revert(snap)
		return sdkmath.ZeroInt(), err
	}
	v.commit(snap)

	if res.unwound {
		v.investHash = common.Hash{}
		v.investSteps = nil
		v.log.Warn().Msg("Withdrawal unwound the whole strategy, vault is idle until the next rebalance")
	}
	remaining := v.userDeposit(caller).Sub(res.gross)
	if remaining.IsNegative() {
		remaining = sdkmath.ZeroInt()
	}
	v.userDeposits[caller] = remaining

	v.log.Info().
		Str("caller", caller.Hex()).
		Str("beneficiary", beneficiary.Hex()).
		Str("shares", shares.String()).
		Str("gross", res.gross.String()).
		Str("fee", res.fee.String()).
		Str("payout", res.net.String()).
		Float64("payout_units", v.units(res.net)).
		Str("liquidated", res.liquidated.String()).
		Msg("Withdrawal paid")
	return res.net, nil
}

type withdrawal struct {
	gross      sdkmath.Int
	fee        sdkmath.Int
	feePaid    sdkmath.Int
	net        sdkmath.Int
	liquidated sdkmath.Int
	unwound    bool
	steps      []types.StrategyStep // deployed steps once the withdrawal is applied
}

func (v *Vault) applyWithdraw(caller, beneficiary common.Address, shares, gross, minAmountOut sdkmath.Int) (withdrawal, error) {
	res := withdrawal{gross: gross, liquidated: sdkmath.ZeroInt(), steps: v.investSteps}
	if err := v.ledger.Burn(v.address, caller, shares); err != nil {
		return res, errors.Join(ErrInsufficientShares, err)
	}

	idleBefore := v.idle()
	if idleBefore.LT(gross) {
		unwound, err := v.liquidate(gross.Sub(idleBefore))
		if err != nil {
			return res, err
		}
		res.unwound = unwound
		if unwound {
			res.steps = nil
		}
		idleAfter := v.idle()
		res.liquidated = idleAfter.Sub(idleBefore)
		if idleAfter.LT(gross) {
			deficit := gross.Sub(idleAfter)
			if deficit.GT(v.roundingTolerance()) {
				return res, fmt.Errorf("%w: short %s after liquidating %s", ErrInsufficientLiquidity, deficit, res.liquidated)
			}
			res.gross = idleAfter
		}
	}

	res.fee = feeFor(res.gross, v.config.WithdrawalFeeFlatUT, v.config.WithdrawalFeePct)
	res.net = res.gross.Sub(res.fee)
	if res.net.LT(minAmountOut) {
		return res, fmt.Errorf("%w: %s < %s", ErrSlippage, res.net, minAmountOut)
	}
	if res.net.IsPositive() {
		if err := v.ledger.Transfer(v.underlying, v.address, beneficiary, res.net); err != nil {
			return res, errors.Join(ErrInsufficientLiquidity, err)
		}
	}
	feePaid, err := v.payTreasuries(res.fee)
	if err != nil {
		return res, err
	}
	res.feePaid = feePaid
	return res, nil
}

// liquidate frees at least shortfall of underlying from the deployed strategy, within rounding.
// Chains that cannot be partially exited are unwound completely; the result reports that case.
func (v *Vault) liquidate(shortfall sdkmath.Int) (bool, error) {
	if len(v.investSteps) == 0 {
		return false, fmt.Errorf("%w: idle balance short by %s and nothing is deployed", ErrInsufficientLiquidity, shortfall)
	}
	deployed, err := v.deployedValue(v.investSteps)
	if err != nil {
		return false, err
	}
	if !deployed.IsPositive() {
		return false, fmt.Errorf("%w: idle balance short by %s and the strategy holds no value", ErrInsufficientLiquidity, shortfall)
	}

	full := shortfall.GTE(deployed)
	var calls []types.AdapterCall
	if !full {
		calls, err = planner.PlanPartialExit(v.investSteps, v.underlying, shortfall, deployed)
		if errors.Is(err, planner.ErrPartialBorrowExit) {
			full = true
		} else if err != nil {
			return false, err
		}
	}
	if full {
		calls = planner.PlanExit(v.investSteps, v.underlying)
	}

	v.log.Debug().
		Str("shortfall", shortfall.String()).
		Str("deployed", deployed.String()).
		Bool("full_exit", full).
		Msg("Liquidating from strategy")
	if _, err := v.runner.Execute(v.address, calls); err != nil {
		return false, err
	}
	return full, nil
}

// roundingTolerance is the payout deficit absorbed after a liquidation: one raw unit per hop
// plus one for the share conversion.
func (v *Vault) roundingTolerance() sdkmath.Int {
	return sdkmath.NewInt(int64(len(v.investSteps) + 1))
}
