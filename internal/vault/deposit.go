package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/elys-network/stratvault/internal/whitelist"
	"github.com/ethereum/go-ethereum/common"
)

// Deposit takes amountUT of underlying from caller and mints shares to beneficiary at the current
// price per share, net of the deposit fee. The minted share amount is returned.
func (v *Vault) Deposit(caller, beneficiary common.Address, amountUT, minSharesOut sdkmath.Int, proof []common.Hash) (sdkmath.Int, error) {
	v.lockOperation()
	defer v.unlockOperation()

	shares, err := v.deposit(caller, beneficiary, amountUT, utils.NilToZero(minSharesOut), proof)
	if err != nil {
		v.log.Warn().Err(err).
			Str("caller", caller.Hex()).
			Str("beneficiary", beneficiary.Hex()).
			Str("amount", utils.NilToZero(amountUT).String()).
			Msg("Deposit rejected")
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

func (v *Vault) deposit(caller, beneficiary common.Address, amount, minSharesOut sdkmath.Int, proof []common.Hash) (sdkmath.Int, error) {
	// ===== CHECKS =====
	if err := v.requireOperational(false); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), ErrInvalidAmount
	}
	if beneficiary == (common.Address{}) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: beneficiary is the zero address", ErrInvalidAmount)
	}
	if v.config.WhitelistEnabled && !whitelist.Verify(v.whitelistRoot, caller, proof) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrNotWhitelisted, caller.Hex())
	}
	if min := utils.NilToZero(v.limits.MinimumDepositValueUT); amount.LT(min) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s < %s", ErrBelowMinimumDeposit, amount, min)
	}

	before, err := v.valueLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if limit := utils.NilToZero(v.limits.TotalValueLockedLimitUT); limit.IsPositive() && before.Add(amount).GT(limit) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s + %s > %s", ErrTVLLimitExceeded, before, amount, limit)
	}
	userTotal := v.userDeposit(beneficiary).Add(amount)
	if userCap := utils.NilToZero(v.limits.UserDepositCapUT); userCap.IsPositive() && userTotal.GT(userCap) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s > %s", ErrUserDepositCapExceeded, userTotal, userCap)
	}
	if bal := v.ledger.BalanceOf(v.underlying, caller); bal.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s holds %s", ErrInsufficientFunds, caller.Hex(), bal)
	}

	// ===== SHARE MATH =====
	fee := feeFor(amount, v.config.DepositFeeFlatUT, v.config.DepositFeePct)
	net := amount.Sub(fee)
	supply := v.ledger.TotalSupply(v.address)
	var shares sdkmath.Int
	switch {
	case supply.IsZero():
		shares = net
	case before.IsZero():
		return sdkmath.ZeroInt(), ErrVaultInsolvent
	default:
		if shares, err = utils.MulDiv(net, supply, before); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: net deposit %s", ErrZeroShares, net)
	}
	if shares.LT(minSharesOut) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s shares < %s", ErrSlippage, shares, minSharesOut)
	}

	// ===== EFFECTS =====
	snap := v.ledger.Snapshot()
	feePaid, err := v.applyDeposit(caller, beneficiary, amount, fee, shares)
	if err == nil {
		err = v.checkJumpWith(v.investSteps, before, before.Add(amount).Sub(feePaid))
	}
	if err != nil {
		v.revert(snap)
		return sdkmath.ZeroInt(), err
	}
	v.commit(snap)
	v.userDeposits[beneficiary] = userTotal

	v.log.Info().
		Str("caller", caller.Hex()).
		Str("beneficiary", beneficiary.Hex()).
		Str("amount", amount.String()).
		Float64("amount_units", v.units(amount)).
		Str("fee", fee.String()).
		Str("shares", shares.String()).
		Msg("Deposit accepted")
	return shares, nil
}

func (v *Vault) applyDeposit(caller, beneficiary common.Address, amount, fee, shares sdkmath.Int) (sdkmath.Int, error) {
	if err := v.ledger.Transfer(v.underlying, caller, v.address, amount); err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrInsufficientFunds, err)
	}
	feePaid, err := v.payTreasuries(fee)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := v.ledger.Mint(v.address, beneficiary, shares); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: mint shares: %w", types.ErrState, err)
	}
	return feePaid, nil
}

// feeFor returns flat + amount*pct, never more than amount.
func feeFor(amount, flat sdkmath.Int, pct uint16) sdkmath.Int {
	fee := utils.NilToZero(flat).Add(utils.BasisPointsOf(amount, pct))
	return sdkmath.MinInt(fee, amount)
}

// payTreasuries splits fee across the treasury shares; the last treasury receives the rounding
// remainder. With no treasuries configured the fee stays in the vault. Returns the amount paid out.
func (v *Vault) payTreasuries(fee sdkmath.Int) (sdkmath.Int, error) {
	shares := v.config.TreasuryShares
	if !fee.IsPositive() || len(shares) == 0 {
		return sdkmath.ZeroInt(), nil
	}
	remaining := fee
	for i, s := range shares {
		part := utils.BasisPointsOf(fee, s.Share)
		if i == len(shares)-1 {
			part = remaining
		}
		if !part.IsPositive() {
			continue
		}
		if err := v.ledger.Transfer(v.underlying, v.address, s.Treasury, part); err != nil {
			return sdkmath.ZeroInt(), errors.Join(ErrInsufficientLiquidity, fmt.Errorf("treasury %s: %w", s.Treasury.Hex(), err))
		}
		remaining = remaining.Sub(part)
	}
	return fee, nil
}

// lockOperation claims the shared ledger, then the vault. Composite operations of different
// vaults on one ledger therefore never interleave, and a revert only undoes the caller's writes.
func (v *Vault) lockOperation() {
	v.ledger.LockOperation()
	v.mu.Lock()
}

func (v *Vault) unlockOperation() {
	v.mu.Unlock()
	v.ledger.UnlockOperation()
}

func (v *Vault) revert(snap int) {
	if err := v.ledger.RevertToSnapshot(snap); err != nil {
		// only reachable if a nested caller dropped our snapshot
		v.log.Error().Err(err).Int("snapshot", snap).Msg("Ledger revert failed")
	}
}

func (v *Vault) commit(snap int) {
	if err := v.ledger.Commit(snap); err != nil {
		v.log.Error().Err(err).Int("snapshot", snap).Msg("Ledger commit failed")
	}
}
