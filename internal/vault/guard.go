package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
)

// checkValueJump rejects a change whose resulting value deviates from the expected value by more
// than maxBps of the value before the change. maxBps of zero disables the check, as does an
// empty vault.
func checkValueJump(maxBps uint16, before, expected, after sdkmath.Int) error {
	if maxBps == 0 || !before.IsPositive() {
		return nil
	}
	deviation := utils.AbsDiff(after, expected)
	if deviation.MulRaw(int64(types.BasisPoints)).GT(before.MulRaw(int64(maxBps))) {
		return fmt.Errorf("%w: value %s, expected %s, band %d bps of %s", ErrMaxValueJumpExceeded, after, expected, maxBps, before)
	}
	return nil
}

// checkJumpWith values the vault with steps deployed and applies the guard.
func (v *Vault) checkJumpWith(steps []types.StrategyStep, before, expected sdkmath.Int) error {
	after, err := v.valueWith(steps)
	if err != nil {
		return err
	}
	return checkValueJump(v.config.MaxVaultValueJump, before, expected, after)
}
