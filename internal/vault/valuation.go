package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/types"
)

// valueLocked returns idle underlying plus the deployed value of the current strategy.
func (v *Vault) valueLocked() (sdkmath.Int, error) {
	return v.valueWith(v.investSteps)
}

// valueWith values the vault as if steps were deployed.
func (v *Vault) valueWith(steps []types.StrategyStep) (sdkmath.Int, error) {
	deployed, err := v.deployedValue(steps)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.idle().Add(deployed), nil
}

func (v *Vault) idle() sdkmath.Int {
	return v.ledger.BalanceOf(v.underlying, v.address)
}

// deployedValue walks steps backward: the value of everything past step i, expressed in step i's
// output token, is added to step i's position and converted into step i's input token.
func (v *Vault) deployedValue(steps []types.StrategyStep) (sdkmath.Int, error) {
	carry := sdkmath.ZeroInt()
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		input := types.InputToken(steps, i, v.underlying)
		a, ok := v.deps.Pools.AdapterOf(step.Pool)
		if !ok || a == nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: step %d pool %s has no adapter", ErrValuationFailed, i, step.Pool.Hex())
		}

		if step.IsBorrow {
			ba, ok := a.(adapter.BorrowAdapter)
			if !ok {
				return sdkmath.ZeroInt(), fmt.Errorf("%w: step %d adapter %s cannot borrow", ErrValuationFailed, i, a.Name())
			}
			net, err := ba.NetPositionValue(v.address, input, step.Pool, carry)
			if err != nil {
				return sdkmath.ZeroInt(), errors.Join(ErrValuationFailed, fmt.Errorf("step %d: %w", i, err))
			}
			carry = net
			continue
		}

		position, err := a.PositionBalance(v.address, step.OutputToken, step.Pool)
		if err != nil {
			return sdkmath.ZeroInt(), errors.Join(ErrValuationFailed, fmt.Errorf("step %d position: %w", i, err))
		}
		converted, err := a.AmountInToken(input, step.Pool, position.Add(carry))
		if err != nil {
			return sdkmath.ZeroInt(), errors.Join(ErrValuationFailed, fmt.Errorf("step %d conversion: %w", i, err))
		}
		carry = converted
	}
	return carry, nil
}
