/*

Entry and exit planning for step chains. Planning is pure: it orders adapter calls from the steps
alone, and amounts are resolved when a call runs, since each hop consumes what the previous hop
produced. Entry runs forward from the underlying token; exit runs in reverse, deepest hop first.

*/

package planner

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidFraction   = errors.Join(types.ErrConfiguration, errors.New("exit fraction must be in (0, 1]"))
	ErrPartialBorrowExit = errors.Join(types.ErrConfiguration, errors.New("borrow steps cannot be partially exited"))
)

// PlanEntry returns the calls deploying idle underlying into steps, in forward order.
func PlanEntry(steps []types.StrategyStep, underlying common.Address) []types.AdapterCall {
	calls := make([]types.AdapterCall, 0, len(steps))
	for i, s := range steps {
		kind := types.CallDepositAll
		if s.IsBorrow {
			kind = types.CallBorrowAll
		}
		calls = append(calls, types.AdapterCall{
			Kind:        kind,
			StepIndex:   i,
			Pool:        s.Pool,
			InputToken:  types.InputToken(steps, i, underlying),
			OutputToken: s.OutputToken,
		})
	}
	return calls
}

// PlanExit returns the calls unwinding steps back to underlying, deepest step first.
func PlanExit(steps []types.StrategyStep, underlying common.Address) []types.AdapterCall {
	calls := make([]types.AdapterCall, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		kind := types.CallWithdrawAll
		if s.IsBorrow {
			kind = types.CallRepayAll
		}
		calls = append(calls, types.AdapterCall{
			Kind:        kind,
			StepIndex:   i,
			Pool:        s.Pool,
			InputToken:  types.InputToken(steps, i, underlying),
			OutputToken: s.OutputToken,
		})
	}
	return calls
}

// PlanPartialExit returns the calls withdrawing numerator/denominator of every step's position,
// deepest step first. Each step also passes on everything the deeper step returned to it.
// A full fraction is planned as a full exit.
func PlanPartialExit(steps []types.StrategyStep, underlying common.Address, numerator, denominator sdkmath.Int) ([]types.AdapterCall, error) {
	if numerator.IsNil() || denominator.IsNil() || !numerator.IsPositive() || !denominator.IsPositive() || numerator.GT(denominator) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInvalidFraction, numerator, denominator)
	}
	if numerator.Equal(denominator) {
		return PlanExit(steps, underlying), nil
	}
	for i, s := range steps {
		if s.IsBorrow {
			return nil, fmt.Errorf("%w: step %d", ErrPartialBorrowExit, i)
		}
	}
	calls := make([]types.AdapterCall, 0, len(steps))
	for i := len(steps) - 1; i >= 0; i-- {
		calls = append(calls, types.AdapterCall{
			Kind:        types.CallWithdrawSome,
			StepIndex:   i,
			Pool:        steps[i].Pool,
			InputToken:  types.InputToken(steps, i, underlying),
			OutputToken: steps[i].OutputToken,
			Numerator:   numerator,
			Denominator: denominator,
		})
	}
	return calls, nil
}
