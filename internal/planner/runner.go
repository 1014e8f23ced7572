package planner

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrNoAdapter          = errors.Join(types.ErrExternalAdapter, errors.New("no adapter bound to pool"))
	ErrBorrowUnsupported  = errors.Join(types.ErrExternalAdapter, errors.New("adapter does not support borrowing"))
	ErrAdapterCallFailed  = errors.Join(types.ErrExternalAdapter, errors.New("adapter call failed"))
	ErrUnknownAdapterCall = errors.Join(types.ErrExternalAdapter, errors.New("unknown adapter call kind"))
)

// Runner executes planned calls: it asks the pool's adapter for operations and hands them to
// the ledger executor. It does not snapshot; callers own atomicity.
type Runner struct {
	adapters adapter.Resolver
	exec     *ledger.Executor
	now      func() time.Time

	log zerolog.Logger
}

func NewRunner(adapters adapter.Resolver, exec *ledger.Executor) *Runner {
	return &Runner{
		adapters: adapters,
		exec:     exec,
		now:      time.Now,
		log:      logger.GetForComponent("plan_runner"),
	}
}

// Execute runs calls in order for holder and returns one receipt per call.
func (r *Runner) Execute(holder common.Address, calls []types.AdapterCall) ([]types.CallReceipt, error) {
	baselines, err := r.partialBaselines(holder, calls)
	if err != nil {
		return nil, err
	}

	receipts := make([]types.CallReceipt, 0, len(calls))
	for _, call := range calls {
		ops, err := r.plan(holder, call, baselines)
		if err != nil {
			r.log.Error().Err(err).
				Str("holder", holder.Hex()).
				Str("call", string(call.Kind)).
				Int("step", call.StepIndex).
				Str("pool", call.Pool.Hex()).
				Msg("Adapter planning failed")
			return receipts, err
		}
		if err := r.exec.Execute(holder, ops); err != nil {
			return receipts, fmt.Errorf("step %d %s: %w", call.StepIndex, call.Kind, err)
		}
		receipts = append(receipts, types.CallReceipt{Call: call, Operations: ops, Timestamp: r.now().UTC()})
	}
	return receipts, nil
}

// partialBaselines records each partially exited step's position before anything moves.
func (r *Runner) partialBaselines(holder common.Address, calls []types.AdapterCall) (map[int]sdkmath.Int, error) {
	baselines := make(map[int]sdkmath.Int)
	for _, call := range calls {
		if call.Kind != types.CallWithdrawSome {
			continue
		}
		a, err := r.adapterFor(call.Pool)
		if err != nil {
			return nil, err
		}
		pos, err := a.PositionBalance(holder, call.OutputToken, call.Pool)
		if err != nil {
			return nil, errors.Join(ErrAdapterCallFailed, fmt.Errorf("position of step %d: %w", call.StepIndex, err))
		}
		baselines[call.StepIndex] = pos
	}
	return baselines, nil
}

func (r *Runner) plan(holder common.Address, call types.AdapterCall, baselines map[int]sdkmath.Int) ([]types.Operation, error) {
	a, err := r.adapterFor(call.Pool)
	if err != nil {
		return nil, err
	}
	tokens := []common.Address{call.InputToken}

	var ops []types.Operation
	switch call.Kind {
	case types.CallDepositAll:
		ops, err = a.DepositAll(holder, tokens, call.Pool)
	case types.CallWithdrawAll:
		ops, err = a.WithdrawAll(holder, tokens, call.Pool)
	case types.CallWithdrawSome:
		var amount sdkmath.Int
		amount, err = r.partialAmount(a, holder, call, baselines[call.StepIndex])
		if err == nil && amount.IsPositive() {
			ops, err = a.WithdrawSome(holder, tokens, call.Pool, amount)
		}
	case types.CallBorrowAll, types.CallRepayAll:
		ba, ok := a.(adapter.BorrowAdapter)
		if !ok {
			return nil, fmt.Errorf("%w: %s on pool %s", ErrBorrowUnsupported, a.Name(), call.Pool.Hex())
		}
		if call.Kind == types.CallBorrowAll {
			ops, err = ba.BorrowAll(holder, call.InputToken, call.Pool, call.OutputToken)
		} else {
			ops, err = ba.RepayAll(holder, call.InputToken, call.Pool, call.OutputToken)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapterCall, call.Kind)
	}
	if err != nil {
		return nil, errors.Join(ErrAdapterCallFailed, fmt.Errorf("%s via %s on %s: %w", call.Kind, a.Name(), call.Pool.Hex(), err))
	}
	return ops, nil
}

// partialAmount is ceil(baseline * fraction) plus whatever the deeper steps returned, capped at
// the live position.
func (r *Runner) partialAmount(a adapter.Adapter, holder common.Address, call types.AdapterCall, baseline sdkmath.Int) (sdkmath.Int, error) {
	current, err := a.PositionBalance(holder, call.OutputToken, call.Pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	baseline = utils.NilToZero(baseline)
	share, err := utils.MulDivUp(baseline, call.Numerator, call.Denominator)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if returned := current.Sub(baseline); returned.IsPositive() {
		share = share.Add(returned)
	}
	return sdkmath.MinInt(share, current), nil
}

func (r *Runner) adapterFor(pool common.Address) (adapter.Adapter, error) {
	a, ok := r.adapters.AdapterOf(pool)
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, pool.Hex())
	}
	return a, nil
}
