package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownVenue    = errors.Join(types.ErrExternalAdapter, errors.New("no venue registered for target"))
	ErrOperationFailed = errors.Join(types.ErrExternalAdapter, errors.New("venue operation failed"))
)

// Venue executes operations against the ledger on behalf of a holder.
type Venue interface {
	Execute(st *State, holder common.Address, op types.Operation) error
}

// Executor routes adapter-planned operations to the venue registered for each target pool.
type Executor struct {
	state *State

	mu     sync.RWMutex
	venues map[common.Address]Venue

	log zerolog.Logger
}

func NewExecutor(st *State) *Executor {
	return &Executor{
		state:  st,
		venues: make(map[common.Address]Venue),
		log:    logger.GetForComponent("ledger_executor"),
	}
}

// State returns the ledger the executor writes to.
func (e *Executor) State() *State {
	return e.state
}

// Register binds pool to venue, replacing any earlier binding.
func (e *Executor) Register(pool common.Address, venue Venue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venues[pool] = venue
}

// Execute runs ops in order. It stops at the first failure; the caller owns the snapshot
// that undoes the operations already applied.
func (e *Executor) Execute(holder common.Address, ops []types.Operation) error {
	for i, op := range ops {
		e.mu.RLock()
		venue, ok := e.venues[op.Target]
		e.mu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: operation %d targets %s", ErrUnknownVenue, i, op.Target.Hex())
		}
		if err := venue.Execute(e.state, holder, op); err != nil {
			e.log.Error().
				Err(err).
				Str("holder", holder.Hex()).
				Str("kind", string(op.Kind)).
				Str("target", op.Target.Hex()).
				Str("token", op.Token.Hex()).
				Str("amount", op.Amount.String()).
				Msg("Venue operation failed")
			return errors.Join(ErrOperationFailed, fmt.Errorf("operation %d (%s on %s): %w", i, op.Kind, op.Target.Hex(), err))
		}
		e.log.Debug().
			Str("holder", holder.Hex()).
			Str("kind", string(op.Kind)).
			Str("target", op.Target.Hex()).
			Str("amount", op.Amount.String()).
			Msg("Venue operation executed")
	}
	return nil
}
