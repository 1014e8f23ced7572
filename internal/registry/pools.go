package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// LiquidityPoolRegistry is the approved-venue table with ratings and adapter bindings.
type LiquidityPoolRegistry struct {
	auth          access.Authorizer
	checkApproval bool // rating and adapter binding require prior approval

	mu       sync.RWMutex
	pools    map[common.Address]*types.LiquidityPool
	adapters map[common.Address]adapter.Adapter

	log zerolog.Logger
}

func NewLiquidityPoolRegistry(auth access.Authorizer, checkApproval bool) *LiquidityPoolRegistry {
	return &LiquidityPoolRegistry{
		auth:          auth,
		checkApproval: checkApproval,
		pools:         make(map[common.Address]*types.LiquidityPool),
		adapters:      make(map[common.Address]adapter.Adapter),
		log:           logger.GetForComponent("pool_registry"),
	}
}

// CheckApproval reports whether the approval policy is active.
func (r *LiquidityPoolRegistry) CheckApproval() bool {
	return r.checkApproval
}

// ApproveLiquidityPools approves each pool. Already-approved pools are skipped.
func (r *LiquidityPoolRegistry) ApproveLiquidityPools(caller common.Address, pools ...common.Address) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	for _, p := range pools {
		if p == (common.Address{}) {
			return fmt.Errorf("%w: pool", ErrZeroAddress)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pools {
		r.approveLocked(p)
	}
	return nil
}

// ApproveLiquidityPool approves a single pool.
func (r *LiquidityPoolRegistry) ApproveLiquidityPool(caller, pool common.Address) error {
	return r.ApproveLiquidityPools(caller, pool)
}

// RevokeLiquidityPool clears a pool's approval, keeping its rating and adapter.
func (r *LiquidityPoolRegistry) RevokeLiquidityPool(caller, pool common.Address) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lp, ok := r.pools[pool]
	if !ok || !lp.Approved {
		return nil
	}
	lp.Approved = false
	r.log.Info().Str("pool", pool.Hex()).Msg("Liquidity pool revoked")
	return nil
}

// RateLiquidityPool sets a pool's rating.
func (r *LiquidityPoolRegistry) RateLiquidityPool(caller, pool common.Address, rating uint8) error {
	return r.RateLiquidityPools(caller, []common.Address{pool}, []uint8{rating})
}

// RateLiquidityPools rates pools[i] with ratings[i]. The batch is validated before any rating is written.
func (r *LiquidityPoolRegistry) RateLiquidityPools(caller common.Address, pools []common.Address, ratings []uint8) error {
	if err := access.Require(r.auth, access.RoleRiskOperator, caller); err != nil {
		return err
	}
	if len(pools) != len(ratings) {
		return fmt.Errorf("%w: %d pools, %d ratings", ErrLengthMismatch, len(pools), len(ratings))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range pools {
		if ratings[i] > types.MaxPoolRating {
			return fmt.Errorf("%w: %d for %s (max %d)", ErrInvalidRating, ratings[i], p.Hex(), types.MaxPoolRating)
		}
		if err := r.requireApprovedLocked(p); err != nil {
			return err
		}
	}
	for i, p := range pools {
		lp := r.entryLocked(p)
		lp.Rating = ratings[i]
		r.log.Info().Str("pool", p.Hex()).Uint8("rating", ratings[i]).Msg("Liquidity pool rated")
	}
	return nil
}

// SetLiquidityPoolToAdapter binds pool to a.
func (r *LiquidityPoolRegistry) SetLiquidityPoolToAdapter(caller, pool common.Address, a adapter.Adapter) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("%w: pool %s", ErrAdapterZero, pool.Hex())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireApprovedLocked(pool); err != nil {
		return err
	}
	r.bindLocked(pool, a)
	return nil
}

// ApproveAndMapToAdapter approves pool and binds it to a in one step. Nothing is written
// when the adapter is missing.
func (r *LiquidityPoolRegistry) ApproveAndMapToAdapter(caller, pool common.Address, a adapter.Adapter) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	if pool == (common.Address{}) {
		return fmt.Errorf("%w: pool", ErrZeroAddress)
	}
	if a == nil {
		return fmt.Errorf("%w: pool %s", ErrAdapterZero, pool.Hex())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approveLocked(pool)
	r.bindLocked(pool, a)
	return nil
}

// IsApprovedLiquidityPool reports whether pool is approved.
func (r *LiquidityPoolRegistry) IsApprovedLiquidityPool(pool common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lp, ok := r.pools[pool]
	return ok && lp.Approved
}

// GetLiquidityPool returns a copy of pool's entry.
func (r *LiquidityPoolRegistry) GetLiquidityPool(pool common.Address) (types.LiquidityPool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lp, ok := r.pools[pool]
	if !ok {
		return types.LiquidityPool{}, false
	}
	return *lp, true
}

// AdapterOf returns the adapter bound to pool.
func (r *LiquidityPoolRegistry) AdapterOf(pool common.Address) (adapter.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[pool]
	return a, ok
}

// LiquidityPools returns every known pool ordered by address.
func (r *LiquidityPoolRegistry) LiquidityPools() []types.LiquidityPool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.LiquidityPool, 0, len(r.pools))
	for _, lp := range r.pools {
		out = append(out, *lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out
}

func (r *LiquidityPoolRegistry) requireApprovedLocked(pool common.Address) error {
	if !r.checkApproval {
		return nil
	}
	if lp, ok := r.pools[pool]; !ok || !lp.Approved {
		return fmt.Errorf("%w: %s", ErrPoolNotApproved, pool.Hex())
	}
	return nil
}

func (r *LiquidityPoolRegistry) entryLocked(pool common.Address) *types.LiquidityPool {
	lp, ok := r.pools[pool]
	if !ok {
		lp = &types.LiquidityPool{Address: pool}
		r.pools[pool] = lp
	}
	return lp
}

func (r *LiquidityPoolRegistry) approveLocked(pool common.Address) {
	lp := r.entryLocked(pool)
	if lp.Approved {
		return
	}
	lp.Approved = true
	r.log.Info().Str("pool", pool.Hex()).Msg("Liquidity pool approved")
}

func (r *LiquidityPoolRegistry) bindLocked(pool common.Address, a adapter.Adapter) {
	lp := r.entryLocked(pool)
	lp.Adapter = a.Name()
	r.adapters[pool] = a
	r.log.Info().Str("pool", pool.Hex()).Str("adapter", a.Name()).Msg("Liquidity pool mapped to adapter")
}
