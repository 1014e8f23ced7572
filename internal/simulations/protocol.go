/*

In-memory venues backed by the ledger. A Protocol groups yield pools and lending markets under one
adapter; it plans operations like a real venue adapter would, and executes them against the ledger
as the venue itself. Every balance a venue keeps lives in the ledger, so ledger snapshots roll
venues back together with the vault.

*/

package simulations

import (
	"errors"
	"fmt"
	"sync"

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
	ErrUnknownPool         = errors.New("pool is not part of this protocol")
	ErrWrongToken          = errors.New("token does not match pool")
	ErrUnsupportedKind     = errors.New("operation kind not supported by pool")
	ErrInsufficientReceipt = errors.New("insufficient receipt balance")
	ErrUnhealthy           = errors.New("position would exceed loan-to-value")
	ErrLiquidity           = errors.New("insufficient venue liquidity")
	ErrInvalidMarket       = errors.New("lending market is invalid")
)

var (
	_ adapter.BorrowAdapter = (*Protocol)(nil)
	_ ledger.Venue          = (*Protocol)(nil)
)

// YieldPool accepts Asset and issues Receipt tokens redeemable pro rata for the pool's Asset balance.
type YieldPool struct {
	Address common.Address `json:"address"`
	Asset   common.Address `json:"asset"`
	Receipt common.Address `json:"receipt"`
}

// Protocol is a simulated venue family.
type Protocol struct {
	name   string
	state  *ledger.State
	limits adapter.Limits

	mu       sync.RWMutex
	pools    map[common.Address]YieldPool
	markets  map[common.Address]LendingMarket
	failures map[common.Address]error

	log zerolog.Logger
}

func NewProtocol(name string, st *ledger.State, limits adapter.Limits) (*Protocol, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Protocol{
		name:     name,
		state:    st,
		limits:   limits,
		pools:    make(map[common.Address]YieldPool),
		markets:  make(map[common.Address]LendingMarket),
		failures: make(map[common.Address]error),
		log:      logger.GetForComponent("sim_" + name),
	}, nil
}

func (p *Protocol) Name() string {
	return p.name
}

// AddPool adds a yield pool.
func (p *Protocol) AddPool(pool YieldPool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[pool.Address] = pool
}

// Register binds every pool and market of the protocol on ex.
func (p *Protocol) Register(ex *ledger.Executor) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for addr := range p.pools {
		ex.Register(addr, p)
	}
	for addr := range p.markets {
		ex.Register(addr, p)
	}
}

// Fail makes every operation executed on pool return err until cleared with a nil err.
func (p *Protocol) Fail(pool common.Address, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, pool)
		return
	}
	p.failures[pool] = err
}

// Accrue credits yield of amount asset tokens to pool, raising the value of every receipt.
func (p *Protocol) Accrue(pool common.Address, amount sdkmath.Int) error {
	yp, err := p.yieldPool(pool)
	if err != nil {
		return err
	}
	return p.state.Mint(yp.Asset, pool, amount)
}

// Slash removes amount asset tokens from pool, modelling a venue loss.
func (p *Protocol) Slash(pool common.Address, amount sdkmath.Int) error {
	yp, err := p.yieldPool(pool)
	if err != nil {
		return err
	}
	return p.state.Burn(yp.Asset, pool, amount)
}

// ===== ADAPTER =====

func (p *Protocol) DepositAll(holder common.Address, tokens []common.Address, pool common.Address) ([]types.Operation, error) {
	yp, err := p.yieldPoolFor(pool, tokens)
	if err != nil {
		return nil, err
	}
	return p.planDeposit(holder, yp, p.state.BalanceOf(yp.Asset, holder))
}

func (p *Protocol) DepositSome(holder common.Address, tokens []common.Address, pool common.Address, amounts []sdkmath.Int) ([]types.Operation, error) {
	yp, err := p.yieldPoolFor(pool, tokens)
	if err != nil {
		return nil, err
	}
	if len(amounts) != 1 {
		return nil, fmt.Errorf("%w: expected 1 amount, got %d", ErrWrongToken, len(amounts))
	}
	requested := sdkmath.MinInt(utils.NilToZero(amounts[0]), p.state.BalanceOf(yp.Asset, holder))
	return p.planDeposit(holder, yp, requested)
}

func (p *Protocol) WithdrawAll(holder common.Address, tokens []common.Address, pool common.Address) ([]types.Operation, error) {
	yp, err := p.yieldPoolFor(pool, tokens)
	if err != nil {
		return nil, err
	}
	receipts := p.state.BalanceOf(yp.Receipt, holder)
	if receipts.IsZero() {
		return nil, nil
	}
	return []types.Operation{{Kind: types.OperationWithdraw, Target: pool, Token: yp.Asset, Amount: receipts}}, nil
}

func (p *Protocol) WithdrawSome(holder common.Address, tokens []common.Address, pool common.Address, amount sdkmath.Int) ([]types.Operation, error) {
	yp, err := p.yieldPoolFor(pool, tokens)
	if err != nil {
		return nil, err
	}
	amount = utils.NilToZero(amount)
	if !amount.IsPositive() {
		return nil, nil
	}
	if bal := p.state.BalanceOf(yp.Receipt, holder); bal.LT(amount) {
		return nil, fmt.Errorf("%w: holder has %s, withdrawing %s", ErrInsufficientReceipt, bal, amount)
	}
	return []types.Operation{{Kind: types.OperationWithdraw, Target: pool, Token: yp.Asset, Amount: amount}}, nil
}

func (p *Protocol) PositionBalance(holder common.Address, token common.Address, pool common.Address) (sdkmath.Int, error) {
	if yp, err := p.yieldPool(pool); err == nil {
		return p.state.BalanceOf(yp.Receipt, holder), nil
	}
	m, err := p.market(pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return p.state.BalanceOf(m.CollateralReceipt, holder), nil
}

func (p *Protocol) PoolValue(pool common.Address, token common.Address) (sdkmath.Int, error) {
	if yp, err := p.yieldPool(pool); err == nil {
		if token != yp.Asset {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the asset of %s", ErrWrongToken, token.Hex(), pool.Hex())
		}
		return p.state.BalanceOf(yp.Asset, pool), nil
	}
	m, err := p.market(pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if token != m.Collateral {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the collateral of %s", ErrWrongToken, token.Hex(), pool.Hex())
	}
	return p.state.BalanceOf(m.Collateral, pool), nil
}

// AmountInToken converts receipts of a yield pool into its asset, or borrowed-token units of a
// lending market into its collateral.
func (p *Protocol) AmountInToken(token common.Address, pool common.Address, receiptAmount sdkmath.Int) (sdkmath.Int, error) {
	receiptAmount = utils.NilToZero(receiptAmount)
	if yp, err := p.yieldPool(pool); err == nil {
		if token != yp.Asset {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the asset of %s", ErrWrongToken, token.Hex(), pool.Hex())
		}
		return p.receiptsToAssets(yp, receiptAmount), nil
	}
	m, err := p.market(pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if token != m.Collateral {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the collateral of %s", ErrWrongToken, token.Hex(), pool.Hex())
	}
	return m.toCollateral(receiptAmount), nil
}

func (p *Protocol) ReceiptToken(pool common.Address) (common.Address, error) {
	if yp, err := p.yieldPool(pool); err == nil {
		return yp.Receipt, nil
	}
	m, err := p.market(pool)
	if err != nil {
		return common.Address{}, err
	}
	return m.Borrow, nil
}

// ===== VENUE =====

// Execute applies op to the ledger as the venue.
func (p *Protocol) Execute(st *ledger.State, holder common.Address, op types.Operation) error {
	p.mu.RLock()
	failure := p.failures[op.Target]
	p.mu.RUnlock()
	if failure != nil {
		return failure
	}

	if yp, err := p.yieldPool(op.Target); err == nil {
		return p.executeYield(st, holder, yp, op)
	}
	m, err := p.market(op.Target)
	if err != nil {
		return err
	}
	return p.executeLending(st, holder, m, op)
}

func (p *Protocol) executeYield(st *ledger.State, holder common.Address, yp YieldPool, op types.Operation) error {
	if op.Token != yp.Asset {
		return fmt.Errorf("%w: %s on %s", ErrWrongToken, op.Token.Hex(), yp.Address.Hex())
	}
	switch op.Kind {
	case types.OperationDeposit:
		receipts := p.assetsToReceipts(yp, op.Amount)
		if err := st.Transfer(yp.Asset, holder, yp.Address, op.Amount); err != nil {
			return err
		}
		if receipts.IsZero() {
			return nil
		}
		return st.Mint(yp.Receipt, holder, receipts)
	case types.OperationWithdraw:
		assets := p.receiptsToAssets(yp, op.Amount)
		if err := st.Burn(yp.Receipt, holder, op.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientReceipt, err)
		}
		if assets.IsZero() {
			return nil
		}
		return st.Transfer(yp.Asset, yp.Address, holder, assets)
	default:
		return fmt.Errorf("%w: %s on yield pool %s", ErrUnsupportedKind, op.Kind, yp.Address.Hex())
	}
}

func (p *Protocol) planDeposit(holder common.Address, yp YieldPool, requested sdkmath.Int) ([]types.Operation, error) {
	poolValue := p.state.BalanceOf(yp.Asset, yp.Address)
	position := p.receiptsToAssets(yp, p.state.BalanceOf(yp.Receipt, holder))
	allowed := p.limits.Allowed(requested, position, poolValue, p.protocolValue(yp.Asset))
	if allowed.LT(requested) {
		p.log.Debug().
			Str("pool", yp.Address.Hex()).
			Str("requested", requested.String()).
			Str("allowed", allowed.String()).
			Str("mode", p.limits.Mode.String()).
			Msg("Deposit capped by exposure limit")
	}
	if !allowed.IsPositive() {
		return nil, nil
	}
	return []types.Operation{{Kind: types.OperationDeposit, Target: yp.Address, Token: yp.Asset, Amount: allowed}}, nil
}

func (p *Protocol) protocolValue(asset common.Address) sdkmath.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := sdkmath.ZeroInt()
	for addr, yp := range p.pools {
		if yp.Asset == asset {
			total = total.Add(p.state.BalanceOf(asset, addr))
		}
	}
	return total
}

// assetsToReceipts prices a deposit at the pool's current exchange rate, 1:1 for an empty pool.
func (p *Protocol) assetsToReceipts(yp YieldPool, assets sdkmath.Int) sdkmath.Int {
	supply := p.state.TotalSupply(yp.Receipt)
	held := p.state.BalanceOf(yp.Asset, yp.Address)
	if supply.IsZero() || held.IsZero() {
		return assets
	}
	return assets.Mul(supply).Quo(held)
}

func (p *Protocol) receiptsToAssets(yp YieldPool, receipts sdkmath.Int) sdkmath.Int {
	supply := p.state.TotalSupply(yp.Receipt)
	if supply.IsZero() {
		return receipts
	}
	return receipts.Mul(p.state.BalanceOf(yp.Asset, yp.Address)).Quo(supply)
}

func (p *Protocol) yieldPool(pool common.Address) (YieldPool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	yp, ok := p.pools[pool]
	if !ok {
		return YieldPool{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex())
	}
	return yp, nil
}

func (p *Protocol) yieldPoolFor(pool common.Address, tokens []common.Address) (YieldPool, error) {
	yp, err := p.yieldPool(pool)
	if err != nil {
		return YieldPool{}, err
	}
	if len(tokens) != 1 || tokens[0] != yp.Asset {
		return YieldPool{}, fmt.Errorf("%w: pool %s takes %s", ErrWrongToken, pool.Hex(), yp.Asset.Hex())
	}
	return yp, nil
}
