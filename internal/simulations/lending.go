package simulations

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// LendingMarket lends Borrow against Collateral at a fixed oracle price.
// Posted collateral is tracked as CollateralReceipt, debt as DebtToken, both 1:1 ledger tokens.
type LendingMarket struct {
	Address           common.Address `json:"address"`
	Collateral        common.Address `json:"collateral"`
	Borrow            common.Address `json:"borrow"`
	CollateralReceipt common.Address `json:"collateral_receipt"`
	DebtToken         common.Address `json:"debt_token"`
	LTVBps            uint16         `json:"ltv_bps"`
	PriceNum          sdkmath.Int    `json:"price_num"` // Borrow units per PriceDen collateral units
	PriceDen          sdkmath.Int    `json:"price_den"`
}

func (m LendingMarket) toBorrow(collateral sdkmath.Int) sdkmath.Int {
	return collateral.Mul(m.PriceNum).Quo(m.PriceDen)
}

func (m LendingMarket) toCollateral(borrow sdkmath.Int) sdkmath.Int {
	return borrow.Mul(m.PriceDen).Quo(m.PriceNum)
}

// maxDebt is the debt collateral can carry, in borrowed units.
func (m LendingMarket) maxDebt(collateral sdkmath.Int) sdkmath.Int {
	return utils.BasisPointsOf(m.toBorrow(collateral), m.LTVBps)
}

// AddMarket adds a lending market. A nil price defaults to 1:1.
func (p *Protocol) AddMarket(m LendingMarket) error {
	if m.PriceNum.IsNil() || m.PriceDen.IsNil() {
		m.PriceNum, m.PriceDen = sdkmath.OneInt(), sdkmath.OneInt()
	}
	if !m.PriceNum.IsPositive() || !m.PriceDen.IsPositive() {
		return fmt.Errorf("%w: market %s price must be positive", ErrInvalidMarket, m.Address.Hex())
	}
	if m.LTVBps >= types.BasisPoints {
		return fmt.Errorf("%w: market %s ltv %d bps", ErrInvalidMarket, m.Address.Hex(), m.LTVBps)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[m.Address] = m
	return nil
}

func (p *Protocol) market(pool common.Address) (LendingMarket, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.markets[pool]
	if !ok {
		return LendingMarket{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool.Hex())
	}
	return m, nil
}

func (p *Protocol) marketFor(pool, collateral, borrowToken common.Address) (LendingMarket, error) {
	m, err := p.market(pool)
	if err != nil {
		return LendingMarket{}, err
	}
	if m.Collateral != collateral || m.Borrow != borrowToken {
		return LendingMarket{}, fmt.Errorf("%w: market %s lends %s against %s", ErrWrongToken, pool.Hex(), m.Borrow.Hex(), m.Collateral.Hex())
	}
	return m, nil
}

// ===== BORROW ADAPTER =====

func (p *Protocol) BorrowAll(holder common.Address, collateral common.Address, pool common.Address, borrowToken common.Address) ([]types.Operation, error) {
	m, err := p.marketFor(pool, collateral, borrowToken)
	if err != nil {
		return nil, err
	}
	posted := p.state.BalanceOf(m.CollateralReceipt, holder)
	requested := p.state.BalanceOf(collateral, holder)
	amount := p.limits.Allowed(requested, posted, p.state.BalanceOf(collateral, pool), p.state.BalanceOf(collateral, pool))

	var ops []types.Operation
	if amount.IsPositive() {
		ops = append(ops, types.Operation{Kind: types.OperationDeposit, Target: pool, Token: collateral, Amount: amount})
		posted = posted.Add(amount)
	}
	borrow := m.maxDebt(posted).Sub(p.state.BalanceOf(m.DebtToken, holder))
	if available := p.state.BalanceOf(borrowToken, pool); borrow.GT(available) {
		borrow = available
	}
	if borrow.IsPositive() {
		ops = append(ops, types.Operation{Kind: types.OperationBorrow, Target: pool, Token: borrowToken, Amount: borrow})
	}
	return ops, nil
}

// RepayAll settles the holder's debt with every borrowed token it holds and releases the collateral.
// A surplus is credited as collateral at the oracle price; a deficit is seized from collateral.
func (p *Protocol) RepayAll(holder common.Address, collateral common.Address, pool common.Address, borrowToken common.Address) ([]types.Operation, error) {
	m, err := p.marketFor(pool, collateral, borrowToken)
	if err != nil {
		return nil, err
	}
	held := p.state.BalanceOf(borrowToken, holder)
	debt := p.state.BalanceOf(m.DebtToken, holder)
	var ops []types.Operation
	if held.IsPositive() || debt.IsPositive() {
		ops = append(ops, types.Operation{Kind: types.OperationRepay, Target: pool, Token: borrowToken, Amount: held})
	}
	// collateral released after settlement
	release := p.state.BalanceOf(m.CollateralReceipt, holder)
	switch {
	case held.GT(debt):
		release = release.Add(m.toCollateral(held.Sub(debt)))
	case debt.GT(held):
		release = release.Sub(sdkmath.MinInt(release, ceilToCollateral(m, debt.Sub(held))))
	}
	if release.IsPositive() {
		ops = append(ops, types.Operation{Kind: types.OperationWithdraw, Target: pool, Token: collateral, Amount: release})
	}
	return ops, nil
}

func (p *Protocol) NetPositionValue(holder common.Address, collateral common.Address, pool common.Address, downstream sdkmath.Int) (sdkmath.Int, error) {
	m, err := p.market(pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if m.Collateral != collateral {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the collateral of %s", ErrWrongToken, collateral.Hex(), pool.Hex())
	}
	assets := utils.NilToZero(downstream).Add(p.state.BalanceOf(m.Borrow, holder))
	debt := p.state.BalanceOf(m.DebtToken, holder)
	net := p.state.BalanceOf(m.CollateralReceipt, holder)
	if assets.GTE(debt) {
		net = net.Add(m.toCollateral(assets.Sub(debt)))
	} else {
		net = net.Sub(ceilToCollateral(m, debt.Sub(assets)))
	}
	if net.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return net, nil
}

func (p *Protocol) executeLending(st *ledger.State, holder common.Address, m LendingMarket, op types.Operation) error {
	switch op.Kind {
	case types.OperationDeposit:
		if op.Token != m.Collateral {
			return fmt.Errorf("%w: deposit %s into %s", ErrWrongToken, op.Token.Hex(), m.Address.Hex())
		}
		if err := st.Transfer(m.Collateral, holder, m.Address, op.Amount); err != nil {
			return err
		}
		return st.Mint(m.CollateralReceipt, holder, op.Amount)

	case types.OperationBorrow:
		if op.Token != m.Borrow {
			return fmt.Errorf("%w: borrow %s from %s", ErrWrongToken, op.Token.Hex(), m.Address.Hex())
		}
		debt := st.BalanceOf(m.DebtToken, holder).Add(op.Amount)
		if debt.GT(m.maxDebt(st.BalanceOf(m.CollateralReceipt, holder))) {
			return fmt.Errorf("%w: debt %s", ErrUnhealthy, debt)
		}
		if err := st.Transfer(m.Borrow, m.Address, holder, op.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrLiquidity, err)
		}
		return st.Mint(m.DebtToken, holder, op.Amount)

	case types.OperationRepay:
		if op.Token != m.Borrow {
			return fmt.Errorf("%w: repay %s to %s", ErrWrongToken, op.Token.Hex(), m.Address.Hex())
		}
		return p.settle(st, holder, m, utils.NilToZero(op.Amount))

	case types.OperationWithdraw:
		if op.Token != m.Collateral {
			return fmt.Errorf("%w: withdraw %s from %s", ErrWrongToken, op.Token.Hex(), m.Address.Hex())
		}
		remaining := st.BalanceOf(m.CollateralReceipt, holder).Sub(op.Amount)
		if remaining.IsNegative() {
			return fmt.Errorf("%w: withdrawing %s collateral", ErrInsufficientReceipt, op.Amount)
		}
		if st.BalanceOf(m.DebtToken, holder).GT(m.maxDebt(remaining)) {
			return fmt.Errorf("%w: withdrawal leaves debt uncovered", ErrUnhealthy)
		}
		if err := st.Burn(m.CollateralReceipt, holder, op.Amount); err != nil {
			return err
		}
		if err := st.Transfer(m.Collateral, m.Address, holder, op.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrLiquidity, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s on lending market %s", ErrUnsupportedKind, op.Kind, m.Address.Hex())
	}
}

// settle takes paid borrowed tokens from holder, clears the debt and squares any difference
// against the holder's collateral.
func (p *Protocol) settle(st *ledger.State, holder common.Address, m LendingMarket, paid sdkmath.Int) error {
	debt := st.BalanceOf(m.DebtToken, holder)
	if paid.IsPositive() {
		if err := st.Transfer(m.Borrow, holder, m.Address, paid); err != nil {
			return err
		}
	}
	if debt.IsPositive() {
		if err := st.Burn(m.DebtToken, holder, debt); err != nil {
			return err
		}
	}
	switch {
	case paid.GT(debt):
		credit := m.toCollateral(paid.Sub(debt))
		if credit.IsPositive() {
			return st.Mint(m.CollateralReceipt, holder, credit)
		}
	case debt.GT(paid):
		seize := sdkmath.MinInt(st.BalanceOf(m.CollateralReceipt, holder), ceilToCollateral(m, debt.Sub(paid)))
		if seize.IsPositive() {
			return st.Burn(m.CollateralReceipt, holder, seize)
		}
	}
	return nil
}

func ceilToCollateral(m LendingMarket, borrow sdkmath.Int) sdkmath.Int {
	v, err := utils.MulDivUp(borrow, m.PriceDen, m.PriceNum)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return v
}
