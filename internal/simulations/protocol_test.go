package simulations

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc   = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	weth   = common.HexToAddress("0x000000000000000000000000000000000000e7e0")
	holder = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	other  = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	poolA  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	rcptA  = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	market = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	cRcpt  = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	debt   = common.HexToAddress("0x0000000000000000000000000000000000000c03")
)

func setup(t *testing.T, limits adapter.Limits) (*ledger.State, *ledger.Executor, *Protocol) {
	t.Helper()
	st := ledger.NewState()
	ex := ledger.NewExecutor(st)
	proto, err := NewProtocol("sim", st, limits)
	require.NoError(t, err)
	proto.AddPool(YieldPool{Address: poolA, Asset: usdc, Receipt: rcptA})
	proto.Register(ex)
	return st, ex, proto
}

func run(t *testing.T, ex *ledger.Executor, ops []types.Operation, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, ex.Execute(holder, ops))
}

func TestYieldPoolRoundTrip(t *testing.T) {
	st, ex, proto := setup(t, adapter.Limits{Mode: adapter.LimitNone})
	require.NoError(t, st.Mint(usdc, holder, sdkmath.NewInt(1_000)))

	ops, err := proto.DepositAll(holder, []common.Address{usdc}, poolA)
	run(t, ex, ops, err)
	assert.True(t, st.BalanceOf(usdc, holder).IsZero())
	assert.Equal(t, "1000", st.BalanceOf(rcptA, holder).String())

	// yield doubles the receipt value
	require.NoError(t, proto.Accrue(poolA, sdkmath.NewInt(1_000)))
	value, err := proto.AmountInToken(usdc, poolA, st.BalanceOf(rcptA, holder))
	require.NoError(t, err)
	assert.Equal(t, "2000", value.String())

	ops, err = proto.WithdrawSome(holder, []common.Address{usdc}, poolA, sdkmath.NewInt(250))
	run(t, ex, ops, err)
	assert.Equal(t, "500", st.BalanceOf(usdc, holder).String())

	ops, err = proto.WithdrawAll(holder, []common.Address{usdc}, poolA)
	run(t, ex, ops, err)
	assert.Equal(t, "2000", st.BalanceOf(usdc, holder).String())
	assert.True(t, st.TotalSupply(rcptA).IsZero())

	ops, err = proto.WithdrawAll(holder, []common.Address{usdc}, poolA)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDepositCappedLeavesExcessIdle(t *testing.T) {
	st, ex, proto := setup(t, adapter.Limits{Mode: adapter.LimitAbsolute, Absolute: sdkmath.NewInt(300)})
	require.NoError(t, st.Mint(usdc, holder, sdkmath.NewInt(1_000)))

	ops, err := proto.DepositAll(holder, []common.Address{usdc}, poolA)
	run(t, ex, ops, err)
	assert.Equal(t, "700", st.BalanceOf(usdc, holder).String())
	assert.Equal(t, "300", st.BalanceOf(rcptA, holder).String())

	ops, err = proto.DepositSome(holder, []common.Address{usdc}, poolA, []sdkmath.Int{sdkmath.NewInt(100)})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestPlanningRejectsWrongToken(t *testing.T) {
	_, _, proto := setup(t, adapter.Limits{})
	_, err := proto.DepositAll(holder, []common.Address{weth}, poolA)
	assert.ErrorIs(t, err, ErrWrongToken)
	_, err = proto.DepositAll(holder, []common.Address{usdc}, market)
	assert.ErrorIs(t, err, ErrUnknownPool)
	_, err = proto.WithdrawSome(holder, []common.Address{usdc}, poolA, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientReceipt)
}

func TestFailInjection(t *testing.T) {
	st, ex, proto := setup(t, adapter.Limits{})
	require.NoError(t, st.Mint(usdc, holder, sdkmath.NewInt(10)))
	proto.Fail(poolA, errors.New("paused"))

	ops, err := proto.DepositAll(holder, []common.Address{usdc}, poolA)
	require.NoError(t, err)
	err = ex.Execute(holder, ops)
	assert.ErrorIs(t, err, types.ErrExternalAdapter)
	assert.Equal(t, "10", st.BalanceOf(usdc, holder).String())

	proto.Fail(poolA, nil)
	require.NoError(t, ex.Execute(holder, ops))
}

func TestLendingBorrowAndRepay(t *testing.T) {
	st, ex, proto := setup(t, adapter.Limits{})
	require.NoError(t, proto.AddMarket(LendingMarket{
		Address:           market,
		Collateral:        usdc,
		Borrow:            weth,
		CollateralReceipt: cRcpt,
		DebtToken:         debt,
		LTVBps:            5_000,
		PriceNum:          sdkmath.NewInt(1),
		PriceDen:          sdkmath.NewInt(2), // 1 weth per 2 usdc
	}))
	proto.Register(ex)
	require.NoError(t, st.Mint(weth, market, sdkmath.NewInt(10_000)))
	require.NoError(t, st.Mint(usdc, market, sdkmath.NewInt(10_000)))
	require.NoError(t, st.Mint(usdc, holder, sdkmath.NewInt(1_000)))

	ops, err := proto.BorrowAll(holder, usdc, market, weth)
	run(t, ex, ops, err)
	// 1000 usdc is worth 500 weth, half of it may be borrowed
	assert.Equal(t, "250", st.BalanceOf(weth, holder).String())
	assert.Equal(t, "250", st.BalanceOf(debt, holder).String())

	net, err := proto.NetPositionValue(holder, usdc, market, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, "1000", net.String())

	// downstream gains 50 weth
	require.NoError(t, st.Mint(weth, holder, sdkmath.NewInt(50)))
	net, err = proto.NetPositionValue(holder, usdc, market, sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, "1100", net.String())

	ops, err = proto.RepayAll(holder, usdc, market, weth)
	run(t, ex, ops, err)
	assert.Equal(t, "1100", st.BalanceOf(usdc, holder).String())
	assert.True(t, st.BalanceOf(weth, holder).IsZero())
	assert.True(t, st.BalanceOf(debt, holder).IsZero())
	assert.True(t, st.BalanceOf(cRcpt, holder).IsZero())
}

func TestLendingRepayDeficitSeizesCollateral(t *testing.T) {
	st, ex, proto := setup(t, adapter.Limits{})
	require.NoError(t, proto.AddMarket(LendingMarket{
		Address: market, Collateral: usdc, Borrow: weth, CollateralReceipt: cRcpt, DebtToken: debt, LTVBps: 8_000,
	}))
	proto.Register(ex)
	require.NoError(t, st.Mint(weth, market, sdkmath.NewInt(10_000)))
	require.NoError(t, st.Mint(usdc, holder, sdkmath.NewInt(1_000)))

	ops, err := proto.BorrowAll(holder, usdc, market, weth)
	run(t, ex, ops, err)
	require.Equal(t, "800", st.BalanceOf(weth, holder).String())

	// downstream lost 100 weth
	require.NoError(t, st.Transfer(weth, holder, other, sdkmath.NewInt(100)))

	ops, err = proto.RepayAll(holder, usdc, market, weth)
	run(t, ex, ops, err)
	assert.Equal(t, "900", st.BalanceOf(usdc, holder).String())
	assert.True(t, st.BalanceOf(debt, holder).IsZero())
}

func TestAddMarketValidation(t *testing.T) {
	_, _, proto := setup(t, adapter.Limits{})
	err := proto.AddMarket(LendingMarket{Address: market, LTVBps: 10_000})
	assert.ErrorIs(t, err, ErrInvalidMarket)
	err = proto.AddMarket(LendingMarket{Address: market, PriceNum: sdkmath.ZeroInt(), PriceDen: sdkmath.OneInt()})
	assert.ErrorIs(t, err, ErrInvalidMarket)
}
