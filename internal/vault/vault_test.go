package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/simulations"
	"github.com/elys-network/stratvault/internal/strategy"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/elys-network/stratvault/internal/whitelist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	balanced  uint8 = 1
	leveraged uint8 = 2
)

var (
	gov       = common.HexToAddress("0x0000000000000000000000000000000000009001")
	operator  = common.HexToAddress("0x0000000000000000000000000000000000009002")
	riskOp    = common.HexToAddress("0x0000000000000000000000000000000000009003")
	stratOp   = common.HexToAddress("0x0000000000000000000000000000000000009004")
	financeOp = common.HexToAddress("0x0000000000000000000000000000000000009005")

	alice     = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	eve       = common.HexToAddress("0x0000000000000000000000000000000000000e7e")
	treasuryA = common.HexToAddress("0x000000000000000000000000000000000000f001")
	treasuryB = common.HexToAddress("0x000000000000000000000000000000000000f002")

	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000007a17")
	usdc      = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	weth      = common.HexToAddress("0x000000000000000000000000000000000000e7e0")

	poolA  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	rcptA  = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	poolB  = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	rcptB  = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	poolC  = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	rcptC  = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	poolD  = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	rcptD  = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	poolW  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	rcptW  = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	market = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	cRcpt  = common.HexToAddress("0x0000000000000000000000000000000000000f02")
	debt   = common.HexToAddress("0x0000000000000000000000000000000000000f03")
)

var (
	chainABC = []types.StrategyStep{
		{Pool: poolA, OutputToken: rcptA},
		{Pool: poolB, OutputToken: rcptB},
		{Pool: poolC, OutputToken: rcptC},
	}
	onlyA = []types.StrategyStep{{Pool: poolA, OutputToken: rcptA}}
	onlyD = []types.StrategyStep{{Pool: poolD, OutputToken: rcptD}}
	loop  = []types.StrategyStep{
		{Pool: market, OutputToken: weth, IsBorrow: true},
		{Pool: poolW, OutputToken: rcptW},
	}
)

type memRecorder struct {
	snapshots []types.RebalanceSnapshot
}

func (r *memRecorder) SaveRebalanceSnapshot(s types.RebalanceSnapshot) (int64, error) {
	r.snapshots = append(r.snapshots, s)
	return int64(len(r.snapshots)), nil
}

type harness struct {
	t          *testing.T
	state      *ledger.State
	pools      *registry.LiquidityPoolRegistry
	profiles   *registry.RiskProfileRegistry
	provider   *strategy.Provider
	proto      *simulations.Protocol
	recorder   *memRecorder
	tokensHash common.Hash
	vault      *Vault
}

func defaultConfiguration() types.VaultConfiguration {
	return types.VaultConfiguration{
		DepositFeeFlatUT:    sdkmath.ZeroInt(),
		WithdrawalFeeFlatUT: sdkmath.ZeroInt(),
		MaxVaultValueJump:   100,
		RiskProfileCode:     balanced,
		Unpaused:            true,
	}
}

func noLimits() types.VaultLimits {
	return types.VaultLimits{
		UserDepositCapUT:        sdkmath.ZeroInt(),
		MinimumDepositValueUT:   sdkmath.ZeroInt(),
		TotalValueLockedLimitUT: sdkmath.ZeroInt(),
	}
}

func newHarness(t *testing.T, cfg types.VaultConfiguration) *harness {
	t.Helper()
	roles := access.NewRoleTable(gov)
	require.NoError(t, roles.Grant(gov, access.RoleOperator, operator))
	require.NoError(t, roles.Grant(gov, access.RoleRiskOperator, riskOp))
	require.NoError(t, roles.Grant(gov, access.RoleStrategyOperator, stratOp))
	require.NoError(t, roles.Grant(gov, access.RoleFinanceOperator, financeOp))

	tokens := registry.NewTokenRegistry(1, roles)
	require.NoError(t, tokens.ApproveToken(operator, usdc))
	tokensHash, err := tokens.SetTokensHashToTokens(operator, []common.Address{usdc})
	require.NoError(t, err)

	st := ledger.NewState()
	ex := ledger.NewExecutor(st)
	proto, err := simulations.NewProtocol("sim", st, adapter.Limits{})
	require.NoError(t, err)
	proto.AddPool(simulations.YieldPool{Address: poolA, Asset: usdc, Receipt: rcptA})
	proto.AddPool(simulations.YieldPool{Address: poolB, Asset: rcptA, Receipt: rcptB})
	proto.AddPool(simulations.YieldPool{Address: poolC, Asset: rcptB, Receipt: rcptC})
	proto.AddPool(simulations.YieldPool{Address: poolD, Asset: usdc, Receipt: rcptD})
	proto.AddPool(simulations.YieldPool{Address: poolW, Asset: weth, Receipt: rcptW})
	require.NoError(t, proto.AddMarket(simulations.LendingMarket{
		Address:           market,
		Collateral:        usdc,
		Borrow:            weth,
		CollateralReceipt: cRcpt,
		DebtToken:         debt,
		LTVBps:            5_000,
	}))
	proto.Register(ex)
	require.NoError(t, st.Mint(weth, market, sdkmath.NewInt(1_000_000_000_000)))

	pools := registry.NewLiquidityPoolRegistry(roles, true)
	for _, p := range []common.Address{poolA, poolB, poolC, poolD, poolW, market} {
		require.NoError(t, pools.ApproveAndMapToAdapter(operator, p, proto))
		require.NoError(t, pools.RateLiquidityPool(riskOp, p, 50))
	}

	profiles := registry.NewRiskProfileRegistry(roles)
	require.NoError(t, profiles.AddRiskProfile(riskOp, balanced, "balanced", false, 20, 80))
	require.NoError(t, profiles.AddRiskProfile(riskOp, leveraged, "leveraged", true, 0, 100))

	provider := strategy.NewProvider(roles)
	recorder := &memRecorder{}

	v, err := New(Params{
		Address:       vaultAddr,
		Underlying:    usdc,
		Decimals:      6,
		TokensHash:    tokensHash,
		Configuration: cfg,
		Limits:        noLimits(),
	}, Deps{
		Auth:         roles,
		Tokens:       tokens,
		Pools:        pools,
		RiskProfiles: profiles,
		Strategies:   provider,
		Executor:     ex,
		Recorder:     recorder,
	})
	require.NoError(t, err)
	require.NoError(t, v.Initialize(gov))

	return &harness{
		t:          t,
		state:      st,
		pools:      pools,
		profiles:   profiles,
		provider:   provider,
		proto:      proto,
		recorder:   recorder,
		tokensHash: tokensHash,
		vault:      v,
	}
}

func (h *harness) fund(account common.Address, amount int64) {
	h.t.Helper()
	require.NoError(h.t, h.state.Mint(usdc, account, sdkmath.NewInt(amount)))
}

func (h *harness) deposit(account common.Address, amount int64) sdkmath.Int {
	h.t.Helper()
	h.fund(account, amount)
	shares, err := h.vault.Deposit(account, account, sdkmath.NewInt(amount), sdkmath.ZeroInt(), nil)
	require.NoError(h.t, err)
	return shares
}

func (h *harness) recommend(code uint8, steps []types.StrategyStep) {
	h.t.Helper()
	require.NoError(h.t, h.provider.SetBestStrategy(stratOp, code, h.tokensHash, steps))
}

func (h *harness) balanceUT() sdkmath.Int {
	h.t.Helper()
	v, err := h.vault.BalanceUT()
	require.NoError(h.t, err)
	return v
}

func (h *harness) usdcOf(account common.Address) string {
	return h.state.BalanceOf(usdc, account).String()
}

func TestNewValidatesParams(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	deps := h.vault.deps

	_, err := New(Params{Address: vaultAddr, Underlying: vaultAddr, Configuration: defaultConfiguration(), Limits: noLimits()}, deps)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = New(Params{Address: vaultAddr, Underlying: usdc, Decimals: 99, Configuration: defaultConfiguration(), Limits: noLimits()}, deps)
	assert.ErrorIs(t, err, ErrInvalidParams)

	bad := defaultConfiguration()
	bad.WithdrawalFeePct = 10_001
	_, err = New(Params{Address: vaultAddr, Underlying: usdc, Configuration: bad, Limits: noLimits()}, deps)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = New(Params{Address: vaultAddr, Underlying: usdc, Configuration: defaultConfiguration()}, deps)
	assert.ErrorIs(t, err, types.ErrInvalidVaultConfiguration)
}

func TestInitialize(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	assert.Equal(t, types.VaultActive, h.vault.State())

	err := h.vault.Initialize(gov)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.ErrorIs(t, err, types.ErrState)

	assert.ErrorIs(t, h.vault.Initialize(operator), access.ErrUnauthorized)
}

func TestDepositBeforeInitialize(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	v, err := New(Params{
		Address:       common.HexToAddress("0x0000000000000000000000000000000000007a18"),
		Underlying:    usdc,
		Decimals:      6,
		TokensHash:    h.tokensHash,
		Configuration: defaultConfiguration(),
		Limits:        noLimits(),
	}, h.vault.deps)
	require.NoError(t, err)
	h.fund(alice, 100)

	_, err = v.Deposit(alice, alice, sdkmath.NewInt(100), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, types.ErrState)
}

// TVL cap of 10,000 units at 6 decimals, raised to 500,000 units for the second depositor.
func TestDepositCapScenario(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	require.NoError(t, h.vault.SetTotalValueLockedLimit(operator, utils.MustUnitsToRaw("10000", 6)))

	shares := h.deposit(alice, 1_000_000_000)
	assert.Equal(t, "1000000000", shares.String())
	assert.Equal(t, "1000000000", h.vault.BalanceOf(alice).String())

	h.fund(bob, 100_000_000_000)
	supplyBefore, valueBefore := h.vault.TotalSupply(), h.balanceUT()
	_, err := h.vault.Deposit(bob, bob, sdkmath.NewInt(100_000_000_000), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrTVLLimitExceeded)
	assert.ErrorIs(t, err, types.ErrLimitExceeded)
	assert.Equal(t, supplyBefore, h.vault.TotalSupply())
	assert.Equal(t, valueBefore, h.balanceUT())
	assert.Equal(t, "100000000000", h.usdcOf(bob))

	require.NoError(t, h.vault.SetTotalValueLockedLimit(operator, utils.MustUnitsToRaw("500000", 6)))
	shares, err = h.vault.Deposit(bob, bob, sdkmath.NewInt(100_000_000_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "100000000000", shares.String())
	assert.Equal(t, "101000000000", h.balanceUT().String())

	pps, err := h.vault.PricePerShare()
	require.NoError(t, err)
	assert.Equal(t, "1000000", pps.String())
}

func TestDepositMintsAtCurrentPrice(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	h.recommend(balanced, onlyA)
	h.deposit(alice, 1_000_000)
	_, err := h.vault.Rebalance(operator)
	require.NoError(t, err)

	// venue yield doubles the value of alice's shares
	require.NoError(t, h.proto.Accrue(poolA, sdkmath.NewInt(1_000_000)))
	assert.Equal(t, "2000000", h.balanceUT().String())

	shares := h.deposit(bob, 1_000_000)
	assert.Equal(t, "500000", shares.String())

	pps, err := h.vault.PricePerShare()
	require.NoError(t, err)
	assert.Equal(t, "2000000", pps.String())
}

func TestDepositLimits(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	require.NoError(t, h.vault.SetMinimumDeposit(operator, sdkmath.NewInt(1_000)))
	require.NoError(t, h.vault.SetUserDepositCap(operator, sdkmath.NewInt(5_000)))
	h.fund(alice, 10_000)

	deposit := func(amount int64) error {
		_, err := h.vault.Deposit(alice, alice, sdkmath.NewInt(amount), sdkmath.ZeroInt(), nil)
		return err
	}

	assert.ErrorIs(t, deposit(0), ErrInvalidAmount)
	assert.ErrorIs(t, deposit(999), ErrBelowMinimumDeposit)
	require.NoError(t, deposit(3_000))
	require.NoError(t, deposit(2_000))
	err := deposit(1_000)
	assert.ErrorIs(t, err, ErrUserDepositCapExceeded)
	assert.ErrorIs(t, err, types.ErrLimitExceeded)
	assert.Equal(t, "5000", h.vault.UserDepositTotal(alice).String())

	// withdrawals free cap room
	_, err = h.vault.Withdraw(alice, alice, sdkmath.NewInt(2_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "3000", h.vault.UserDepositTotal(alice).String())

	_, err = h.vault.Deposit(alice, alice, sdkmath.NewInt(1_000), sdkmath.NewInt(1_001), nil)
	assert.ErrorIs(t, err, ErrSlippage)
	assert.Equal(t, "3000", h.vault.UserDepositTotal(alice).String())
	require.NoError(t, deposit(2_000))

	_, err = h.vault.Deposit(eve, eve, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDepositCapAppliesToBeneficiary(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	require.NoError(t, h.vault.SetUserDepositCap(operator, sdkmath.NewInt(1_000)))
	h.fund(alice, 2_000)

	_, err := h.vault.Deposit(alice, bob, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1000", h.vault.BalanceOf(bob).String())
	assert.True(t, h.vault.BalanceOf(alice).IsZero())

	_, err = h.vault.Deposit(alice, bob, sdkmath.NewInt(1), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrUserDepositCapExceeded)
	_, err = h.vault.Deposit(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	assert.NoError(t, err)
}

func TestPausedBlocksDepositAndWithdraw(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	h.deposit(alice, 1_000)
	require.NoError(t, h.vault.SetUnpaused(gov, false))

	h.fund(alice, 1_000)
	_, err := h.vault.Deposit(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrPaused)
	_, err = h.vault.Withdraw(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrPaused)
	_, err = h.vault.Rebalance(operator)
	assert.ErrorIs(t, err, ErrPaused)

	require.NoError(t, h.vault.SetUnpaused(gov, true))
	_, err = h.vault.Withdraw(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	assert.NoError(t, err)
}

func TestWhitelistGate(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	tree, err := whitelist.NewTree([]common.Address{alice, bob})
	require.NoError(t, err)
	require.NoError(t, h.vault.SetWhitelistRoot(gov, tree.Root()))
	require.NoError(t, h.vault.SetWhitelistEnabled(gov, true))

	aliceProof, err := tree.Proof(alice)
	require.NoError(t, err)
	bobProof, err := tree.Proof(bob)
	require.NoError(t, err)

	h.fund(eve, 1_000)
	for _, proof := range [][]common.Hash{nil, aliceProof, bobProof} {
		_, err := h.vault.Deposit(eve, eve, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), proof)
		assert.ErrorIs(t, err, ErrNotWhitelisted)
		assert.ErrorIs(t, err, types.ErrAuthorization)
	}
	assert.True(t, h.vault.TotalSupply().IsZero())

	h.fund(alice, 1_000)
	shares, err := h.vault.Deposit(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), aliceProof)
	require.NoError(t, err)
	assert.Equal(t, "1000", shares.String())

	_, err = h.vault.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrNotWhitelisted)
	_, err = h.vault.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), aliceProof)
	assert.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	t.Run("empty vault", func(t *testing.T) {
		h := newHarness(t, defaultConfiguration())
		shares := h.deposit(alice, 1_234_567)
		out, err := h.vault.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), nil)
		require.NoError(t, err)
		assert.Equal(t, "1234567", out.String())
		assert.True(t, h.vault.TotalSupply().IsZero())
	})

	t.Run("after yield", func(t *testing.T) {
		h := newHarness(t, defaultConfiguration())
		h.recommend(balanced, chainABC)
		h.deposit(bob, 3_000_001)
		_, err := h.vault.Rebalance(operator)
		require.NoError(t, err)
		require.NoError(t, h.proto.Accrue(poolA, sdkmath.NewInt(777_777)))

		x := sdkmath.NewInt(1_234_567)
		shares := h.deposit(alice, x.Int64())
		out, err := h.vault.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), nil)
		require.NoError(t, err)
		assert.True(t, out.LTE(x), "got %s", out)
		assert.True(t, out.GTE(x.SubRaw(2)), "got %s", out)
	})
}

func TestWithdrawRejections(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	shares := h.deposit(alice, 1_000)

	_, err := h.vault.Withdraw(alice, alice, shares.AddRaw(1), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	_, err = h.vault.Withdraw(bob, bob, sdkmath.NewInt(1), sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	_, err = h.vault.Withdraw(alice, alice, shares, sdkmath.NewInt(1_001), nil)
	assert.ErrorIs(t, err, ErrSlippage)
	assert.Equal(t, shares, h.vault.BalanceOf(alice))

	_, err = h.vault.Withdraw(alice, common.Address{}, shares, sdkmath.ZeroInt(), nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawToBeneficiary(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	shares := h.deposit(alice, 1_000)
	out, err := h.vault.Withdraw(alice, bob, shares, sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1000", out.String())
	assert.Equal(t, "1000", h.usdcOf(bob))
	assert.Equal(t, "0", h.usdcOf(alice))
}

func TestFeesSplitAcrossTreasuries(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	require.NoError(t, h.vault.SetTreasuryShares(financeOp, []types.TreasuryShare{
		{Treasury: treasuryA, Share: 6_000},
		{Treasury: treasuryB, Share: 4_000},
	}))
	require.NoError(t, h.vault.SetFees(financeOp, sdkmath.ZeroInt(), 50, sdkmath.NewInt(100), 100))

	shares := h.deposit(alice, 1_000_000)
	// 50 bps deposit fee
	assert.Equal(t, "995000", shares.String())
	assert.Equal(t, "3000", h.usdcOf(treasuryA))
	assert.Equal(t, "2000", h.usdcOf(treasuryB))

	out, err := h.vault.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	// 100 flat + 100 bps of 995000 = 10050
	assert.Equal(t, "984950", out.String())
	assert.Equal(t, "9030", h.usdcOf(treasuryA))
	assert.Equal(t, "6020", h.usdcOf(treasuryB))
	assert.True(t, h.balanceUT().IsZero())
}

func TestFeeWithoutTreasuryStaysInVault(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	require.NoError(t, h.vault.SetFees(financeOp, sdkmath.ZeroInt(), 0, sdkmath.NewInt(10), 0))
	h.deposit(alice, 1_000)
	h.deposit(bob, 1_000)

	out, err := h.vault.Withdraw(alice, alice, sdkmath.NewInt(1_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "990", out.String())
	assert.Equal(t, "1010", h.balanceUT().String())
}

func TestFeeNeverExceedsAmount(t *testing.T) {
	assert.Equal(t, "10", feeFor(sdkmath.NewInt(10), sdkmath.NewInt(50), 0).String())
	assert.Equal(t, "60", feeFor(sdkmath.NewInt(1_000), sdkmath.NewInt(50), 100).String())
	assert.Equal(t, "0", feeFor(sdkmath.NewInt(1_000), sdkmath.Int{}, 0).String())
}

func TestPartialWithdrawLiquidatesOnlyShortfall(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	h.recommend(balanced, onlyA)
	h.deposit(alice, 1_000_000_000)
	_, err := h.vault.Rebalance(operator)
	require.NoError(t, err)
	hash := h.vault.InvestStrategyHash()

	h.deposit(bob, 200_000_000)
	assert.Equal(t, "200000000", h.usdcOf(vaultAddr))

	out, err := h.vault.Withdraw(alice, alice, sdkmath.NewInt(500_000_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "500000000", out.String())

	// idle covered 200M, only the 300M shortfall left the venue
	assert.Equal(t, "0", h.usdcOf(vaultAddr))
	assert.Equal(t, "700000000", h.state.BalanceOf(rcptA, vaultAddr).String())
	assert.Equal(t, hash, h.vault.InvestStrategyHash())
	assert.Equal(t, "700000000", h.balanceUT().String())
}

func TestPartialWithdrawAcrossHops(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	h.recommend(balanced, chainABC)
	h.deposit(alice, 1_000_000_000)
	h.deposit(bob, 3_000_000_000)
	_, err := h.vault.Rebalance(operator)
	require.NoError(t, err)
	assert.True(t, h.state.BalanceOf(usdc, vaultAddr).IsZero())

	out, err := h.vault.Withdraw(alice, alice, sdkmath.NewInt(500_000_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "500000000", out.String())
	assert.Equal(t, "3500000000", h.state.BalanceOf(rcptC, vaultAddr).String())
	assert.True(t, h.state.BalanceOf(rcptA, vaultAddr).IsZero())
	assert.True(t, h.state.BalanceOf(rcptB, vaultAddr).IsZero())
	assert.Equal(t, "3500000000", h.balanceUT().String())
}

func TestWithdrawFromBorrowStrategyUnwindsFully(t *testing.T) {
	cfg := defaultConfiguration()
	cfg.RiskProfileCode = leveraged
	h := newHarness(t, cfg)
	h.recommend(leveraged, loop)
	h.deposit(alice, 1_000_000_000)
	_, err := h.vault.Rebalance(operator)
	require.NoError(t, err)
	assert.Equal(t, "500000000", h.state.BalanceOf(rcptW, vaultAddr).String())
	assert.Equal(t, "1000000000", h.balanceUT().String())

	out, err := h.vault.Withdraw(alice, alice, sdkmath.NewInt(500_000_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.Equal(t, "500000000", out.String())
	assert.Equal(t, common.Hash{}, h.vault.InvestStrategyHash())
	assert.Nil(t, h.vault.InvestStrategySteps())
	assert.Equal(t, "500000000", h.usdcOf(vaultAddr))
	assert.True(t, h.state.BalanceOf(debt, vaultAddr).IsZero())

	// the next rebalance redeploys the remainder
	snap, err := h.vault.Rebalance(operator)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "500000000", h.balanceUT().String())
}

// Absent fees and yield, shares times price stays equal to net deposits across any sequence.
func TestConservation(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	net := sdkmath.ZeroInt()
	deposit := func(account common.Address, amount int64) {
		h.deposit(account, amount)
		net = net.AddRaw(amount)
	}
	withdraw := func(account common.Address, shares int64) {
		out, err := h.vault.Withdraw(account, account, sdkmath.NewInt(shares), sdkmath.ZeroInt(), nil)
		require.NoError(t, err)
		net = net.Sub(out)
	}
	rebalance := func(steps []types.StrategyStep) {
		h.recommend(balanced, steps)
		_, err := h.vault.Rebalance(operator)
		require.NoError(t, err)
	}

	deposit(alice, 1_000_000_000)
	deposit(bob, 3_000_000_000)
	rebalance(chainABC)
	withdraw(alice, 500_000_000)
	rebalance(onlyD)
	deposit(bob, 500_000_000)
	withdraw(bob, 1_250_000_000)
	rebalance(onlyA)
	deposit(alice, 7)

	value := h.balanceUT()
	tolerance := sdkmath.NewInt(5)
	assert.True(t, value.Sub(net).Abs().LTE(tolerance), "value %s, net deposits %s", value, net)

	pps, err := h.vault.PricePerShare()
	require.NoError(t, err)
	held := h.vault.BalanceOf(alice).Add(h.vault.BalanceOf(bob))
	assert.Equal(t, h.vault.TotalSupply(), held)
	represented := held.Mul(pps).QuoRaw(1_000_000)
	assert.True(t, represented.Sub(net).Abs().LTE(tolerance), "represented %s, net deposits %s", represented, net)
}

func TestRoleChecks(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	zero := sdkmath.ZeroInt()

	for name, err := range map[string]error{
		"rebalance":        func() error { _, err := h.vault.Rebalance(alice); return err }(),
		"tvl limit":        h.vault.SetTotalValueLockedLimit(alice, zero),
		"user cap":         h.vault.SetUserDepositCap(gov, zero),
		"minimum deposit":  h.vault.SetMinimumDeposit(financeOp, zero),
		"fees":             h.vault.SetFees(operator, zero, 0, zero, 0),
		"treasury shares":  h.vault.SetTreasuryShares(gov, nil),
		"unpause":          h.vault.SetUnpaused(operator, true),
		"whitelist root":   h.vault.SetWhitelistRoot(operator, common.Hash{}),
		"whitelist toggle": h.vault.SetWhitelistEnabled(operator, false),
		"risk profile":     h.vault.SetRiskProfileCode(operator, leveraged),
		"configuration":    h.vault.SetConfiguration(operator, defaultConfiguration()),
		"shutdown":         h.vault.SetEmergencyShutdown(operator, true),
	} {
		assert.ErrorIs(t, err, access.ErrUnauthorized, name)
		assert.ErrorIs(t, err, types.ErrAuthorization, name)
	}
	assert.Equal(t, types.VaultActive, h.vault.State())
}

func TestConfigurationSetters(t *testing.T) {
	h := newHarness(t, defaultConfiguration())

	require.NoError(t, h.vault.SetRiskProfileCode(gov, leveraged))
	assert.Equal(t, leveraged, h.vault.Configuration().RiskProfileCode)
	assert.ErrorIs(t, h.vault.SetRiskProfileCode(gov, 9), ErrUnknownRiskProfile)

	cfg := defaultConfiguration()
	cfg.EmergencyShutdown = true
	assert.ErrorIs(t, h.vault.SetConfiguration(gov, cfg), ErrShutdownUseDedicated)

	cfg = defaultConfiguration()
	cfg.MaxVaultValueJump = 250
	require.NoError(t, h.vault.SetConfiguration(gov, cfg))
	assert.Equal(t, uint16(250), h.vault.Configuration().MaxVaultValueJump)

	err := h.vault.SetTreasuryShares(financeOp, []types.TreasuryShare{{Treasury: treasuryA, Share: 9_999}})
	assert.ErrorIs(t, err, types.ErrInvalidVaultConfiguration)
	err = h.vault.SetFees(financeOp, sdkmath.NewInt(-1), 0, sdkmath.ZeroInt(), 0)
	assert.ErrorIs(t, err, types.ErrInvalidVaultConfiguration)
	assert.ErrorIs(t, h.vault.SetUserDepositCap(operator, sdkmath.NewInt(-5)), types.ErrInvalidVaultConfiguration)

	root := common.HexToHash("0x01")
	require.NoError(t, h.vault.SetWhitelistRoot(gov, root))
	assert.Equal(t, root, h.vault.WhitelistRoot())
}

func TestSummary(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	h.recommend(balanced, onlyA)
	h.deposit(alice, 2_000_000)
	_, err := h.vault.Rebalance(operator)
	require.NoError(t, err)
	h.deposit(bob, 500_000)

	s, err := h.vault.Summary()
	require.NoError(t, err)
	assert.Equal(t, vaultAddr, s.Address)
	assert.Equal(t, usdc, s.Underlying)
	assert.Equal(t, "active", s.State)
	assert.Equal(t, registry.StrategyHash(h.tokensHash, onlyA), s.InvestStrategyHash)
	assert.Equal(t, onlyA, s.InvestSteps)
	assert.Equal(t, "2500000", s.BalanceUT.String())
	assert.Equal(t, "500000", s.IdleUT.String())
	assert.Equal(t, "2500000", s.TotalSupply.String())
	assert.Equal(t, "1000000", s.PricePerShare.String())
	assert.Equal(t, 1, s.RebalanceCount)
}

func TestUnitsForLogs(t *testing.T) {
	h := newHarness(t, defaultConfiguration())
	assert.InDelta(t, 1234.5, h.vault.units(sdkmath.NewInt(1_234_500_000)), 1e-9)
	assert.Zero(t, h.vault.units(sdkmath.NewInt(-1)))
	assert.Zero(t, h.vault.units(sdkmath.Int{}))
}
