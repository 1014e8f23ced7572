package config

import (
	"path/filepath"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/state"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	usdcToken  = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	aUSDC      = common.HexToAddress("0x00000000000000000000000000000000000a1001")
	cUSDC      = common.HexToAddress("0x00000000000000000000000000000000000b1001")
	exampleVlt = common.HexToAddress("0x00000000000000000000000000000000000f0001")
	treasury1  = common.HexToAddress("0x00000000000000000000000000000000000f7001")
	treasury2  = common.HexToAddress("0x00000000000000000000000000000000000f7002")
)

const whitelistGenesis = `
roles:
  - role: governance
    accounts: ["0x0000000000000000000000000000000000000001"]
  - role: operator
    accounts: ["0x0000000000000000000000000000000000000002"]
tokens:
  - { address: "0x000000000000000000000000000000000000c0c0", symbol: USDC, decimals: 6 }
token_sets:
  - { name: usdc, tokens: [USDC] }
vaults:
  - address: "0x00000000000000000000000000000000000f0002"
    underlying: USDC
    decimals: 6
    token_set: usdc
    unpaused: true
    whitelist: ["0x000000000000000000000000000000000000a11c"]
balances:
  - { token: USDC, account: "0x000000000000000000000000000000000000a11c", amount: "5" }
  - { token: USDC, account: "0x0000000000000000000000000000000000000b0b", amount: "5.5" }
`

func buildExample(t *testing.T) (*System, *state.Store) {
	t.Helper()
	g, err := LoadGenesis("../../genesis.example.yaml")
	require.NoError(t, err)

	store, err := state.Open(state.DBConfig{Driver: state.DriverSQLite, Path: filepath.Join(t.TempDir(), "genesis.db")})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema())

	sys, err := Build(g, 1, store)
	require.NoError(t, err)
	return sys, store
}

func TestExampleGenesisBuilds(t *testing.T) {
	sys, _ := buildExample(t)

	require.Len(t, sys.Vaults, 1)
	v := sys.Vaults[0]
	assert.Equal(t, exampleVlt, v.Address())
	assert.Equal(t, types.VaultActive, v.State())
	assert.Equal(t, uint8(1), v.Configuration().RiskProfileCode)
	assert.Equal(t, uint16(10), v.Configuration().WithdrawalFeePct)
	assert.True(t, v.Limits().MinimumDepositValueUT.Equal(sdkmath.NewInt(1_000_000)))

	usdcSet := sys.TokenSets["usdc"]
	assert.Equal(t, registry.TokensHash(1, []common.Address{usdcToken}), usdcSet)
	assert.Len(t, sys.Catalog.StrategyHashesOf(usdcSet), 3)
	assert.Len(t, sys.Provider.GetBestStrategy(1, usdcSet), 1)
	assert.Len(t, sys.Provider.GetBestStrategy(2, usdcSet), 2)
	assert.Len(t, sys.Provider.GetBestDefaultStrategy(1, usdcSet), 1)

	for _, pool := range sys.Pools.LiquidityPools() {
		assert.True(t, pool.Approved, pool.Address.Hex())
		_, bound := sys.Pools.AdapterOf(pool.Address)
		assert.True(t, bound, pool.Address.Hex())
	}
	assert.Len(t, sys.Protocols, 2)

	gov, ok := sys.Actor(access.RoleGovernance)
	require.True(t, ok)
	assert.True(t, sys.Roles.IsAuthorized(access.RoleGovernance, gov))
	operator, ok := sys.Actor(access.RoleOperator)
	require.True(t, ok)
	assert.False(t, sys.Roles.IsAuthorized(access.RoleGovernance, operator))

	assert.True(t, sys.Ledger.BalanceOf(usdcToken, alice).Equal(sdkmath.NewInt(1_000_000_000_000)))
	assert.Len(t, sys.Managers(), 1)
}

func TestExampleGenesisLifecycle(t *testing.T) {
	sys, store := buildExample(t)
	v := sys.Vaults[0]
	operator, _ := sys.Actor(access.RoleOperator)
	strategyOperator, _ := sys.Actor(access.RoleStrategyOperator)
	usdcSet := sys.TokenSets["usdc"]

	shares, err := v.Deposit(alice, alice, sdkmath.NewInt(1_000_000_000), sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.True(t, shares.Equal(sdkmath.NewInt(1_000_000_000)))

	snapshot, err := v.Rebalance(operator)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.NotZero(t, snapshot.SnapshotID)
	assert.True(t, sys.Ledger.BalanceOf(aUSDC, exampleVlt).Equal(sdkmath.NewInt(1_000_000_000)))

	again, err := v.Rebalance(operator)
	require.NoError(t, err)
	assert.Nil(t, again)

	moneyMarket := sys.Provider.GetBestDefaultStrategy(1, usdcSet)
	require.NoError(t, sys.Provider.SetBestStrategy(strategyOperator, 1, usdcSet, moneyMarket))
	_, err = v.Rebalance(operator)
	require.NoError(t, err)
	assert.True(t, sys.Ledger.BalanceOf(aUSDC, exampleVlt).IsZero())
	assert.True(t, sys.Ledger.BalanceOf(cUSDC, exampleVlt).Equal(sdkmath.NewInt(1_000_000_000)))
	assert.Equal(t, registry.StrategyHash(usdcSet, moneyMarket), v.InvestStrategyHash())

	history, err := store.GetRebalancesByVault(exampleVlt, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].RebalanceNumber)

	out, err := v.Withdraw(alice, alice, shares, sdkmath.ZeroInt(), nil)
	require.NoError(t, err)
	assert.True(t, out.Equal(sdkmath.NewInt(999_000_000)))
	assert.True(t, sys.Ledger.BalanceOf(usdcToken, treasury1).Equal(sdkmath.NewInt(600_000)))
	assert.True(t, sys.Ledger.BalanceOf(usdcToken, treasury2).Equal(sdkmath.NewInt(400_000)))
	assert.Equal(t, common.Hash{}, v.InvestStrategyHash())
	assert.True(t, v.TotalSupply().IsZero())
}

func TestWhitelistFromGenesis(t *testing.T) {
	g, err := ParseGenesis([]byte(whitelistGenesis))
	require.NoError(t, err)
	sys, err := Build(g, 1, nil)
	require.NoError(t, err)

	v := sys.Vaults[0]
	assert.True(t, v.Configuration().WhitelistEnabled)
	tree := sys.Whitelists[v.Address()]
	require.NotNil(t, tree)
	assert.Equal(t, tree.Root(), v.WhitelistRoot())

	proof, err := tree.Proof(alice)
	require.NoError(t, err)
	_, err = v.Deposit(alice, alice, sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), proof)
	require.NoError(t, err)

	_, err = v.Deposit(bob, bob, sdkmath.NewInt(1_000_000), sdkmath.ZeroInt(), proof)
	assert.ErrorIs(t, err, vault.ErrNotWhitelisted)
	assert.Equal(t, "5500000", sys.Ledger.BalanceOf(usdcToken, bob).String())
}

func TestParseGenesisRejects(t *testing.T) {
	const roles = `
roles:
  - role: governance
    accounts: ["0x0000000000000000000000000000000000000001"]
`
	cases := map[string]string{
		"unknown field": roles + "surprise: true\n",
		"no governance": `
roles:
  - role: operator
    accounts: ["0x0000000000000000000000000000000000000002"]
`,
		"unknown role": roles + `  - role: janitor
    accounts: ["0x0000000000000000000000000000000000000002"]
`,
		"bad account": roles + `  - role: operator
    accounts: ["bob"]
`,
		"unknown token set": roles + `strategies:
  - { name: s, token_set: missing, steps: [] }
`,
		"unknown strategy": roles + `token_sets:
  - { name: usdc, tokens: ["0x000000000000000000000000000000000000c0c0"] }
best_strategies:
  - { risk_profile: 1, token_set: usdc, strategy: missing }
`,
		"bad limit mode": roles + `protocols:
  - { name: p, limits: { mode: sometimes } }
`,
		"bad decimals": roles + `tokens:
  - { address: "0x000000000000000000000000000000000000c0c0", decimals: 40 }
`,
		"duplicate symbol": roles + `tokens:
  - { address: "0x000000000000000000000000000000000000c0c0", symbol: USDC }
  - { address: "0x000000000000000000000000000000000000c0c1", symbol: USDC }
`,
		"empty document": "",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGenesis([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidGenesis)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
}

func TestBuildNeedsRoleHolders(t *testing.T) {
	g, err := ParseGenesis([]byte(`
roles:
  - role: governance
    accounts: ["0x0000000000000000000000000000000000000001"]
tokens:
  - { address: "0x000000000000000000000000000000000000c0c0", symbol: USDC }
`))
	require.NoError(t, err)
	_, err = Build(g, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidGenesis)
}

func TestBuildPropagatesRegistryErrors(t *testing.T) {
	g, err := ParseGenesis([]byte(`
roles:
  - role: governance
    accounts: ["0x0000000000000000000000000000000000000001"]
  - role: operator
    accounts: ["0x0000000000000000000000000000000000000002"]
  - role: risk_operator
    accounts: ["0x0000000000000000000000000000000000000003"]
risk_profiles:
  - { code: 1, name: inverted, lower_rating: 80, upper_rating: 20 }
`))
	require.NoError(t, err)
	_, err = Build(g, 1, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestVaultEntryDefaults(t *testing.T) {
	cfg, err := VaultEntry{RiskProfile: 3}.configuration()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxVaultValueJump, cfg.MaxVaultValueJump)
	assert.True(t, cfg.DepositFeeFlatUT.IsZero())
	assert.False(t, cfg.Unpaused)
	assert.Equal(t, uint8(3), cfg.RiskProfileCode)

	zero := uint16(0)
	cfg, err = VaultEntry{MaxValueJump: &zero}.configuration()
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxVaultValueJump)

	_, err = VaultEntry{Treasuries: []TreasuryEntry{{Address: treasury1.Hex(), Share: 5000}}}.configuration()
	assert.ErrorIs(t, err, types.ErrInvalidVaultConfiguration)

	_, err = VaultEntry{Limits: VaultLimitsEntry{UserDepositCap: "-1"}}.limits()
	assert.ErrorIs(t, err, ErrInvalidGenesis)

	limits, err := VaultEntry{Decimals: 6, Limits: VaultLimitsEntry{UserDepositCap: "2_500.5", MinimumDeposit: "0.01"}}.limits()
	require.NoError(t, err)
	assert.Equal(t, "2500500000", limits.UserDepositCapUT.String())
	assert.Equal(t, "10000", limits.MinimumDepositValueUT.String())
	assert.True(t, limits.TotalValueLockedLimitUT.IsZero())
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		decimals int
		want     string
		wantErr  bool
	}{
		{"empty", "", 6, "0", false},
		{"whole", "1_000", 6, "1000000000", false},
		{"fraction", "1.5", 6, "1500000", false},
		{"full precision", "0.000001", 6, "1", false},
		{"raw token", "42", 0, "42", false},
		{"eighteen decimals", "1_000_000", 18, "1000000000000000000000000", false},
		{"too precise", "0.0000001", 6, "", true},
		{"fraction of raw token", "1.5", 0, "", true},
		{"negative", "-1", 6, "", true},
		{"not a number", "ten", 6, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseUnits("amount", tc.raw, tc.decimals)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidGenesis)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}
