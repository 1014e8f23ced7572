/*

This file contains the genesis file format used by the local runner.

The genesis describes the registries, the simulated venues and the vaults a process starts with.
Token amounts (balances, market liquidity, vault fees and limits) are decimal strings of whole token
units, scaled by the token's declared decimals. Protocol absolute limits and market prices are raw
integers since they are not tied to a single token.

*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var ErrInvalidGenesis = errors.Join(types.ErrConfiguration, errors.New("invalid genesis"))

// Genesis is the root of the genesis file.
type Genesis struct {
	Roles          []RoleGrant        `yaml:"roles"`
	Tokens         []TokenEntry       `yaml:"tokens"`
	TokenSets      []TokenSetEntry    `yaml:"token_sets"`
	Protocols      []ProtocolEntry    `yaml:"protocols"`
	RiskProfiles   []RiskProfileEntry `yaml:"risk_profiles"`
	Strategies     []StrategyEntry    `yaml:"strategies"`
	BestStrategies []BestEntry        `yaml:"best_strategies"`
	Vaults         []VaultEntry       `yaml:"vaults"`
	Balances       []BalanceEntry     `yaml:"balances"`
	CheckApproval  *bool              `yaml:"check_approval"` // Defaults to true
}

// RoleGrant gives Role to every account. The first account of a role acts for it during the build.
type RoleGrant struct {
	Role     string   `yaml:"role"`
	Accounts []string `yaml:"accounts"`
}

type TokenEntry struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"` // Scale of amounts given in whole units; 0 means raw units
}

type TokenSetEntry struct {
	Name   string   `yaml:"name"`
	Tokens []string `yaml:"tokens"` // Addresses or symbols
}

// ProtocolEntry is one simulated venue family.
type ProtocolEntry struct {
	Name    string        `yaml:"name"`
	Limits  LimitsEntry   `yaml:"limits"`
	Pools   []PoolEntry   `yaml:"pools"`
	Markets []MarketEntry `yaml:"markets"`
}

type LimitsEntry struct {
	Mode     string `yaml:"mode"` // none, pool_percent, protocol_percent, absolute
	Bps      uint16 `yaml:"bps"`
	Absolute string `yaml:"absolute"`
}

type PoolEntry struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	Receipt string `yaml:"receipt"`
	Rating  uint8  `yaml:"rating"`
}

type MarketEntry struct {
	Address           string `yaml:"address"`
	Collateral        string `yaml:"collateral"`
	Borrow            string `yaml:"borrow"`
	CollateralReceipt string `yaml:"collateral_receipt"`
	DebtToken         string `yaml:"debt_token"`
	LTVBps            uint16 `yaml:"ltv_bps"`
	PriceNum          string `yaml:"price_num"`
	PriceDen          string `yaml:"price_den"`
	Rating            uint8  `yaml:"rating"`
	Liquidity         string `yaml:"liquidity"` // Whole borrow-token units minted to the market
}

type RiskProfileEntry struct {
	Code      uint8  `yaml:"code"`
	Name      string `yaml:"name"`
	CanBorrow bool   `yaml:"can_borrow"`
	Lower     uint8  `yaml:"lower_rating"`
	Upper     uint8  `yaml:"upper_rating"`
}

type StepEntry struct {
	Pool        string `yaml:"pool"`
	OutputToken string `yaml:"output_token"`
	IsBorrow    bool   `yaml:"is_borrow"`
}

// StrategyEntry is a catalog strategy, referenced by name from BestEntry.
type StrategyEntry struct {
	Name     string      `yaml:"name"`
	TokenSet string      `yaml:"token_set"`
	Steps    []StepEntry `yaml:"steps"`
}

type BestEntry struct {
	RiskProfile uint8  `yaml:"risk_profile"`
	TokenSet    string `yaml:"token_set"`
	Strategy    string `yaml:"strategy"`
	Default     bool   `yaml:"default"`
}

type VaultEntry struct {
	Address      string           `yaml:"address"`
	Underlying   string           `yaml:"underlying"`
	Decimals     int              `yaml:"decimals"` // Also scales the fee and limit amounts below
	TokenSet     string           `yaml:"token_set"`
	RiskProfile  uint8            `yaml:"risk_profile"`
	Fees         FeesEntry        `yaml:"fees"`
	MaxValueJump *uint16          `yaml:"max_value_jump_bps"`
	Treasuries   []TreasuryEntry  `yaml:"treasuries"`
	Limits       VaultLimitsEntry `yaml:"limits"`
	Unpaused     bool             `yaml:"unpaused"`
	Whitelist    []string         `yaml:"whitelist"`
}

type FeesEntry struct {
	DepositFlat    string `yaml:"deposit_flat"`
	DepositBps     uint16 `yaml:"deposit_bps"`
	WithdrawalFlat string `yaml:"withdrawal_flat"`
	WithdrawalBps  uint16 `yaml:"withdrawal_bps"`
}

type TreasuryEntry struct {
	Address string `yaml:"address"`
	Share   uint16 `yaml:"share_bps"`
}

type VaultLimitsEntry struct {
	UserDepositCap        string `yaml:"user_deposit_cap"`
	MinimumDeposit        string `yaml:"minimum_deposit"`
	TotalValueLockedLimit string `yaml:"total_value_locked_limit"`
}

// BalanceEntry mints Amount whole units of Token to Account at startup.
type BalanceEntry struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file %s: %w", path, err)
	}
	return ParseGenesis(raw)
}

// ParseGenesis decodes and validates a genesis document. Unknown fields are rejected.
func ParseGenesis(raw []byte) (*Genesis, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var g Genesis
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks references between sections. Registry rules are enforced again by the build.
func (g *Genesis) Validate() error {
	governance := false
	for _, grant := range g.Roles {
		role, err := access.ParseRole(grant.Role)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidGenesis, err)
		}
		if len(grant.Accounts) == 0 {
			return fmt.Errorf("%w: role %s has no accounts", ErrInvalidGenesis, role)
		}
		for _, a := range grant.Accounts {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("%w: role %s account %q is not an address", ErrInvalidGenesis, role, a)
			}
		}
		governance = governance || role == access.RoleGovernance
	}
	if !governance {
		return fmt.Errorf("%w: at least one governance account is required", ErrInvalidGenesis)
	}

	symbols := make(map[string]bool, len(g.Tokens))
	for _, t := range g.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("%w: token %q is not an address", ErrInvalidGenesis, t.Address)
		}
		if t.Decimals < 0 || t.Decimals > utils.MaxPrecision {
			return fmt.Errorf("%w: token %s has %d decimals", ErrInvalidGenesis, t.Address, t.Decimals)
		}
		if t.Symbol != "" {
			if symbols[t.Symbol] {
				return fmt.Errorf("%w: duplicate token symbol %s", ErrInvalidGenesis, t.Symbol)
			}
			symbols[t.Symbol] = true
		}
	}

	sets := make(map[string]bool, len(g.TokenSets))
	for _, s := range g.TokenSets {
		if s.Name == "" || sets[s.Name] {
			return fmt.Errorf("%w: token set name %q is empty or duplicated", ErrInvalidGenesis, s.Name)
		}
		sets[s.Name] = true
	}

	protocols := make(map[string]bool, len(g.Protocols))
	for _, p := range g.Protocols {
		if p.Name == "" || protocols[p.Name] {
			return fmt.Errorf("%w: protocol name %q is empty or duplicated", ErrInvalidGenesis, p.Name)
		}
		protocols[p.Name] = true
		if _, err := parseLimitMode(p.Limits.Mode); err != nil {
			return err
		}
	}

	strategies := make(map[string]bool, len(g.Strategies))
	for _, s := range g.Strategies {
		if s.Name == "" || strategies[s.Name] {
			return fmt.Errorf("%w: strategy name %q is empty or duplicated", ErrInvalidGenesis, s.Name)
		}
		if !sets[s.TokenSet] {
			return fmt.Errorf("%w: strategy %s references unknown token set %q", ErrInvalidGenesis, s.Name, s.TokenSet)
		}
		strategies[s.Name] = true
	}
	for _, b := range g.BestStrategies {
		if !sets[b.TokenSet] {
			return fmt.Errorf("%w: best strategy references unknown token set %q", ErrInvalidGenesis, b.TokenSet)
		}
		if b.Strategy != "" && !strategies[b.Strategy] {
			return fmt.Errorf("%w: best strategy references unknown strategy %q", ErrInvalidGenesis, b.Strategy)
		}
	}

	for _, v := range g.Vaults {
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("%w: vault %q is not an address", ErrInvalidGenesis, v.Address)
		}
		if !sets[v.TokenSet] {
			return fmt.Errorf("%w: vault %s references unknown token set %q", ErrInvalidGenesis, v.Address, v.TokenSet)
		}
	}
	return nil
}

// ===== PARSING HELPERS =====

// resolveAddress accepts a hex address or a token symbol declared in the genesis.
func (g *Genesis) resolveAddress(ref string) (common.Address, error) {
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	for _, t := range g.Tokens {
		if t.Symbol != "" && t.Symbol == ref {
			return common.HexToAddress(t.Address), nil
		}
	}
	return common.Address{}, fmt.Errorf("%w: %q is neither an address nor a token symbol", ErrInvalidGenesis, ref)
}

// decimalsOf returns the declared decimals of token, 0 for undeclared tokens.
func (g *Genesis) decimalsOf(token common.Address) int {
	for _, t := range g.Tokens {
		if common.HexToAddress(t.Address) == token {
			return t.Decimals
		}
	}
	return 0
}

// parseUnits parses an amount of whole token units ("1_000.25") into raw units at decimals.
// Empty means zero. More fractional digits than decimals is an error.
func parseUnits(field, raw string, decimals int) (sdkmath.Int, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	if _, frac, ok := strings.Cut(raw, "."); ok && len(frac) > decimals {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %q has more than %d decimals", ErrInvalidGenesis, field, raw, decimals)
	}
	v, err := utils.UnitsToRaw(raw, decimals)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %q: %w", ErrInvalidGenesis, field, raw, err)
	}
	return v, nil
}

// parseAmount parses a raw integer amount. Empty means zero.
func parseAmount(field, raw string) (sdkmath.Int, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok || v.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %q is not a non-negative integer", ErrInvalidGenesis, field, raw)
	}
	return v, nil
}

func parseLimitMode(mode string) (adapter.LimitMode, error) {
	for _, m := range []adapter.LimitMode{adapter.LimitNone, adapter.LimitPoolPercent, adapter.LimitProtocolPercent, adapter.LimitAbsolute} {
		if m.String() == mode {
			return m, nil
		}
	}
	if mode == "" {
		return adapter.LimitNone, nil
	}
	return adapter.LimitNone, fmt.Errorf("%w: unknown limit mode %q", ErrInvalidGenesis, mode)
}

func (l LimitsEntry) toLimits() (adapter.Limits, error) {
	mode, err := parseLimitMode(l.Mode)
	if err != nil {
		return adapter.Limits{}, err
	}
	absolute, err := parseAmount("absolute limit", l.Absolute)
	if err != nil {
		return adapter.Limits{}, err
	}
	limits := adapter.Limits{Mode: mode, Bps: l.Bps, Absolute: absolute}
	return limits, limits.Validate()
}

// configuration merges a vault entry over DefaultVaultConfiguration.
func (v VaultEntry) configuration() (types.VaultConfiguration, error) {
	cfg := DefaultVaultConfiguration()
	var err error
	if cfg.DepositFeeFlatUT, err = parseUnits("deposit flat fee", v.Fees.DepositFlat, v.Decimals); err != nil {
		return cfg, err
	}
	if cfg.WithdrawalFeeFlatUT, err = parseUnits("withdrawal flat fee", v.Fees.WithdrawalFlat, v.Decimals); err != nil {
		return cfg, err
	}
	cfg.DepositFeePct = v.Fees.DepositBps
	cfg.WithdrawalFeePct = v.Fees.WithdrawalBps
	if v.MaxValueJump != nil {
		cfg.MaxVaultValueJump = *v.MaxValueJump
	}
	for _, t := range v.Treasuries {
		if !common.IsHexAddress(t.Address) {
			return cfg, fmt.Errorf("%w: treasury %q is not an address", ErrInvalidGenesis, t.Address)
		}
		cfg.TreasuryShares = append(cfg.TreasuryShares, types.TreasuryShare{Treasury: common.HexToAddress(t.Address), Share: t.Share})
	}
	cfg.RiskProfileCode = v.RiskProfile
	cfg.Unpaused = v.Unpaused
	cfg.WhitelistEnabled = len(v.Whitelist) > 0
	return cfg, cfg.Validate()
}

func (v VaultEntry) limits() (types.VaultLimits, error) {
	limits := DefaultVaultLimits()
	var err error
	if limits.UserDepositCapUT, err = parseUnits("user deposit cap", v.Limits.UserDepositCap, v.Decimals); err != nil {
		return limits, err
	}
	if limits.MinimumDepositValueUT, err = parseUnits("minimum deposit", v.Limits.MinimumDeposit, v.Decimals); err != nil {
		return limits, err
	}
	if limits.TotalValueLockedLimitUT, err = parseUnits("total value locked limit", v.Limits.TotalValueLockedLimit, v.Decimals); err != nil {
		return limits, err
	}
	return limits, limits.Validate()
}
