/*

The vault holds one underlying token for its depositors. Shares are a ledger token whose address is
the vault address, so the shares ledger, the idle balance and every venue position revert together
when a composite operation fails. Vault fields (strategy hash, per-user totals) are written only
after the ledger snapshot is committed.

*/

package vault

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/planner"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ Manager = (*Vault)(nil)

// Deps are the shared collaborators of a vault.
type Deps struct {
	Auth         access.Authorizer
	Tokens       TokenSets
	Pools        Pools
	RiskProfiles RiskProfiles
	Strategies   StrategySource
	Executor     *ledger.Executor
	Recorder     SnapshotRecorder // optional
}

// Params describe one vault instance.
type Params struct {
	Address       common.Address
	Underlying    common.Address
	Decimals      int
	TokensHash    common.Hash
	Configuration types.VaultConfiguration
	Limits        types.VaultLimits
}

type Vault struct {
	mu sync.Mutex

	address    common.Address
	underlying common.Address
	decimals   int
	scale      sdkmath.Int // 10^decimals
	tokensHash common.Hash

	deps   Deps
	ledger *ledger.State
	runner *planner.Runner

	state          types.VaultState
	config         types.VaultConfiguration
	limits         types.VaultLimits
	whitelistRoot  common.Hash
	investHash     common.Hash
	investSteps    []types.StrategyStep
	userDeposits   map[common.Address]sdkmath.Int
	rebalanceCount int

	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// New creates an uninitialized vault.
func New(p Params, deps Deps) (*Vault, error) {
	if err := validateParams(p, deps); err != nil {
		return nil, err
	}
	scale, err := utils.Pow10(p.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return &Vault{
		address:      p.Address,
		underlying:   p.Underlying,
		decimals:     p.Decimals,
		scale:        scale,
		tokensHash:   p.TokensHash,
		deps:         deps,
		ledger:       deps.Executor.State(),
		runner:       planner.NewRunner(deps.Pools, deps.Executor),
		state:        types.VaultUninitialized,
		config:       p.Configuration,
		limits:       p.Limits,
		userDeposits: make(map[common.Address]sdkmath.Int),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
		log:          logger.GetForComponent("vault").With().Str("vault", p.Address.Hex()).Logger(),
	}, nil
}

func validateParams(p Params, deps Deps) error {
	if p.Address == (common.Address{}) || p.Underlying == (common.Address{}) {
		return fmt.Errorf("%w: vault and underlying addresses are required", ErrInvalidParams)
	}
	if p.Address == p.Underlying {
		return fmt.Errorf("%w: vault address equals underlying", ErrInvalidParams)
	}
	if deps.Auth == nil || deps.Tokens == nil || deps.Pools == nil || deps.RiskProfiles == nil || deps.Strategies == nil || deps.Executor == nil {
		return fmt.Errorf("%w: missing dependency", ErrInvalidParams)
	}
	if err := p.Configuration.Validate(); err != nil {
		return err
	}
	return p.Limits.Validate()
}

// Initialize activates the vault.
func (v *Vault) Initialize(caller common.Address) error {
	if err := access.Require(v.deps.Auth, access.RoleGovernance, caller); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != types.VaultUninitialized {
		return ErrAlreadyInitialized
	}
	v.state = types.VaultActive
	v.log.Info().Str("caller", caller.Hex()).Msg("Vault initialized")
	return nil
}

// ===== CONFIGURATION =====

// SetConfiguration replaces the configuration record. The emergency shutdown flag cannot be
// changed here.
func (v *Vault) SetConfiguration(caller common.Address, cfg types.VaultConfiguration) error {
	return v.configure(caller, access.RoleGovernance, "configuration", func() error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.EmergencyShutdown != v.config.EmergencyShutdown {
			return ErrShutdownUseDedicated
		}
		if err := v.requireRiskProfile(cfg.RiskProfileCode); err != nil {
			return err
		}
		cfg.TreasuryShares = append([]types.TreasuryShare(nil), cfg.TreasuryShares...)
		v.config = cfg
		return nil
	})
}

// SetRiskProfileCode points the vault at another risk profile. Deployed value moves on the next rebalance.
func (v *Vault) SetRiskProfileCode(caller common.Address, code uint8) error {
	return v.configure(caller, access.RoleGovernance, "risk_profile_code", func() error {
		if err := v.requireRiskProfile(code); err != nil {
			return err
		}
		v.config.RiskProfileCode = code
		return nil
	})
}

func (v *Vault) SetUnpaused(caller common.Address, unpaused bool) error {
	return v.configure(caller, access.RoleGovernance, "unpaused", func() error {
		v.config.Unpaused = unpaused
		return nil
	})
}

func (v *Vault) SetWhitelistRoot(caller common.Address, root common.Hash) error {
	return v.configure(caller, access.RoleGovernance, "whitelist_root", func() error {
		v.whitelistRoot = root
		return nil
	})
}

func (v *Vault) SetWhitelistEnabled(caller common.Address, enabled bool) error {
	return v.configure(caller, access.RoleGovernance, "whitelist_enabled", func() error {
		v.config.WhitelistEnabled = enabled
		return nil
	})
}

// SetUserDepositCap sets the per-account cumulative deposit cap. Zero disables the cap.
func (v *Vault) SetUserDepositCap(caller common.Address, capUT sdkmath.Int) error {
	return v.setLimit(caller, "user_deposit_cap", capUT, func(l *types.VaultLimits) { l.UserDepositCapUT = capUT })
}

// SetMinimumDeposit sets the smallest accepted deposit. Zero accepts any positive amount.
func (v *Vault) SetMinimumDeposit(caller common.Address, minUT sdkmath.Int) error {
	return v.setLimit(caller, "minimum_deposit", minUT, func(l *types.VaultLimits) { l.MinimumDepositValueUT = minUT })
}

// SetTotalValueLockedLimit sets the vault-wide value cap. Zero disables the cap.
func (v *Vault) SetTotalValueLockedLimit(caller common.Address, limitUT sdkmath.Int) error {
	return v.setLimit(caller, "total_value_locked_limit", limitUT, func(l *types.VaultLimits) { l.TotalValueLockedLimitUT = limitUT })
}

// SetTreasuryShares replaces the withdrawal fee split.
func (v *Vault) SetTreasuryShares(caller common.Address, shares []types.TreasuryShare) error {
	return v.configure(caller, access.RoleFinanceOperator, "treasury_shares", func() error {
		if err := types.ValidateTreasuryShares(shares); err != nil {
			return err
		}
		v.config.TreasuryShares = append([]types.TreasuryShare(nil), shares...)
		return nil
	})
}

// SetFees replaces the deposit and withdrawal fees.
func (v *Vault) SetFees(caller common.Address, depositFlatUT sdkmath.Int, depositPct uint16, withdrawalFlatUT sdkmath.Int, withdrawalPct uint16) error {
	return v.configure(caller, access.RoleFinanceOperator, "fees", func() error {
		cfg := v.config
		cfg.DepositFeeFlatUT, cfg.DepositFeePct = depositFlatUT, depositPct
		cfg.WithdrawalFeeFlatUT, cfg.WithdrawalFeePct = withdrawalFlatUT, withdrawalPct
		if err := cfg.Validate(); err != nil {
			return err
		}
		v.config = cfg
		return nil
	})
}

func (v *Vault) configure(caller common.Address, role access.Role, field string, apply func() error) error {
	if err := access.Require(v.deps.Auth, role, caller); err != nil {
		v.log.Warn().Err(err).Str("field", field).Msg("Configuration change rejected")
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := apply(); err != nil {
		v.log.Warn().Err(err).Str("field", field).Msg("Configuration change rejected")
		return err
	}
	v.log.Info().Str("caller", caller.Hex()).Str("field", field).Msg("Vault configuration updated")
	return nil
}

func (v *Vault) setLimit(caller common.Address, field string, value sdkmath.Int, apply func(*types.VaultLimits)) error {
	return v.configure(caller, access.RoleOperator, field, func() error {
		if value.IsNil() || value.IsNegative() {
			return fmt.Errorf("%w: %s must be a non-negative amount", types.ErrInvalidVaultConfiguration, field)
		}
		apply(&v.limits)
		return nil
	})
}

func (v *Vault) requireRiskProfile(code uint8) error {
	if _, ok := v.deps.RiskProfiles.GetRiskProfile(code); !ok {
		return fmt.Errorf("%w: code %d", ErrUnknownRiskProfile, code)
	}
	return nil
}

// ===== READERS =====

func (v *Vault) Address() common.Address { return v.address }

func (v *Vault) Underlying() common.Address { return v.underlying }

func (v *Vault) TokensHash() common.Hash { return v.tokensHash }

func (v *Vault) State() types.VaultState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Vault) Configuration() types.VaultConfiguration {
	v.mu.Lock()
	defer v.mu.Unlock()
	cfg := v.config
	cfg.TreasuryShares = append([]types.TreasuryShare(nil), v.config.TreasuryShares...)
	return cfg
}

func (v *Vault) Limits() types.VaultLimits {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limits
}

func (v *Vault) WhitelistRoot() common.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.whitelistRoot
}

// InvestStrategyHash returns the hash of the deployed strategy, zero when idle.
func (v *Vault) InvestStrategyHash() common.Hash {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.investHash
}

func (v *Vault) InvestStrategySteps() []types.StrategyStep {
	v.mu.Lock()
	defer v.mu.Unlock()
	return types.CopySteps(v.investSteps)
}

func (v *Vault) TotalSupply() sdkmath.Int {
	return v.ledger.TotalSupply(v.address)
}

func (v *Vault) BalanceOf(account common.Address) sdkmath.Int {
	return v.ledger.BalanceOf(v.address, account)
}

// UserDepositTotal returns the account's deposits net of withdrawals, as counted against the user cap.
func (v *Vault) UserDepositTotal(account common.Address) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.userDeposit(account)
}

// BalanceUT returns the vault value in underlying-token units.
func (v *Vault) BalanceUT() (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.valueLocked()
}

// PricePerShare returns the value of one whole share (10^decimals raw shares) in underlying units.
func (v *Vault) PricePerShare() (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, err := v.valueLocked()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return v.pricePerShare(value), nil
}

func (v *Vault) Summary() (Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	value, err := v.valueLocked()
	if err != nil {
		return Summary{}, err
	}
	cfg := v.config
	cfg.TreasuryShares = append([]types.TreasuryShare(nil), v.config.TreasuryShares...)
	return Summary{
		Address:            v.address,
		Underlying:         v.underlying,
		Decimals:           v.decimals,
		TokensHash:         v.tokensHash,
		State:              v.state.String(),
		InvestStrategyHash: v.investHash,
		InvestSteps:        types.CopySteps(v.investSteps),
		BalanceUT:          value,
		IdleUT:             v.idle(),
		TotalSupply:        v.ledger.TotalSupply(v.address),
		PricePerShare:      v.pricePerShare(value),
		Configuration:      cfg,
		Limits:             v.limits,
		WhitelistRoot:      v.whitelistRoot,
		RebalanceCount:     v.rebalanceCount,
	}, nil
}

// units converts a raw underlying amount to whole units for log output. Amounts that cannot be
// represented are logged as zero.
func (v *Vault) units(amount sdkmath.Int) float64 {
	f, err := utils.RawToFloat64(amount, v.decimals)
	if err != nil {
		return 0
	}
	return f
}

func (v *Vault) pricePerShare(value sdkmath.Int) sdkmath.Int {
	supply := v.ledger.TotalSupply(v.address)
	if supply.IsZero() {
		return v.scale
	}
	return value.Mul(v.scale).Quo(supply)
}

func (v *Vault) userDeposit(account common.Address) sdkmath.Int {
	if d, ok := v.userDeposits[account]; ok {
		return d
	}
	return sdkmath.ZeroInt()
}

// requireOperational checks the lifecycle state shared by deposit, withdraw and rebalance.
func (v *Vault) requireOperational(allowShutdown bool) error {
	switch v.state {
	case types.VaultUninitialized:
		return ErrNotInitialized
	case types.VaultEmergencyShutdown:
		if !allowShutdown {
			return ErrShutdown
		}
	}
	if !v.config.Unpaused {
		return ErrPaused
	}
	return nil
}
