/*

This file contains the vault configuration record and the snapshot types recorded after rebalances.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// BasisPoints is the denominator of every percentage in the vault configuration.
const BasisPoints uint16 = 10000

var ErrInvalidVaultConfiguration = errors.Join(ErrConfiguration, errors.New("vault configuration is invalid"))

// VaultState is the lifecycle state of a vault.
type VaultState int

const (
	VaultUninitialized VaultState = iota
	VaultActive
	VaultEmergencyShutdown
)

func (s VaultState) String() string {
	switch s {
	case VaultUninitialized:
		return "uninitialized"
	case VaultActive:
		return "active"
	case VaultEmergencyShutdown:
		return "emergency_shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// TreasuryShare routes Share basis points of every withdrawal fee to Treasury.
type TreasuryShare struct {
	Treasury common.Address `json:"treasury"`
	Share    uint16         `json:"share"`
}

// VaultConfiguration is the explicit configuration record of a vault.
type VaultConfiguration struct {
	DepositFeeFlatUT    sdkmath.Int     `json:"deposit_fee_flat_ut"`    // Flat fee in underlying units
	DepositFeePct       uint16          `json:"deposit_fee_pct"`        // Basis points of the deposit
	WithdrawalFeeFlatUT sdkmath.Int     `json:"withdrawal_fee_flat_ut"` // Flat fee in underlying units
	WithdrawalFeePct    uint16          `json:"withdrawal_fee_pct"`     // Basis points of the withdrawal
	MaxVaultValueJump   uint16          `json:"max_vault_value_jump"`   // Basis points of vault value, 0 disables the guard
	TreasuryShares      []TreasuryShare `json:"treasury_shares"`        // Must sum to BasisPoints when non-empty
	RiskProfileCode     uint8           `json:"risk_profile_code"`
	EmergencyShutdown   bool            `json:"emergency_shutdown"`
	Unpaused            bool            `json:"unpaused"`
	WhitelistEnabled    bool            `json:"whitelist_enabled"`
}

// VaultLimits are the deposit limits of a vault, all in underlying-token units.
type VaultLimits struct {
	UserDepositCapUT        sdkmath.Int `json:"user_deposit_cap_ut"`
	MinimumDepositValueUT   sdkmath.Int `json:"minimum_deposit_value_ut"`
	TotalValueLockedLimitUT sdkmath.Int `json:"total_value_locked_limit_ut"`
}

// Validate checks the record for internal consistency.
func (c VaultConfiguration) Validate() error {
	if c.DepositFeeFlatUT.IsNil() || c.DepositFeeFlatUT.IsNegative() {
		return fmt.Errorf("%w: deposit flat fee must be a non-negative amount", ErrInvalidVaultConfiguration)
	}
	if c.WithdrawalFeeFlatUT.IsNil() || c.WithdrawalFeeFlatUT.IsNegative() {
		return fmt.Errorf("%w: withdrawal flat fee must be a non-negative amount", ErrInvalidVaultConfiguration)
	}
	if c.DepositFeePct > BasisPoints {
		return fmt.Errorf("%w: deposit fee %d bps exceeds %d", ErrInvalidVaultConfiguration, c.DepositFeePct, BasisPoints)
	}
	if c.WithdrawalFeePct > BasisPoints {
		return fmt.Errorf("%w: withdrawal fee %d bps exceeds %d", ErrInvalidVaultConfiguration, c.WithdrawalFeePct, BasisPoints)
	}
	if c.MaxVaultValueJump > BasisPoints {
		return fmt.Errorf("%w: max vault value jump %d bps exceeds %d", ErrInvalidVaultConfiguration, c.MaxVaultValueJump, BasisPoints)
	}
	return ValidateTreasuryShares(c.TreasuryShares)
}

// ValidateTreasuryShares requires shares to sum to exactly BasisPoints, or to be empty.
func ValidateTreasuryShares(shares []TreasuryShare) error {
	if len(shares) == 0 {
		return nil
	}
	var total uint32
	for i, s := range shares {
		if s.Treasury == (common.Address{}) {
			return fmt.Errorf("%w: treasury %d has zero address", ErrInvalidVaultConfiguration, i)
		}
		total += uint32(s.Share)
	}
	if total != uint32(BasisPoints) {
		return fmt.Errorf("%w: treasury shares sum to %d bps, want %d", ErrInvalidVaultConfiguration, total, BasisPoints)
	}
	return nil
}

// Validate checks the limits for nil or negative amounts.
func (l VaultLimits) Validate() error {
	for name, v := range map[string]sdkmath.Int{
		"user deposit cap":         l.UserDepositCapUT,
		"minimum deposit":          l.MinimumDepositValueUT,
		"total value locked limit": l.TotalValueLockedLimitUT,
	} {
		if v.IsNil() || v.IsNegative() {
			return fmt.Errorf("%w: %s must be a non-negative amount", ErrInvalidVaultConfiguration, name)
		}
	}
	return nil
}

// RebalanceSnapshot captures one committed rebalance.
type RebalanceSnapshot struct {
	SnapshotID      int64          `json:"snapshot_id,omitempty"` // Assigned by the store
	RebalanceID     string         `json:"rebalance_id"`
	RebalanceNumber int            `json:"rebalance_number"`
	Vault           common.Address `json:"vault"`
	Underlying      common.Address `json:"underlying"`
	Timestamp       time.Time      `json:"timestamp"`
	FromStrategy    common.Hash    `json:"from_strategy"`
	ToStrategy      common.Hash    `json:"to_strategy"`
	ValueBeforeUT   sdkmath.Int    `json:"value_before_ut"`
	ValueAfterUT    sdkmath.Int    `json:"value_after_ut"`
	IdleAfterUT     sdkmath.Int    `json:"idle_after_ut"`
	TotalSupply     sdkmath.Int    `json:"total_supply"`
	Receipts        []CallReceipt  `json:"receipts"`
}
