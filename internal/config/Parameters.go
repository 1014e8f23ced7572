/*

This file contains the default parameters for stratvault.

They are applied to every vault whose genesis entry leaves a field out. The values favour
capital preservation: no fees, a tight value-jump guard and paused deposits until governance
opens the vault.

*/

package config

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
)

// DefaultRebalanceSchedule runs the keeper every ten minutes.
const DefaultRebalanceSchedule = "@every 10m"

// DefaultMaxVaultValueJump is the guard applied when a vault does not configure one.
const DefaultMaxVaultValueJump uint16 = 100

// DefaultVaultConfiguration returns the baseline configuration record of a new vault.
func DefaultVaultConfiguration() types.VaultConfiguration {
	return types.VaultConfiguration{
		DepositFeeFlatUT: sdkmath.ZeroInt(), // No flat deposit fee.
		DepositFeePct:    0,                 // No proportional deposit fee.
		// Rationale: deposit fees penalize early depositors and are rarely needed when
		// withdrawal fees already cover the unwind cost.

		WithdrawalFeeFlatUT: sdkmath.ZeroInt(), // No flat withdrawal fee.
		WithdrawalFeePct:    0,                 // No proportional withdrawal fee.

		MaxVaultValueJump: DefaultMaxVaultValueJump, // Reject operations moving value by more than 1%.
		// Rationale: a full migration through two venues loses a few basis points to rounding.
		// Anything beyond 1% points at a mispriced or misbehaving adapter.

		TreasuryShares:  nil, // Fees stay in the vault until treasuries are configured.
		RiskProfileCode: 0,

		EmergencyShutdown: false,
		Unpaused:          false, // Governance opens the vault explicitly.
		WhitelistEnabled:  false,
	}
}

// DefaultVaultLimits returns unlimited deposit limits. Zero disables a limit.
func DefaultVaultLimits() types.VaultLimits {
	return types.VaultLimits{
		UserDepositCapUT:        sdkmath.ZeroInt(),
		MinimumDepositValueUT:   sdkmath.ZeroInt(),
		TotalValueLockedLimitUT: sdkmath.ZeroInt(),
	}
}
