package vault

import (
	"errors"

	"github.com/elys-network/stratvault/internal/types"
)

// Error definitions; each joins exactly one error class.
var (
	ErrNotInitialized     = errors.Join(types.ErrState, errors.New("vault is not initialized"))
	ErrAlreadyInitialized = errors.Join(types.ErrState, errors.New("vault is already initialized"))
	ErrShutdown           = errors.Join(types.ErrState, errors.New("vault is in emergency shutdown"))
	ErrPaused             = errors.Join(types.ErrState, errors.New("vault is paused"))
	ErrVaultInsolvent     = errors.Join(types.ErrState, errors.New("vault has shares outstanding but no value"))

	ErrNotWhitelisted = errors.Join(types.ErrAuthorization, errors.New("account is not whitelisted"))

	ErrBelowMinimumDeposit    = errors.Join(types.ErrLimitExceeded, errors.New("deposit is below the minimum"))
	ErrTVLLimitExceeded       = errors.Join(types.ErrLimitExceeded, errors.New("total value locked limit exceeded"))
	ErrUserDepositCapExceeded = errors.Join(types.ErrLimitExceeded, errors.New("user deposit cap exceeded"))
	ErrMaxValueJumpExceeded   = errors.Join(types.ErrLimitExceeded, errors.New("vault value moved beyond the allowed band"))
	ErrSlippage               = errors.Join(types.ErrLimitExceeded, errors.New("output below the requested minimum"))
	ErrZeroShares             = errors.Join(types.ErrLimitExceeded, errors.New("deposit mints no shares"))
	ErrInsufficientShares     = errors.Join(types.ErrLimitExceeded, errors.New("insufficient shares"))
	ErrInsufficientFunds      = errors.Join(types.ErrLimitExceeded, errors.New("insufficient underlying balance"))

	ErrInvalidAmount        = errors.Join(types.ErrConfiguration, errors.New("amount must be positive"))
	ErrInvalidParams        = errors.Join(types.ErrConfiguration, errors.New("vault parameters are invalid"))
	ErrUnresolvableStrategy = errors.Join(types.ErrConfiguration, errors.New("strategy cannot be resolved for token identity"))
	ErrUnknownRiskProfile   = errors.Join(types.ErrConfiguration, errors.New("risk profile is unknown or disabled"))
	ErrStepNotApproved      = errors.Join(types.ErrConfiguration, errors.New("strategy step pool is not approved"))
	ErrStepRatingIneligible = errors.Join(types.ErrConfiguration, errors.New("strategy step pool rating is outside the risk profile"))
	ErrBorrowNotAllowed     = errors.Join(types.ErrConfiguration, errors.New("risk profile does not allow borrowing"))
	ErrStepAdapterUnbound   = errors.Join(types.ErrConfiguration, errors.New("strategy step pool has no adapter"))
	ErrStepInvalidOutput    = errors.Join(types.ErrConfiguration, errors.New("strategy step output token is zero"))
	ErrShutdownUseDedicated = errors.Join(types.ErrConfiguration, errors.New("emergency shutdown is changed with SetEmergencyShutdown"))

	ErrValuationFailed       = errors.Join(types.ErrExternalAdapter, errors.New("vault valuation failed"))
	ErrInsufficientLiquidity = errors.Join(types.ErrExternalAdapter, errors.New("strategy could not free enough underlying"))
)
