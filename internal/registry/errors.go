package registry

import (
	"errors"

	"github.com/elys-network/stratvault/internal/types"
)

var (
	ErrConflictingHash       = errors.Join(types.ErrConfiguration, errors.New("unknown or conflicting tokens hash"))
	ErrEmptyTokenList        = errors.Join(types.ErrConfiguration, errors.New("token list is empty"))
	ErrTokenNotApproved      = errors.Join(types.ErrConfiguration, errors.New("token is not approved"))
	ErrZeroAddress           = errors.Join(types.ErrConfiguration, errors.New("zero address"))
	ErrAdapterZero           = errors.Join(types.ErrConfiguration, errors.New("adapter is not set"))
	ErrPoolNotApproved       = errors.Join(types.ErrConfiguration, errors.New("liquidity pool is not approved"))
	ErrUnknownPool           = errors.Join(types.ErrConfiguration, errors.New("liquidity pool is unknown"))
	ErrInvalidRating         = errors.Join(types.ErrConfiguration, errors.New("rating is out of range"))
	ErrLengthMismatch        = errors.Join(types.ErrConfiguration, errors.New("argument lengths differ"))
	ErrRiskProfileExists     = errors.Join(types.ErrConfiguration, errors.New("risk profile already exists"))
	ErrUnknownRiskProfile    = errors.Join(types.ErrConfiguration, errors.New("risk profile is unknown"))
	ErrInvalidRatingRange    = errors.Join(types.ErrConfiguration, errors.New("rating range is invalid"))
	ErrDuplicateStrategy     = errors.Join(types.ErrConfiguration, errors.New("strategy already exists"))
	ErrEmptyStrategy         = errors.Join(types.ErrConfiguration, errors.New("strategy has no steps"))
	ErrUnknownTokensHash     = errors.Join(types.ErrConfiguration, errors.New("tokens hash is unknown"))
	ErrInvalidStrategyOutput = errors.Join(types.ErrConfiguration, errors.New("strategy step output token is zero"))
)
