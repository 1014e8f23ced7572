package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// RiskProfileRegistry holds the named risk buckets. Profiles are never deleted, only disabled.
type RiskProfileRegistry struct {
	auth access.Authorizer

	mu       sync.RWMutex
	profiles map[uint8]types.RiskProfile

	log zerolog.Logger
}

func NewRiskProfileRegistry(auth access.Authorizer) *RiskProfileRegistry {
	return &RiskProfileRegistry{
		auth:     auth,
		profiles: make(map[uint8]types.RiskProfile),
		log:      logger.GetForComponent("risk_profile_registry"),
	}
}

// AddRiskProfile creates a profile. Codes are unique, including disabled profiles.
func (r *RiskProfileRegistry) AddRiskProfile(caller common.Address, code uint8, name string, canBorrow bool, lower, upper uint8) error {
	if err := access.Require(r.auth, access.RoleRiskOperator, caller); err != nil {
		return err
	}
	if err := validateRange(lower, upper); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[code]; ok {
		return fmt.Errorf("%w: code %d", ErrRiskProfileExists, code)
	}
	r.profiles[code] = types.RiskProfile{
		Code:        code,
		Name:        name,
		CanBorrow:   canBorrow,
		LowerRating: lower,
		UpperRating: upper,
		Exists:      true,
	}
	r.log.Info().
		Uint8("code", code).
		Str("name", name).
		Bool("can_borrow", canBorrow).
		Uint8("lower", lower).
		Uint8("upper", upper).
		Msg("Risk profile added")
	return nil
}

// UpdateRiskProfileRatingRange changes the eligible rating range of an existing profile.
func (r *RiskProfileRegistry) UpdateRiskProfileRatingRange(caller common.Address, code uint8, lower, upper uint8) error {
	if err := validateRange(lower, upper); err != nil {
		return err
	}
	return r.update(caller, code, func(p *types.RiskProfile) {
		p.LowerRating, p.UpperRating = lower, upper
	})
}

// UpdateRiskProfileBorrow changes whether strategies under the profile may borrow.
func (r *RiskProfileRegistry) UpdateRiskProfileBorrow(caller common.Address, code uint8, canBorrow bool) error {
	return r.update(caller, code, func(p *types.RiskProfile) {
		p.CanBorrow = canBorrow
	})
}

// DisableRiskProfile clears the existence flag. The code stays reserved.
func (r *RiskProfileRegistry) DisableRiskProfile(caller common.Address, code uint8) error {
	return r.update(caller, code, func(p *types.RiskProfile) {
		p.Exists = false
	})
}

// GetRiskProfile returns the profile for code. The boolean is false for unknown or disabled codes.
func (r *RiskProfileRegistry) GetRiskProfile(code uint8) (types.RiskProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[code]
	return p, ok && p.Exists
}

// EligibleRating reports whether rating is inside the range of an enabled profile.
func (r *RiskProfileRegistry) EligibleRating(code uint8, rating uint8) bool {
	p, ok := r.GetRiskProfile(code)
	return ok && p.Eligible(rating)
}

// RiskProfiles returns every profile, disabled ones included, ordered by code.
func (r *RiskProfileRegistry) RiskProfiles() []types.RiskProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.RiskProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (r *RiskProfileRegistry) update(caller common.Address, code uint8, apply func(*types.RiskProfile)) error {
	if err := access.Require(r.auth, access.RoleRiskOperator, caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[code]
	if !ok || !p.Exists {
		return fmt.Errorf("%w: code %d", ErrUnknownRiskProfile, code)
	}
	apply(&p)
	r.profiles[code] = p
	r.log.Info().Uint8("code", code).Interface("profile", p).Msg("Risk profile updated")
	return nil
}

func validateRange(lower, upper uint8) error {
	if lower > upper || upper > types.MaxPoolRating {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRatingRange, lower, upper)
	}
	return nil
}
