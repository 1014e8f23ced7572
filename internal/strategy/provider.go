/*

The strategy provider is the single recommendation table: for every (risk profile, token identity)
it names the steps a vault should be deployed into. Recommendations are stored as steps directly
and need not exist in the strategy catalog.

*/

package strategy

import (
	"sync"

	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type key struct {
	riskProfile uint8
	tokensHash  common.Hash
}

// BestStrategy is one provider entry.
type BestStrategy struct {
	RiskProfileCode uint8                `json:"risk_profile_code"`
	TokensHash      common.Hash          `json:"tokens_hash"`
	StrategyHash    common.Hash          `json:"strategy_hash"`
	Steps           []types.StrategyStep `json:"steps"`
	Default         bool                 `json:"default"`
}

type Provider struct {
	auth access.Authorizer

	mu              sync.RWMutex
	best            map[key][]types.StrategyStep
	defaults        map[key][]types.StrategyStep
	defaultFallback bool

	log zerolog.Logger
}

// NewProvider creates a provider. Default fallback starts enabled.
func NewProvider(auth access.Authorizer) *Provider {
	return &Provider{
		auth:            auth,
		best:            make(map[key][]types.StrategyStep),
		defaults:        make(map[key][]types.StrategyStep),
		defaultFallback: true,
		log:             logger.GetForComponent("strategy_provider"),
	}
}

// SetBestStrategy records steps as the recommendation. An empty list records an explicit idle
// recommendation, which takes precedence over the default entry.
func (p *Provider) SetBestStrategy(caller common.Address, riskProfileCode uint8, tokensHash common.Hash, steps []types.StrategyStep) error {
	return p.set(caller, p.best, "best", riskProfileCode, tokensHash, steps, false)
}

// ClearBestStrategy removes the recommendation so that the default entry applies again.
func (p *Provider) ClearBestStrategy(caller common.Address, riskProfileCode uint8, tokensHash common.Hash) error {
	return p.set(caller, p.best, "best", riskProfileCode, tokensHash, nil, true)
}

// SetBestDefaultStrategy records the fallback recommendation. An empty list clears the entry.
func (p *Provider) SetBestDefaultStrategy(caller common.Address, riskProfileCode uint8, tokensHash common.Hash, steps []types.StrategyStep) error {
	return p.set(caller, p.defaults, "default", riskProfileCode, tokensHash, steps, len(steps) == 0)
}

// SetDefaultFallback toggles falling back to the default entry.
func (p *Provider) SetDefaultFallback(caller common.Address, enabled bool) error {
	if err := access.Require(p.auth, access.RoleStrategyOperator, caller); err != nil {
		return err
	}
	p.mu.Lock()
	p.defaultFallback = enabled
	p.mu.Unlock()
	p.log.Info().Bool("enabled", enabled).Msg("Default strategy fallback updated")
	return nil
}

// DefaultFallback reports whether fallback is enabled.
func (p *Provider) DefaultFallback() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultFallback
}

// GetBestStrategy returns the recommended steps, falling back to the default entry when no
// recommendation is stored and fallback is enabled. Nil means stay idle.
func (p *Provider) GetBestStrategy(riskProfileCode uint8, tokensHash common.Hash) []types.StrategyStep {
	p.mu.RLock()
	defer p.mu.RUnlock()
	k := key{riskProfile: riskProfileCode, tokensHash: tokensHash}
	if steps, ok := p.best[k]; ok {
		return types.CopySteps(steps)
	}
	if p.defaultFallback {
		return types.CopySteps(p.defaults[k])
	}
	return nil
}

// GetBestDefaultStrategy returns the default entry regardless of the fallback flag.
func (p *Provider) GetBestDefaultStrategy(riskProfileCode uint8, tokensHash common.Hash) []types.StrategyStep {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return types.CopySteps(p.defaults[key{riskProfile: riskProfileCode, tokensHash: tokensHash}])
}

// Entries lists every stored recommendation, defaults included.
func (p *Provider) Entries() []BestStrategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]BestStrategy, 0, len(p.best)+len(p.defaults))
	for k, steps := range p.best {
		out = append(out, entry(k, steps, false))
	}
	for k, steps := range p.defaults {
		out = append(out, entry(k, steps, true))
	}
	return out
}

func entry(k key, steps []types.StrategyStep, isDefault bool) BestStrategy {
	return BestStrategy{
		RiskProfileCode: k.riskProfile,
		TokensHash:      k.tokensHash,
		StrategyHash:    registry.StrategyHash(k.tokensHash, steps),
		Steps:           types.CopySteps(steps),
		Default:         isDefault,
	}
}

func (p *Provider) set(caller common.Address, table map[key][]types.StrategyStep, kind string, riskProfileCode uint8, tokensHash common.Hash, steps []types.StrategyStep, remove bool) error {
	if err := access.Require(p.auth, access.RoleStrategyOperator, caller); err != nil {
		return err
	}
	k := key{riskProfile: riskProfileCode, tokensHash: tokensHash}

	p.mu.Lock()
	if remove {
		delete(table, k)
	} else {
		table[k] = types.CopySteps(steps)
	}
	p.mu.Unlock()

	p.log.Info().
		Str("kind", kind).
		Uint8("risk_profile", riskProfileCode).
		Str("tokens_hash", tokensHash.Hex()).
		Str("strategy_hash", registry.StrategyHash(tokensHash, steps).Hex()).
		Int("steps", len(steps)).
		Bool("removed", remove).
		Msg("Best strategy updated")
	return nil
}
