package registry

import (
	"fmt"
	"sync"

	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// TokenSetReader resolves a token set identity to its tokens.
type TokenSetReader interface {
	GetTokensHashToTokenList(hash common.Hash) []common.Address
}

// PoolApprovals reports pool approval.
type PoolApprovals interface {
	IsApprovedLiquidityPool(pool common.Address) bool
}

// StrategyCatalog stores content-addressed, immutable strategies.
type StrategyCatalog struct {
	auth   access.Authorizer
	tokens TokenSetReader
	pools  PoolApprovals

	mu         sync.RWMutex
	strategies map[common.Hash]types.Strategy
	byTokens   map[common.Hash][]common.Hash

	log zerolog.Logger
}

func NewStrategyCatalog(auth access.Authorizer, tokens TokenSetReader, pools PoolApprovals) *StrategyCatalog {
	return &StrategyCatalog{
		auth:       auth,
		tokens:     tokens,
		pools:      pools,
		strategies: make(map[common.Hash]types.Strategy),
		byTokens:   make(map[common.Hash][]common.Hash),
		log:        logger.GetForComponent("strategy_catalog"),
	}
}

// SetStrategy stores steps under tokensHash and returns the strategy hash.
func (c *StrategyCatalog) SetStrategy(caller common.Address, tokensHash common.Hash, steps []types.StrategyStep) (common.Hash, error) {
	if err := access.Require(c.auth, access.RoleStrategyOperator, caller); err != nil {
		return common.Hash{}, err
	}
	if err := ValidateSteps(c.tokens, c.pools, tokensHash, steps); err != nil {
		return common.Hash{}, err
	}

	hash := StrategyHash(tokensHash, steps)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.strategies[hash]; ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrDuplicateStrategy, hash.Hex())
	}
	c.strategies[hash] = types.Strategy{Hash: hash, TokensHash: tokensHash, Steps: types.CopySteps(steps)}
	c.byTokens[tokensHash] = append(c.byTokens[tokensHash], hash)

	c.log.Info().
		Str("strategy_hash", hash.Hex()).
		Str("tokens_hash", tokensHash.Hex()).
		Int("steps", len(steps)).
		Msg("Strategy stored")
	return hash, nil
}

// GetStrategy returns the steps stored under hash and whether it exists.
func (c *StrategyCatalog) GetStrategy(hash common.Hash) ([]types.StrategyStep, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.strategies[hash]
	if !ok {
		return nil, false
	}
	return types.CopySteps(s.Steps), true
}

// StrategyHashesOf lists the strategies stored for tokensHash, oldest first.
func (c *StrategyCatalog) StrategyHashesOf(tokensHash common.Hash) []common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.Hash, len(c.byTokens[tokensHash]))
	copy(out, c.byTokens[tokensHash])
	return out
}

// ValidateSteps checks that tokensHash is known, steps is non-empty and every pool is approved.
func ValidateSteps(tokens TokenSetReader, pools PoolApprovals, tokensHash common.Hash, steps []types.StrategyStep) error {
	if len(tokens.GetTokensHashToTokenList(tokensHash)) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTokensHash, tokensHash.Hex())
	}
	if len(steps) == 0 {
		return ErrEmptyStrategy
	}
	for i, s := range steps {
		if s.OutputToken == (common.Address{}) {
			return fmt.Errorf("%w: step %d", ErrInvalidStrategyOutput, i)
		}
		if !pools.IsApprovedLiquidityPool(s.Pool) {
			return fmt.Errorf("%w: step %d pool %s", ErrPoolNotApproved, i, s.Pool.Hex())
		}
	}
	return nil
}
