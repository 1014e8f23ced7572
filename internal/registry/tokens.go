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

// TokenRegistry is the approved-token table plus the token set identity index.
type TokenRegistry struct {
	chainID uint64
	auth    access.Authorizer

	mu       sync.RWMutex
	approved map[common.Address]bool
	sets     map[common.Hash][]common.Address
	index    []common.Hash // identities in creation order

	log zerolog.Logger
}

func NewTokenRegistry(chainID uint64, auth access.Authorizer) *TokenRegistry {
	return &TokenRegistry{
		chainID:  chainID,
		auth:     auth,
		approved: make(map[common.Address]bool),
		sets:     make(map[common.Hash][]common.Address),
		log:      logger.GetForComponent("token_registry"),
	}
}

// ChainID returns the chain id mixed into every identity.
func (r *TokenRegistry) ChainID() uint64 {
	return r.chainID
}

// ApproveToken marks token approved. Approving an approved token is a no-op.
func (r *TokenRegistry) ApproveToken(caller, token common.Address) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	if token == (common.Address{}) {
		return fmt.Errorf("%w: token", ErrZeroAddress)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.approved[token] {
		return nil
	}
	r.approved[token] = true
	r.log.Info().Str("token", token.Hex()).Msg("Token approved")
	return nil
}

// RevokeToken clears token's approval. Existing identities are kept.
func (r *TokenRegistry) RevokeToken(caller, token common.Address) error {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.approved[token] {
		return nil
	}
	r.approved[token] = false
	r.log.Info().Str("token", token.Hex()).Msg("Token revoked")
	return nil
}

func (r *TokenRegistry) IsApprovedToken(token common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved[token]
}

// SetTokensHashToTokens registers the identity of tokens and returns it. Registering the same
// list again returns the same identity.
func (r *TokenRegistry) SetTokensHashToTokens(caller common.Address, tokens []common.Address) (common.Hash, error) {
	if err := access.Require(r.auth, access.RoleOperator, caller); err != nil {
		return common.Hash{}, err
	}
	if len(tokens) == 0 {
		return common.Hash{}, ErrEmptyTokenList
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tokens {
		if !r.approved[t] {
			return common.Hash{}, fmt.Errorf("%w: %s", ErrTokenNotApproved, t.Hex())
		}
	}

	hash := TokensHash(r.chainID, tokens)
	if existing, ok := r.sets[hash]; ok {
		if !sameTokens(existing, tokens) {
			// keccak collision or a hashing bug; never remap an identity
			return common.Hash{}, fmt.Errorf("%w: %s", ErrConflictingHash, hash.Hex())
		}
		return hash, nil
	}

	stored := make([]common.Address, len(tokens))
	copy(stored, tokens)
	r.sets[hash] = stored
	r.index = append(r.index, hash)

	r.log.Info().
		Str("tokens_hash", hash.Hex()).
		Int("tokens", len(tokens)).
		Msg("Token set identity registered")
	return hash, nil
}

// GetTokensHashToTokenList returns the tokens behind hash, or an empty list for unknown hashes.
func (r *TokenRegistry) GetTokensHashToTokenList(hash common.Hash) []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tokens, ok := r.sets[hash]
	if !ok {
		return []common.Address{}
	}
	out := make([]common.Address, len(tokens))
	copy(out, tokens)
	return out
}

// TokensHashIndex enumerates every known identity in creation order.
func (r *TokenRegistry) TokensHashIndex() []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Hash, len(r.index))
	copy(out, r.index)
	return out
}

// TokenSets returns every identity with its token list.
func (r *TokenRegistry) TokenSets() []types.TokenSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TokenSet, 0, len(r.index))
	for _, h := range r.index {
		tokens := make([]common.Address, len(r.sets[h]))
		copy(tokens, r.sets[h])
		out = append(out, types.TokenSet{Identity: h, Tokens: tokens})
	}
	return out
}

func sameTokens(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
