/*

Canonical identity hashing. Both identities are keccak256 over 32-byte words, so they match what an
EVM contract computes with abi.encode over the same values.

*/

package registry

import (
	"math/big"

	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TokensHash returns the token set identity of tokens on chainID.
func TokensHash(chainID uint64, tokens []common.Address) common.Hash {
	words := make([][]byte, 0, len(tokens)+1)
	words = append(words, common.LeftPadBytes(new(big.Int).SetUint64(chainID).Bytes(), 32))
	for _, t := range tokens {
		words = append(words, common.LeftPadBytes(t.Bytes(), 32))
	}
	return crypto.Keccak256Hash(words...)
}

// StrategyHash returns the content address of steps under tokensHash. No steps means idle,
// which is the zero hash.
func StrategyHash(tokensHash common.Hash, steps []types.StrategyStep) common.Hash {
	if len(steps) == 0 {
		return common.Hash{}
	}
	words := make([][]byte, 0, 1+3*len(steps))
	words = append(words, tokensHash.Bytes())
	for _, s := range steps {
		borrow := make([]byte, 32)
		if s.IsBorrow {
			borrow[31] = 1
		}
		words = append(words,
			common.LeftPadBytes(s.Pool.Bytes(), 32),
			common.LeftPadBytes(s.OutputToken.Bytes(), 32),
			borrow,
		)
	}
	return crypto.Keccak256Hash(words...)
}
