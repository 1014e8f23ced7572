/*

Tokens and token-set identities.

A token set identity is the canonical hash of (chain id, ordered token list). Vaults and strategies
are keyed by it rather than by the raw token list.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

type Token struct {
	Address  common.Address `json:"address"`
	Approved bool           `json:"approved"`
}

// TokenSet is the mapping stored for a token set identity.
type TokenSet struct {
	Identity common.Hash      `json:"identity"`
	Tokens   []common.Address `json:"tokens"`
}
