/*

Strategy types. A strategy is an ordered chain of steps; the output token of step i is the input
token of step i+1, and the first step consumes the vault's underlying token.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

type StrategyStep struct {
	Pool        common.Address `json:"pool"`
	OutputToken common.Address `json:"output_token"`
	IsBorrow    bool           `json:"is_borrow"`
}

type Strategy struct {
	Hash       common.Hash    `json:"hash"`
	TokensHash common.Hash    `json:"tokens_hash"`
	Steps      []StrategyStep `json:"steps"`
}

// InputToken returns the token consumed by step i of steps when underlying feeds the first step.
func InputToken(steps []StrategyStep, i int, underlying common.Address) common.Address {
	if i == 0 {
		return underlying
	}
	return steps[i-1].OutputToken
}

// CopySteps returns a copy of steps so that stored strategies cannot be mutated through a caller's slice.
func CopySteps(steps []StrategyStep) []StrategyStep {
	if len(steps) == 0 {
		return nil
	}
	out := make([]StrategyStep, len(steps))
	copy(out, steps)
	return out
}
