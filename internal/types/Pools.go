/*

This is the registry view of a liquidity pool (venue). Ratings are assigned by the risk operator and
matched against risk profile rating ranges when a vault selects a strategy.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// MaxPoolRating is the highest rating a pool can carry.
const MaxPoolRating uint8 = 100

type LiquidityPool struct {
	Address  common.Address `json:"address"`
	Approved bool           `json:"approved"`
	Rating   uint8          `json:"rating"`  // 0..MaxPoolRating
	Adapter  string         `json:"adapter"` // Name of the bound adapter, empty when unset
}

// RiskProfile is a named risk bucket. Pools rated within [LowerRating, UpperRating] are eligible.
type RiskProfile struct {
	Code        uint8  `json:"code"`
	Name        string `json:"name"`
	CanBorrow   bool   `json:"can_borrow"`
	LowerRating uint8  `json:"lower_rating"`
	UpperRating uint8  `json:"upper_rating"`
	Exists      bool   `json:"exists"`
}

// Eligible reports whether a pool rating falls within the profile's range.
func (rp RiskProfile) Eligible(rating uint8) bool {
	return rp.Exists && rating >= rp.LowerRating && rating <= rp.UpperRating
}
