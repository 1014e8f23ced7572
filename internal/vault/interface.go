package vault

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/adapter"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// Manager is the surface the keeper and the web API use to drive and inspect a vault.
// It abstracts the vault implementation so schedulers and readers can be tested with fakes.
type Manager interface {
	// Address returns the vault address, which is also its share token.
	Address() common.Address

	// Rebalance migrates deployed value to the current recommendation.
	// It returns nil when the vault already follows the recommendation.
	Rebalance(caller common.Address) (*types.RebalanceSnapshot, error)

	// BalanceUT returns the vault value in underlying-token units.
	BalanceUT() (sdkmath.Int, error)

	// Summary returns a consistent view of the vault's exposed state.
	Summary() (Summary, error)
}

// TokenSets resolves token set identities.
type TokenSets interface {
	GetTokensHashToTokenList(hash common.Hash) []common.Address
}

// Pools exposes the pool registry to the vault.
type Pools interface {
	GetLiquidityPool(pool common.Address) (types.LiquidityPool, bool)
	AdapterOf(pool common.Address) (adapter.Adapter, bool)
}

// RiskProfiles exposes risk buckets to the vault.
type RiskProfiles interface {
	GetRiskProfile(code uint8) (types.RiskProfile, bool)
}

// StrategySource recommends steps per risk profile and token identity.
type StrategySource interface {
	GetBestStrategy(riskProfileCode uint8, tokensHash common.Hash) []types.StrategyStep
}

// SnapshotRecorder persists committed rebalances.
type SnapshotRecorder interface {
	SaveRebalanceSnapshot(snapshot types.RebalanceSnapshot) (int64, error)
}

// Summary is the exposed state of a vault.
type Summary struct {
	Address            common.Address           `json:"address"`
	Underlying         common.Address           `json:"underlying"`
	Decimals           int                      `json:"decimals"`
	TokensHash         common.Hash              `json:"tokens_hash"`
	State              string                   `json:"state"`
	InvestStrategyHash common.Hash              `json:"invest_strategy_hash"`
	InvestSteps        []types.StrategyStep     `json:"invest_steps"`
	BalanceUT          sdkmath.Int              `json:"balance_ut"`
	IdleUT             sdkmath.Int              `json:"idle_ut"`
	TotalSupply        sdkmath.Int              `json:"total_supply"`
	PricePerShare      sdkmath.Int              `json:"price_per_share"`
	Configuration      types.VaultConfiguration `json:"configuration"`
	Limits             types.VaultLimits        `json:"limits"`
	WhitelistRoot      common.Hash              `json:"whitelist_root"`
	RebalanceCount     int                      `json:"rebalance_count"`
}
