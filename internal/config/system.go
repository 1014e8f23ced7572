package config

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/ledger"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/simulations"
	"github.com/elys-network/stratvault/internal/strategy"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/vault"
	"github.com/elys-network/stratvault/internal/whitelist"
	"github.com/ethereum/go-ethereum/common"
)

// System is everything a genesis builds: registries, simulated venues on a shared ledger and vaults.
type System struct {
	Roles        *access.RoleTable
	Ledger       *ledger.State
	Executor     *ledger.Executor
	Tokens       *registry.TokenRegistry
	Pools        *registry.LiquidityPoolRegistry
	RiskProfiles *registry.RiskProfileRegistry
	Catalog      *registry.StrategyCatalog
	Provider     *strategy.Provider
	Protocols    map[string]*simulations.Protocol
	TokenSets    map[string]common.Hash
	Vaults       []*vault.Vault
	Whitelists   map[common.Address]*whitelist.Tree

	actors map[access.Role]common.Address
}

// Actor returns the account acting for role during the build.
func (s *System) Actor(role access.Role) (common.Address, bool) {
	a, ok := s.actors[role]
	return a, ok
}

// Managers returns the vaults as the interface the keeper and the web API consume.
func (s *System) Managers() []vault.Manager {
	out := make([]vault.Manager, len(s.Vaults))
	for i, v := range s.Vaults {
		out[i] = v
	}
	return out
}

// Build wires a System from g. The recorder may be nil.
func Build(g *Genesis, chainID uint64, recorder vault.SnapshotRecorder) (*System, error) {
	log := logger.GetForComponent("genesis")
	if err := g.Validate(); err != nil {
		return nil, err
	}

	b := &builder{g: g, sys: &System{
		Protocols:  make(map[string]*simulations.Protocol),
		TokenSets:  make(map[string]common.Hash),
		Whitelists: make(map[common.Address]*whitelist.Tree),
		actors:     make(map[access.Role]common.Address),
	}, strategySteps: make(map[string][]types.StrategyStep)}

	steps := []struct {
		name string
		run  func() error
	}{
		{"roles", b.roles},
		{"registries", func() error { return b.registries(chainID) }},
		{"tokens", b.tokens},
		{"protocols", b.protocols},
		{"risk profiles", b.riskProfiles},
		{"strategies", b.strategies},
		{"vaults", func() error { return b.vaults(recorder) }},
		{"balances", b.balances},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("genesis %s: %w", step.name, err)
		}
	}

	log.Info().
		Uint64("chain_id", chainID).
		Int("tokens", len(g.Tokens)).
		Int("protocols", len(b.sys.Protocols)).
		Int("strategies", len(g.Strategies)).
		Int("vaults", len(b.sys.Vaults)).
		Msg("Genesis applied")
	return b.sys, nil
}

type builder struct {
	g             *Genesis
	sys           *System
	strategySteps map[string][]types.StrategyStep
}

func (b *builder) actor(role access.Role) (common.Address, error) {
	a, ok := b.sys.actors[role]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: no account holds %s", ErrInvalidGenesis, role)
	}
	return a, nil
}

func (b *builder) roles() error {
	var governance []common.Address
	for _, grant := range b.g.Roles {
		if grant.Role == string(access.RoleGovernance) {
			for _, a := range grant.Accounts {
				governance = append(governance, common.HexToAddress(a))
			}
		}
	}
	b.sys.Roles = access.NewRoleTable(governance...)
	gov := governance[0]

	for _, grant := range b.g.Roles {
		role, err := access.ParseRole(grant.Role)
		if err != nil {
			return err
		}
		for _, raw := range grant.Accounts {
			account := common.HexToAddress(raw)
			if role != access.RoleGovernance {
				if err := b.sys.Roles.Grant(gov, role, account); err != nil {
					return err
				}
			}
			if _, seen := b.sys.actors[role]; !seen {
				b.sys.actors[role] = account
			}
		}
	}
	return nil
}

func (b *builder) registries(chainID uint64) error {
	checkApproval := true
	if b.g.CheckApproval != nil {
		checkApproval = *b.g.CheckApproval
	}
	auth := b.sys.Roles
	b.sys.Ledger = ledger.NewState()
	b.sys.Executor = ledger.NewExecutor(b.sys.Ledger)
	b.sys.Tokens = registry.NewTokenRegistry(chainID, auth)
	b.sys.Pools = registry.NewLiquidityPoolRegistry(auth, checkApproval)
	b.sys.RiskProfiles = registry.NewRiskProfileRegistry(auth)
	b.sys.Catalog = registry.NewStrategyCatalog(auth, b.sys.Tokens, b.sys.Pools)
	b.sys.Provider = strategy.NewProvider(auth)
	return nil
}

func (b *builder) tokens() error {
	if len(b.g.Tokens) == 0 && len(b.g.TokenSets) == 0 {
		return nil
	}
	operator, err := b.actor(access.RoleOperator)
	if err != nil {
		return err
	}
	for _, t := range b.g.Tokens {
		if err := b.sys.Tokens.ApproveToken(operator, common.HexToAddress(t.Address)); err != nil {
			return err
		}
	}
	for _, set := range b.g.TokenSets {
		tokens := make([]common.Address, 0, len(set.Tokens))
		for _, ref := range set.Tokens {
			a, err := b.g.resolveAddress(ref)
			if err != nil {
				return err
			}
			tokens = append(tokens, a)
		}
		hash, err := b.sys.Tokens.SetTokensHashToTokens(operator, tokens)
		if err != nil {
			return fmt.Errorf("token set %s: %w", set.Name, err)
		}
		b.sys.TokenSets[set.Name] = hash
	}
	return nil
}

func (b *builder) protocols() error {
	if len(b.g.Protocols) == 0 {
		return nil
	}
	operator, err := b.actor(access.RoleOperator)
	if err != nil {
		return err
	}
	riskOperator, err := b.actor(access.RoleRiskOperator)
	if err != nil {
		return err
	}

	for _, entry := range b.g.Protocols {
		limits, err := entry.Limits.toLimits()
		if err != nil {
			return fmt.Errorf("protocol %s: %w", entry.Name, err)
		}
		p, err := simulations.NewProtocol(entry.Name, b.sys.Ledger, limits)
		if err != nil {
			return fmt.Errorf("protocol %s: %w", entry.Name, err)
		}

		var pools []common.Address
		var ratings []uint8
		for _, pe := range entry.Pools {
			yp, err := b.yieldPool(pe)
			if err != nil {
				return fmt.Errorf("protocol %s: %w", entry.Name, err)
			}
			p.AddPool(yp)
			pools = append(pools, yp.Address)
			ratings = append(ratings, pe.Rating)
		}
		for _, me := range entry.Markets {
			market, liquidity, err := b.market(me)
			if err != nil {
				return fmt.Errorf("protocol %s: %w", entry.Name, err)
			}
			if err := p.AddMarket(market); err != nil {
				return err
			}
			if liquidity.IsPositive() {
				if err := b.sys.Ledger.Mint(market.Borrow, market.Address, liquidity); err != nil {
					return err
				}
			}
			pools = append(pools, market.Address)
			ratings = append(ratings, me.Rating)
		}

		p.Register(b.sys.Executor)
		for _, pool := range pools {
			if err := b.sys.Pools.ApproveAndMapToAdapter(operator, pool, p); err != nil {
				return err
			}
		}
		if err := b.sys.Pools.RateLiquidityPools(riskOperator, pools, ratings); err != nil {
			return err
		}
		b.sys.Protocols[entry.Name] = p
	}
	return nil
}

func (b *builder) yieldPool(pe PoolEntry) (simulations.YieldPool, error) {
	var yp simulations.YieldPool
	var err error
	if yp.Address, err = b.g.resolveAddress(pe.Address); err != nil {
		return yp, err
	}
	if yp.Asset, err = b.g.resolveAddress(pe.Asset); err != nil {
		return yp, err
	}
	if yp.Receipt, err = b.g.resolveAddress(pe.Receipt); err != nil {
		return yp, err
	}
	return yp, nil
}

func (b *builder) market(me MarketEntry) (simulations.LendingMarket, sdkmath.Int, error) {
	m := simulations.LendingMarket{LTVBps: me.LTVBps}
	for _, field := range []struct {
		ref string
		dst *common.Address
	}{
		{me.Address, &m.Address},
		{me.Collateral, &m.Collateral},
		{me.Borrow, &m.Borrow},
		{me.CollateralReceipt, &m.CollateralReceipt},
		{me.DebtToken, &m.DebtToken},
	} {
		a, err := b.g.resolveAddress(field.ref)
		if err != nil {
			return m, sdkmath.ZeroInt(), err
		}
		*field.dst = a
	}
	if me.PriceNum != "" || me.PriceDen != "" {
		num, err := parseAmount("price_num", me.PriceNum)
		if err != nil {
			return m, sdkmath.ZeroInt(), err
		}
		den, err := parseAmount("price_den", me.PriceDen)
		if err != nil {
			return m, sdkmath.ZeroInt(), err
		}
		m.PriceNum, m.PriceDen = num, den
	}
	liquidity, err := parseUnits("liquidity", me.Liquidity, b.g.decimalsOf(m.Borrow))
	return m, liquidity, err
}

func (b *builder) riskProfiles() error {
	if len(b.g.RiskProfiles) == 0 {
		return nil
	}
	riskOperator, err := b.actor(access.RoleRiskOperator)
	if err != nil {
		return err
	}
	for _, rp := range b.g.RiskProfiles {
		if err := b.sys.RiskProfiles.AddRiskProfile(riskOperator, rp.Code, rp.Name, rp.CanBorrow, rp.Lower, rp.Upper); err != nil {
			return fmt.Errorf("risk profile %d: %w", rp.Code, err)
		}
	}
	return nil
}

func (b *builder) strategies() error {
	if len(b.g.Strategies) == 0 && len(b.g.BestStrategies) == 0 {
		return nil
	}
	strategyOperator, err := b.actor(access.RoleStrategyOperator)
	if err != nil {
		return err
	}

	for _, s := range b.g.Strategies {
		steps := make([]types.StrategyStep, 0, len(s.Steps))
		for _, se := range s.Steps {
			pool, err := b.g.resolveAddress(se.Pool)
			if err != nil {
				return err
			}
			output, err := b.g.resolveAddress(se.OutputToken)
			if err != nil {
				return err
			}
			steps = append(steps, types.StrategyStep{Pool: pool, OutputToken: output, IsBorrow: se.IsBorrow})
		}
		if _, err := b.sys.Catalog.SetStrategy(strategyOperator, b.sys.TokenSets[s.TokenSet], steps); err != nil {
			return fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		b.strategySteps[s.Name] = steps
	}

	for _, best := range b.g.BestStrategies {
		tokensHash := b.sys.TokenSets[best.TokenSet]
		steps := b.strategySteps[best.Strategy]
		set := b.sys.Provider.SetBestStrategy
		if best.Default {
			set = b.sys.Provider.SetBestDefaultStrategy
		}
		if err := set(strategyOperator, best.RiskProfile, tokensHash, steps); err != nil {
			return fmt.Errorf("best strategy %d/%s: %w", best.RiskProfile, best.TokenSet, err)
		}
	}
	return nil
}

func (b *builder) vaults(recorder vault.SnapshotRecorder) error {
	if len(b.g.Vaults) == 0 {
		return nil
	}
	gov, err := b.actor(access.RoleGovernance)
	if err != nil {
		return err
	}

	deps := vault.Deps{
		Auth:         b.sys.Roles,
		Tokens:       b.sys.Tokens,
		Pools:        b.sys.Pools,
		RiskProfiles: b.sys.RiskProfiles,
		Strategies:   b.sys.Provider,
		Executor:     b.sys.Executor,
		Recorder:     recorder,
	}

	for _, entry := range b.g.Vaults {
		underlying, err := b.g.resolveAddress(entry.Underlying)
		if err != nil {
			return err
		}
		cfg, err := entry.configuration()
		if err != nil {
			return fmt.Errorf("vault %s: %w", entry.Address, err)
		}
		limits, err := entry.limits()
		if err != nil {
			return fmt.Errorf("vault %s: %w", entry.Address, err)
		}

		v, err := vault.New(vault.Params{
			Address:       common.HexToAddress(entry.Address),
			Underlying:    underlying,
			Decimals:      entry.Decimals,
			TokensHash:    b.sys.TokenSets[entry.TokenSet],
			Configuration: cfg,
			Limits:        limits,
		}, deps)
		if err != nil {
			return fmt.Errorf("vault %s: %w", entry.Address, err)
		}

		if len(entry.Whitelist) > 0 {
			members := make([]common.Address, 0, len(entry.Whitelist))
			for _, ref := range entry.Whitelist {
				if !common.IsHexAddress(ref) {
					return fmt.Errorf("%w: whitelist member %q is not an address", ErrInvalidGenesis, ref)
				}
				members = append(members, common.HexToAddress(ref))
			}
			tree, err := whitelist.NewTree(members)
			if err != nil {
				return fmt.Errorf("vault %s whitelist: %w", entry.Address, err)
			}
			if err := v.SetWhitelistRoot(gov, tree.Root()); err != nil {
				return err
			}
			b.sys.Whitelists[v.Address()] = tree
		}

		if err := v.Initialize(gov); err != nil {
			return err
		}
		b.sys.Vaults = append(b.sys.Vaults, v)
	}
	return nil
}

func (b *builder) balances() error {
	for _, bal := range b.g.Balances {
		token, err := b.g.resolveAddress(bal.Token)
		if err != nil {
			return err
		}
		if !common.IsHexAddress(bal.Account) {
			return fmt.Errorf("%w: balance account %q is not an address", ErrInvalidGenesis, bal.Account)
		}
		amount, err := parseUnits("balance", bal.Amount, b.g.decimalsOf(token))
		if err != nil {
			return err
		}
		if amount.IsZero() {
			continue
		}
		if err := b.sys.Ledger.Mint(token, common.HexToAddress(bal.Account), amount); err != nil {
			return err
		}
	}
	return nil
}
