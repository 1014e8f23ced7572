package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/stratvault/internal/access"
	"github.com/elys-network/stratvault/internal/config"
	"github.com/elys-network/stratvault/internal/keeper"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/state"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/vault"
	"github.com/elys-network/stratvault/internal/web"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// main is the entry point for the strategy vault service.
func main() {
	// --- 1. Initialization Phase ---
	config.LoadDotEnv()

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if config.LogFormat == config.LogFormatJSON {
		if err := logger.InitializeJSON(config.LogLevel, os.Stdout, config.LogFile); err != nil {
			log.Fatal().Err(err).Str("file", config.LogFile).Msg("Failed to open log file")
		}
	} else {
		logger.Initialize(config.LogLevel)
	}
	log.Info().Uint64("chainID", config.ChainID).Msg("Strategy vault starting...")

	// Initialize Database Connection (rebalance history and run counter)
	var store *state.Store
	if config.Database.Driver != config.DriverNone {
		var err error
		store, err = state.Open(config.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer store.Close()
		if err := store.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	}

	// --- 2. Build registries, venues and vaults from genesis ---
	g, err := config.LoadGenesis(config.GenesisFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", config.GenesisFile).Msg("Failed to load genesis")
	}

	var recorder vault.SnapshotRecorder
	var counter keeper.RunCounter
	var history web.History
	if store != nil {
		recorder, counter, history = store, store, store
	}

	sys, err := config.Build(g, config.ChainID, recorder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build system from genesis")
	}
	log.Info().Int("vaults", len(sys.Vaults)).Int("protocols", len(sys.Protocols)).Msg("Genesis applied")

	operator, ok := sys.Actor(access.RoleOperator)
	if !ok {
		log.Fatal().Msg("Genesis grants no operator; the keeper cannot rebalance")
	}

	// --- 3. Create the rebalance keeper ---
	k, err := keeper.New(keeper.Config{
		Operator:   operator,
		Schedule:   config.RebalanceSchedule,
		Vaults:     sys.Managers(),
		Counter:    counter,
		RunOnStart: config.RunOnStart,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(web.Config{
		Port:            config.WebPort,
		Vaults:          sys.Managers(),
		Strategies:      sys.Catalog,
		Recommendations: sys.Provider,
		Registries:      registries{tokens: sys.Tokens, pools: sys.Pools, riskProfiles: sys.RiskProfiles},
		History:         history,
		Keeper:          k,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Run the keeper until interrupted ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("schedule", config.RebalanceSchedule).Msg("Starting rebalance keeper")
	if err := k.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Keeper stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Strategy vault stopped")
}

// registries joins the three registries the web API lists.
type registries struct {
	tokens       *registry.TokenRegistry
	pools        *registry.LiquidityPoolRegistry
	riskProfiles *registry.RiskProfileRegistry
}

func (r registries) TokenSets() []types.TokenSet           { return r.tokens.TokenSets() }
func (r registries) LiquidityPools() []types.LiquidityPool { return r.pools.LiquidityPools() }
func (r registries) RiskProfiles() []types.RiskProfile     { return r.riskProfiles.RiskProfiles() }
