package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/stratvault/internal/keeper"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/registry"
	"github.com/elys-network/stratvault/internal/state"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	defaultPort  = "8080"
	defaultLimit = 20
	maxLimit     = 100
)

// History reads persisted rebalance snapshots.
type History interface {
	GetRecentRebalances(limit int) ([]types.RebalanceSnapshot, error)
	GetRebalancesByVault(vault common.Address, limit int) ([]types.RebalanceSnapshot, error)
	GetRebalanceByID(snapshotID int64) (*types.RebalanceSnapshot, error)
	GetVaultSummary(vault common.Address) (*state.VaultHistory, error)
	Ping(ctx context.Context) error
}

// Strategies resolves strategy hashes to steps.
type Strategies interface {
	GetStrategy(hash common.Hash) ([]types.StrategyStep, bool)
}

// Recommendations reads the strategy provider.
type Recommendations interface {
	GetBestStrategy(riskProfileCode uint8, tokensHash common.Hash) []types.StrategyStep
	GetBestDefaultStrategy(riskProfileCode uint8, tokensHash common.Hash) []types.StrategyStep
}

// Registries lists registry contents.
type Registries interface {
	TokenSets() []types.TokenSet
	LiquidityPools() []types.LiquidityPool
	RiskProfiles() []types.RiskProfile
}

// KeeperStatus reports the most recent keeper run.
type KeeperStatus interface {
	LastRun() (keeper.RunReport, bool)
}

// Config holds the dependencies of the web server. History and Keeper are optional.
type Config struct {
	Port            string
	Vaults          []vault.Manager
	Strategies      Strategies
	Recommendations Recommendations
	Registries      Registries
	History         History
	Keeper          KeeperStatus
}

// WebServer serves a read-only view of vaults, strategies and rebalance history
type WebServer struct {
	router    *mux.Router
	server    *http.Server
	port      string
	logger    zerolog.Logger
	startedAt time.Time

	vaults          map[common.Address]vault.Manager
	order           []common.Address
	strategies      Strategies
	recommendations Recommendations
	registries      Registries
	history         History
	keeper          KeeperStatus
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	port := cfg.Port
	if port == "" {
		port = defaultPort
	}

	ws := &WebServer{
		router:          mux.NewRouter(),
		port:            port,
		logger:          logger.GetForComponent("web_server"),
		startedAt:       time.Now(),
		vaults:          make(map[common.Address]vault.Manager, len(cfg.Vaults)),
		strategies:      cfg.Strategies,
		recommendations: cfg.Recommendations,
		registries:      cfg.Registries,
		history:         cfg.History,
		keeper:          cfg.Keeper,
	}
	for _, v := range cfg.Vaults {
		if _, dup := ws.vaults[v.Address()]; dup {
			continue
		}
		ws.vaults[v.Address()] = v
		ws.order = append(ws.order, v.Address())
	}

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vaults", ws.handleGetVaults).Methods("GET")
	api.HandleFunc("/vaults/{address}", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vaults/{address}/rebalances", ws.handleGetVaultRebalances).Methods("GET")
	api.HandleFunc("/strategies/{hash}", ws.handleGetStrategy).Methods("GET")
	api.HandleFunc("/best-strategy/{code:[0-9]+}/{identity}", ws.handleGetBestStrategy).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/rebalances/{id:[0-9]+}", ws.handleGetRebalance).Methods("GET")
	api.HandleFunc("/token-sets", ws.handleGetTokenSets).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/risk-profiles", ws.handleGetRiskProfiles).Methods("GET")
	api.HandleFunc("/keeper/last-run", ws.handleGetLastRun).Methods("GET")

	ws.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Not found")
	})

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the HTTP handler, for embedding or tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it is shut down
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	ws.logger.Info().Msg("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	dbStatus := "not_configured"
	if ws.history != nil {
		dbStatus = "healthy"
		if err := ws.history.Ping(r.Context()); err != nil {
			ws.logger.Warn().Err(err).Msg("Database health check failed")
			dbStatus = "unreachable"
			hasErrors = true
		}
	}

	keeperInfo := map[string]interface{}{"last_run": nil}
	if ws.keeper != nil {
		if last, ok := ws.keeper.LastRun(); ok {
			keeperInfo = map[string]interface{}{
				"last_run":         last.RunNumber,
				"last_run_id":      last.RunID,
				"last_run_time":    last.StartedAt,
				"last_failures":    last.Failures,
				"vaults_attempted": len(last.Results),
			}
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "stratvault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database": dbStatus,
			"vaults":   len(ws.order),
			"keeper":   keeperInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaults returns a summary of every vault
func (ws *WebServer) handleGetVaults(w http.ResponseWriter, r *http.Request) {
	summaries := make([]vault.Summary, 0, len(ws.order))
	for _, address := range ws.order {
		summary, err := ws.vaults[address].Summary()
		if err != nil {
			ws.logger.Error().Err(err).Str("vault", address.Hex()).Msg("Failed to summarize vault")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to summarize vault "+address.Hex())
			return
		}
		summaries = append(summaries, summary)
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"vaults": summaries,
		"count":  len(summaries),
	})
}

// handleGetVault returns one vault's exposed state and its rebalance history summary
func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	v, ok := ws.vaultFromPath(w, r)
	if !ok {
		return
	}

	summary, err := v.Summary()
	if err != nil {
		ws.logger.Error().Err(err).Str("vault", v.Address().Hex()).Msg("Failed to summarize vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to summarize vault")
		return
	}

	response := map[string]interface{}{"vault": summary}
	if ws.history != nil {
		history, err := ws.history.GetVaultSummary(v.Address())
		if err != nil {
			ws.logger.Error().Err(err).Str("vault", v.Address().Hex()).Msg("Failed to get vault history")
		} else {
			response["history"] = history
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVaultRebalances returns the most recent rebalances of one vault
func (ws *WebServer) handleGetVaultRebalances(w http.ResponseWriter, r *http.Request) {
	v, ok := ws.vaultFromPath(w, r)
	if !ok {
		return
	}
	if !ws.requireHistory(w) {
		return
	}

	limit := parseLimit(r)
	rebalances, err := ws.history.GetRebalancesByVault(v.Address(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Str("vault", v.Address().Hex()).Msg("Failed to get vault rebalances")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalances")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rebalances": nonNil(rebalances),
		"count":      len(rebalances),
		"limit":      limit,
	})
}

// handleGetStrategy resolves a strategy hash
func (ws *WebServer) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	hash, ok := parseHash(mux.Vars(r)["hash"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid strategy hash")
		return
	}
	if hash == (common.Hash{}) {
		ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"hash":  hash,
			"steps": []types.StrategyStep{},
			"idle":  true,
		})
		return
	}

	steps, found := ws.strategies.GetStrategy(hash)
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Strategy not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"hash":  hash,
		"steps": steps,
		"idle":  false,
	})
}

// handleGetBestStrategy returns the recommendation for a risk profile and token identity
func (ws *WebServer) handleGetBestStrategy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code, err := strconv.ParseUint(vars["code"], 10, 8)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid risk profile code")
		return
	}
	identity, ok := parseHash(vars["identity"])
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid token identity")
		return
	}

	best := ws.recommendations.GetBestStrategy(uint8(code), identity)
	fallback := ws.recommendations.GetBestDefaultStrategy(uint8(code), identity)
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"risk_profile_code":     uint8(code),
		"tokens_hash":           identity,
		"steps":                 nonNil(best),
		"strategy_hash":         registry.StrategyHash(identity, best),
		"default_steps":         nonNil(fallback),
		"default_strategy_hash": registry.StrategyHash(identity, fallback),
	})
}

// handleGetRebalances returns paginated rebalance snapshots across vaults
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	limit := parseLimit(r)
	rebalances, err := ws.history.GetRecentRebalances(limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent rebalances")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalances")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rebalances": nonNil(rebalances),
		"count":      len(rebalances),
		"limit":      limit,
	})
}

// handleGetRebalance returns a specific rebalance snapshot by ID
func (ws *WebServer) handleGetRebalance(w http.ResponseWriter, r *http.Request) {
	if !ws.requireHistory(w) {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid snapshot ID")
		return
	}

	snapshot, err := ws.history.GetRebalanceByID(id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ws.writeErrorResponse(w, http.StatusNotFound, "Rebalance not found")
			return
		}
		ws.logger.Error().Err(err).Int64("snapshotId", id).Msg("Failed to get rebalance")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, snapshot)
}

func (ws *WebServer) handleGetTokenSets(w http.ResponseWriter, r *http.Request) {
	if !ws.requireRegistries(w) {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"token_sets": nonNil(ws.registries.TokenSets())})
}

func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	if !ws.requireRegistries(w) {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"pools": nonNil(ws.registries.LiquidityPools())})
}

func (ws *WebServer) handleGetRiskProfiles(w http.ResponseWriter, r *http.Request) {
	if !ws.requireRegistries(w) {
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"risk_profiles": nonNil(ws.registries.RiskProfiles())})
}

// handleGetLastRun returns the most recent keeper run report
func (ws *WebServer) handleGetLastRun(w http.ResponseWriter, r *http.Request) {
	if ws.keeper == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Keeper not configured")
		return
	}
	last, ok := ws.keeper.LastRun()
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "No keeper run yet")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, last)
}

func (ws *WebServer) vaultFromPath(w http.ResponseWriter, r *http.Request) (vault.Manager, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid vault address")
		return nil, false
	}
	v, found := ws.vaults[common.HexToAddress(raw)]
	if !found {
		ws.writeErrorResponse(w, http.StatusNotFound, "Vault not found")
		return nil, false
	}
	return v, true
}

func (ws *WebServer) requireHistory(w http.ResponseWriter) bool {
	if ws.history == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Rebalance history not configured")
		return false
	}
	return true
}

func (ws *WebServer) requireRegistries(w http.ResponseWriter) bool {
	if ws.registries == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Registries not configured")
		return false
	}
	return true
}

func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxLimit {
			limit = parsedLimit
		}
	}
	return limit
}

// parseHash accepts 0x-prefixed 32-byte hex only.
func parseHash(raw string) (common.Hash, bool) {
	if len(raw) != 2+2*common.HashLength || raw[:2] != "0x" && raw[:2] != "0X" {
		return common.Hash{}, false
	}
	for _, c := range raw[2:] {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return common.Hash{}, false
		}
	}
	return common.HexToHash(raw), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
