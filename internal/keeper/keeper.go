package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/elys-network/stratvault/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	ErrNoVaults        = errors.Join(types.ErrConfiguration, errors.New("keeper needs at least one vault"))
	ErrZeroOperator    = errors.Join(types.ErrConfiguration, errors.New("keeper operator cannot be the zero address"))
	ErrInvalidSchedule = errors.Join(types.ErrConfiguration, errors.New("invalid rebalance schedule"))
	ErrAlreadyStarted  = errors.Join(types.ErrState, errors.New("keeper already started"))
)

// RunCounter hands out monotonically increasing run numbers that survive restarts.
type RunCounter interface {
	IncrementRunNumber() (int, error)
}

// Config holds the configuration for creating a new Keeper instance
type Config struct {
	Operator   common.Address  // Address holding the operator role on every vault
	Schedule   string          // Cron expression, seconds optional, descriptors such as "@every 5m" accepted
	Vaults     []vault.Manager // Vaults rebalanced on every run
	Counter    RunCounter      // Optional; runs are numbered in memory without it
	RunOnStart bool            // Run once immediately when Start is called
}

// VaultResult is the outcome of rebalancing one vault during a run.
type VaultResult struct {
	Vault      common.Address           `json:"vault"`
	Rebalanced bool                     `json:"rebalanced"`
	Snapshot   *types.RebalanceSnapshot `json:"snapshot,omitempty"`
	ValueUT    sdkmath.Int              `json:"value_ut"`
	Error      string                   `json:"error,omitempty"`
}

// RunReport summarizes one keeper run across all vaults.
type RunReport struct {
	RunID     string        `json:"run_id"`
	RunNumber int           `json:"run_number"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []VaultResult `json:"results"`
	Failures  int           `json:"failures"`
	Cancelled bool          `json:"cancelled"`
}

// Keeper drives scheduled rebalances over a fixed set of vaults
type Keeper struct {
	logger   zerolog.Logger
	cron     *cron.Cron
	schedule string
	operator common.Address
	vaults   []vault.Manager
	counter  RunCounter
	onStart  bool

	runMu sync.Mutex // serializes runs

	mu       sync.RWMutex
	started  bool
	runCount int
	lastRun  *RunReport
}

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Keeper and validates its schedule.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:   logger.GetForComponent("keeper"),
		cron:     cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: cfg.Schedule,
		operator: cfg.Operator,
		vaults:   append([]vault.Manager(nil), cfg.Vaults...),
		counter:  cfg.Counter,
		onStart:  cfg.RunOnStart,
	}

	if _, err := k.cron.AddFunc(cfg.Schedule, func() { k.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, cfg.Schedule, err)
	}

	k.logger.Info().
		Str("schedule", cfg.Schedule).
		Str("operator", cfg.Operator.Hex()).
		Int("vaults", len(cfg.Vaults)).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	if len(cfg.Vaults) == 0 {
		return ErrNoVaults
	}
	for i, v := range cfg.Vaults {
		if v == nil {
			return fmt.Errorf("%w: vault %d is nil", ErrNoVaults, i)
		}
	}
	if cfg.Operator == (common.Address{}) {
		return ErrZeroOperator
	}
	if cfg.Schedule == "" {
		return fmt.Errorf("%w: schedule cannot be empty", ErrInvalidSchedule)
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return ErrAlreadyStarted
	}
	k.started = true
	k.mu.Unlock()

	if k.onStart {
		k.RunOnce(context.Background())
	}
	k.cron.Start()
	k.logger.Info().Str("schedule", k.schedule).Msg("Keeper started")
	return nil
}

// Stop stops the scheduler and waits for a running rebalance to finish.
func (k *Keeper) Stop() {
	ctx := k.cron.Stop()
	<-ctx.Done()
	k.runMu.Lock()
	defer k.runMu.Unlock()
	k.logger.Info().Msg("Keeper stopped")
}

// Run starts the keeper and blocks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	if err := k.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
	k.Stop()
	return nil
}

// RunOnce rebalances every vault once. A failing vault is logged and skipped.
func (k *Keeper) RunOnce(ctx context.Context) RunReport {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	started := time.Now()
	report := RunReport{
		RunID:     uuid.New().String(),
		RunNumber: k.nextRunNumber(),
		StartedAt: started.UTC(),
		Results:   make([]VaultResult, 0, len(k.vaults)),
	}
	runLogger := k.logger.With().Str("run_id", report.RunID).Int("run", report.RunNumber).Logger()
	runLogger.Info().Int("vaults", len(k.vaults)).Msg("--- Starting keeper run ---")

	for _, v := range k.vaults {
		if err := ctx.Err(); err != nil {
			runLogger.Warn().Err(err).Msg("Keeper run cancelled, remaining vaults skipped")
			report.Cancelled = true
			break
		}
		result := k.rebalance(runLogger, v)
		if result.Error != "" {
			report.Failures++
		}
		report.Results = append(report.Results, result)
	}

	report.Duration = time.Since(started)
	runLogger.Info().
		Int("failures", report.Failures).
		Dur("duration", report.Duration).
		Msg("--- Keeper run completed ---")

	k.mu.Lock()
	k.lastRun = &report
	k.mu.Unlock()
	return report
}

func (k *Keeper) rebalance(runLogger zerolog.Logger, v vault.Manager) VaultResult {
	result := VaultResult{Vault: v.Address(), ValueUT: sdkmath.ZeroInt()}
	vaultLogger := runLogger.With().Str("vault", v.Address().Hex()).Logger()

	snapshot, err := v.Rebalance(k.operator)
	if err != nil {
		vaultLogger.Error().Err(err).Msg("Rebalance failed, continuing with next vault")
		result.Error = err.Error()
	} else if snapshot != nil {
		result.Rebalanced = true
		result.Snapshot = snapshot
		vaultLogger.Info().
			Str("rebalance_id", snapshot.RebalanceID).
			Str("to_strategy", snapshot.ToStrategy.Hex()).
			Msg("Vault rebalanced")
	} else {
		vaultLogger.Debug().Msg("Vault already follows its recommendation")
	}

	value, err := v.BalanceUT()
	if err != nil {
		vaultLogger.Warn().Err(err).Msg("Failed to value vault after rebalance")
		return result
	}
	result.ValueUT = value
	return result
}

func (k *Keeper) nextRunNumber() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.runCount++
	if k.counter == nil {
		return k.runCount
	}
	run, err := k.counter.IncrementRunNumber()
	if err != nil {
		k.logger.Error().Err(err).Int("fallback_run", k.runCount).Msg("Failed to increment persistent run counter")
		return k.runCount
	}
	k.runCount = run
	return run
}

// LastRun returns the report of the most recent run.
func (k *Keeper) LastRun() (RunReport, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.lastRun == nil {
		return RunReport{}, false
	}
	return *k.lastRun, true
}
