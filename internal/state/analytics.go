package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/stratvault/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// VaultHistory represents high-level rebalance statistics of one vault
type VaultHistory struct {
	Vault           common.Address `json:"vault"`
	TotalRebalances int            `json:"total_rebalances"`
	CurrentStrategy common.Hash    `json:"current_strategy"`
	LastValueUT     sdkmath.Int    `json:"last_value_ut"`
	LastIdleUT      sdkmath.Int    `json:"last_idle_ut"`
	LastRebalanceAt *time.Time     `json:"last_rebalance_at,omitempty"`
}

const snapshotColumns = `
	snapshot_id, rebalance_id, rebalance_number, vault_address, underlying, snapshot_unix_ms,
	from_strategy, to_strategy,
	value_before_ut, value_after_ut, idle_after_ut, total_supply,
	receipts`

// normalizeLimit keeps page sizes within (0, 100], defaulting to 10.
func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}

// GetRecentRebalances retrieves the most recent rebalance snapshots across all vaults
func (s *Store) GetRecentRebalances(limit int) ([]types.RebalanceSnapshot, error) {
	limit = normalizeLimit(limit)
	rows, err := s.db.Query(`SELECT `+snapshotColumns+`
		FROM rebalance_snapshots
		ORDER BY snapshot_unix_ms DESC, snapshot_id DESC
		LIMIT $1`, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query recent rebalances")
		return nil, fmt.Errorf("failed to query recent rebalances: %w", err)
	}
	return s.collect(rows)
}

// GetRebalancesByVault retrieves the most recent rebalance snapshots of one vault
func (s *Store) GetRebalancesByVault(vault common.Address, limit int) ([]types.RebalanceSnapshot, error) {
	limit = normalizeLimit(limit)
	rows, err := s.db.Query(`SELECT `+snapshotColumns+`
		FROM rebalance_snapshots
		WHERE vault_address = $1
		ORDER BY rebalance_number DESC
		LIMIT $2`, vault.Hex(), limit)
	if err != nil {
		s.log.Error().Err(err).Str("vault", vault.Hex()).Msg("Failed to query vault rebalances")
		return nil, fmt.Errorf("failed to query rebalances of %s: %w", vault.Hex(), err)
	}
	return s.collect(rows)
}

// GetRebalanceByID retrieves a specific snapshot by its ID
func (s *Store) GetRebalanceByID(snapshotID int64) (*types.RebalanceSnapshot, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM rebalance_snapshots WHERE snapshot_id = $1`, snapshotID)
	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: snapshot %d", ErrNotFound, snapshotID)
		}
		return nil, fmt.Errorf("failed to query snapshot %d: %w", snapshotID, err)
	}
	return snapshot, nil
}

// GetVaultSummary retrieves rebalance statistics of one vault
func (s *Store) GetVaultSummary(vault common.Address) (*VaultHistory, error) {
	summary := &VaultHistory{
		Vault:       vault,
		LastValueUT: sdkmath.ZeroInt(),
		LastIdleUT:  sdkmath.ZeroInt(),
	}

	err := s.db.QueryRow(`SELECT COUNT(*) FROM rebalance_snapshots WHERE vault_address = $1`, vault.Hex()).Scan(&summary.TotalRebalances)
	if err != nil {
		return nil, fmt.Errorf("failed to count rebalances: %w", err)
	}
	if summary.TotalRebalances == 0 {
		return summary, nil
	}

	latest, err := s.GetRebalancesByVault(vault, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 {
		last := latest[0]
		summary.CurrentStrategy = last.ToStrategy
		summary.LastValueUT = last.ValueAfterUT
		summary.LastIdleUT = last.IdleAfterUT
		at := last.Timestamp
		summary.LastRebalanceAt = &at
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) collect(rows *sql.Rows) ([]types.RebalanceSnapshot, error) {
	defer rows.Close()

	var out []types.RebalanceSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to scan rebalance row")
			continue // Skip this row and continue with others
		}
		out = append(out, *snapshot)
	}
	if err := rows.Err(); err != nil {
		s.log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func scanSnapshot(row rowScanner) (*types.RebalanceSnapshot, error) {
	var (
		snapshot                              types.RebalanceSnapshot
		vault, underlying, from, to           string
		unixMs                                int64
		valueBefore, valueAfter, idle, supply string
		receiptsJSON                          sql.NullString
	)
	err := row.Scan(
		&snapshot.SnapshotID, &snapshot.RebalanceID, &snapshot.RebalanceNumber, &vault, &underlying, &unixMs,
		&from, &to,
		&valueBefore, &valueAfter, &idle, &supply,
		&receiptsJSON,
	)
	if err != nil {
		return nil, err
	}

	snapshot.Vault = common.HexToAddress(vault)
	snapshot.Underlying = common.HexToAddress(underlying)
	snapshot.Timestamp = time.UnixMilli(unixMs).UTC()
	snapshot.FromStrategy = common.HexToHash(from)
	snapshot.ToStrategy = common.HexToHash(to)

	for _, field := range []struct {
		raw string
		dst *sdkmath.Int
	}{
		{valueBefore, &snapshot.ValueBeforeUT},
		{valueAfter, &snapshot.ValueAfterUT},
		{idle, &snapshot.IdleAfterUT},
		{supply, &snapshot.TotalSupply},
	} {
		v, ok := sdkmath.NewIntFromString(field.raw)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q in snapshot %d", field.raw, snapshot.SnapshotID)
		}
		*field.dst = v
	}

	if receiptsJSON.Valid && receiptsJSON.String != "" {
		if err := json.Unmarshal([]byte(receiptsJSON.String), &snapshot.Receipts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal receipts: %w", err)
		}
	}
	return &snapshot, nil
}

func amountString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}
