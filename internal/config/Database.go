package config

import (
	"github.com/elys-network/stratvault/internal/state"
	"github.com/rs/zerolog/log"
)

// DriverNone disables the snapshot store; rebalances are then only logged.
const DriverNone = "none"

// Database holds the snapshot store connection parameters.
// It is populated at startup by the LoadConfig function.
var Database state.DBConfig

// LoadDatabaseConfig loads database configuration from environment variables into Database.
// It is called by LoadConfig() in General.go and on its own by scripts/reset_db.go.
func LoadDatabaseConfig() error {
	log.Info().Msg("Loading database configuration from environment variables...")

	var err error
	Database = state.DBConfig{Driver: getEnvOrDefault("DB_DRIVER", state.DriverPostgres)}

	switch Database.Driver {
	case DriverNone:
		log.Warn().Msg("DB_DRIVER=none, rebalance snapshots will not be persisted")
		return nil
	case state.DriverSQLite:
		Database.Path, err = getEnv("DB_PATH")
		if err != nil {
			return err
		}
	default:
		Database.Host = getEnvOrDefault("DB_HOST", "localhost")
		Database.Port, err = getEnvAsIntOrDefault("DB_PORT", 5432)
		if err != nil {
			return err
		}
		Database.User, err = getEnv("DB_USER")
		if err != nil {
			return err
		}
		Database.Password = getEnvOrDefault("DB_PASSWORD", "")
		Database.DBName, err = getEnv("DB_NAME")
		if err != nil {
			return err
		}
		Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	}

	log.Debug().
		Str("Driver", Database.Driver).
		Str("Host", Database.Host).
		Int("Port", Database.Port).
		Str("DBName", Database.DBName).
		Str("Path", Database.Path).
		Msg("Database configuration loaded successfully.")

	return nil
}
