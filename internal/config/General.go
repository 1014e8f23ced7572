package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Log output formats accepted by LOG_FORMAT.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainID is the chain ID mixed into every token set identity.
	ChainID uint64

	// LogLevel is the zerolog level name (trace, debug, info, warn, error, disabled).
	LogLevel string
	// LogFormat is console (human-readable) or json.
	LogFormat string
	// LogFile additionally receives the JSON log lines. Only valid with the json format.
	LogFile string

	// GenesisFile is the YAML file describing tokens, pools, risk profiles, strategies and vaults.
	GenesisFile string

	// RebalanceSchedule is the keeper cron expression.
	RebalanceSchedule string
	// RunOnStart runs the keeper once before waiting for the schedule.
	RunOnStart bool

	// WebPort is the port of the read-only HTTP API.
	WebPort string
)

// LoadDotEnv loads a .env file if present. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
}

// LoadConfig loads configuration from environment variables and sets the global config vars.
// CHAIN_ID and GENESIS_FILE are required, everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	GenesisFile, err = getEnv("GENESIS_FILE")
	if err != nil {
		return err
	}

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = strings.ToLower(getEnvOrDefault("LOG_FORMAT", LogFormatConsole))
	if LogFormat != LogFormatConsole && LogFormat != LogFormatJSON {
		return errors.New("environment variable LOG_FORMAT must be console or json, got: " + LogFormat)
	}
	LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	if LogFile != "" && LogFormat != LogFormatJSON {
		return errors.New("environment variable LOG_FILE requires LOG_FORMAT=json")
	}
	RebalanceSchedule = getEnvOrDefault("REBALANCE_SCHEDULE", DefaultRebalanceSchedule)
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	RunOnStart, err = getEnvAsBoolOrDefault("RUN_ON_START", false)
	if err != nil {
		return err
	}

	// Load database configuration
	if err := LoadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("GenesisFile", GenesisFile).
		Str("LogFormat", LogFormat).
		Str("RebalanceSchedule", RebalanceSchedule).
		Str("WebPort", WebPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or blank.
func getEnvOrDefault(key, def string) string {
	if value, err := getEnv(key); err == nil {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsIntOrDefault retrieves an environment variable as an int. Returns error only if set and invalid.
func getEnvAsIntOrDefault(key string, def int) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return def, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBoolOrDefault retrieves an environment variable as a bool. Returns error only if set and invalid.
func getEnvAsBoolOrDefault(key string, def bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
