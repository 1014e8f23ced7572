package main

import (
	"os"

	"github.com/elys-network/stratvault/internal/config"
	"github.com/elys-network/stratvault/internal/logger"
	"github.com/elys-network/stratvault/internal/state"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	config.LoadDotEnv()

	if err := config.LoadDatabaseConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load database configuration")
	}
	if config.Database.Driver == config.DriverNone {
		log.Fatal().Msg("DB_DRIVER is none, nothing to reset")
	}

	log.Info().
		Str("driver", config.Database.Driver).
		Str("host", config.Database.Host).
		Int("port", config.Database.Port).
		Str("user", config.Database.User).
		Str("dbname", config.Database.DBName).
		Str("path", config.Database.Path).
		Msg("Connecting to database")

	store, err := state.Open(config.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer store.Close()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := store.Reset(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := store.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
