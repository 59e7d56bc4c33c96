package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/practice-chat/internal/config"
	"github.com/Rrens/practice-chat/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 1, "number of steps to roll back when direction is down")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.Database.Driver != config.DriverPostgres {
		// the other stores create their schema when they open
		log.Info().Str("driver", cfg.Database.Driver).Msg("Nothing to migrate")
		return
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("source", cfg.Database.MigrationsPath).
		Msg("Connecting to database")

	switch *direction {
	case "up":
		err = postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath)
	case "down":
		if *steps < 1 {
			log.Fatal().Int("steps", *steps).Msg("steps must be positive")
		}
		err = postgres.RollbackMigrations(cfg.Database.DSN(), cfg.Database.MigrationsPath, *steps)
	default:
		err = fmt.Errorf("unknown direction %q", *direction)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Str("direction", *direction).Msg("Migration finished")
}
