package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"crm/internal/db/migrate"
	"crm/internal/pkg/logger"
	"crm/internal/platform/config"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer := logger.Init(cfg.Logging)
	defer closer.Close()

	if err := migrate.ValidateDirection(*direction); err != nil {
		log.Fatal().Err(err).Msg("invalid direction")
	}

	if err := migrate.Run(cfg.Database.URL, *direction); err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}

	version, dirty, err := migrate.Version(cfg.Database.URL)
	if err != nil {
		log.Warn().Err(err).Msg("could not read schema version")
	}
	log.Info().Str("direction", *direction).Uint("version", version).Bool("dirty", dirty).Msg("migration completed")
}
