package main

import (
	"flag"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/gridmesh/internal/config"
	"github.com/danmuck/gridmesh/internal/observability"
	"github.com/danmuck/gridmesh/internal/server"
)

func main() {
	configPath := flag.String("config", "gridmeshd.toml", "daemon config path")
	flag.Parse()

	observability.InitLogger("gridmeshd")
	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load daemon config")
	}
	log.Info().Str("path", *configPath).Str("daemon", cfg.Name).Msg("loaded daemon config")

	if err := server.NewService(cfg).Run(); err != nil {
		log.Fatal().Err(err).Msg("daemon stopped")
	}
}
