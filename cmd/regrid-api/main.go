// Command regrid-api serves the HTTP API for submitting and monitoring regrid
// jobs. Swagger UI is available under /swagger/index.html.
package main

import (
	"flag"
	"os"

	"regrid-pipeline/internal/api"
	"regrid-pipeline/internal/config"
	"regrid-pipeline/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "server config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		config.Logger.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	config.InitLogger(cfg.LogLevel)

	if err := store.InitDB(cfg.DBPath); err != nil {
		config.Logger.Error().Err(err).Msg("failed to open registry db")
		os.Exit(1)
	}

	r := api.NewRouter()
	if err := r.Start(cfg.Addr); err != nil {
		config.Logger.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}
