// Package providers contains dependency injection providers for the Booksy server.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(os.Args[1:])
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.FromSettings(cfg.App.Environment, cfg.Logger.Level)

	log.Info("Starting Booksy Server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.Path,
		"store_driver", cfg.Store.Driver,
		"artifact_backend", cfg.Artifacts.Backend,
		"counter_backend", cfg.Counter.Backend,
	)

	return log, nil
}
