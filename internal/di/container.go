// Package di provides dependency injection configuration for the Booksy server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/auth"
	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/di/providers"
	"github.com/booksyapp/booksy-server/internal/logger"
	"github.com/booksyapp/booksy-server/internal/service"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/storage"
	"github.com/booksyapp/booksy-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()
	Register(injector)
	return injector
}

// Register adds every provider to the injector.
func Register(injector do.Injector) {
	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Artifacts and tallies
	do.Provide(injector, providers.ProvideArtifactBackend)
	do.Provide(injector, providers.ProvideCounter)
	do.Provide(injector, providers.ProvideSourceResolver)
	do.Provide(injector, providers.ProvideSourceOpener)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideDownloadService)
	do.Provide(injector, providers.ProvideProgressService)
	do.Provide(injector, providers.ProvideAnnotationService)
	do.Provide(injector, providers.ProvideSourceService)

	// Workers
	do.Provide(injector, providers.ProvideSweepScheduler)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	// Invoke core services to trigger initialization
	steps := []func() error{
		invoke[providers.AuthKey](injector),
		invoke[*providers.SSEManagerHandle](injector),
		invoke[*providers.StoreHandle](injector),
		invoke[storage.Backend](injector),
		invoke[*providers.CounterHandle](injector),
		invoke[*source.Resolver](injector),
		invoke[*source.Opener](injector),
		invoke[*auth.TokenService](injector),
		invoke[*providers.RateLimiterHandle](injector),
		invoke[*validation.Validator](injector),

		// Business services
		invoke[*service.DownloadService](injector),
		invoke[*service.ProgressService](injector),
		invoke[*service.AnnotationService](injector),
		invoke[*service.SourceService](injector),

		// Workers
		invoke[*providers.SweepSchedulerHandle](injector),

		// Server
		invoke[*providers.HTTPServerHandle](injector),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
