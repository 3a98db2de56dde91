package di

import (
	"context"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/di/providers"
	"github.com/booksyapp/booksy-server/internal/service"
	"github.com/booksyapp/booksy-server/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return &config.Config{
		App:       config.AppConfig{Environment: "development"},
		Logger:    config.LoggerConfig{Level: "error"},
		Data:      config.DataConfig{Path: dataDir},
		Store:     config.StoreConfig{Driver: config.StoreDriverSQLite},
		Artifacts: config.ArtifactConfig{Backend: config.ArtifactBackendFS, Root: t.TempDir(), RemoteFetchTimeout: time.Second},
		Counter:   config.CounterConfig{Backend: config.CounterBackendStore},
		Auth:      config.AuthConfig{AccessTokenDuration: time.Minute},
		RateLimit: config.RateLimitConfig{RPS: 10, Burst: 10},
		Sweep:     config.SweepConfig{Enabled: false, Schedule: "*/15 * * * *", StaleAfter: time.Hour},
	}
}

func TestContainer_ResolvesServices(t *testing.T) {
	injector := NewContainer()
	do.OverrideValue(injector, testConfig(t))
	t.Cleanup(func() { _ = injector.Shutdown() })

	downloads, err := do.Invoke[*service.DownloadService](injector)
	require.NoError(t, err)
	assert.NotNil(t, downloads)

	_, err = do.Invoke[*service.ProgressService](injector)
	require.NoError(t, err)
	_, err = do.Invoke[*service.AnnotationService](injector)
	require.NoError(t, err)
	_, err = do.Invoke[*service.SourceService](injector)
	require.NoError(t, err)

	backend, err := do.Invoke[storage.Backend](injector)
	require.NoError(t, err)
	assert.Equal(t, "fs", backend.Name())

	storeHandle := do.MustInvoke[*providers.StoreHandle](injector)
	assert.NoError(t, storeHandle.Ping(context.Background()))
}

func TestContainer_DisabledSweepDoesNotStart(t *testing.T) {
	injector := NewContainer()
	do.OverrideValue(injector, testConfig(t))
	t.Cleanup(func() { _ = injector.Shutdown() })

	handle, err := do.Invoke[*providers.SweepSchedulerHandle](injector)
	require.NoError(t, err)
	assert.False(t, handle.IsRunning())
}

func TestContainer_AuthKeyIsPersisted(t *testing.T) {
	cfg := testConfig(t)

	first := NewContainer()
	do.OverrideValue(first, cfg)
	key1, err := do.Invoke[providers.AuthKey](first)
	require.NoError(t, err)
	_ = first.Shutdown()

	second := NewContainer()
	do.OverrideValue(second, cfg)
	key2, err := do.Invoke[providers.AuthKey](second)
	require.NoError(t, err)
	_ = second.Shutdown()

	assert.Len(t, key1, 32)
	assert.Equal(t, key1, key2)
	assert.Equal(t, []byte(key1), cfg.Auth.AccessTokenKey)
}
