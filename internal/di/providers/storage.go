package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/counter"
	"github.com/booksyapp/booksy-server/internal/logger"
	"github.com/booksyapp/booksy-server/internal/storage"
)

// ProvideArtifactBackend provides the blob backend holding local book artifacts.
func ProvideArtifactBackend(i do.Injector) (storage.Backend, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Artifacts.Backend == config.ArtifactBackendMinio {
		m := cfg.Artifacts.Minio
		backend, err := storage.NewMinioBackend(context.Background(), storage.MinioConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact backend: %w", err)
		}
		log.Info("Artifact backend ready", "backend", backend.Name(), "endpoint", m.Endpoint, "bucket", m.Bucket)
		return backend, nil
	}

	backend, err := storage.NewFileBackend(cfg.Artifacts.Root)
	if err != nil {
		return nil, fmt.Errorf("artifact backend: %w", err)
	}
	log.Info("Artifact backend ready", "backend", backend.Name(), "root", backend.Root())
	return backend, nil
}

// CounterHandle wraps the download tally with shutdown capability.
type CounterHandle struct {
	counter.DownloadCounter
	close func() error
}

// Shutdown implements do.Shutdownable.
func (h *CounterHandle) Shutdown() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// ProvideCounter provides the per-book download tally selected by COUNTER_BACKEND.
func ProvideCounter(i do.Injector) (*CounterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Counter.Backend == config.CounterBackendRedis {
		r := cfg.Counter.Redis
		rc, err := counter.NewRedisCounter(context.Background(), counter.RedisConfig{
			Addr:      r.Addr,
			Password:  r.Password,
			KeyPrefix: r.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("download counter: %w", err)
		}
		log.Info("Download counter ready", "backend", "redis", "addr", r.Addr)
		return &CounterHandle{DownloadCounter: rc, close: rc.Close}, nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	log.Info("Download counter ready", "backend", "store")
	return &CounterHandle{DownloadCounter: counter.NewStoreCounter(storeHandle)}, nil
}
