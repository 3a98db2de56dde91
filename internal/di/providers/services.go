package providers

import (
	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/logger"
	"github.com/booksyapp/booksy-server/internal/service"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/storage"
	"github.com/booksyapp/booksy-server/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideSourceResolver provides the file source resolver.
func ProvideSourceResolver(i do.Injector) (*source.Resolver, error) {
	backend := do.MustInvoke[storage.Backend](i)
	counterHandle := do.MustInvoke[*CounterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return source.NewResolver(backend, counterHandle.DownloadCounter, log.Logger), nil
}

// ProvideSourceOpener provides the artifact opener used by the file stream.
func ProvideSourceOpener(i do.Injector) (*source.Opener, error) {
	cfg := do.MustInvoke[*config.Config](i)
	backend := do.MustInvoke[storage.Backend](i)

	return source.NewOpener(backend, cfg.Artifacts.RemoteFetchTimeout), nil
}

// ProvideDownloadService provides the download lifecycle service.
func ProvideDownloadService(i do.Injector) (*service.DownloadService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	resolver := do.MustInvoke[*source.Resolver](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDownloadService(storeHandle, resolver, sseHandle.Manager, validator, log.Logger), nil
}

// ProvideProgressService provides the reading progress synchronizer.
func ProvideProgressService(i do.Injector) (*service.ProgressService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewProgressService(storeHandle, sseHandle.Manager, validator, log.Logger), nil
}

// ProvideAnnotationService provides the bookmark and note merger.
func ProvideAnnotationService(i do.Injector) (*service.AnnotationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAnnotationService(storeHandle, sseHandle.Manager, validator, log.Logger), nil
}

// ProvideSourceService provides the book source lookup and file stream service.
func ProvideSourceService(i do.Injector) (*service.SourceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	resolver := do.MustInvoke[*source.Resolver](i)
	opener := do.MustInvoke[*source.Opener](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSourceService(storeHandle, resolver, opener, validator, log.Logger), nil
}
