package api

import "github.com/booksyapp/booksy-server/internal/service"

// Services groups the business logic services used by the API server.
type Services struct {
	Downloads   *service.DownloadService
	Progress    *service.ProgressService
	Annotations *service.AnnotationService
	Sources     *service.SourceService
}
