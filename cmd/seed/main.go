// Package main loads catalog books and chapters into the document store and
// can print a development access token.
//
// A book with an "artifact_path" has that local file uploaded to the artifact
// backend under the base name of its file_url. An empty file_url takes the
// artifact's base name.
//
// Usage:
//
//	go run ./cmd/seed --file catalog.json
//	go run ./cmd/seed --file catalog.json --token-user user-1 --token-email reader@example.com
//
// Store settings (DATA_PATH, STORE_DRIVER, ...) come from the environment and
// .env exactly as for the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/booksyapp/booksy-server/internal/auth"
	"github.com/booksyapp/booksy-server/internal/config"
	"github.com/booksyapp/booksy-server/internal/di/providers"
	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/id"
	"github.com/booksyapp/booksy-server/internal/logger"
	"github.com/booksyapp/booksy-server/internal/normalize"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/storage"
)

// catalogFile is the seed file layout.
type catalogFile struct {
	Books []seedBook `json:"books"`
}

type seedBook struct {
	domain.Book
	ArtifactPath string           `json:"artifact_path,omitempty"`
	Chapters     []domain.Chapter `json:"chapters"`
}

func main() {
	file := flag.String("file", "", "JSON catalog file with books and their chapters")
	tokenUser := flag.String("token-user", "", "print an access token for this user ID")
	tokenEmail := flag.String("token-email", "", "email embedded in the printed token")
	flag.Parse()

	if *file == "" && *tokenUser == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideArtifactBackend)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)
	defer func() { _ = injector.Shutdown() }()

	if *file != "" {
		if err := seedCatalog(injector, *file); err != nil {
			log.Fatalf("Failed to seed catalog: %v", err)
		}
	}

	if *tokenUser != "" {
		if err := printToken(injector, *tokenUser, *tokenEmail); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
	}
}

func seedCatalog(injector do.Injector, path string) error {
	//#nosec G304 -- Seed file path is supplied by the operator
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var catalog catalogFile
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	storeHandle, err := do.Invoke[*providers.StoreHandle](injector)
	if err != nil {
		return err
	}
	log := do.MustInvoke[*logger.Logger](injector)

	ctx := context.Background()
	now := time.Now()
	chapters := 0

	var backend storage.Backend
	uploads := 0

	for i := range catalog.Books {
		book := &catalog.Books[i].Book
		if book.ID == "" {
			book.ID = id.MustGenerate("book")
		}
		if artifact := catalog.Books[i].ArtifactPath; artifact != "" {
			if backend == nil {
				if backend, err = do.Invoke[storage.Backend](injector); err != nil {
					return err
				}
			}
			if !filepath.IsAbs(artifact) {
				artifact = filepath.Join(filepath.Dir(path), artifact)
			}
			if err := uploadArtifact(ctx, backend, book, artifact); err != nil {
				return fmt.Errorf("upload artifact for %s: %w", book.ID, err)
			}
			uploads++
		}
		if book.CreatedAt.IsZero() {
			book.CreatedAt = now
		}
		book.UpdatedAt = now

		if err := storeHandle.SaveBook(ctx, book); err != nil {
			return fmt.Errorf("save book %s: %w", book.ID, err)
		}

		for j := range catalog.Books[i].Chapters {
			ch := &catalog.Books[i].Chapters[j]
			if ch.ID == "" {
				ch.ID = id.MustGenerate("ch")
			}
			if ch.ChapterNumber == 0 {
				ch.ChapterNumber = j + 1
			}
			ch.BookID = book.ID
			if ch.CreatedAt.IsZero() {
				ch.CreatedAt = now
			}
			if err := storeHandle.SaveChapter(ctx, ch); err != nil {
				return fmt.Errorf("save chapter %s: %w", ch.ID, err)
			}
			chapters++
		}

		log.Info("Seeded book", "book_id", book.ID, "title", book.Title, "chapters", len(catalog.Books[i].Chapters))
	}

	fmt.Printf("Seeded %d books, %d chapters and %d artifacts\n", len(catalog.Books), chapters, uploads)
	return nil
}

// uploadArtifact stores the file at path under the book's artifact key.
func uploadArtifact(ctx context.Context, backend storage.Backend, book *domain.Book, path string) error {
	if source.IsRemote(book.FileURL) {
		return fmt.Errorf("file_url %q is remote and cannot take an upload", book.FileURL)
	}
	fileType, ok := domain.ParseFileType(book.FileType)
	if !ok {
		return fmt.Errorf("unsupported file type %q", book.FileType)
	}

	if book.FileURL == "" {
		book.FileURL = filepath.Base(path)
	}
	key := normalize.BaseName(book.FileURL)

	//#nosec G304 -- Artifact path is supplied by the operator
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	return backend.Put(ctx, key, f, info.Size(), fileType.ContentType())
}

func printToken(injector do.Injector, userID, email string) error {
	tokens, err := do.Invoke[*auth.TokenService](injector)
	if err != nil {
		return err
	}

	token, err := tokens.GenerateAccessToken(userID, email)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
