// Package app holds the core application services: user accounts, the
// ingestion orchestrator and note CRUD with ownership checks.
package app

import (
	"context"
	"fmt"
	"io"

	"kensho/pkg/ai"
	"kensho/pkg/domain"
	"kensho/pkg/speech"
	"kensho/pkg/storage"
	"kensho/pkg/store"
	"kensho/pkg/transcript"
)

// NotesGenerator produces study notes from source text.
type NotesGenerator interface {
	Generate(ctx context.Context, sourceType domain.SourceType, text string) (ai.GeneratedNotes, error)
}

// CaptionFetcher resolves YouTube captions.
type CaptionFetcher interface {
	Fetch(ctx context.Context, url string, languages []string) (transcript.Transcript, error)
}

// AudioTranscriber converts stored audio blobs to text.
type AudioTranscriber interface {
	ValidateFormat(filename string) error
	MaxBytes() int64
	Transcribe(ctx context.Context, r io.Reader, filename, language string, size int64) (speech.Result, error)
}

// Config wires the application's collaborators.
type Config struct {
	DatabaseURL string
	// Store overrides DatabaseURL when set; tests use the memory store.
	Store       store.Store
	Sessions    store.SessionStore
	Blobs       storage.BlobStore
	Generator   NotesGenerator
	Fetcher     CaptionFetcher
	Transcriber AudioTranscriber
	// Languages is the preferred caption language order.
	Languages []string
}

// App is the core application service.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	blobs       storage.BlobStore
	generator   NotesGenerator
	fetcher     CaptionFetcher
	transcriber AudioTranscriber
	languages   []string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("notes generator required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("caption fetcher required")
	}
	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("audio transcriber required")
	}
	languages := cfg.Languages
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &App{
		store:       dataStore,
		sessions:    cfg.Sessions,
		blobs:       cfg.Blobs,
		generator:   cfg.Generator,
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		languages:   languages,
	}, nil
}

// Sessions exposes the session store for the HTTP layer.
func (a *App) Sessions() store.SessionStore { return a.sessions }

// Blobs exposes the blob store for the HTTP layer's upload handling.
func (a *App) Blobs() storage.BlobStore { return a.blobs }
