package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port string

	// DBDriver is one of memory, sqlite, postgres, mysql.
	DBDriver string
	// DBDSN is a file path for sqlite and a connection URL otherwise.
	DBDSN string

	Gemini        GeminiConfig
	PuzzleTimeout time.Duration

	// SessionSecret signs session tokens. Empty means a random per-process key.
	SessionSecret string
	SessionTTL    time.Duration

	// MailFrom enables issue mails through SES when set.
	MailFrom     string
	MailFromName string
	AWSRegion    string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:          "8080",
		DBDriver:      "sqlite",
		DBDSN:         "data/sundaypaper.db",
		Gemini:        GeminiConfig{Region: defaultRegion, Model: defaultModel},
		PuzzleTimeout: defaultPuzzleTimeout,
		SessionTTL:    defaultSessionTTL,
		MailFromName:  "Sunday Paper",
		AWSRegion:     "us-east-1",
	}
}

// openKV opens the configured key-value backend.
func openKV(ctx context.Context, cfg *Config) (KV, error) {
	switch cfg.DBDriver {
	case "memory":
		log.Println("Using in-memory storage, data is lost on exit")
		return NewMemoryKV(), nil
	case "sqlite", "postgres", "mysql":
		kv, err := OpenSQLKV(ctx, cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		log.Printf("Using %s storage", cfg.DBDriver)
		return kv, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}
}

// openGenerator returns a Gemini puzzle generator, or nil when no
// credential is configured.
func openGenerator(ctx context.Context, cfg *Config) (*GeminiClient, error) {
	if !cfg.Gemini.Configured() {
		log.Println("No Gemini credential, puzzles fall back to the static grid")
		return nil, nil
	}
	g, err := NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		return nil, err
	}
	log.Printf("Gemini client initialised (model: %s)", g.modelName)
	return g, nil
}
