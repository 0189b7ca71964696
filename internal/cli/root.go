// Package cli implements the kore command tree. Every command is a thin
// wrapper over internal/engine: parse flags, call the engine, print JSON.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/config"
	"github.com/korelabs/kore/internal/embedding"
	"github.com/korelabs/kore/internal/engine"
	"github.com/korelabs/kore/internal/storage"
	"github.com/korelabs/kore/internal/storage/postgres"
	"github.com/korelabs/kore/internal/storage/sqlite"
	"github.com/korelabs/kore/internal/vector"
	"github.com/korelabs/kore/pkg/types"
)

var (
	configPath string
	agentFlag  string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "kore",
	Short: "Persistent memory for AI agents",
	Long: "Kore stores agent memories that decay, reinforce on access and " +
		"compress over time. SQLite by default, PostgreSQL + pgvector optional.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML); env vars override it")
	RootCmd.PersistentFlags().StringVarP(&agentFlag, "agent", "a", "", "Agent namespace (default: $KORE_AGENT or \"default\")")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func agentID() string {
	if agentFlag != "" {
		return agentFlag
	}
	if env := os.Getenv("KORE_AGENT"); env != "" {
		return env
	}
	return "default"
}

// openEngine assembles the full stack from configuration: logger, store,
// vector index, embedder, engine. The caller owns Close.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	var store storage.Store
	switch cfg.Storage.Engine {
	case "postgres":
		store, err = postgres.Open(cfg.Storage.DSN)
	default:
		store, err = sqlite.Open(cfg.Storage.Path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Engine, err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.Enabled {
		embedder = embedding.NewClient(embedding.ClientConfig{
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Timeout:           time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		}, log)
	}

	eng := engine.New(store, vector.Select(store), embedder, log)
	return eng, cfg, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func exitErr(msg string, err error) {
	code := 1
	if errors.Is(err, storage.ErrNotFound) {
		code = 2
	}
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(code)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// printRecords renders a result page. Text mode is for humans at a shell;
// agents should consume the JSON form.
func printRecords(records []types.MemoryRecord, nextCursor string) {
	if formatFlag == "text" {
		for _, r := range records {
			fmt.Printf("[%d] %s/%d score=%.4f  %s\n", r.ID, r.Category, r.Importance, r.DecayScore, r.Content)
		}
		if nextCursor != "" {
			fmt.Printf("next: --cursor %s\n", nextCursor)
		}
		return
	}
	printJSON(struct {
		Records    []types.MemoryRecord `json:"records"`
		NextCursor string               `json:"next_cursor,omitempty"`
	}{records, nextCursor})
}
