// Package start assembles the running system from configuration: memory
// store, reasoning engine, tool registry, orchestrator and event publisher.
// The CLI's invoke and serve commands both build through here so the wiring
// exists in exactly one place.
package start

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/agent"
	"github.com/engramlabs/engram/pkg/config"
	"github.com/engramlabs/engram/pkg/dotdir"
	"github.com/engramlabs/engram/pkg/engine"
	"github.com/engramlabs/engram/pkg/engine/anthropic"
	"github.com/engramlabs/engram/pkg/eventstream"
	kafkastream "github.com/engramlabs/engram/pkg/eventstream/kafka"
	"github.com/engramlabs/engram/pkg/eventstream/nop"
	"github.com/engramlabs/engram/pkg/memory"
	"github.com/engramlabs/engram/pkg/memory/sqlite"
	"github.com/engramlabs/engram/pkg/tools"
)

const dbFileName = "engram.db"

// System holds the wired runtime components.
type System struct {
	Config       *config.Config
	Store        memory.Store
	Engine       engine.Engine
	Tools        *tools.Registry
	Orchestrator *agent.Orchestrator
	Events       eventstream.Publisher

	logger *zap.Logger
}

// Options tweak system assembly.
type Options struct {
	// ConfigDir overrides .engram/ directory resolution.
	ConfigDir string

	// SQLitePath overrides the store path from config.
	SQLitePath string
}

// NewSystem builds every runtime component from the configuration and
// initializes the store schema.
func NewSystem(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*System, error) {
	dbPath, err := ResolveStorePath(cfg, opts)
	if err != nil {
		return nil, err
	}

	limits := memory.Limits{
		UserRecall:      cfg.Agent.UserRecallLimit,
		AssistantRecall: cfg.Agent.AssistantRecallLimit,
	}

	store, err := sqlite.NewSQLiteStore(dbPath, limits)
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("initializing memory store: %w", err)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	events, err := newPublisher(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := tools.NewMemoryRegistry(store, logger)

	orchestrator, err := agent.NewOrchestrator(agent.Config{
		Model:           cfg.Engine.Model,
		Timezone:        cfg.Agent.Timezone,
		DailyCeilingUSD: cfg.Agent.DailyCeilingUSD,
		MaxTurns:        cfg.Agent.MaxTurns,
		LoopWindow:      cfg.Agent.LoopWindow,
	}, store, eng, registry, events, logger)
	if err != nil {
		events.Close()
		store.Close()
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	return &System{
		Config:       cfg,
		Store:        store,
		Engine:       eng,
		Tools:        registry,
		Orchestrator: orchestrator,
		Events:       events,
		logger:       logger,
	}, nil
}

// Close releases the system's resources in reverse dependency order.
func (s *System) Close() error {
	var firstErr error
	if err := s.Events.Close(); err != nil {
		firstErr = err
	}
	if err := s.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ResolveStorePath picks the SQLite database path: explicit override, then
// ENGRAM_SQLITE, then the configured path, then engram.db inside the
// resolved .engram/ directory.
func ResolveStorePath(cfg *config.Config, opts Options) (string, error) {
	if opts.SQLitePath != "" {
		return opts.SQLitePath, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("ENGRAM_SQLITE")); envPath != "" {
		return envPath, nil
	}

	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath, nil
	}

	ddm := dotdir.NewManager()
	dir, err := ddm.Target(opts.ConfigDir)
	if err != nil {
		return "", fmt.Errorf("resolving .engram directory: %w", err)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home dir: %w", err)
		}
		dir = filepath.Join(home, ".engram")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating .engram directory: %w", err)
	}

	return filepath.Join(dir, dbFileName), nil
}

func newEngine(cfg *config.Config, logger *zap.Logger) (engine.Engine, error) {
	switch cfg.Engine.Provider {
	case "anthropic":
		apiKey := os.Getenv(cfg.Engine.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("engine api key not set; export %s", cfg.Engine.APIKeyEnv)
		}

		client, err := anthropic.New(anthropic.Config{
			APIKey: apiKey,
			Target: cfg.Engine.Target,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building anthropic engine: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown engine provider: %q", cfg.Engine.Provider)
	}
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		brokers := strings.Split(cfg.Events.Brokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}

		publisher, err := kafkastream.NewPublisher(kafkastream.Config{
			Brokers: brokers,
			Topic:   cfg.Events.Topic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building kafka publisher: %w", err)
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q", cfg.Events.Provider)
	}
}
