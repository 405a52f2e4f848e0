package main

import (
	"context"
	"fmt"
	"os"

	"github.com/abelbrown/projector/internal/config"
	"github.com/abelbrown/projector/internal/coord"
	"github.com/abelbrown/projector/internal/embed"
	"github.com/abelbrown/projector/internal/logging"
	"github.com/abelbrown/projector/internal/otel"
	"github.com/abelbrown/projector/internal/pipeline"
	"github.com/abelbrown/projector/internal/store"
)

// ringSize is how many recent events the TUI debug overlay can show.
const ringSize = 256

// loadConfig reads config for the --data-dir flag and applies --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, nil
}

// openStore opens the database for commands that only need persistence.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// env is everything a projection command needs: config, logs, the store,
// the model cache and a running coordinator.
type env struct {
	cfg     *config.Config
	events  *otel.Logger
	ring    *otel.RingBuffer
	evFile  *os.File
	store   *store.Store
	models  *embed.Cache
	coord   *coord.Coordinator
	cancel  context.CancelFunc
	started bool
}

// openEnv wires the full stack and starts the coordinator's worker. Close
// tears it down in reverse order.
func openEnv(ctx context.Context) (_ *env, err error) {
	e := &env{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.cfg, err = loadConfig(); err != nil {
		return nil, err
	}
	if err = e.cfg.Validate(); err != nil {
		return nil, err
	}

	if err = logging.Init(e.cfg.DataDir, versionInfo.Version, e.cfg.LogLevel); err != nil {
		return nil, err
	}

	e.evFile, err = os.OpenFile(e.cfg.EventLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	e.events = otel.NewLogger(e.evFile)
	e.ring = otel.NewRingBuffer(ringSize)
	e.events.SetRingBuffer(e.ring)
	e.events.Info(otel.KindStartup, "main", "projector "+versionInfo.Version)

	if e.store, err = store.Open(e.cfg.DBPath()); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	factory, err := embed.NewFactory(e.cfg.EmbedOptions())
	if err != nil {
		return nil, err
	}
	e.models = embed.NewCache(factory)

	ctrl := pipeline.New(pipeline.Config{
		Models: e.models,
		Events: e.events,
		Seed:   e.cfg.Reducer.Seed,
	})
	e.coord = coord.NewCoordinator(ctrl, e.store, e.events)

	var cctx context.Context
	cctx, e.cancel = context.WithCancel(ctx)
	e.coord.Start(cctx)
	e.started = true

	logging.Info("environment ready",
		"provider", e.cfg.Embedder.Provider, "model", e.cfg.Embedder.Model, "data_dir", e.cfg.DataDir)
	return e, nil
}

// Close stops the coordinator and releases everything openEnv acquired.
// Safe on a partially opened env.
func (e *env) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.started {
		e.coord.Wait()
	}
	if e.models != nil {
		if err := e.models.Close(); err != nil {
			logging.Warn("close model", "error", err)
		}
	}
	if e.store != nil {
		e.store.Close()
	}
	if e.events != nil {
		e.events.Info(otel.KindShutdown, "main", "")
		e.events.Close()
	}
	if e.evFile != nil {
		e.evFile.Close()
	}
	logging.Close()
}
