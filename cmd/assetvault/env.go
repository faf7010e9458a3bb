package main

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forge3d/assetvault/internal/cli/config"
	"github.com/forge3d/assetvault/internal/files"
	"github.com/forge3d/assetvault/internal/metadata"
	"github.com/forge3d/assetvault/internal/repository"
	"github.com/forge3d/assetvault/internal/service"
	"github.com/forge3d/assetvault/internal/store"
)

// env bundles the wired services a command needs to operate on a
// storage root.
type env struct {
	cfg     *config.Config
	dbPath  string
	db      *sql.DB
	logger  *zap.Logger
	layout  *files.Layout
	assets  *repository.AssetRepo
	library *service.Library
}

// openEnv loads the configuration, opens the library database, and
// wires the service stack. The caller must Close it.
func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	// With no explicit root, commands run from anywhere inside the
	// storage tree resolve to its top.
	root := cfg.Storage.Root
	if root == "." {
		if found, err := config.FindStorageRoot(); err == nil {
			root = found
		}
	}

	layout := files.NewLayout(root)
	dbPath := cfg.Storage.DatabasePath
	if dbPath == "" {
		dbPath = layout.DatabasePath()
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	assets := repository.NewAssetRepo(db, logger)
	designations := repository.NewDesignationRepo(db, logger)
	proxies := repository.NewProxyRepo(db, logger)
	meta := metadata.NewService(db, logger)

	refs := files.NewReferences()
	tiers := files.NewTierManager(layout, refs, logger)
	representations := service.NewRepresentationService(assets, designations, proxies, tiers, refs, logger)
	library := service.NewLibrary(assets, meta, tiers, representations, logger)

	return &env{
		cfg:     cfg,
		dbPath:  dbPath,
		db:      db,
		logger:  logger,
		layout:  layout,
		assets:  assets,
		library: library,
	}, nil
}

func (e *env) Close() error {
	_ = e.logger.Sync()
	return e.db.Close()
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
