// Command elevationd serves the tiled elevation model over HTTP and drives
// bulk pre-fetches, the way the teacher's main.go/app.go wire a Wails
// desktop app around a single imagery cache; here the composition root
// wires internal/levelset, internal/memcache, internal/filestore,
// internal/retrieval, internal/taskservice, internal/extremes and
// internal/bathymetry around one internal/elevmodel.Model exposed over
// chi instead of a desktop binding layer.
package main

import (
	"fmt"
	"os"

	"github.com/walkthru-earth/elevationd/internal/bathymetry"
	"github.com/walkthru-earth/elevationd/internal/bulk"
	"github.com/walkthru-earth/elevationd/internal/config"
	"github.com/walkthru-earth/elevationd/internal/elevmodel"
	"github.com/walkthru-earth/elevationd/internal/elevsource"
	"github.com/walkthru-earth/elevationd/internal/extremes"
	"github.com/walkthru-earth/elevationd/internal/filestore"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/levelset"
	"github.com/walkthru-earth/elevationd/internal/memcache"
	"github.com/walkthru-earth/elevationd/internal/retrieval"
	"github.com/walkthru-earth/elevationd/internal/taskservice"
	"github.com/walkthru-earth/elevationd/internal/urlbuilder"
)

// app bundles every collaborator the HTTP and bulk-download surfaces need.
type app struct {
	cfg        config.ModelConfig
	levels     *levelset.LevelSet
	fileStore  *filestore.FileStore
	retrieval  *retrieval.Service
	tasks      *taskservice.Service
	model      *elevmodel.Model
	source     elevsource.ElevationSource // model, optionally wrapped by bathymetry.Filter
	downloader *bulk.Downloader
}

// buildApp wires every leaf package into a running Model, taking the
// bounded-pool sizes from cfg; the memory cache's low/high watermarks are
// fixed here at 0.85/1.0.
func buildApp(cfg config.ModelConfig) (*app, error) {
	fileStore, err := filestore.New(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("elevationd: filestore: %w", err)
	}

	absent := levelset.NewAbsentTracker(levelset.DefaultMaxAttempts, levelset.DefaultMinRetryInterval)
	levels, err := cfg.BuildLevelSet(absent)
	if err != nil {
		return nil, fmt.Errorf("elevationd: levelset: %w", err)
	}

	memCache := memcache.New(cfg.MemoryCacheCapacityBytes, 0.85, 1.0)

	retrievalSvc := retrieval.New(retrieval.Config{
		MaxWorkers: cfg.RetrievalMaxWorkers,
		MaxQueue:   cfg.RetrievalMaxQueue,
	})
	tasks := taskservice.New(cfg.TaskMaxWorkers, cfg.TaskMaxQueue)

	grid, err := loadExtremes(cfg)
	if err != nil {
		return nil, fmt.Errorf("elevationd: extremes: %w", err)
	}

	urlForTile := urlForTileBuilder(cfg)

	model, err := elevmodel.New(elevmodel.Config{
		Levels:                  levels,
		MemCache:                memCache,
		FileStore:               fileStore,
		Retrieval:               retrievalSvc,
		Tasks:                   tasks,
		Extremes:                grid,
		DataType:                cfg.DataType,
		ByteOrder:               cfg.ByteOrder,
		MissingSignal:           cfg.MissingSignal,
		MissingReplacement:      cfg.MissingReplacement,
		ElevationMin:            cfg.ElevationMin,
		ElevationMax:            cfg.ElevationMax,
		NetworkRetrievalEnabled: cfg.NetworkRetrievalEnabled,
		URLForTile:              urlForTile,
	})
	if err != nil {
		return nil, fmt.Errorf("elevationd: model: %w", err)
	}

	var source elevsource.ElevationSource = model
	if cfg.BathymetryEnabled {
		f := bathymetry.New(source, cfg.MissingSignal)
		f.Threshold = cfg.BathymetryThreshold
		source = f
	}

	downloader := bulk.New(levels, fileStore, retrievalSvc, bulk.URLForTile(urlForTile))

	return &app{
		cfg:        cfg,
		levels:     levels,
		fileStore:  fileStore,
		retrieval:  retrievalSvc,
		tasks:      tasks,
		model:      model,
		source:     source,
		downloader: downloader,
	}, nil
}

func (a *app) Close() {
	a.retrieval.Close()
	a.tasks.Close()
}

// urlForTileBuilder adapts the configured template into the elevmodel/bulk
// URLForTile shape (spec §6).
func urlForTileBuilder(cfg config.ModelConfig) elevmodel.URLForTile {
	tmpl := urlbuilder.TemplateParams{Template: cfg.URLTemplate}
	return func(level levelset.Level, row, col int) (string, error) {
		if cfg.URLTemplate == "" {
			return "", fmt.Errorf("elevationd: no URL template configured for level %d", level.Number)
		}
		return tmpl.BuildTemplate(level.Number, row, col), nil
	}
}

// loadExtremes reads the coarse min/max grid file named in cfg, if any.
func loadExtremes(cfg config.ModelConfig) (*extremes.Grid, error) {
	if cfg.ExtremesFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.ExtremesFile)
	if err != nil {
		return nil, err
	}
	level := cfg.ExtremesLevel
	if parsed, perr := extremes.LevelFromFilename(cfg.ExtremesFile); perr == nil {
		level = parsed
	}
	return extremes.Load(
		data, cfg.ExtremesRows, cfg.ExtremesCols, level,
		cfg.TileOrigin, geo.AngleFromDegrees(cfg.ExtremesDeltaDeg),
		cfg.MissingSignal, cfg.MissingReplacement,
		cfg.ExtremesCacheCapacityBytes,
	)
}
