// Package core wires the application's components from configuration. It
// is shared by the server and the CLI.
package core

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/vrsandeep/inkbridge/internal/assembler"
	"github.com/vrsandeep/inkbridge/internal/batch"
	"github.com/vrsandeep/inkbridge/internal/config"
	"github.com/vrsandeep/inkbridge/internal/converter"
	"github.com/vrsandeep/inkbridge/internal/device"
	"github.com/vrsandeep/inkbridge/internal/fetcher"
	"github.com/vrsandeep/inkbridge/internal/images"
	"github.com/vrsandeep/inkbridge/internal/jobs"
	"github.com/vrsandeep/inkbridge/internal/logger"
	"github.com/vrsandeep/inkbridge/internal/lrr"
	"github.com/vrsandeep/inkbridge/internal/pipeline"
	"github.com/vrsandeep/inkbridge/internal/resolver"
	"github.com/vrsandeep/inkbridge/internal/websocket"
)

// App holds the core components of the application.
type App struct {
	config   *config.Config
	log      *zap.SugaredLogger
	archives *lrr.Client
	device   *device.Client
	uploader *device.Uploader
	pipeline *pipeline.Pipeline
	jobs     *jobs.Manager
	batches  *batch.Service
	wsHub    *websocket.Hub
	reclaim  *gocron.Scheduler
}

// New loads config.yml, builds the logger and wires the application.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return NewWithConfig(cfg, log)
}

// NewWithConfig wires the application from an already loaded config. The
// device is optional: with no device URL uploads are unavailable.
func NewWithConfig(cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	app := &App{config: cfg, log: log, wsHub: websocket.NewHub(log.Named("ws"))}

	app.archives = lrr.New(lrr.Options{
		BaseURL:      cfg.Server.URL,
		APIKey:       cfg.Server.APIKey,
		Timeout:      time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		PageCacheTTL: time.Duration(cfg.Server.PageCacheMinutes) * time.Minute,
	})

	if cfg.Device.URL != "" {
		app.device = device.NewClient(cfg.Device.URL, time.Duration(cfg.Device.TimeoutSeconds)*time.Second)
		app.uploader = device.NewUploader(app.device, log.Named("device"))
	}

	pages := fetcher.New(app.archives, cfg.Assembler.Attempts, cfg.PageBackoff(), log.Named("fetcher"))
	asm := assembler.New(pages, images.NewNormalizer(), cfg.Assembler.Workers, log.Named("assembler"))
	res := resolver.New(app.archives, asm, log.Named("resolver"))
	tool := converter.NewSupervisor(converter.Options{
		Command:      cfg.Converter.Command,
		Script:       cfg.Converter.Script,
		OutputDir:    cfg.Converter.OutputDir,
		PollInterval: cfg.FramePollInterval(),
		MinAge:       cfg.FrameMinAge(),
	}, log.Named("converter"))
	app.pipeline = pipeline.New(app.archives, res, tool, cfg.Work.Dir, log.Named("pipeline"))

	app.jobs = jobs.NewManager(jobs.NewMemoryRepository(), app.pipeline, app.wsHub, jobs.Options{
		TTL: cfg.JobTTL(),
		Policy: jobs.ProgressPolicy{
			PageCeiling:   cfg.Progress.PageCeiling,
			ToolFloor:     cfg.Progress.ToolFloor,
			DownloadFloor: cfg.Progress.DownloadFloor,
			RunningFloor:  cfg.Progress.RunningFloor,
		},
	}, log.Named("jobs"))

	var uploader batch.Uploader
	if app.uploader != nil {
		uploader = app.uploader
	}
	scheduler := batch.NewScheduler(app.jobs, uploader, cfg.Batch.Workers, log.Named("batch"))
	app.batches = batch.NewService(scheduler, app.wsHub, cfg.JobTTL(), log.Named("batch"))

	log.Info("Core application setup complete.")
	return app, nil
}

// Start runs the background services: the websocket hub and the TTL
// reclaimer.
func (a *App) Start() error {
	go a.wsHub.Run()
	s, err := jobs.StartReclaimer(a.jobs, a.config.ReclaimInterval(), a.log.Named("reclaimer"))
	if err != nil {
		return fmt.Errorf("failed to start reclaimer: %w", err)
	}
	a.reclaim = s
	return nil
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) Logger() *zap.SugaredLogger { return a.log }
func (a *App) Archives() *lrr.Client { return a.archives }
func (a *App) Jobs() *jobs.Manager { return a.jobs }
func (a *App) Batches() *batch.Service { return a.batches }
func (a *App) WsHub() *websocket.Hub { return a.wsHub }
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Device returns the device client, or nil when no device is configured.
func (a *App) Device() *device.Client { return a.device }

// Uploader returns the device uploader, or nil when no device is
// configured.
func (a *App) Uploader() *device.Uploader { return a.uploader }

// Close stops background work, disposes every held artifact and releases
// the HTTP clients.
func (a *App) Close() {
	if a.reclaim != nil {
		a.reclaim.Stop()
		a.wsHub.Stop()
	}
	a.batches.Shutdown()
	a.jobs.Shutdown()
	a.archives.Close()
	if a.device != nil {
		a.device.Close()
	}
	a.log.Sync()
}
