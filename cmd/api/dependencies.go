package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/handler"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/repository"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/analysis/service"
	"github.com/FACorreiaa/proposal-risk-analyzer/internal/domain/ingest/sheets"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/config"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/cron"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/db"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/gemini"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/observability"
	"github.com/FACorreiaa/proposal-risk-analyzer/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config   *config.Config
	DB       *db.DB
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Repositories
	AnalysisRepo repository.AnalysisRepository

	// Services
	Gemini          *gemini.Client
	SheetsSession   *sheets.Session // nil when no credentials are configured
	FileStorage     storage.Storage
	AnalysisService *service.AnalysisService
	Scheduler       *cron.Scheduler // nil when the spreadsheet feed is disabled

	// Handlers
	AnalysisHandler *handler.AnalysisHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics()

	if err := deps.initDatabase(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.AnalysisRepo = repository.NewPostgresAnalysisRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:     d.Config.Gemini.APIKey,
		Model:      d.Config.Gemini.Model,
		Timeout:    d.Config.Gemini.Timeout,
		MaxRetries: d.Config.Gemini.MaxRetries,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.Gemini = client

	fileStorage, err := storage.New(ctx, storage.Config{
		Type:       storage.StorageType(d.Config.Storage.Backend),
		LocalPath:  d.Config.Storage.LocalPath,
		S3Bucket:   d.Config.Storage.S3Bucket,
		S3Region:   d.Config.Storage.S3Region,
		S3Endpoint: d.Config.Storage.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.AnalysisService = service.NewAnalysisService(d.AnalysisRepo, d.Gemini, d.Logger).
		WithStorage(d.FileStorage).
		WithMetrics(d.Metrics).
		WithMaxPromptRows(d.Config.Analysis.MaxPromptRows)

	// Live spreadsheet feed and its scheduled refresh
	if d.Config.Sheets.Enabled() {
		session, err := newSheetsSession(ctx, d.Config.Sheets, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to init sheets session: %w", err)
		}
		d.SheetsSession = session
		d.AnalysisService.WithSheets(session)
		d.Scheduler = cron.NewScheduler(d.AnalysisService, d.Config.Sheets.RefreshSpec, d.Logger)
	} else {
		d.Logger.Warn("no sheets credentials set, spreadsheet analyses are disabled")
	}

	d.Logger.Info("services initialized",
		slog.String("storage", d.Config.Storage.Backend),
		slog.Bool("sheets", d.SheetsSession != nil),
	)
	return nil
}

func newSheetsSession(ctx context.Context, cfg config.SheetsConfig, logger *slog.Logger) (*sheets.Session, error) {
	if cfg.CredentialsJSON != "" {
		return sheets.NewSessionFromJSON(ctx, []byte(cfg.CredentialsJSON), logger)
	}
	return sheets.NewSession(ctx, cfg.CredentialsFile, logger)
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.AnalysisHandler = handler.NewAnalysisHandler(d.AnalysisService, d.Logger).
		WithStorage(d.FileStorage).
		WithMetrics(d.Metrics).
		WithRateLimit(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst).
		WithMaxUploadBytes(d.Config.Analysis.MaxUploadBytes)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.SheetsSession != nil {
		if err := d.SheetsSession.Close(); err != nil {
			d.Logger.Warn("failed to close sheets session", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
