// Package app wires configuration, storage and services into the shared core
// used by cmd/rollup-server and cmd/rollup.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/services/jobmanager"
	"github.com/bobmcallan/rollup/internal/services/ownership"
	"github.com/bobmcallan/rollup/internal/services/performance"
	"github.com/bobmcallan/rollup/internal/services/position"
	"github.com/bobmcallan/rollup/internal/services/report"
	"github.com/bobmcallan/rollup/internal/services/rollup"
	"github.com/bobmcallan/rollup/internal/storage"
	"github.com/bobmcallan/rollup/internal/valuecipher"
)

// App holds all initialized services.
type App struct {
	Config             *common.Config
	Logger             *common.Logger
	Storage            interfaces.StorageManager
	Cipher             interfaces.ValueCipher
	OwnershipService   interfaces.OwnershipService
	PositionService    interfaces.PositionService
	RollupService      interfaces.RollupService
	PerformanceService interfaces.PerformanceService
	ReportService      interfaces.ReportService
	JobManager         *jobmanager.JobManager
	StartupTime        time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath picks the config file: the explicit path, ROLLUP_CONFIG,
// rollup.toml next to the binary, then config/rollup.toml for development.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("ROLLUP_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "rollup.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/rollup.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and initializes every service.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(getBinaryDir(), config.Logging.FilePath)
	}

	return NewFromConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewFromConfig initializes every service from an already loaded config.
func NewFromConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	cipher, err := valuecipher.New(config.Security)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize value cipher: %w", err)
	}

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ownershipService := ownership.NewService(storageManager, logger)
	positionService := position.NewService(storageManager, cipher, logger)
	rollupService := rollup.NewService(storageManager, cipher, logger)
	performanceService := performance.NewService(storageManager, rollupService, logger)
	reportService := report.NewService(ownershipService, rollupService, performanceService, config.Reports.GetTimeout(), logger)
	jobManager := jobmanager.NewJobManager(storageManager, logger, config.Jobs)

	a := &App{
		Config:             config,
		Logger:             logger,
		Storage:            storageManager,
		Cipher:             cipher,
		OwnershipService:   ownershipService,
		PositionService:    positionService,
		RollupService:      rollupService,
		PerformanceService: performanceService,
		ReportService:      reportService,
		JobManager:         jobManager,
		StartupTime:        startupStart,
	}

	logger.Info().
		Str("backend", config.Storage.Backend).
		Str("value_cipher", config.Security.ValueCipher).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// StartJobs starts the ingestion job manager.
func (a *App) StartJobs() {
	a.JobManager.Start()
}

// Close releases all resources held by the App.
// Shutdown order: stop the job manager, then close storage.
func (a *App) Close() {
	if a.JobManager != nil {
		a.JobManager.Stop()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.Storage = nil
	}
}
