package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/reelrec/reelrec/internal/catalog"
	"github.com/reelrec/reelrec/internal/common"
	"github.com/reelrec/reelrec/internal/directory"
	"github.com/reelrec/reelrec/internal/interfaces"
	"github.com/reelrec/reelrec/internal/mediaserver"
	"github.com/reelrec/reelrec/internal/services/history"
	"github.com/reelrec/reelrec/internal/services/llm"
	"github.com/reelrec/reelrec/internal/services/recommend"
	"github.com/reelrec/reelrec/internal/services/scheduler"
	"github.com/reelrec/reelrec/internal/services/taste"
	"github.com/reelrec/reelrec/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// AI backend
	AIProvider *llm.ProviderFactory

	// External collaborators
	Catalog     *catalog.Client
	Directory   *directory.Client
	MediaServer *mediaserver.Client

	// Pipeline services
	Aggregator     *history.Aggregator
	HistoryService *history.Service
	Synthesizer    *taste.Synthesizer
	Engine         *recommend.Engine
	Coordinator    *scheduler.Coordinator
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.AIProvider, err = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize AI provider: %w", err)
	}

	app.Catalog = catalog.NewClient(cfg.Catalog.APIKey,
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithImageBaseURL(cfg.Catalog.ImageBaseURL),
		catalog.WithRateLimit(cfg.Catalog.RateLimit),
		catalog.WithLogger(logger),
	)
	app.Directory = directory.NewClient(cfg.Directory.BaseURL,
		directory.WithHTTPClient(&http.Client{Timeout: common.Duration(cfg.Directory.Timeout)}),
		directory.WithLogger(logger),
	)
	app.MediaServer = mediaserver.NewClient(cfg.MediaServer.BaseURL,
		mediaserver.WithHTTPClient(&http.Client{Timeout: common.Duration(cfg.MediaServer.Timeout)}),
		mediaserver.WithLogger(logger),
	)

	app.Aggregator, err = history.NewAggregator(cfg.History.ItemsPerGroup, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize history aggregator: %w", err)
	}

	app.HistoryService = history.NewService(app.MediaServer, storageManager.ItemStorage(), logger)
	app.Synthesizer = taste.NewSynthesizer(app.AIProvider, storageManager.TasteStorage(), logger)
	app.Engine = recommend.NewEngine(
		app.AIProvider,
		app.Aggregator,
		app.Synthesizer,
		storageManager.ItemStorage(),
		storageManager.RecommendationStorage(),
		app.Catalog,
		&cfg.Recommend,
		logger,
	)
	app.Coordinator = scheduler.NewCoordinator(
		app.Directory,
		storageManager.ItemStorage(),
		app.HistoryService,
		app.Aggregator,
		app.Synthesizer,
		app.Engine,
		cfg,
		logger,
	)

	logger.Info().Msg("Application initialized")

	return app, nil
}

// Start begins user discovery and scheduled pipeline runs.
func (a *App) Start(ctx context.Context) error {
	return a.Coordinator.Start(ctx)
}

// Close releases all application resources in reverse initialization order.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}

	if a.AIProvider != nil {
		if err := a.AIProvider.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close AI provider")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
}
