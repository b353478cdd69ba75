package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/handlers"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/queue"
	"github.com/ternarybob/scrutor/internal/services/analysis"
	"github.com/ternarybob/scrutor/internal/services/auth"
	"github.com/ternarybob/scrutor/internal/services/events"
	"github.com/ternarybob/scrutor/internal/services/llm"
	"github.com/ternarybob/scrutor/internal/services/orchestrator"
	"github.com/ternarybob/scrutor/internal/services/provider"
	"github.com/ternarybob/scrutor/internal/services/scheduler"
	"github.com/ternarybob/scrutor/internal/services/webhook"
	badgerstorage "github.com/ternarybob/scrutor/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Core services
	EventService   interfaces.EventService
	AuthService    interfaces.AuthService
	LLMService     interfaces.LLMService
	ProviderClient interfaces.ProviderClient
	TaskQueue      interfaces.TaskQueue
	AnalysisWorker *analysis.Worker
	Orchestrator   *orchestrator.Orchestrator
	WebhookGateway *webhook.Gateway
	Dispatcher     *queue.Dispatcher
	Scheduler      *scheduler.Scheduler

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	AuthHandler    *handlers.AuthHandler
	JobHandler     *handlers.JobHandler
	WebhookHandler *handlers.WebhookHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	storageManager, err := badgerstorage.NewManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	app.EventService = events.NewService(logger)
	app.AuthService = auth.NewService(storageManager.Auth(), logger)

	llmService, err := llm.NewLLMService(cfg, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	app.LLMService = llmService

	app.ProviderClient = provider.NewClient(cfg, logger)
	app.TaskQueue = queue.NewTaskQueue(storageManager.Queue(), logger)

	app.AnalysisWorker = analysis.NewWorker(storageManager.Jobs(), llmService, app.EventService, logger)
	app.Orchestrator = orchestrator.New(storageManager.Jobs(), app.ProviderClient, app.TaskQueue, app.EventService, logger)
	app.WebhookGateway = webhook.NewGateway(storageManager.Jobs(), app.TaskQueue, cfg.BrightData.WebhookSecret, logger)
	app.Scheduler = scheduler.New(storageManager.Jobs(), app.TaskQueue, cfg, logger)

	app.Dispatcher = queue.NewDispatcher(storageManager.Queue(), cfg.GetPollInterval(), cfg.Queue.Concurrency, logger)
	app.registerTasks()

	app.initHandlers()

	return app, nil
}

// registerTasks binds queue task names to their workers.
func (a *App) registerTasks() {
	a.Dispatcher.Register(queue.TaskAnalyzeJob, func(ctx context.Context, payload string) error {
		decoded, err := queue.DecodePayload(payload)
		if err != nil {
			return err
		}
		jobID := decoded["job_id"]
		if jobID == "" {
			return fmt.Errorf("analyze task without job_id")
		}
		return a.AnalysisWorker.Analyze(ctx, jobID)
	})

	// A dead-lettered analysis task means the job will never finish on its
	// own; surface that to the owner.
	a.Dispatcher.RegisterDeadHandler(queue.TaskAnalyzeJob, func(ctx context.Context, payload string) error {
		decoded, err := queue.DecodePayload(payload)
		if err != nil {
			return err
		}
		jobID := decoded["job_id"]
		if jobID == "" {
			return nil
		}

		job, err := a.StorageManager.Jobs().GetJob(ctx, jobID)
		if err != nil {
			return err
		}

		errMsg := "analysis task exhausted its retries"
		if err := a.StorageManager.Jobs().MarkFailed(ctx, jobID, errMsg); err != nil {
			return err
		}
		a.EventService.Publish(models.JobStatusEvent{
			JobID:     jobID,
			UserID:    job.UserID,
			Status:    models.JobStatusFailed,
			Message:   errMsg,
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.AuthHandler = handlers.NewAuthHandler(a.AuthService, a.Config.Auth.AdminSecret, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.Orchestrator, a.StorageManager.Jobs(), a.Logger)
	a.WebhookHandler = handlers.NewWebhookHandler(a.WebhookGateway, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.AuthService, a.StorageManager.Jobs(), a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start launches the background workers
func (a *App) Start() error {
	if err := a.Dispatcher.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	a.Logger.Info().Int("concurrency", a.Config.Queue.Concurrency).Msg("Queue dispatcher started")

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Close shuts down all application components
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
		a.Logger.Info().Msg("Queue dispatcher stopped")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
