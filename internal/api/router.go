package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/tenet/internal/api/handlers"
	mw "github.com/Harshitk-cp/tenet/internal/api/middleware"
	"github.com/Harshitk-cp/tenet/internal/buildconfig"
	"github.com/Harshitk-cp/tenet/internal/capability"
	"github.com/Harshitk-cp/tenet/internal/config"
	"github.com/Harshitk-cp/tenet/internal/domain"
	"github.com/Harshitk-cp/tenet/internal/embedding"
	"github.com/Harshitk-cp/tenet/internal/llm"
	"github.com/Harshitk-cp/tenet/internal/metrics"
	"github.com/Harshitk-cp/tenet/internal/service"
	"github.com/Harshitk-cp/tenet/internal/store"
	"github.com/Harshitk-cp/tenet/internal/store/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// Stores is the storage backend the engine runs on.
type Stores struct {
	Tenants domain.TenantStore
	Beliefs domain.BeliefStore
	Facts   domain.FactStore
	Records domain.MemoryRecordStore
	// Ping reports backend health. Nil means the backend is in-process.
	Ping func(ctx context.Context) error
}

// MemoryStores returns an in-process backend.
func MemoryStores() Stores {
	return Stores{
		Tenants: memstore.NewTenantStore(),
		Beliefs: memstore.NewBeliefStore(),
		Facts:   memstore.NewFactStore(),
		Records: memstore.NewMemoryRecordStore(),
	}
}

// App holds the router and background workers for lifecycle management.
type App struct {
	Router  *chi.Mux
	Updates *service.UpdateQueue
	Tasks   *service.TaskService
	Inbox   *service.EscalationQueue

	stores    Stores
	sweeper   *service.RetentionSweeper
	startTime time.Time
	counters  mw.RequestCounters
	stopCh    chan struct{}
}

func NewApp(stores Stores, policy *config.Policy, logger *zap.Logger) (*App, error) {
	settings, err := loadEngineSettings(policy)
	if err != nil {
		return nil, err
	}
	collector := metrics.NewPrometheusCollector()

	// External clients via provider factory
	var appraiser domain.Appraiser
	llmProvider := config.LLMProvider()
	if client, err := llm.NewClient(llmProvider, config.LLMAPIKey()); err != nil {
		logger.Warn("appraisal client initialization failed, decisions fall back to caller keys",
			zap.String("provider", llmProvider), zap.Error(err))
	} else {
		appraiser = llm.NewTimeoutAppraiser(client, config.LLMTimeout(), config.LLMMaxRetries(), logger)
		logger.Info("appraisal client initialized", zap.String("provider", llmProvider))
	}

	var embedder domain.EmbeddingClient
	embeddingProvider := config.EmbeddingProvider()
	if client, err := embedding.NewClient(embeddingProvider, config.EmbeddingAPIKey()); err != nil {
		logger.Warn("embedding client initialization failed, memory recall disabled",
			zap.String("provider", embeddingProvider), zap.Error(err))
	} else {
		embedder = client
		logger.Info("embedding client initialized", zap.String("provider", embeddingProvider))
	}

	var executor domain.CapabilityExecutor
	if url := config.CapabilityURL(); url != "" {
		executor = capability.NewHTTPClient(url, config.CapabilityAPIKey(), config.CapabilityTimeout())
	} else {
		logger.Warn("CAPABILITY_URL not set, using the mock capability executor")
		executor = capability.NewMockExecutor()
	}

	// Engine
	engine := service.NewUpdateEngine(stores.Beliefs, settings.update, collector, logger)
	updates := service.NewUpdateQueue(engine, config.UpdateShards(), config.UpdateQueueSize(), logger)
	classifier, err := service.NewAutonomyClassifier(settings.thresholds, settings.perCategory)
	if err != nil {
		return nil, err
	}
	resolver := service.NewScopeResolver(stores.Beliefs, stores.Facts, logger)
	inbox := service.NewEscalationQueue(config.EscalationInboxSize(), logger)
	sink := service.MultiSink{service.NewLogEscalationSink(logger), inbox}
	machine := service.NewVerificationMachine(settings.verification, sink, collector, logger)
	recorder := service.NewFeedbackRecorder(stores.Records, updates, embedder, service.DefaultPeakEndConfig(), logger)

	beliefSvc := service.NewBeliefService(stores.Beliefs, logger)
	factSvc := service.NewFactService(stores.Facts, logger)
	autonomySvc := service.NewAutonomyService(resolver, classifier, appraiser, collector, logger)
	taskSvc := service.NewTaskService(executor, machine, recorder, logger)

	// Handlers
	tenantHandler := handlers.NewTenantHandler(stores.Tenants)
	beliefHandler := handlers.NewBeliefHandler(beliefSvc, updates)
	factHandler := handlers.NewFactHandler(factSvc)
	contextHandler := handlers.NewContextHandler(resolver, autonomySvc)
	taskHandler := handlers.NewTaskHandler(taskSvc)
	escalationHandler := handlers.NewEscalationHandler(inbox)
	memoryHandler := handlers.NewMemoryHandler(recorder)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Updates:   updates,
		Tasks:     taskSvc,
		Inbox:     inbox,
		stores:    stores,
		startTime: time.Now(),
		stopCh:    make(chan struct{}),
	}
	if interval := config.MemorySweepInterval(); interval > 0 {
		app.sweeper = service.NewRetentionSweeper(stores.Records, service.RetentionConfig{
			Interval:  interval,
			MaxAge:    config.MemoryRetentionAge(),
			MinWeight: config.MemoryMinRetention(),
		}, logger)
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.counters.Count)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst(), app.stopCh))

	// Unauthenticated
	r.Get("/health", app.healthHandler())
	r.Get("/stats", app.statsHandler())
	r.Method(http.MethodGet, "/metrics", collector.Handler())
	r.Post("/v1/tenants", tenantHandler.Create)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(stores.Tenants))

		r.Route("/beliefs", func(r chi.Router) {
			r.Post("/", beliefHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", beliefHandler.GetByID)
				r.Post("/supports", beliefHandler.AddSupport)
				r.Post("/outcome", beliefHandler.RecordOutcome)
			})
		})

		r.Route("/facts", func(r chi.Router) {
			r.Post("/", factHandler.Create)
			r.Get("/history", factHandler.History)
			r.Post("/context", contextHandler.Facts)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", factHandler.GetByID)
				r.Delete("/", factHandler.Delete)
				r.Post("/replace", factHandler.Replace)
				r.Get("/corrections", factHandler.Corrections)
			})
		})

		// Context resolution and autonomy
		r.Post("/resolve", contextHandler.Resolve)
		r.Post("/mount", contextHandler.Mount)
		r.Post("/classify", contextHandler.Classify)
		r.Post("/decide", contextHandler.Decide)

		r.Post("/tasks", taskHandler.Run)
		r.Post("/tasks/batch", taskHandler.RunBatch)

		r.Get("/escalations", escalationHandler.List)
		r.Post("/escalations/{id}/ack", escalationHandler.Ack)

		r.Get("/memories/recall", memoryHandler.Recall)
	})

	return app, nil
}

// Start launches the belief update workers and the memory retention sweeper.
func (app *App) Start() {
	app.Updates.Start()
	if app.sweeper != nil {
		app.sweeper.Start()
	}
}

// Stop drains pending belief updates and stops background sweeps.
func (app *App) Stop() {
	select {
	case <-app.stopCh:
	default:
		close(app.stopCh)
	}
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	app.Updates.Stop()
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.stores.Ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := app.stores.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildconfig.VersionInfo()})
	}
}

func (app *App) statsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		uptime := time.Since(app.startTime)

		writeJSON(w, http.StatusOK, map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests": map[string]int64{
				"total":         app.counters.Requests.Load(),
				"client_errors": app.counters.ClientErrors.Load(),
				"server_errors": app.counters.ServerErrors.Load(),
			},
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.TenantStore        = (*store.TenantStore)(nil)
	_ domain.BeliefStore        = (*store.BeliefStore)(nil)
	_ domain.FactStore          = (*store.FactStore)(nil)
	_ domain.MemoryRecordStore  = (*store.MemoryRecordStore)(nil)
	_ domain.TenantStore        = (*memstore.TenantStore)(nil)
	_ domain.BeliefStore        = (*memstore.BeliefStore)(nil)
	_ domain.FactStore          = (*memstore.FactStore)(nil)
	_ domain.MemoryRecordStore  = (*memstore.MemoryRecordStore)(nil)
	_ domain.EmbeddingClient    = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient    = (*embedding.MockClient)(nil)
	_ domain.Appraiser          = (*llm.OpenAIClient)(nil)
	_ domain.Appraiser          = (*llm.AnthropicClient)(nil)
	_ domain.Appraiser          = (*llm.MockClient)(nil)
	_ domain.Appraiser          = (*llm.TimeoutAppraiser)(nil)
	_ domain.CapabilityExecutor = (*capability.HTTPClient)(nil)
	_ domain.CapabilityExecutor = (*capability.MockExecutor)(nil)
)
