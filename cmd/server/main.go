package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/graphmill/graphmill/internal/queue"
	"github.com/graphmill/graphmill/internal/server"
	mid "github.com/graphmill/graphmill/internal/server/middleware"
	"github.com/graphmill/graphmill/internal/util"
	"github.com/graphmill/graphmill/pkg/ai"
	oai "github.com/graphmill/graphmill/pkg/ai/ollama"
	gai "github.com/graphmill/graphmill/pkg/ai/openai"
	"github.com/graphmill/graphmill/pkg/extract"
	"github.com/graphmill/graphmill/pkg/gate"
	"github.com/graphmill/graphmill/pkg/logger"
	"github.com/graphmill/graphmill/pkg/logger/console"
	"github.com/graphmill/graphmill/pkg/preprocess"
	"github.com/graphmill/graphmill/pkg/provider"
	"github.com/graphmill/graphmill/pkg/store"
	pgxstore "github.com/graphmill/graphmill/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	registry := provider.NewRegistry(provider.DefaultSpecs()...)

	// Providers without credentials stay out of the backend map; the
	// dispatcher skips them instead of failing them.
	backends := map[string]ai.Backend{}
	if apiKey := util.GetEnv("OPENAI_API_KEY"); apiKey != "" {
		spec, _ := registry.Lookup("openai")
		backends["openai"] = gai.NewBackend(gai.NewBackendParams{
			Model:   util.GetEnvString("OPENAI_MODEL", spec.Model),
			BaseURL: util.GetEnv("OPENAI_BASE_URL"),
			APIKey:  apiKey,
		})
	}
	if baseURL := util.GetEnv("OLLAMA_URL"); baseURL != "" {
		spec, _ := registry.Lookup("ollama")
		backend, err := oai.NewBackend(oai.NewBackendParams{
			Model:   util.GetEnvString("OLLAMA_MODEL", spec.Model),
			BaseURL: baseURL,
			APIKey:  util.GetEnv("OLLAMA_API_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama backend", "err", err)
		}
		backends["ollama"] = backend
	}
	if len(backends) == 0 {
		logger.Warn("No provider credentials configured, every job will fail")
	}

	dailyCostLimit := util.GetEnvNumeric("DAILY_COST_LIMIT", 10)
	governor := provider.NewGovernor(provider.NewGovernorParams{
		DailyCostLimit: dailyCostLimit,
	})

	client := provider.NewClient(provider.NewClientParams{
		Registry: registry,
		Governor: governor,
		Backends: backends,
	})
	dispatcher := provider.NewDispatcher(provider.NewDispatcherParams{
		Client: client,
	})

	// Chunk budget leaves headroom below the smallest configured context.
	chunkBudget := 0
	estimatorSpec := provider.Spec{CharsPerToken: 4}
	for _, id := range registry.Priority() {
		spec, err := registry.Lookup(id)
		if err != nil {
			continue
		}
		budget := int(0.8 * float64(spec.MaxTokens))
		if chunkBudget == 0 || budget < chunkBudget {
			chunkBudget = budget
			estimatorSpec = spec
		}
	}

	estimator := preprocess.NewEstimator(preprocess.NewEstimatorParams{
		CharsPerToken: estimatorSpec.CharsPerToken,
		Encoding:      estimatorSpec.Encoding,
	})

	extractor := extract.NewExtractor(extract.NewExtractorParams{
		Dispatcher:            dispatcher,
		Estimator:             estimator,
		MaxTokensPerChunk:     chunkBudget,
		ConfidenceThreshold:   util.GetEnvNumeric("CONFIDENCE_THRESHOLD", 0),
		RelationshipThreshold: util.GetEnvNumeric("RELATIONSHIP_THRESHOLD", 0),
		MaxChunks:             util.GetEnvInt("MAX_CHUNKS", 0),
	})

	contentGate := gate.NewGate(gate.NewGateParams{
		Enabled:        util.GetEnvBool("PROCESSING_ENABLED", true),
		MinLength:      util.GetEnvInt("MIN_CONTENT_LENGTH", 0),
		MaxLength:      util.GetEnvInt("MAX_CONTENT_LENGTH", 0),
		MinWords:       util.GetEnvInt("MIN_CONTENT_WORDS", 0),
		DailyCostLimit: dailyCostLimit,
	})

	var resultStore store.ResultStore
	if databaseURL := util.GetEnv("DATABASE_URL"); databaseURL != "" {
		pgConn, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()

		resultStore, err = pgxstore.NewResultStorage(ctx, pgConn)
		if err != nil {
			logger.Fatal("Unable to prepare result storage", "err", err)
		}
	} else {
		logger.Info("No DATABASE_URL configured, results are kept in memory")
		resultStore = store.NewMemoryStore()
	}

	jobQueue := queue.NewQueue(queue.NewQueueParams{
		Gate:      contentGate,
		Processor: extractor,
		Store:     resultStore,
		Governor:  governor,
		Backends:  backends,
	})

	srv := server.NewServer(server.NewServerParams{
		App: &mid.App{
			Queue:    jobQueue,
			Governor: governor,
			Store:    resultStore,
		},
		Port: util.GetEnvString("PORT", "8080"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobQueue.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal("Shutdown with error", "err", err)
	}
	logger.Info("Shutdown complete")
}
