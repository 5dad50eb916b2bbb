package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/statute-rag/internal/config"
	"github.com/kirillkom/statute-rag/internal/core/ports"
	"github.com/kirillkom/statute-rag/internal/core/usecase"
	badgercache "github.com/kirillkom/statute-rag/internal/infrastructure/cache/badger"
	"github.com/kirillkom/statute-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/statute-rag/internal/infrastructure/citation"
	"github.com/kirillkom/statute-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/statute-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/statute-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/statute-rag/internal/infrastructure/history/sqlite"
	"github.com/kirillkom/statute-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/statute-rag/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/statute-rag/internal/infrastructure/memstore"
	"github.com/kirillkom/statute-rag/internal/infrastructure/nlp"
	"github.com/kirillkom/statute-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/statute-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/statute-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/statute-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/statute-rag/internal/infrastructure/vector/qdrant"
)

// Profile picks the collaborator policy for a binary.
type Profile int

const (
	// ProfileServing answers queries: collaborators get a single attempt so a
	// failing signal degrades instead of stalling the request.
	ProfileServing Profile = iota
	// ProfileIndexing builds the corpus: collaborators retry with backoff.
	ProfileIndexing
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Corpus  *memstore.Holder
	Chunks  ports.ChunkRepository
	Sources ports.SourceRepository
	Queue   ports.MessageQueue
	History ports.InteractionLog

	Ingest   *usecase.CorpusIngestUseCase
	Builder  *usecase.BuildIndexUseCase
	Answerer *usecase.AnswerUseCase
	Feedback *usecase.FeedbackUseCase

	closers []func()
}

type options struct {
	profile        Profile
	logger         *slog.Logger
	retrieval      ports.RetrievalObserver
	build          ports.BuildObserver
	breakers       resilience.StateListener
	withoutQueue   bool
	withoutHistory bool
}

type Option func(*options)

func WithProfile(p Profile) Option {
	return func(o *options) { o.profile = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithRetrievalObserver(observer ports.RetrievalObserver) Option {
	return func(o *options) { o.retrieval = observer }
}

func WithBuildObserver(observer ports.BuildObserver) Option {
	return func(o *options) { o.build = observer }
}

func WithBreakerListener(listener resilience.StateListener) Option {
	return func(o *options) { o.breakers = listener }
}

// WithoutQueue skips the NATS connection; uploads then fail with a temporary
// error and builds do not announce rebuilt corpora.
func WithoutQueue() Option {
	return func(o *options) { o.withoutQueue = true }
}

func WithoutHistory() Option {
	return func(o *options) { o.withoutHistory = true }
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	app := &App{Config: cfg, Logger: o.logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	sources := postgres.NewSourceRepository(db)
	chunks := postgres.NewChunkRepository(db)
	app.Sources = sources
	app.Chunks = chunks

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := newExecutor(cfg, o)

	var queue *nats.Queue
	if !o.withoutQueue {
		queue, err = nats.New(cfg.NATSURL, nats.Options{
			BuildSubject:       cfg.NATSBuildSubject,
			RebuiltSubject:     cfg.NATSRebuiltSubject,
			ResilienceExecutor: executor,
			Logger:             o.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithExecutor(executor),
		ollama.WithTimeout(cfg.OllamaTimeout),
	)

	embedder, err := app.newEmbedder(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(cfg, ollamaClient)
	if err != nil {
		return nil, err
	}

	var entities ports.EntityExtractor = nlp.NewHeuristicExtractor()
	if cfg.EntityBackend == "ollama" {
		entities = nlp.NewFallbackExtractor(ollama.NewEntityExtractor(ollamaClient), entities, o.logger)
	}

	holderOpts := []memstore.Option{memstore.WithMetric(memstore.Metric(cfg.SimilarityMetric))}
	buildOpts := []usecase.BuildOption{usecase.WithBuildLogger(o.logger)}
	if cfg.DenseBackend == "qdrant" {
		vectors := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
			qdrant.WithDistance(cfg.SimilarityMetric),
			qdrant.WithExecutor(executor),
		)
		holderOpts = append(holderOpts, memstore.WithDenseIndex(vectors))
		buildOpts = append(buildOpts, usecase.WithDenseIndexWriter(vectors))
	}
	if queue != nil {
		buildOpts = append(buildOpts, usecase.WithRebuildNotifier(queue))
	}
	if o.build != nil {
		buildOpts = append(buildOpts, usecase.WithBuildObserver(o.build))
	}
	app.Corpus = memstore.NewHolder(holderOpts...)

	if !o.withoutHistory {
		history, err := app.newHistory(cfg, db)
		if err != nil {
			return nil, err
		}
		app.History = history
	}

	var queuePort ports.MessageQueue
	if queue != nil {
		queuePort = queue
	}
	app.Ingest = usecase.NewCorpusIngestUseCase(sources, storage, queuePort)

	app.Builder = usecase.NewBuildIndexUseCase(
		sources,
		extractor.NewRouter(pdf.NewExtractor(storage), plaintext.NewExtractor(storage)),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinSize),
		nlp.NewMetadataExtractor(),
		embedder,
		chunks,
		usecase.BuildConfig{EmbedBatchSize: cfg.EmbedBatchSize, Workers: cfg.BuildWorkers},
		buildOpts...,
	)

	retrieverOpts := []usecase.RetrieverOption{usecase.WithRetrieverLogger(o.logger)}
	if o.retrieval != nil {
		retrieverOpts = append(retrieverOpts, usecase.WithRetrievalObserver(o.retrieval))
	}
	retriever := usecase.NewHybridRetriever(embedder, app.Corpus, RetrievalConfig(cfg), retrieverOpts...)

	answerOpts := []usecase.AnswerOption{usecase.WithAnswerLogger(o.logger)}
	if app.History != nil {
		answerOpts = append(answerOpts, usecase.WithInteractionLog(app.History))
	}
	app.Answerer = usecase.NewAnswerUseCase(
		usecase.NewQueryUnderstander(entities, cfg.MaxExpansions, o.logger),
		retriever,
		generator,
		citation.NewFormatter(),
		answerOpts...,
	)
	if app.History != nil {
		app.Feedback = usecase.NewFeedbackUseCase(app.History)
	}

	return app, nil
}

// RetrievalConfig projects the retrieval knobs. The retriever copies the
// value at construction.
func RetrievalConfig(cfg config.Config) usecase.RetrievalConfig {
	return usecase.RetrievalConfig{
		RRFConstant:      cfg.RRFConstant,
		DenseCandidates:  cfg.DenseCandidates,
		SparseCandidates: cfg.SparseCandidates,
	}
}

func newExecutor(cfg config.Config, o options) *resilience.Executor {
	policy := resilience.DefaultPolicy()
	policy.BreakerEnabled = cfg.BreakerEnabled
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	if o.profile == ProfileServing {
		policy = policy.ForServing()
	}

	execOpts := []resilience.Option{resilience.WithLogger(o.logger)}
	if o.breakers != nil {
		execOpts = append(execOpts, resilience.WithStateListener(o.breakers))
	}
	return resilience.NewExecutor(policy, execOpts...)
}

func (a *App) newEmbedder(cfg config.Config, client *ollama.Client) (ports.Embedder, error) {
	var (
		inner ports.Embedder
		model string
	)
	switch cfg.EmbedBackend {
	case "none":
		return nil, nil
	case "openaicompat":
		e, err := openaicompat.NewEmbedder(openAIConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("init openai-compatible embedder: %w", err)
		}
		inner, model = e, cfg.OpenAICompatEmbedModel
	default:
		inner, model = ollama.NewEmbedder(client), cfg.OllamaEmbedModel
	}

	if cfg.EmbedCacheDir == "off" {
		return inner, nil
	}
	cache, err := badgercache.Open(cfg.EmbedCacheDir, inner, cfg.EmbedBackend+"/"+model, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	a.closers = append(a.closers, func() { _ = cache.Close() })
	return cache, nil
}

func newGenerator(cfg config.Config, client *ollama.Client) (ports.AnswerGenerator, error) {
	if cfg.GenBackend == "openaicompat" {
		g, err := openaicompat.NewGenerator(openAIConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("init openai-compatible generator: %w", err)
		}
		return g, nil
	}
	return ollama.NewGenerator(client), nil
}

func openAIConfig(cfg config.Config) openaicompat.Config {
	return openaicompat.Config{
		BaseURL:        cfg.OpenAICompatBaseURL,
		APIKey:         cfg.OpenAICompatAPIKey,
		ChatModel:      cfg.OpenAICompatChatModel,
		EmbeddingModel: cfg.OpenAICompatEmbedModel,
		Temperature:    cfg.OpenAICompatTemperature,
		MaxTokens:      cfg.OpenAICompatMaxTokens,
	}
}

func (a *App) newHistory(cfg config.Config, db *sql.DB) (ports.InteractionLog, error) {
	switch cfg.HistoryBackend {
	case "none":
		return nil, nil
	case "postgres":
		return postgres.NewInteractionRepository(db), nil
	default:
		store, err := sqlite.Open(cfg.HistorySQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	}
}

// ReloadCorpus swaps in the persisted corpus. An empty corpus is not an
// error; queries answer EmptyIndex until a build lands.
func (a *App) ReloadCorpus(ctx context.Context) error {
	n, err := a.Corpus.Reload(ctx, a.Chunks)
	if err != nil {
		return err
	}
	status := a.Corpus.Status(ctx)
	a.Logger.Info("corpus_loaded",
		"chunks", n,
		"dimension", status.Dimension,
		"lexical_terms", status.LexicalTerms,
	)
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
