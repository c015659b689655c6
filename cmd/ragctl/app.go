package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	rds "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/samzhu/ragkit/chat"
	"github.com/samzhu/ragkit/internal/config"
	"github.com/samzhu/ragkit/llm"
	"github.com/samzhu/ragkit/llm/anthropic"
	"github.com/samzhu/ragkit/llm/hashing"
	"github.com/samzhu/ragkit/llm/openai"
	"github.com/samzhu/ragkit/memory"
	"github.com/samzhu/ragkit/memory/inmemory"
	"github.com/samzhu/ragkit/memory/redis"
	"github.com/samzhu/ragkit/memory/vector/pgvector"
	"github.com/samzhu/ragkit/memory/vector/qdrant"
	"github.com/samzhu/ragkit/memory/vector/snapshot"
	obs "github.com/samzhu/ragkit/observability"
	otelobs "github.com/samzhu/ragkit/observability/otel"
	"github.com/samzhu/ragkit/observability/prom"
	"github.com/samzhu/ragkit/rag"
	"github.com/samzhu/ragkit/tools"
)

// app holds the wired components and the cleanups that release them.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *rag.Pipeline
	chat     *chat.Client
	registry *tools.DefaultRegistry
	sessions memory.ConversationStore
	metrics  http.Handler

	closers []func(context.Context) error
}

// buildApp wires every component selected by cfg. withChat is false for
// commands that never call a chat model, so they run without an API key.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withChat bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			_ = a.close(context.Background())
		}
	}()

	if err := a.setupTelemetry(ctx); err != nil {
		return nil, err
	}

	var rdb rds.UniversalClient
	if cfg.Session.Backend == config.BackendRedis {
		rdb = rds.NewUniversalClient(&rds.UniversalOptions{
			Addrs:    []string{cfg.Session.RedisAddr},
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		a.onClose(func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	embedder, err := a.newEmbedder(rdb)
	if err != nil {
		return nil, err
	}
	store, err := a.newVectorStore(ctx)
	if err != nil {
		return nil, err
	}
	splitter, err := rag.NewTokenTextSplitter(cfg.Splitter)
	if err != nil {
		return nil, err
	}

	opts := []rag.Option{
		rag.WithBatchSize(cfg.Embedding.BatchSize),
		rag.WithLogger(logger),
	}
	if withChat {
		if a.chat, err = a.newChat(); err != nil {
			return nil, err
		}
		opts = append(opts, rag.WithChat(a.chat))
	}
	a.pipeline = rag.NewPipeline(splitter, embedder, store, opts...)

	if rdb != nil {
		a.sessions = redis.NewConversationStore(rdb, cfg.Session.Prefix+"session:", cfg.Session.TTL).
			WithMaxMessages(cfg.Session.Limit)
	} else {
		a.sessions = inmemory.NewConversationStore(cfg.Session.Limit)
	}
	ready = true
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs the cleanups in reverse order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) setupTelemetry(ctx context.Context) error {
	exporter := prom.New()
	obs.SetMetrics(exporter)
	a.metrics = prom.Handler(exporter)

	t := a.cfg.Telemetry
	if !t.Enabled {
		return nil
	}
	tp, err := otelobs.NewProvider(ctx, otelobs.ProviderConfig{
		Endpoint:       t.Endpoint,
		Insecure:       t.Insecure,
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		SampleRate:     t.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	obs.SetTracer(otelobs.NewTracer(t.ServiceName, tp))
	a.onClose(tp.Shutdown)
	a.logger.Info("tracing enabled", zap.String("endpoint", t.Endpoint))
	return nil
}

func (a *app) newEmbedder(rdb rds.UniversalClient) (llm.Embedder, error) {
	ec := a.cfg.Embedding
	var (
		inner    llm.Embedder
		provider llm.Provider
		model    = ec.Model
	)
	switch ec.Provider {
	case config.ProviderHashing:
		inner, provider, model = hashing.New(ec.Dimensions), llm.ProviderLocal, llm.ModelHashing
	default:
		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			Config: openai.Config{
				APIKey:      ec.APIKey,
				Model:       ec.Model,
				BaseURL:     ec.BaseURL,
				Timeout:     a.cfg.LLM.Timeout,
				RetryConfig: a.cfg.LLM.Retry,
				Logger:      a.logger,
			},
			Dimensions: ec.Dimensions,
			BatchSize:  ec.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		inner, provider = e, llm.ProviderOpenAI
	}

	if ec.RateLimit > 0 {
		inner = llm.NewRateLimitedEmbedder(inner, ec.RateLimit, ec.Burst)
	}
	if ec.Cache {
		var kv memory.Store
		if rdb != nil {
			kv = redis.NewStore(rdb, a.cfg.Session.TTL, a.cfg.Session.Prefix+"embedding:")
		} else {
			kv = inmemory.NewStore()
		}
		inner = llm.NewCachedEmbedder(inner, kv, model, a.logger)
	}
	return llm.NewInstrumentedEmbedder(inner, provider, model), nil
}

func (a *app) newVectorStore(ctx context.Context) (memory.VectorStore, error) {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.BackendPGVector:
		pool, err := pgxpool.New(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		a.onClose(func(context.Context) error { pool.Close(); return nil })
		store := pgvector.New(pool, sc.Table)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		return store, nil

	case config.BackendQdrant:
		store, err := qdrant.Dial(qdrant.Config{
			Host:       sc.QdrantHost,
			Port:       sc.QdrantPort,
			APIKey:     sc.QdrantKey,
			UseTLS:     sc.QdrantTLS,
			Collection: sc.Collection,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	}

	store := inmemory.NewVectorStore()
	if sc.Snapshot == "" {
		return store, nil
	}
	n, err := snapshot.Restore(ctx, sc.Snapshot, store)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	a.logger.Info("restored snapshot", zap.String("path", sc.Snapshot), zap.Int("entries", n))
	a.onClose(func(context.Context) error {
		n, err := snapshot.SaveStore(sc.Snapshot, store)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		a.logger.Info("saved snapshot", zap.String("path", sc.Snapshot), zap.Int("entries", n))
		return nil
	})
	return store, nil
}

// newChat builds the configured provider as the default route. When the
// other provider's API key is in the environment it is routed to by model
// name, so a request may pick e.g. a Claude model on an OpenAI setup.
func (a *app) newChat() (*chat.Client, error) {
	lc := a.cfg.LLM
	primary, err := a.newModel(lc.Provider, lc.APIKey, lc.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	policy := llm.StaticPolicy{
		Default:    primary,
		ByProvider: map[llm.Provider]llm.Client{llm.Provider(lc.Provider): primary},
	}
	for provider, env := range providerKeyEnv {
		key := os.Getenv(env)
		if provider == lc.Provider || key == "" {
			continue
		}
		c, err := a.newModel(provider, key, "")
		if err != nil {
			return nil, fmt.Errorf("llm %s: %w", provider, err)
		}
		policy.ByProvider[llm.Provider(provider)] = c
	}
	model := primary
	if len(policy.ByProvider) > 1 {
		model = llm.NewRouterClient(policy)
	}

	a.registry, err = tools.NewRegistry(tools.NewWeatherTool(), tools.NewCalculatorTool())
	if err != nil {
		return nil, err
	}

	opts := []chat.Option{
		chat.WithRegistry(a.registry),
		chat.WithAdvisors(chat.NewLoggingAdvisor(a.logger)),
		chat.WithDefaultSystem(a.cfg.Server.SystemPrompt),
		chat.WithLogger(a.logger),
	}
	if a.cfg.Session.Limit > 0 {
		opts = append(opts, chat.WithProcessors(chat.MessageWindow{Size: a.cfg.Session.Limit}))
	}
	return chat.New(llm.NewInstrumentedClient(model), opts...), nil
}

var providerKeyEnv = map[string]string{
	config.ProviderOpenAI:    "OPENAI_API_KEY",
	config.ProviderAnthropic: "ANTHROPIC_API_KEY",
}

func (a *app) newModel(provider, apiKey, model string) (llm.Client, error) {
	lc := a.cfg.LLM
	if provider == config.ProviderAnthropic {
		return anthropic.NewClient(anthropic.Config{
			APIKey:      apiKey,
			Model:       model,
			BaseURL:     baseURL(lc, provider),
			Temperature: lc.Temperature,
			MaxTokens:   lc.MaxTokens,
			Timeout:     lc.Timeout,
			RetryConfig: lc.Retry,
			Logger:      a.logger,
		})
	}
	return openai.NewClient(openai.Config{
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     baseURL(lc, provider),
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
		Timeout:     lc.Timeout,
		RetryConfig: lc.Retry,
		Logger:      a.logger,
	})
}

// baseURL applies llm.base_url to the configured provider only.
func baseURL(lc config.LLMConfig, provider string) string {
	if provider == lc.Provider {
		return lc.BaseURL
	}
	return ""
}
