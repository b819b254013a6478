package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariahq/aria/internal/assistant"
	"github.com/ariahq/aria/internal/cache"
	"github.com/ariahq/aria/internal/catalog"
	"github.com/ariahq/aria/internal/config"
	"github.com/ariahq/aria/internal/knowledge"
	"github.com/ariahq/aria/internal/llm"
	"github.com/ariahq/aria/internal/llm/anthropic"
	"github.com/ariahq/aria/internal/llm/openai"
	"github.com/ariahq/aria/internal/observability"
	"github.com/ariahq/aria/internal/tools"
	knowledgetool "github.com/ariahq/aria/internal/tools/knowledge"
	mcptools "github.com/ariahq/aria/internal/tools/mcp"
	"github.com/ariahq/aria/internal/tools/music"
)

const systemPrompt = `You are Aria, the AI companion inside the Aria music app.
You help listeners find music, build playlists, and understand the product.
You never control playback directly: when the user asks you to play, queue,
or organize music, call the matching propose_* tool. The app shows the
proposal to the user, who confirms or dismisses it.

Use search_tracks and list_collections to look up real catalog entries before
proposing anything, and search_knowledge when asked how the product works.
Keep answers short and warm; this is a music app, not a terminal.`

// SharedComponents holds the initialized subsystems the gateway and the
// one-shot commands share. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config    *config.Config
	Logger    *slog.Logger
	Obs       *observability.Observability
	Selector  *llm.Selector
	Providers map[llm.ProviderID]llm.Provider
	Catalog   *catalog.Memory
	Knowledge *knowledge.Engine // nil when no corpus is configured
	Index     *knowledge.EmbeddingIndex
	Corpus    *knowledge.Corpus
	Registry  *tools.Registry
	Cache     *cache.ResponseCache // nil when caching is disabled
	Redis     *redis.Client        // nil when no Redis tier is configured
	Bridge    *mcptools.Bridge     // nil when local tools are inactive
	Assistant *assistant.Assistant

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// initShared performs the common initialization: observability, providers,
// catalog, knowledge, tools, cache, assistant. Callers must call
// sc.Cleanup() when done.
func initShared(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// Provider selector and clients.
	sc.Selector = llm.NewSelector(selectorConfig(cfg), logger)
	sc.Providers = buildProviders(cfg, sc.Selector, obs, logger)
	if len(sc.Providers) == 0 {
		// The gateway still starts; the first chat turn reports the missing
		// credential instead of the process refusing to boot.
		logger.Warn("no LLM provider configured, chat turns will fail until an API key is set")
	}
	logger.Debug("llm providers initialized", slog.Int("count", len(sc.Providers)))

	// Music catalog.
	if cfg.Catalog.Path != "" {
		cat, err := catalog.LoadMemory(cfg.Catalog.Path)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		sc.Catalog = cat
	} else {
		logger.Warn("no catalog path configured, music tools run on an empty catalog")
		sc.Catalog = catalog.NewMemory(nil, nil)
	}

	// Knowledge retrieval. Warm-up happens in the background after startup.
	if cfg.Knowledge.CorpusDir != "" {
		corpus, err := knowledge.LoadCorpus(cfg.Knowledge.CorpusDir, logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("loading knowledge corpus: %w", err)
		}
		sc.Corpus = corpus
		sc.Index = knowledge.NewEmbeddingIndex(
			embedderFor(sc.Providers),
			cfg.Knowledge.EmbeddingModel,
			cfg.Knowledge.EmbeddingCachePath,
			logger,
		)
		sc.Knowledge = knowledge.NewEngine(corpus, sc.Index, logger)
		logger.Debug("knowledge engine initialized", slog.Int("topics", corpus.Len()))
	}

	// Tools.
	sc.Registry = tools.NewRegistry()
	base := music.All(sc.Catalog, logger)
	if sc.Knowledge != nil {
		base = append(base, knowledgetool.New(sc.Knowledge))
	}
	if cfg.LocalToolsActive() && len(cfg.Tools.Local) > 0 {
		bridged, err := connectLocalTools(ctx, cfg, sc, logger)
		if err != nil {
			// Local tools are a development convenience; never fatal.
			logger.Warn("local tool discovery failed", slog.String("error", err.Error()))
		}
		base = append(base, bridged...)
	}
	registerTools(sc, base, cfg, logger)
	logger.Debug("tools registered", slog.Int("count", len(base)))

	// Response cache.
	if !cfg.Cache.Disabled {
		var backend cache.Backend
		if cfg.Cache.Redis != nil {
			sc.Redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			})
			sc.addCleanup(func() { _ = sc.Redis.Close() })
			backend = cache.NewRedisBackend(sc.Redis, logger)
		}
		sc.Cache = cache.NewResponseCache(cache.Options{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL(),
			Backend:    backend,
		}, logger)
	}

	// Assistant.
	prompt := cfg.Assistant.SystemPrompt
	if prompt == "" {
		prompt = systemPrompt
	}
	sc.Assistant = assistant.New(sc.Selector, sc.Providers, sc.Registry, sc.Cache, assistant.Options{
		SystemPrompt:       prompt,
		MaxIterations:      cfg.Assistant.MaxIterations,
		MaxHistoryMessages: cfg.Assistant.MaxHistoryMessages,
		MaxTokens:          cfg.Assistant.MaxTokens,
	}, logger)

	return sc, nil
}

// selectorConfig maps the application config onto the provider selector.
func selectorConfig(cfg *config.Config) llm.SelectorConfig {
	creds := make(map[llm.ProviderID]string)
	if cfg.Providers.Anthropic.APIKey != "" {
		creds[llm.ProviderAnthropic] = cfg.Providers.Anthropic.APIKey
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		creds[llm.ProviderOpenAI] = cfg.Providers.OpenAI.APIKey
	}
	if cfg.Providers.Groq.APIKey != "" {
		creds[llm.ProviderGroq] = cfg.Providers.Groq.APIKey
	}
	if cfg.Providers.Ollama.BaseURL != "" {
		creds[llm.ProviderOllama] = "local"
	}

	models := make(map[llm.ProviderID]string)
	for id, m := range map[llm.ProviderID]string{
		llm.ProviderAnthropic: cfg.Providers.Anthropic.Model,
		llm.ProviderOpenAI:    cfg.Providers.OpenAI.Model,
		llm.ProviderGroq:      cfg.Providers.Groq.Model,
		llm.ProviderOllama:    cfg.Providers.Ollama.Model,
	} {
		if m != "" {
			models[id] = m
		}
	}

	rates := make(map[string]llm.Rate, len(cfg.Rates))
	for id, r := range cfg.Rates {
		rates[id] = llm.Rate{InputPer1K: r.InputPer1K, OutputPer1K: r.OutputPer1K}
	}

	return llm.SelectorConfig{Credentials: creds, Models: models, RateOverrides: rates}
}

// buildProviders creates one client per configured backend. Groq and Ollama
// speak the OpenAI wire protocol, so they reuse that client with a different
// base URL.
func buildProviders(cfg *config.Config, sel *llm.Selector, obs *observability.Observability, logger *slog.Logger) map[llm.ProviderID]llm.Provider {
	providers := make(map[llm.ProviderID]llm.Provider)

	add := func(id llm.ProviderID, p llm.Provider) {
		if obs != nil && obs.Metrics != nil {
			p = observability.NewInstrumentedProvider(p, obs.Metrics, obs.TracerOrNil(), obs.Anomaly)
		}
		providers[id] = p
	}

	if cfg.Providers.Anthropic.APIKey != "" {
		opts := []anthropic.Option{}
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		add(llm.ProviderAnthropic, anthropic.NewClient(
			cfg.Providers.Anthropic.APIKey,
			sel.SelectModel(llm.ProviderAnthropic).Model,
			logger, opts...,
		))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		opts := []openai.Option{}
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		add(llm.ProviderOpenAI, openai.NewClient(
			cfg.Providers.OpenAI.APIKey,
			sel.SelectModel(llm.ProviderOpenAI).Model,
			logger, opts...,
		))
	}
	if cfg.Providers.Groq.APIKey != "" {
		add(llm.ProviderGroq, openai.NewClient(
			cfg.Providers.Groq.APIKey,
			sel.SelectModel(llm.ProviderGroq).Model,
			logger,
			openai.WithName("groq"),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
		))
	}
	if cfg.Providers.Ollama.BaseURL != "" {
		add(llm.ProviderOllama, openai.NewClient(
			"", // Ollama is keyless.
			sel.SelectModel(llm.ProviderOllama).Model,
			logger,
			openai.WithName("ollama"),
			openai.WithBaseURL(cfg.Providers.Ollama.BaseURL+"/v1"),
		))
	}

	return providers
}

// embedderFor returns the embeddings client. Only the OpenAI client exposes
// an embeddings endpoint; the instrumented wrapper is unwrapped because it
// only covers chat.
func embedderFor(providers map[llm.ProviderID]llm.Provider) llm.Embedder {
	p, ok := providers[llm.ProviderOpenAI]
	if !ok {
		return nil
	}
	if e, ok := p.(llm.Embedder); ok {
		return e
	}
	// Unwrap the instrumented provider.
	type unwrapper interface{ Unwrap() llm.Provider }
	if u, ok := p.(unwrapper); ok {
		if e, ok := u.Unwrap().(llm.Embedder); ok {
			return e
		}
	}
	return nil
}

// connectLocalTools dials the configured local tool servers and returns the
// discovered bridged tools.
func connectLocalTools(ctx context.Context, cfg *config.Config, sc *SharedComponents, logger *slog.Logger) ([]tools.Tool, error) {
	sc.Bridge = mcptools.NewBridge(logger)
	sc.addCleanup(sc.Bridge.Close)

	var all []tools.Tool
	for _, server := range cfg.Tools.Local {
		discovered, err := sc.Bridge.ConnectAndDiscover(ctx, server)
		if err != nil {
			return all, fmt.Errorf("connecting %s: %w", server.Name, err)
		}
		all = append(all, discovered...)
	}
	return all, nil
}

// registerTools wraps every tool with the execution guard, then the
// observability layer, and registers it.
func registerTools(sc *SharedComponents, base []tools.Tool, cfg *config.Config, logger *slog.Logger) {
	for _, t := range base {
		wt := tools.Wrap(t, cfg.Tools.MaxOutputBytes, cfg.Tools.Timeout(), logger)
		if sc.Obs != nil && sc.Obs.Metrics != nil {
			wt = observability.NewInstrumentedTool(wt, sc.Obs.Metrics, sc.Obs.TracerOrNil(), sc.Obs.Anomaly)
		}
		sc.Registry.Register(wt)
	}
}
