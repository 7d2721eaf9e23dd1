package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/config"
	"github.com/sells-group/pql-agent/internal/evidence"
	"github.com/sells-group/pql-agent/internal/llm"
	"github.com/sells-group/pql-agent/internal/pipeline"
	"github.com/sells-group/pql-agent/internal/qualify"
	"github.com/sells-group/pql-agent/internal/recency"
	"github.com/sells-group/pql-agent/internal/scrape"
	"github.com/sells-group/pql-agent/internal/store"
	anthropicpkg "github.com/sells-group/pql-agent/pkg/anthropic"
	"github.com/sells-group/pql-agent/pkg/google"
)

// appEnv holds the initialized store, clients, and pipeline shared by the
// serve and qualify commands.
type appEnv struct {
	Store     store.Store
	Completer llm.Completer
	Gatherer  *evidence.Gatherer
	Pipeline  *pipeline.Pipeline

	browser *scrape.BrowserRenderer
	redis   *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp validates config for mode, opens and migrates the store, and
// builds the pipeline. Callers should defer env.Close().
func initApp(ctx context.Context, mode string, opts ...pipeline.Option) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &appEnv{}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env.Store = st

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	completer, err := initCompleter(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Completer = completer

	env.initGatherer(cfg)

	q := qualify.New(recency.New(completer), st, cfg.Qualification.Threshold)
	env.Pipeline = pipeline.New(q, env.Gatherer, completer, st, opts...)

	return env, nil
}

// initEvidenceOnly builds just the gatherer for the navigate and search
// commands, which need no store or LLM.
func initEvidenceOnly() *appEnv {
	env := &appEnv{}
	env.initGatherer(cfg)
	return env
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "pql.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	case "supabase":
		return store.NewSupabase(c.Supabase.URL, c.Supabase.ServiceRoleKey)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func initCompleter(ctx context.Context, c *config.Config) (llm.Completer, error) {
	switch c.LLM.Provider {
	case "anthropic":
		var opts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		opts = append(opts, anthropicpkg.WithMaxRetries(c.Anthropic.MaxRetries))
		client := anthropicpkg.New(c.Anthropic.Key, opts...)
		return llm.NewAnthropicCompleter(client, c.Anthropic.Model, c.Anthropic.MaxTokens, c.LLM.Temperature), nil
	case "bedrock":
		completer, err := llm.NewBedrockCompleter(ctx, c.Bedrock.Region, c.Bedrock.ModelID, c.Anthropic.MaxTokens, c.LLM.Temperature)
		if err != nil {
			return nil, eris.Wrap(err, "init bedrock")
		}
		return completer, nil
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}
}

// modelName reports the configured model for /health.
func modelName(c *config.Config) string {
	if c.LLM.Provider == "bedrock" {
		return c.Bedrock.ModelID
	}
	return c.Anthropic.Model
}

func (e *appEnv) initGatherer(c *config.Config) {
	var searcher evidence.Searcher
	if c.SearchEnabled() {
		opts := []google.Option{google.WithBaseURL(c.Google.BaseURL)}
		if c.Google.RateLimit > 0 {
			opts = append(opts, google.WithRateLimit(c.Google.RateLimit))
		}
		searcher = evidence.NewGoogleSearcher(google.NewClient(c.Google.Key, c.Google.CX, opts...))
		zap.L().Info("google custom search enabled")
	} else {
		searcher = evidence.NewGoogleSearcher(nil)
		zap.L().Warn("PQL_GOOGLE_KEY/PQL_GOOGLE_CX not set, search returns credential errors")
	}

	if c.Cache.RedisURL != "" {
		e.redis = evidence.NewRedisClient(c.Cache.RedisURL)
		ttl := time.Duration(c.Cache.TTLMinutes) * time.Minute
		searcher = evidence.NewCachedSearcher(searcher, e.redis, ttl)
		zap.L().Info("search cache enabled", zap.Duration("ttl", ttl))
	}

	var rich scrape.Renderer
	if c.Scrape.BrowserEnabled {
		e.browser = scrape.NewBrowserRenderer(scrape.BrowserConfig{
			Timeout:  time.Duration(c.Scrape.BrowserTimeoutMS) * time.Millisecond,
			Settle:   time.Duration(c.Scrape.SettleMS) * time.Millisecond,
			MaxChars: c.Scrape.MaxTextChars,
		})
		rich = e.browser
	}
	simple := scrape.NewHTTPRenderer(time.Duration(c.Scrape.RequestTimeoutSecs)*time.Second, c.Scrape.MaxTextChars)

	e.Gatherer = evidence.NewGatherer(scrape.NewChain(rich, simple), searcher, c.Search.Limit)
}
