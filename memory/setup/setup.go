package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/cache/redis"
	"github.com/becomeliminal/nim-memory/memory/cache/ristretto"
	"github.com/becomeliminal/nim-memory/memory/embedder/fallback"
	"github.com/becomeliminal/nim-memory/memory/embedder/openai"
	"github.com/becomeliminal/nim-memory/memory/generator/anthropic"
	"github.com/becomeliminal/nim-memory/memory/store/sqlstore"
)

// Runtime owns every collaborator built by Open.
type Runtime struct {
	Manager *memory.Manager
	Logger  *logrus.Logger

	closers []io.Closer
}

// Close releases the store, cache and embedder in reverse order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds a logrus logger writing to stderr.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}
	return log, nil
}

// Open builds the store, cache, embedder and generator described by cfg
// and returns a Manager wired to them. The schema is created eagerly so a
// bad database fails here rather than on the first request.
func Open(ctx context.Context, cfg *Config) (_ *Runtime, err error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Logger: log}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	storeCfg := cfg.Store
	storeCfg.Logger = log
	store, err := sqlstore.Open(storeCfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	cache, err := openCache(ctx, cfg.Cache, rt)
	if err != nil {
		return nil, err
	}

	primary, err := openPrimary(cfg, log, rt)
	if err != nil {
		return nil, err
	}
	embedder := fallback.New(primary, fallback.Config{
		Dimensions: cfg.Embedder.Dimensions,
		Timeout:    cfg.Embedder.Timeout,
		Logger:     log,
	})

	opts := []memory.Option{
		memory.WithConfig(cfg.Memory),
		memory.WithLogger(log),
	}
	switch backend := cfg.generatorBackend(); backend {
	case BackendNone:
	case BackendAnthropic:
		opts = append(opts, memory.WithGenerator(anthropic.New(anthropic.Config{
			APIKey:    cfg.Generator.APIKey,
			BaseURL:   cfg.Generator.BaseURL,
			Model:     cfg.Generator.Model,
			MaxTokens: cfg.Generator.MaxTokens,
		})))
	default:
		return nil, fmt.Errorf("unknown generator backend %q", backend)
	}

	var kv memory.KeyValueCache
	if cache != nil {
		kv = cache
	}
	mgr, err := memory.NewManager(store, embedder, kv, opts...)
	if err != nil {
		return nil, err
	}
	rt.Manager = mgr

	log.WithFields(logrus.Fields{
		"store":     storeCfg.Driver,
		"cache":     cfg.Cache.Backend,
		"embedder":  cfg.embedderBackend(),
		"generator": cfg.generatorBackend(),
	}).Info("memory runtime ready")

	return rt, nil
}

type closingCache interface {
	memory.KeyValueCache
	io.Closer
}

func openCache(ctx context.Context, cfg CacheConfig, rt *Runtime) (closingCache, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case "", BackendRistretto:
		c, err := ristretto.New(cfg.Ristretto)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, c)
		return c, nil
	case BackendRedis:
		c, err := redis.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, c)
		return c, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func openPrimary(cfg *Config, log logrus.FieldLogger, rt *Runtime) (fallback.Primary, error) {
	switch backend := cfg.embedderBackend(); backend {
	case BackendFallback:
		return nil, nil
	case BackendOpenAI:
		return openai.New(openai.Config{
			APIKey:            cfg.Embedder.OpenAI.APIKey,
			BaseURL:           cfg.Embedder.OpenAI.BaseURL,
			Model:             cfg.Embedder.OpenAI.Model,
			Dimensions:        cfg.Embedder.Dimensions,
			RequestDimensions: cfg.Embedder.OpenAI.RequestDimensions,
		}), nil
	case BackendONNX:
		e, err := openONNX(cfg.Embedder, log)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, e)
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", backend)
	}
}
