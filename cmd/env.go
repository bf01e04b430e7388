package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/fetcher"
	"github.com/sells-group/landslide-cli/internal/observability"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/source"
	"github.com/sells-group/landslide-cli/internal/store"
)

// pipelineEnv holds the dataset cache, the pipeline and, when requested,
// the run store used by the run/batch/serve commands.
type pipelineEnv struct {
	Cache    *fetcher.Cache
	Pipeline *pipeline.Pipeline
	Metrics  *observability.Metrics
	Store    store.Store // nil unless opened
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, then builds the cache, loader
// and pipeline. withStore also opens and migrates the run store. Callers
// should defer env.Close().
func initPipeline(ctx context.Context, mode string, withStore bool) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cache := newCache(cfg)
	metrics := observability.NewMetrics()
	loader := source.NewLoader(sourcesFrom(cfg.Sources), cache, pipeline.LocalOps{})

	env := &pipelineEnv{
		Cache:    cache,
		Pipeline: pipeline.New(loader, pipeline.LocalOps{}, metrics),
		Metrics:  metrics,
	}

	if withStore {
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	return env, nil
}

// newCache builds the dataset cache with HTTP and FTP fetchers.
func newCache(c *config.Config) *fetcher.Cache {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    time.Duration(c.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: c.Fetch.MaxRetries,
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout:    time.Duration(c.Fetch.FTPTimeoutSecs) * time.Second,
		MaxRetries: c.Fetch.MaxRetries,
	})
	cache := fetcher.NewCache(c.Sources.CacheDir, httpFetcher, ftpFetcher)
	cache.Refresh = c.Fetch.Refresh
	return cache
}

func sourcesFrom(s config.SourcesConfig) source.Sources {
	return source.Sources{
		Elevation:       s.Elevation,
		LandCover:       s.LandCover,
		WaterOccurrence: s.WaterOccurrence,
		Roads:           s.Roads,
	}
}

// requestDefaults returns the model settings every request starts from.
func requestDefaults(m config.ModelConfig) pipeline.Request {
	return pipeline.Request{
		Weights:     overlay.WeightsFromMap(m.Weights),
		CellSize:    m.CellSize,
		MaxPixels:   m.MaxPixels,
		Percentiles: m.Percentiles,
	}
}

// initStore opens the configured run store and applies its schema.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "landslide.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
