package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/Super-Meta77/sefaria-backend/internal/data/db"
	"github.com/Super-Meta77/sefaria-backend/internal/data/repos/runs"
	apphttp "github.com/Super-Meta77/sefaria-backend/internal/http"
	httpH "github.com/Super-Meta77/sefaria-backend/internal/http/handlers"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/observability"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/cache"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
	"github.com/Super-Meta77/sefaria-backend/internal/services"
)

// Core is the extraction pipeline and its stores, shared by the server and the CLI.
type Core struct {
	Log       *logger.Logger
	Cfg       Config
	Graph     Graph
	Neo4j     *neo4jdb.Client
	Cache     cache.Cache
	Writer    *services.InvalidatingSugyaStore
	Extractor *sugya.Extractor

	completer *completerCloser
	otelStop  func(context.Context) error
}

// NewCore opens the graph, cache and model client. Close releases them.
func NewCore(ctx context.Context, log *logger.Logger, cfg Config) (*Core, error) {
	c := &Core{Log: log, Cfg: cfg}
	c.otelStop = observability.InitOTel(ctx, log, cfg.Otel)

	g, client, err := wireGraph(ctx, log, cfg.Neo4j)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	c.Graph, c.Neo4j = g, client

	if c.Cache, err = cache.New(ctx, log, cfg.Cache); err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("init cache: %w", err)
	}
	c.Writer = services.NewInvalidatingSugyaStore(log, g, c.Cache)

	if c.completer, err = wireCompleter(ctx, log, cfg); err != nil {
		c.Close(ctx)
		return nil, err
	}
	var completer sugya.Completer
	if c.completer != nil {
		completer = c.completer
	}

	c.Extractor, err = sugya.NewExtractor(sugya.ExtractorDeps{
		Log:      log,
		Texts:    g,
		Sugyot:   c.Writer,
		Analyzer: sugya.NewAnalyzer(log, completer),
	})
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Core) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.completer != nil && c.completer.close != nil {
		if err := c.completer.close(); err != nil {
			c.Log.Warn("close model client failed", "error", err)
		}
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Neo4j != nil {
		if err := c.Neo4j.Close(ctx); err != nil {
			c.Log.Warn("close neo4j failed", "error", err)
		}
	}
	if c.otelStop != nil {
		if err := c.otelStop(ctx); err != nil {
			c.Log.Warn("otel shutdown failed", "error", err)
		}
	}
}

// App is the HTTP server process.
type App struct {
	*Core
	DB     *db.Service
	Runs   services.ExtractionRunService
	Server *apphttp.Server
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	core, err := NewCore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}

	dbs, err := db.Open(log, cfg.DB)
	if err != nil {
		core.Close(ctx)
		return nil, err
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		core.Close(ctx)
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	seeds, err := sugya.LoadSeeds()
	if err != nil {
		_ = dbs.Close()
		core.Close(ctx)
		return nil, err
	}

	runSvc := services.NewExtractionRunService(log, core.Extractor, runs.NewExtractionRunRepo(dbs.DB(), log))
	reader := services.NewSugyaReader(log, core.Graph, core.Graph, core.Cache)

	var pinger httpH.Pinger
	if core.Neo4j != nil {
		pinger = core.Neo4j
	}

	server := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.RouterConfig{
		Log:               log,
		ServiceName:       otelServiceName(cfg),
		CORSOrigins:       cfg.CORSOrigins,
		HealthHandler:     httpH.NewHealthHandler(pinger),
		SugyaHandler:      httpH.NewSugyaHandler(reader),
		ExtractionHandler: httpH.NewExtractionHandler(runSvc),
		SeedHandler:       httpH.NewSeedHandler(log, core.Writer, seeds),
	})

	return &App{Core: core, DB: dbs, Runs: runSvc, Server: server}, nil
}

func otelServiceName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.Otel.ServiceName
}

// Run serves HTTP until ctx is cancelled, then drains the server and background runs.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Server listening", "port", a.Cfg.Port)
		return a.Server.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Cfg.ShutdownTimeout)
		defer cancel()
		a.Log.Info("Shutting down")
		err := a.Server.Shutdown(sctx)
		if rerr := a.Runs.Shutdown(sctx); rerr != nil {
			err = errors.Join(err, fmt.Errorf("drain extraction runs: %w", rerr))
		}
		return err
	})
	return g.Wait()
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("close database failed", "error", err)
		}
	}
	a.Core.Close(ctx)
	a.Log.Sync()
}
