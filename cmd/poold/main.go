// Command poold serves static files over HTTP/1.1 from a fixed-size worker
// pool. Every accepted connection becomes one pool task.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/poold/pkg/admin"
	"github.com/fluxorio/poold/pkg/config"
	"github.com/fluxorio/poold/pkg/core"
	"github.com/fluxorio/poold/pkg/observability/otel"
	promx "github.com/fluxorio/poold/pkg/observability/prometheus"
	"github.com/fluxorio/poold/pkg/tcp"
	"github.com/fluxorio/poold/pkg/web"
	"github.com/fluxorio/poold/pkg/web/middleware"
)

const description = "poold serves static files from a fixed pool of worker goroutines."

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, description)
		fmt.Fprintln(os.Stderr, "\nUsage: poold [-config file] [addr]")
		flag.PrintDefaults()
	}

	var configPath string
	flag.StringVar(&configPath, "config", "", "YAML or JSON configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if flag.NArg() > 0 {
		cfg.Server.Addr = flag.Arg(0)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	level, err := core.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := core.NewLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		err := otel.Initialize(ctx, otel.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Exporter:       cfg.Tracing.Exporter,
			Endpoint:       cfg.Tracing.Endpoint,
			SampleRate:     cfg.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otel.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("tracer shutdown: %v", err)
			}
		}()
	}

	server, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	var adminServer *admin.Server
	if cfg.Metrics.Enabled {
		adminServer = admin.NewServer(cfg.Metrics.Addr, admin.NewRouter(server, promx.DefaultRegistry), logger)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if adminServer != nil {
		g.Go(adminServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		err := server.Stop()
		if adminServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if aerr := adminServer.Stop(shutdownCtx); aerr != nil {
				logger.Warnf("admin shutdown: %v", aerr)
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newServer builds the TCP server with its middleware chain and the static
// file handler.
func newServer(cfg *config.Config, logger core.Logger) (*tcp.TCPServer, error) {
	router := web.DefaultRouter()
	if len(cfg.Assets.Routes) > 0 {
		var err error
		if router, err = web.NewRouterFromMap(cfg.Assets.Routes); err != nil {
			return nil, fmt.Errorf("assets.routes: %w", err)
		}
	}

	metrics := promx.GetMetrics()
	server, err := tcp.NewTCPServer(&tcp.TCPServerConfig{
		Addr:            cfg.Server.Addr,
		Workers:         cfg.Server.Workers,
		MaxConns:        cfg.Server.MaxConns,
		ReadTimeout:     cfg.Server.ReadTimeout.Std(),
		WriteTimeout:    cfg.Server.WriteTimeout.Std(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
	},
		tcp.WithLogger(logger),
		tcp.WithPoolName("poold"),
		tcp.WithObserver(metrics),
	)
	if err != nil {
		return nil, err
	}

	// First added runs outermost; recovery writes the 500 before the panic
	// reaches the metrics and tracing layers.
	if cfg.Tracing.Enabled {
		server.Use(otel.ConnectionMiddleware(nil))
	}
	server.Use(
		promx.ConnectionMiddleware(metrics),
		middleware.Recovery(middleware.RecoveryConfig{Logger: logger}),
	)
	if cfg.Server.ConnTimeout > 0 {
		server.Use(middleware.Timeout(middleware.TimeoutConfig{
			Timeout: cfg.Server.ConnTimeout.Std(),
			Logger:  logger,
		}))
	}
	server.OnReject(promx.CountRejects(metrics, web.RejectHandler(logger)))
	server.SetHandler(web.NewDirHandler(cfg.Assets.Root, router, logger).Handler())
	return server, nil
}
