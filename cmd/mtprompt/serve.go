package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mtprompt/internal/api"
	"github.com/samcharles93/mtprompt/internal/logger"
	"github.com/samcharles93/mtprompt/internal/observe"
	"github.com/samcharles93/mtprompt/internal/version"
	"github.com/samcharles93/mtprompt/pkg/mpt"
)

func serveCmd() *cli.Command {
	var (
		addr          string
		readTimeout   time.Duration
		storeCapacity int
		maxBatch      int
		metrics       bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a prompt table over HTTP",
		Flags: append(append(append(commonAdapterFlags(), commonTableFlags()...), commonHostFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.IntFlag{
				Name:        "store-capacity",
				Usage:       "compositions kept for GET /v1/compose/:id",
				Value:       api.DefaultStoreCapacity,
				Destination: &storeCapacity,
			},
			&cli.IntFlag{
				Name:        "max-batch",
				Usage:       "largest batch accepted by POST /v1/compose",
				Value:       api.DefaultMaxBatch,
				Destination: &maxBatch,
			},
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "expose Prometheus metrics at /metrics",
				Value:       true,
				Destination: &metrics,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyServeConfig(c, cfg, &addr, &storeCapacity, &maxBatch, &metrics)

			serviceName := cfg.ServiceName
			if serviceName == "" {
				serviceName = "mtprompt"
			}
			provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceName:    serviceName,
				ServiceVersion: version.String(),
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: init telemetry: %v", err), 1)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := provider.Shutdown(shutdownCtx); err != nil {
					log.Warn("telemetry shutdown failed", "error", err)
				}
			}()
			m, err := observe.NewMetrics(provider.MeterProvider)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: init metrics: %v", err), 1)
			}

			table, err := serveTable(ctx, m)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := api.Options{
				Store:    api.NewCompositionStore(storeCapacity),
				Metrics:  m,
				MaxBatch: maxBatch,
				Logger:   log,
			}
			if metrics {
				opts.MetricsHandler = provider.MetricsHandler()
			}
			server := api.NewServer(table, opts)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server",
				"address", addr,
				"tasks", table.Config().NumTasks(),
				"init_mode", table.Config().InitMode().String(),
			)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

// serveTable restores --adapter when given, otherwise builds a fresh table
// from --config.
func serveTable(ctx context.Context, m *observe.Metrics) (*mpt.PromptTable, error) {
	if strings.TrimSpace(promptConfigPath) != "" && strings.TrimSpace(adapterPath) == "" {
		cfg, err := loadPromptConfig(promptConfigPath)
		if err != nil {
			return nil, err
		}
		return buildTable(ctx, cfg, seed, m)
	}
	dir, err := resolveAdapterPath(adapterPath, adaptersPath, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	return mpt.OpenPretrained(dir, mpt.TableOptions{Logger: logger.FromContext(ctx)})
}
