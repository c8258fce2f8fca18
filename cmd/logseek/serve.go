package main

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/extract"
	"github.com/therealutkarshpriyadarshi/logseek/internal/health"
	"github.com/therealutkarshpriyadarshi/logseek/internal/server"
)

const metricsInterval = 15 * time.Second

func runServe(ctx context.Context, args []string) error {
	var configFile, logLevel, address string
	var allowed []string

	fs := newFlagSet("serve", &configFile, &logLevel)
	fs.StringVarP(&address, "address", "a", "", "listen address")
	fs.StringSliceVar(&allowed, "allow", nil, "directory whose logs may be served, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, configFile, logLevel, func(cfg *config.Config) {
		if fs.Changed("address") {
			cfg.Server.Address = address
		}
		if fs.Changed("allow") {
			cfg.Server.AllowedDirs = allowed
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.cfg.Server.AllowedDirs) == 0 {
		return fmt.Errorf("serve needs at least one allowed directory (--allow or server.allowed_dirs)")
	}

	checker := health.NewChecker(0, a.collector)
	for _, dir := range a.cfg.Server.AllowedDirs {
		checker.Register("logs:"+dir, health.DirReadable(dir))
	}
	if a.cfg.Index.Dir != "" {
		checker.Register("index", health.DirWritable(a.cfg.Index.Dir))
	}

	srv, err := server.New(server.Options{
		Config:      a.cfg.Server,
		MetricsPath: a.cfg.Metrics.Path,
		Extractor:   extract.New(a.cfg.Index, a.logger, a.collector, extract.WithTracer(a.tracing.Tracer())),
		Checker:     checker,
		Collector:   a.collector,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	a.collector.Start(metricsInterval)
	defer a.collector.Stop()

	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
