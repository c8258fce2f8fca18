package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logseek/internal/parser"
	"github.com/therealutkarshpriyadarshi/logseek/internal/tracing"
)

var version = "0.1.0"

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"index", "[flags] <log>...", "build or update the side indexes of logs", runIndex},
		{"cat", "[flags] <log> [timestamp]", "write a log starting near a timestamp", runCat},
		{"dump", "[flags] <log>", "print the index entries of a log", runDump},
		{"serve", "[flags]", "serve ranges, metrics and health probes over HTTP", runServe},
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "logseek %s: seek into huge timestamped logs, plain or gzip\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage: logseek <command> [flags] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-6s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun 'logseek <command> --help' for the flags of a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		usage()
		return
	}
	if name == "version" || name == "--version" {
		fmt.Println(version)
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		err := c.run(ctx, os.Args[2:])
		stop()
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// newFlagSet creates the flag set of a command with the shared flags
func newFlagSet(c string, configFile, logLevel *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(c, pflag.ContinueOnError)
	fs.StringVarP(configFile, "config", "c", "", "path to configuration file")
	fs.StringVar(logLevel, "log-level", "", "override the configured log level")
	fs.Usage = func() {
		for _, cmd := range commands {
			if cmd.name == c {
				fmt.Fprintf(os.Stderr, "Usage: logseek %s %s\n\n%s\n\nFlags:\n", cmd.name, cmd.args, cmd.summary)
			}
		}
		fs.PrintDefaults()
	}
	return fs
}

// app holds what every command sets up from the configuration
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	collector *metrics.Collector
	tracing   *tracing.Provider
}

func newApp(ctx context.Context, configFile, logLevel string, override func(*config.Config)) (*app, error) {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := logging.New(cfg.Logging)
	logging.SetGlobal(logger)

	tp, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(),
		tracing:   tp,
	}, nil
}

func (a *app) newParser() (parser.LineParser, error) {
	p, err := parser.New(a.cfg.Parser)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}
	return p, nil
}

// close flushes traces and, for one-shot commands, writes the metrics
// textfile
func (a *app) close() {
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Textfile != "" {
		if err := a.collector.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Warn().Err(err).Str("path", a.cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
		}
	}
	if err := a.tracing.Shutdown(context.Background()); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to shut down tracing")
	}
}
