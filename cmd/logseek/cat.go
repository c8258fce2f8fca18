package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/therealutkarshpriyadarshi/logseek/internal/client"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
	"github.com/therealutkarshpriyadarshi/logseek/internal/extract"
	"github.com/therealutkarshpriyadarshi/logseek/internal/output"
	"github.com/therealutkarshpriyadarshi/logseek/internal/server"
	"github.com/therealutkarshpriyadarshi/logseek/internal/tracing"
)

func runCat(ctx context.Context, args []string) error {
	var configFile, logLevel, serverURL, outPath, compression, sinkType string
	var force bool

	fs := newFlagSet("cat", &configFile, &logLevel)
	fs.StringVar(&serverURL, "server", "", "read the range from a logseek server instead of the local file")
	fs.StringVarP(&outPath, "output", "o", "", "write to this file instead of stdout")
	fs.StringVarP(&compression, "compress", "z", "", "compress the output: none, gzip or snappy")
	fs.StringVar(&sinkType, "sink", "", "send the range to this sink: stream, kafka, elasticsearch or s3")
	fs.BoolVarP(&force, "force", "f", false, "write compressed data to a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return fmt.Errorf("cat needs a log and an optional timestamp")
	}
	logPath := fs.Arg(0)

	var ts uint64
	hasTS := fs.NArg() == 2
	if hasTS {
		var err error
		if ts, err = server.ParseTimestamp(fs.Arg(1)); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, configFile, logLevel, func(cfg *config.Config) {
		if fs.Changed("server") {
			cfg.Client.Server = serverURL
		}
		if fs.Changed("sink") {
			cfg.Output.Type = sinkType
		}
		if fs.Changed("output") {
			cfg.Output.Type = output.TypeStream
			cfg.Output.Path = outPath
		}
		if fs.Changed("compress") {
			cfg.Output.Compression = output.CompressionType(compression)
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	if toTerminal(a.cfg.Output) && a.cfg.Output.Compression.Compressed() && !force {
		return fmt.Errorf("refusing to write compressed data to a terminal, use -o or --force")
	}

	sink, err := output.NewSink(ctx, a.cfg.Output, logPath, a.logger, a.collector)
	if err != nil {
		return fmt.Errorf("failed to create %s sink: %w", a.cfg.Output.Type, err)
	}

	ctx, span := tracing.TraceOutput(ctx, a.tracing.Tracer(), sink.Name(), logPath)
	defer span.End()

	err = a.cat(ctx, logPath, ts, hasTS, sink)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s sink: %w", sink.Name(), cerr)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (a *app) cat(ctx context.Context, logPath string, ts uint64, hasTS bool, w io.Writer) error {
	if a.cfg.Client.Server != "" {
		c, err := client.New(a.cfg.Client, a.logger)
		if err != nil {
			return err
		}
		var result *client.Result
		if hasTS {
			result, err = c.Extract(ctx, logPath, ts, w)
		} else {
			result, err = c.ExtractAll(ctx, logPath, w)
		}
		if err != nil {
			return err
		}
		if result.Fallback {
			a.logger.Warn().Str("path", logPath).Msg("Server had no index entry for the timestamp, got the whole log")
		}
		return nil
	}

	e := extract.New(a.cfg.Index, a.logger, a.collector, extract.WithTracer(a.tracing.Tracer()))
	if hasTS {
		_, err := e.Extract(ctx, logPath, ts, w)
		return err
	}
	_, err := e.ExtractAll(ctx, logPath, w)
	return err
}

// toTerminal reports whether cfg writes to an interactive stdout
func toTerminal(cfg output.Config) bool {
	if cfg.Type != output.TypeStream && cfg.Type != "" {
		return false
	}
	if cfg.Path != "" && cfg.Path != "-" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
