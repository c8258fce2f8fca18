package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/therealutkarshpriyadarshi/logseek/internal/builder"
	"github.com/therealutkarshpriyadarshi/logseek/internal/config"
)

func runIndex(ctx context.Context, args []string) error {
	var configFile, logLevel, indexDir string
	var follow, rebuild, strict bool
	var granularity uint64
	var chunkSize int

	fs := newFlagSet("index", &configFile, &logLevel)
	fs.BoolVarP(&follow, "follow", "f", false, "keep indexing plain logs as they grow")
	fs.BoolVar(&rebuild, "rebuild", false, "discard existing indexes first")
	fs.BoolVar(&strict, "strict", false, "fail on the first record without a timestamp")
	fs.Uint64Var(&granularity, "granularity", 0, "time bucket width in seconds")
	fs.IntVar(&chunkSize, "chunk-size", 0, "minimum uncompressed bytes between gzip checkpoints")
	fs.StringVar(&indexDir, "index-dir", "", "directory for index files instead of next to the log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("index needs at least one log")
	}

	a, err := newApp(ctx, configFile, logLevel, func(cfg *config.Config) {
		if fs.Changed("granularity") {
			cfg.Index.Granularity = granularity
		}
		if fs.Changed("chunk-size") {
			cfg.Index.ChunkSize = chunkSize
		}
		if fs.Changed("index-dir") {
			cfg.Index.Dir = indexDir
		}
		if fs.Changed("strict") {
			cfg.Index.Strict = strict
		}
	})
	if err != nil {
		return err
	}
	defer a.close()

	if follow {
		return a.follow(ctx, fs.Args())
	}

	for _, logPath := range fs.Args() {
		// each builder owns its parser
		p, err := a.newParser()
		if err != nil {
			return err
		}
		b := builder.New(a.cfg.Index, p, a.logger, a.collector, builder.WithTracer(a.tracing.Tracer()))

		if rebuild {
			_, err = b.Rebuild(ctx, logPath)
		} else {
			_, err = b.Build(ctx, logPath)
		}
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", logPath, err)
		}
	}
	return nil
}

// follow runs one follower per log until ctx is done
func (a *app) follow(ctx context.Context, logPaths []string) error {
	followers := make([]*builder.Follower, 0, len(logPaths))
	for _, logPath := range logPaths {
		p, err := a.newParser()
		if err != nil {
			return err
		}
		b := builder.New(a.cfg.Index, p, a.logger, a.collector, builder.WithTracer(a.tracing.Tracer()))
		f, err := builder.NewFollower(b, logPath, a.cfg.Index.FollowDebounce)
		if err != nil {
			return err
		}
		followers = append(followers, f)
	}

	a.collector.Start(metricsInterval)
	defer a.collector.Stop()

	errs := make([]error, len(followers))
	var wg sync.WaitGroup
	for i, f := range followers {
		wg.Add(1)
		go func(i int, f *builder.Follower) {
			defer wg.Done()
			errs[i] = f.Run(ctx)
		}(i, f)
	}

	a.logger.Info().Strs("logs", logPaths).Msg("Following logs")
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
