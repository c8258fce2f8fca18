package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/therealutkarshpriyadarshi/logseek/internal/logging"
	"github.com/therealutkarshpriyadarshi/logseek/pkg/types"
)

// ErrFollowGzip is returned when asked to follow a gzip log
var ErrFollowGzip = errors.New("gzip logs are write-once and cannot be followed")

// Follower keeps the time index of a growing plain log up to date
type Follower struct {
	builder  *Builder
	path     string
	debounce time.Duration
	logger   *logging.Logger

	// OnBuild is called after every build run
	OnBuild func(*Result, error)
}

// NewFollower creates a follower for logPath
func NewFollower(b *Builder, logPath string, debounce time.Duration) (*Follower, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, types.IOError("open", logPath, err)
	}
	kind, err := DetectKind(f)
	f.Close()
	if err != nil {
		return nil, types.IOError("read", logPath, err)
	}
	if kind == types.SourceGzip {
		return nil, fmt.Errorf("%s: %w", logPath, ErrFollowGzip)
	}

	abs, err := filepath.Abs(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	return &Follower{
		builder:  b,
		path:     abs,
		debounce: debounce,
		logger:   b.logger.WithComponent("follower").WithField("path", abs),
	}, nil
}

// Run indexes the log, then reindexes it after every change until ctx is
// done. The parent directory is watched so that a rotated log is picked up
// when it is recreated.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	f.build(ctx, false)

	var timer *time.Timer
	var timerC <-chan time.Time
	rotated := false

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(f.debounce)
		} else {
			timer.Reset(f.debounce)
		}
		timerC = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != f.path {
				continue
			}

			switch {
			case event.Op&fsnotify.Write == fsnotify.Write:
				f.logger.Debug().Msg("File write event")
				schedule()

			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				f.logger.Info().Msg("File rotation detected")
				rotated = true

			case event.Op&fsnotify.Create == fsnotify.Create:
				f.logger.Info().Msg("File created")
				rotated = true
				schedule()
			}

		case <-timerC:
			timerC = nil
			f.build(ctx, rotated)
			rotated = false

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error().Err(err).Msg("File watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}

func (f *Follower) build(ctx context.Context, rebuild bool) {
	var result *Result
	var err error
	if rebuild {
		result, err = f.builder.Rebuild(ctx, f.path)
	} else {
		result, err = f.builder.Build(ctx, f.path)
	}
	if err != nil && ctx.Err() == nil {
		f.logger.Error().Err(err).Msg("Incremental index build failed")
	}
	if f.OnBuild != nil {
		f.OnBuild(result, err)
	}
}
