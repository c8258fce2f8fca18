package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/therealutkarshpriyadarshi/logseek/internal/index"
)

// dumpLine is one JSON line of dump output
type dumpLine struct {
	Kind  string      `json:"kind"`
	Entry interface{} `json:"entry"`
}

func runDump(ctx context.Context, args []string) error {
	var configFile, logLevel string
	var checkpoints bool

	flags := newFlagSet("dump", &configFile, &logLevel)
	flags.BoolVar(&checkpoints, "checkpoints", true, "also print the checkpoints of gzip logs")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("dump needs exactly one log")
	}
	logPath := flags.Arg(0)

	a, err := newApp(ctx, configFile, logLevel, nil)
	if err != nil {
		return err
	}
	defer a.close()

	naming := a.cfg.Index.Naming()
	enc := json.NewEncoder(os.Stdout)

	tidx, err := index.OpenTimeIndex(naming.TimeIndexPath(logPath), index.ModeRead)
	if err != nil {
		return err
	}
	entries, err := tidx.Entries()
	tidx.Close()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := enc.Encode(dumpLine{Kind: "time", Entry: e}); err != nil {
			return err
		}
	}

	if !checkpoints {
		return nil
	}
	cps, err := index.OpenCheckpointStore(naming.CheckpointPath(logPath), index.ModeRead)
	if errors.Is(err, fs.ErrNotExist) {
		// plain logs have no checkpoints
		return nil
	}
	if err != nil {
		return err
	}
	defer cps.Close()

	infos, err := cps.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := enc.Encode(dumpLine{Kind: "checkpoint", Entry: info}); err != nil {
			return err
		}
	}
	return nil
}
