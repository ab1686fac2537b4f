package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcetrace/sourcetrace/pkg/gateway"
	"github.com/sourcetrace/sourcetrace/pkg/resultindex"
	"github.com/sourcetrace/sourcetrace/pkg/scan"
	"github.com/sourcetrace/sourcetrace/pkg/serializer"
)

// cmdWatch runs the Scan Driver in watch mode: every changed file under
// the given paths (or the working directory, if none are given) is
// rescanned after a debounce window, per spec §4.5's "watch" operation.
func cmdWatch(projectRoot, gatewayPath string, args []string) error {
	cfg, err := scan.LoadConfig(parseFlag(args, "--config="))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if gatewayPath != "" {
		cfg.GatewayPath = gatewayPath
	}

	debounce := DefaultDebounce
	if d := parseFlag(args, "--debounce="); d != "" {
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return fmt.Errorf("invalid --debounce value: %s", d)
		}
		debounce = parsed
	}

	gw, err := gateway.OpenBoltGateway(cfg.GatewayPath)
	if err != nil {
		return fmt.Errorf("open gateway %s: %w", cfg.GatewayPath, err)
	}
	defer gw.Close()

	ri, err := resultindex.Open(defaultResultIndexDir(projectRoot))
	if err != nil {
		return fmt.Errorf("open result index: %w", err)
	}
	defer ri.Close()

	driver := scan.NewDriver(gw, cfg)

	paths := positionalArgs(args)
	w, err := scan.NewWatcher(driver, scan.WatchConfig{
		Paths:         paths,
		DebounceDelay: debounce,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.OnResults = func(results []scan.Result) {
		now := time.Now()
		for _, res := range results {
			if _, err := ri.Put(res.Path, res.Rec, now); err != nil {
				fatal("index result %s: %v", res.Path, err)
			}
			if err := serializer.WriteJSON(os.Stdout, res.Rec); err != nil {
				fmt.Fprintf(os.Stderr, "write result: %v\n", err)
			}
		}
	}

	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}
