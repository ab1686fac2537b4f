package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sourcetrace/sourcetrace/pkg/gateway"
	"github.com/sourcetrace/sourcetrace/pkg/resultindex"
	"github.com/sourcetrace/sourcetrace/pkg/scan"
	"github.com/sourcetrace/sourcetrace/pkg/serializer"
)

// cmdScan runs the Scan Driver over a single file, a directory tree, or a
// WFP manifest, per spec §4.5's target-dispatch rule: a .wfp extension is
// parsed as a manifest, a directory is walked, anything else is scanned
// as one physical file.
func cmdScan(projectRoot, gatewayPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sourcetrace scan <path> [--config=FILE] [--workers=N] [--report]")
	}
	target := args[0]

	cfg, err := scan.LoadConfig(parseFlag(args, "--config="))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if gatewayPath != "" {
		cfg.GatewayPath = gatewayPath
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

	workers := DefaultWorkers
	if w := parseFlag(args, "--workers="); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid --workers value: %s", w)
		}
		workers = n
	}
	report := hasFlag(args, "--report")

	start := time.Now()
	var results []scan.Result

	info, statErr := os.Stat(target)
	switch {
	case scan.IsWFP(target):
		wfpResults, _, err := driver.ScanWFP(target)
		if err != nil {
			return fmt.Errorf("scan %s: %w", target, err)
		}
		results = wfpResults
	case statErr == nil && info.IsDir():
		dirResults, err := driver.ScanDirectory(target, workers)
		if err != nil {
			return fmt.Errorf("scan %s: %w", target, err)
		}
		results = dirResults
	default:
		res, err := driver.ScanFile(target)
		if err != nil {
			return fmt.Errorf("scan %s: %w", target, err)
		}
		results = []scan.Result{res}
	}

	summary := scan.NewSummary()
	now := time.Now()
	for _, res := range results {
		summary.Record(res)
		if _, err := ri.Put(res.Path, res.Rec, now); err != nil {
			fatal("index result %s: %v", res.Path, err)
		}
		if !report {
			if err := serializer.WriteJSON(os.Stdout, res.Rec); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
		}
	}
	summary.Duration = time.Since(start)

	if report {
		scan.WriteReport(os.Stdout, summary)
	}
	return nil
}
