// Package main provides the sourcetrace CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	projectRoot := findProjectRoot()

	gatewayPath := getEnvOrDefault("SOURCETRACE_GATEWAY_PATH", "")
	if gatewayPath == "" {
		gatewayPath = defaultGatewayPath(projectRoot)
	}

	if err := os.MkdirAll(defaultStateDir(projectRoot), 0o755); err != nil {
		fatal("failed to create state directory: %v", err)
	}

	if err := runCommand(cmd, projectRoot, gatewayPath, args); err != nil {
		fatal("%v", err)
	}
}

func runCommand(cmd, projectRoot, gatewayPath string, args []string) error {
	switch cmd {
	case "scan":
		return cmdScan(projectRoot, gatewayPath, args)
	case "watch":
		return cmdWatch(projectRoot, gatewayPath, args)
	case "browse":
		return cmdBrowse(projectRoot, args)
	case "help", "-h", "--help":
		printUsage()
		return nil
	case "version", "-v", "--version":
		return cmdVersion(args)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdVersion(args []string) error {
	for _, arg := range args {
		if arg == "--json" {
			fmt.Println(versionJSON())
			return nil
		}
	}
	fmt.Println(versionString())
	return nil
}

func printUsage() {
	fmt.Printf(`sourcetrace %s - source code provenance scanner

Usage:
  sourcetrace <command> [arguments]

Commands:
  scan       Scan a file, directory, or WFP manifest against the gateway index
  watch      Watch a directory and rescan changed files as they settle
  browse     Search a history of past scan results
  version    Show version information

Options:
  scan <path> [--config=FILE] [--workers=N] [--report]
    --config=FILE   JSON config file (see SOURCETRACE_* env vars below)
    --workers=N     Concurrent workers for directory scans (default 1)
    --report        Print a summary table instead of newline-delimited JSON

  watch [paths...] [--config=FILE] [--debounce=DURATION]
    --debounce=DURATION  Debounce delay before rescanning (default 2s)

  browse <query> [--vendor=V] [--component=C] [--match-type=T]

Environment:
  SOURCETRACE_GATEWAY_PATH    bbolt index path (default: <root>/.sourcetrace/gateway.bolt)
  SOURCETRACE_SCAN_LIMIT      Match slots per target (default: 10)
  SOURCETRACE_MAX_FILE_SIZE   Max file size considered for hashing, in bytes
  SOURCETRACE_BLACKLIST       Comma-separated component/path/extension blacklist
  SOURCETRACE_SBOM            Comma-separated component names to suppress

Examples:
  sourcetrace scan ./src
  sourcetrace scan ./build/scan.wfp --report
  sourcetrace watch ./src --debounce=1s
  sourcetrace browse "libfoo" --match-type=component
`, versionShort())
}
