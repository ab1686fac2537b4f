package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/sourcetrace/sourcetrace/internal/version"
)

// fatal prints an error message and exits with code 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseFlag extracts a flag value from args (e.g., "--key=value").
func parseFlag(args []string, prefix string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, prefix) {
			return strings.TrimPrefix(arg, prefix)
		}
	}
	return ""
}

// hasFlag checks if a flag is present in args.
func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

// positionalArgs returns every arg that is not a "--flag" or "--flag=value".
func positionalArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "--") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// findProjectRoot locates the repository root via go-git, falling back to
// the working directory for targets that are not under version control —
// a provenance scan has to work on an unpacked tarball just as well as a
// git checkout.
func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}

	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		wt, err := repo.Worktree()
		if err == nil {
			return wt.Filesystem.Root()
		}
	}

	return cwd
}

func defaultGatewayPath(projectRoot string) string {
	return filepath.Join(defaultStateDir(projectRoot), "gateway.bolt")
}

func defaultStateDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".sourcetrace")
}

func defaultResultIndexDir(projectRoot string) string {
	return filepath.Join(defaultStateDir(projectRoot), "results")
}

func versionString() string { return version.String() }
func versionShort() string  { return version.Short() }
func versionJSON() string   { return version.JSON() }
