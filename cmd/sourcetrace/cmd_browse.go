package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/sourcetrace/sourcetrace/pkg/resultindex"
)

// cmdBrowse searches the local history of past scan results, the one
// part of this tool's output that is never the external OSS index: it
// only ever reflects what this machine has already scanned.
func cmdBrowse(projectRoot string, args []string) error {
	query := ""
	if pos := positionalArgs(args); len(pos) > 0 {
		query = pos[0]
	}

	opts := resultindex.SearchOptions{
		Vendor:    parseFlag(args, "--vendor="),
		Component: parseFlag(args, "--component="),
		FilePath:  parseFlag(args, "--file="),
		MatchType: parseFlag(args, "--match-type="),
		Limit:     DefaultBrowseLimit,
	}
	if l := parseFlag(args, "--limit="); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid --limit value: %s", l)
		}
		opts.Limit = n
	}

	ri, err := resultindex.Open(defaultResultIndexDir(projectRoot))
	if err != nil {
		return fmt.Errorf("open result index: %w", err)
	}
	defer ri.Close()

	results, err := ri.Search(query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"scan id", "file", "match type", "component", "score"})
	for _, r := range results {
		component := ""
		if len(r.Entry.Record.Matches) > 0 {
			component = r.Entry.Record.Matches[0].Component
		}
		table.Append([]string{
			r.Entry.ScanID,
			r.Entry.Record.FilePath,
			r.Entry.Record.MatchType,
			component,
			strconv.FormatFloat(r.Score, 'f', 3, 64),
		})
	}
	table.Render()
	return nil
}
