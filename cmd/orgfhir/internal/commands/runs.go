package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"orgfhir/internal/storage"
)

type RunsCmd struct {
	Limit int `help:"Number of recent runs to show." default:"20"`
}

func (c *RunsCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	if rt.db == nil {
		return errors.New("local store is unavailable, no run log to show")
	}
	defer rt.db.Close()

	runs, err := rt.db.ListRuns(ctx, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	printRuns(os.Stdout, runs)
	return nil
}

// printRuns writes one line per run, newest first, with counts sorted by key.
func printRuns(w io.Writer, runs []storage.Run) {
	for _, run := range runs {
		keys := make([]string, 0, len(run.Counts))
		for k := range run.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, run.Counts[k]))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0fms\t%s\n",
			run.TraceID, run.Command, run.Status, run.Timings["total_ms"], strings.Join(parts, " "))
	}
}
