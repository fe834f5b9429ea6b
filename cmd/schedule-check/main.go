// Command schedule-check validates a stored schedule document against
// the scheduling rules without touching the dataset store. It reads the
// document either from a local file or from the artifact store by run id
// and exits non-zero when any rule reports a blocking violation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"batchcore/internal/blob"
	"batchcore/internal/core"
	"batchcore/internal/planner"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("schedule-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "path to a schedule document")
	runID := fs.String("run", "", "run id to load from the artifact store")
	asJSON := fs.Bool("json", false, "emit the rule result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (*file == "") == (*runID == "") {
		fmt.Fprintln(stderr, "schedule-check: exactly one of -file or -run is required")
		fs.Usage()
		return 2
	}

	ctx := context.Background()
	doc, err := loadDocument(ctx, *file, *runID)
	if err != nil {
		fmt.Fprintf(stderr, "schedule-check: %v\n", err)
		return 1
	}

	result, err := core.EvaluateSchedule(ctx, core.NewDefaultRulesEngine(), doc.Schedule, doc.Partitions)
	if err != nil {
		fmt.Fprintf(stderr, "schedule-check: evaluate: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(stderr, "schedule-check: %v\n", err)
			return 1
		}
	} else {
		for _, v := range result.Violations {
			fmt.Fprintf(stdout, "%s [%s]: %s\n", v.Rule, v.Severity, v.Message)
		}
	}

	planned := len(doc.Schedule.PlannedBatches())
	if result.HasBlocking() {
		fmt.Fprintf(stdout, "schedule rejected: %d violations across %d batches\n", len(result.Violations), len(doc.Schedule.Batches))
		return 1
	}
	fmt.Fprintf(stdout, "schedule ok: %d/%d batches planned, %d partitions\n", planned, len(doc.Schedule.Batches), len(doc.Partitions))
	return 0
}

func loadDocument(ctx context.Context, file, runID string) (planner.Document, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return planner.Document{}, err
		}
		return planner.DecodeDocument(raw)
	}
	store, err := blob.Open(ctx)
	if err != nil {
		return planner.Document{}, fmt.Errorf("open artifact store: %w", err)
	}
	return blob.LoadScheduleDocument(ctx, store, runID)
}
