// Command batchgen plans an aquaculture production schedule, simulates
// every batch, and persists the resulting dataset. The run parameter
// file selects the plan, the simulation profile, and the worker count;
// storage and artifact backends come from the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"

	"batchcore/internal/blob"
	"batchcore/internal/core"
	"batchcore/internal/partition"
	"batchcore/internal/planner"
	"batchcore/internal/runner"
	"batchcore/internal/sim"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// runParams is the YAML document batchgen consumes.
type runParams struct {
	RunID      string         `yaml:"run_id"`
	Workers    int            `yaml:"workers"`
	Plan       planner.Params `yaml:"plan"`
	Simulation sim.Config     `yaml:"simulation"`
}

func loadParams(path string) (runParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return runParams{}, err
	}
	// Simulation defaults apply field-wise; the file only overrides what
	// it names.
	params := runParams{Workers: 1, Simulation: sim.DefaultConfig()}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return runParams{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return params, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batchgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	paramsPath := fs.String("params", "", "run parameter file (YAML)")
	runID := fs.String("run-id", "", "override the run id from the parameter file")
	workers := fs.Int("workers", 0, "override the worker count from the parameter file")
	planOnly := fs.Bool("plan-only", false, "plan and store the schedule document without simulating")
	metricsOut := fs.String("metrics-out", "", "write run metrics in Prometheus text format to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *paramsPath == "" {
		fmt.Fprintln(stderr, "batchgen: -params is required")
		fs.Usage()
		return 2
	}

	logger := log.New(stderr, "batchgen: ", log.LstdFlags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := loadParams(*paramsPath)
	if err != nil {
		logger.Printf("load params: %v", err)
		return 1
	}
	if *runID != "" {
		params.RunID = *runID
	}
	if *workers > 0 {
		params.Workers = *workers
	}
	if params.RunID == "" {
		logger.Print("run_id is required, set it in the parameter file or via -run-id")
		return 2
	}
	if err := params.Plan.Validate(); err != nil {
		logger.Printf("invalid plan params: %v", err)
		return 2
	}

	schedule, err := planner.New(params.Plan.Groups).Plan(params.Plan)
	if err != nil {
		logger.Printf("plan: %v", err)
		return 1
	}
	partitions, err := partition.Split(schedule, params.Workers)
	if err != nil {
		logger.Printf("partition: %v", err)
		return 1
	}

	engine := core.NewDefaultRulesEngine()
	result, err := core.EvaluateSchedule(ctx, engine, schedule, partitions)
	if err != nil {
		logger.Printf("evaluate schedule: %v", err)
		return 1
	}
	for _, v := range result.Violations {
		logger.Printf("rule %s [%s]: %s", v.Rule, v.Severity, v.Message)
	}
	if result.HasBlocking() {
		logger.Print("schedule rejected by rules")
		return 1
	}

	artifacts, err := blob.Open(ctx)
	if err != nil {
		logger.Printf("open artifact store: %v", err)
		return 1
	}
	doc := planner.Document{Version: planner.DocumentVersion, Schedule: schedule, Partitions: partitions}
	docInfo, err := blob.SaveScheduleDocument(ctx, artifacts, params.RunID, doc)
	if err != nil {
		logger.Printf("store schedule document: %v", err)
		return 1
	}
	fmt.Fprintf(stdout, "schedule document %s (%d bytes)\n", docInfo.Key, docInfo.Size)
	if *planOnly {
		planned := len(schedule.PlannedBatches())
		fmt.Fprintf(stdout, "planned %d/%d batches across %d partitions\n", planned, len(schedule.Batches), len(partitions))
		return 0
	}

	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		logger.Printf("open store: %v", err)
		return 1
	}
	svc := core.NewService(store, core.WithLogger(printfLogger{logger}))
	summary, err := svc.ImportSchedule(ctx, params.RunID, schedule)
	if err != nil {
		logger.Printf("import schedule: %v", err)
		return 1
	}
	fmt.Fprintf(stdout, "imported %d batches (%d already present)\n", summary.BatchesCreated, summary.BatchesSkipped)

	metrics := core.NewRunMetrics(nil)
	rn := runner.New(params.Simulation, schedule, partitions, svc.Recorder(params.RunID, schedule), runner.WithMetrics(metrics))
	report := rn.Run(ctx)

	if _, err := blob.SaveRunReport(ctx, artifacts, params.RunID, report); err != nil {
		logger.Printf("store run report: %v", err)
		return 1
	}
	if *metricsOut != "" {
		if err := writeMetrics(*metricsOut, metrics.Registry()); err != nil {
			logger.Printf("write metrics: %v", err)
			return 1
		}
		fmt.Fprintf(stdout, "run metrics written to %s\n", *metricsOut)
	}
	printReport(stdout, report)
	return report.ExitCode()
}

// writeMetrics dumps the registry in Prometheus text exposition format, so
// short-lived runs leave a scrapeable artifact behind.
func writeMetrics(path string, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func printReport(w io.Writer, report runner.Report) {
	fmt.Fprintf(w, "run finished in %s: %d succeeded, %d infeasible, %d failed\n",
		report.Elapsed.Round(time.Millisecond), report.Succeeded, report.Infeasible, report.Failed)
	fmt.Fprintf(w, "recorded %d daily states and %d events\n", report.States, report.Events)
	for _, p := range report.Partitions {
		status := "complete"
		if !p.Complete {
			status = "incomplete"
		}
		fmt.Fprintf(w, "partition %d: %d/%d batches (%s)\n", p.Index, p.Completed, p.Batches, status)
	}
	for _, o := range report.Outcomes {
		if o.Status == runner.StatusSucceeded {
			continue
		}
		fmt.Fprintf(w, "batch %s: %s %s\n", o.BatchID, o.Status, o.Reason)
	}
}

// printfLogger adapts the standard library logger to the service's
// structured logging interface.
type printfLogger struct{ l *log.Logger }

func (p printfLogger) Debug(msg string, keyvals ...any) { p.print("DEBUG", msg, keyvals) }
func (p printfLogger) Info(msg string, keyvals ...any)  { p.print("INFO", msg, keyvals) }
func (p printfLogger) Error(msg string, keyvals ...any) { p.print("ERROR", msg, keyvals) }

func (p printfLogger) print(level, msg string, keyvals []any) {
	line := level + " " + msg
	for i := 0; i+1 < len(keyvals); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	p.l.Print(line)
}
