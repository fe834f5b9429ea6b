package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const feasibleParams = `run_id: run-test
workers: 2
plan:
  batch_count: 2
  stagger_days: 5
  epoch: 2025-01-01T00:00:00Z
  stages:
    - name: grow
      kind: sea_area
      duration_days: 10
      ideal_units: 1
      min_units: 1
      tgc: 3
  groups:
    - id: sea-1
      name: Sea Site 1
      kind: sea_area
      region: west
      unit_count: 4
simulation:
  initial_population: 1000
  seed: 7
`

func writeParams(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write params: %v", err)
	}
	return path
}

func useMemoryBackends(t *testing.T) {
	t.Helper()
	t.Setenv("BATCHCORE_STORAGE_DRIVER", "memory")
	t.Setenv("BATCHCORE_BLOB_DRIVER", "memory")
}

func TestRunFullPipeline(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, feasibleParams)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-params", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "schedule document runs/run-test/schedule.json") {
		t.Fatalf("missing schedule document line: %s", out)
	}
	if !strings.Contains(out, "2 succeeded, 0 infeasible, 0 failed") {
		t.Fatalf("missing run summary: %s", out)
	}
}

func TestRunReportsInfeasibleBatches(t *testing.T) {
	useMemoryBackends(t)
	// One unit and a one-day stagger: only the first batch can reserve the
	// grow window, the other two plan infeasible.
	constrained := strings.NewReplacer(
		"batch_count: 2", "batch_count: 3",
		"stagger_days: 5", "stagger_days: 1",
		"unit_count: 4", "unit_count: 1",
	).Replace(feasibleParams)
	path := writeParams(t, constrained)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-params", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "1 succeeded, 2 infeasible, 0 failed") {
		t.Fatalf("infeasible batches missing from summary: %s", out)
	}
	if !strings.Contains(out, "batch batch-0002: infeasible") || !strings.Contains(out, "batch batch-0003: infeasible") {
		t.Fatalf("infeasible outcomes not listed: %s", out)
	}
}

func TestRunWritesMetricsFile(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, feasibleParams)
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")
	var stdout, stderr bytes.Buffer
	code := run([]string{"-params", path, "-metrics-out", metricsPath}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, `batchcore_run_batches_total{status="succeeded"} 2`) {
		t.Fatalf("batch counter missing: %s", text)
	}
	if !strings.Contains(text, "batchcore_run_simulated_days_total") {
		t.Fatalf("simulated days counter missing: %s", text)
	}
	if !strings.Contains(text, `batchcore_run_partitions_total{complete="true"} 2`) {
		t.Fatalf("partition counter missing: %s", text)
	}
}

func TestRunPlanOnly(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, feasibleParams)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-params", path, "-plan-only"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "planned 2/2 batches") {
		t.Fatalf("missing plan summary: %s", stdout.String())
	}
	if strings.Contains(stdout.String(), "succeeded") {
		t.Fatalf("plan-only must not simulate: %s", stdout.String())
	}
}

func TestRunOverridesFromFlags(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, feasibleParams)
	var stdout, stderr bytes.Buffer
	code := run([]string{"-params", path, "-run-id", "run-alt", "-workers", "1", "-plan-only"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "runs/run-alt/schedule.json") {
		t.Fatalf("run id override ignored: %s", stdout.String())
	}
}

func TestRunRequiresParamsFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr.String(), "-params is required") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestRunRejectsInvalidPlan(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, "run_id: run-x\nplan:\n  batch_count: 0\n")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-params", path}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "invalid plan params") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}

func TestRunRequiresRunID(t *testing.T) {
	useMemoryBackends(t)
	path := writeParams(t, strings.Replace(feasibleParams, "run_id: run-test\n", "", 1))
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-params", path}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
}
