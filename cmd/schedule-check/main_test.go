package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"batchcore/internal/planner"
	"batchcore/pkg/domain"
)

func validDocument() planner.Document {
	entry := domain.ScheduleEntry{
		BatchID: "batch-0001", Stage: "grow", GroupID: "sea-1",
		UnitIDs: []string{"sea-1-u0"}, StartDay: 0, EndDay: 30,
	}
	return planner.Document{
		Version: planner.DocumentVersion,
		Schedule: domain.Schedule{
			Epoch: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Stages: []domain.StageDefinition{
				{Name: "grow", Kind: domain.KindSeaArea, DurationDays: 30, IdealUnits: 1, MinUnits: 1, TGC: 3},
			},
			Groups: []domain.ResourceGroup{
				{ID: "sea-1", Name: "Sea Site 1", Kind: domain.KindSeaArea, Region: "west", UnitCount: 2},
			},
			Batches: []domain.BatchPlan{
				{BatchID: "batch-0001", Region: "west", Outcome: domain.OutcomePlanned, Entries: []domain.ScheduleEntry{entry}},
			},
		},
		Partitions: []domain.Partition{
			{Index: 0, BatchIDs: []string{"batch-0001"}, FirstDay: 0, LastDay: 30},
		},
	}
}

func writeDocument(t *testing.T, doc planner.Document) string {
	t.Helper()
	data, err := planner.EncodeDocument(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestCheckAcceptsValidDocument(t *testing.T) {
	path := writeDocument(t, validDocument())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-file", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "schedule ok: 1/1 batches planned") {
		t.Fatalf("stdout: %s", stdout.String())
	}
}

func TestCheckRejectsDoubleBooking(t *testing.T) {
	doc := validDocument()
	second := doc.Schedule.Batches[0]
	second.BatchID = "batch-0002"
	second.Entries = []domain.ScheduleEntry{{
		BatchID: "batch-0002", Stage: "grow", GroupID: "sea-1",
		UnitIDs: []string{"sea-1-u0"}, StartDay: 10, EndDay: 40,
	}}
	doc.Schedule.Batches = append(doc.Schedule.Batches, second)
	doc.Partitions[0].BatchIDs = append(doc.Partitions[0].BatchIDs, "batch-0002")
	doc.Partitions[0].LastDay = 40

	path := writeDocument(t, doc)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-file", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit %d, stdout: %s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "schedule_unit_overlap") {
		t.Fatalf("expected overlap violation, got: %s", stdout.String())
	}
}

func TestCheckRejectsPartitionGap(t *testing.T) {
	doc := validDocument()
	doc.Partitions[0].BatchIDs = nil

	path := writeDocument(t, doc)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-file", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit %d, stdout: %s", code, stdout.String())
	}
	if !strings.Contains(stdout.String(), "partition_disjoint") {
		t.Fatalf("expected partition violation, got: %s", stdout.String())
	}
}

func TestCheckJSONOutput(t *testing.T) {
	path := writeDocument(t, validDocument())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-file", path, "-json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout.String()), "{") {
		t.Fatalf("expected JSON result, got: %s", stdout.String())
	}
}

func TestCheckRequiresExactlyOneSource(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d", code)
	}
	if code := run([]string{"-file", "x", "-run", "y"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d", code)
	}
}

func TestCheckRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte(`{"version":99}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-file", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr.String(), "version") {
		t.Fatalf("stderr: %s", stderr.String())
	}
}
