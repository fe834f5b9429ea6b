package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"batchcore/internal/planner"
	"batchcore/internal/runner"
)

const jsonContentType = "application/json"

// ScheduleDocumentKey returns the artifact key for a run's schedule document.
func ScheduleDocumentKey(runID string) string { return "runs/" + runID + "/schedule.json" }

// RunReportKey returns the artifact key for a run's execution report.
func RunReportKey(runID string) string { return "runs/" + runID + "/report.json" }

// SaveScheduleDocument writes the encoded schedule document for runID.
// An existing document under the same key is replaced so replaying a run
// is not an error.
func SaveScheduleDocument(ctx context.Context, store Store, runID string, doc planner.Document) (Info, error) {
	if runID == "" {
		return Info{}, fmt.Errorf("run id required")
	}
	data, err := planner.EncodeDocument(doc)
	if err != nil {
		return Info{}, err
	}
	return putReplacing(ctx, store, ScheduleDocumentKey(runID), data, PutOptions{
		ContentType: jsonContentType,
		Metadata:    map[string]string{"run_id": runID},
	})
}

// LoadScheduleDocument reads back the schedule document stored for runID.
func LoadScheduleDocument(ctx context.Context, store Store, runID string) (planner.Document, error) {
	_, rc, err := store.Get(ctx, ScheduleDocumentKey(runID))
	if err != nil {
		return planner.Document{}, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return planner.Document{}, err
	}
	return planner.DecodeDocument(data)
}

// SaveRunReport writes the execution report for runID as indented JSON.
func SaveRunReport(ctx context.Context, store Store, runID string, report runner.Report) (Info, error) {
	if runID == "" {
		return Info{}, fmt.Errorf("run id required")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Info{}, err
	}
	return putReplacing(ctx, store, RunReportKey(runID), data, PutOptions{
		ContentType: jsonContentType,
		Metadata:    map[string]string{"run_id": runID},
	})
}

// LoadRunReport reads back the execution report stored for runID.
func LoadRunReport(ctx context.Context, store Store, runID string) (runner.Report, error) {
	_, rc, err := store.Get(ctx, RunReportKey(runID))
	if err != nil {
		return runner.Report{}, err
	}
	defer func() { _ = rc.Close() }()
	var report runner.Report
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		return runner.Report{}, err
	}
	return report, nil
}

// ListRunArtifacts returns every artifact stored for runID.
func ListRunArtifacts(ctx context.Context, store Store, runID string) ([]Info, error) {
	return store.List(ctx, "runs/"+runID+"/")
}

func putReplacing(ctx context.Context, store Store, key string, data []byte, opts PutOptions) (Info, error) {
	if _, err := store.Delete(ctx, key); err != nil {
		return Info{}, err
	}
	return store.Put(ctx, key, bytes.NewReader(data), opts)
}
