// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/layoutprobe/internal/checks"
	"github.com/xkilldash9x/layoutprobe/internal/runner"
	"github.com/xkilldash9x/layoutprobe/internal/viewport"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonDocument is the top-level JSON report.
type jsonDocument struct {
	Tool    string    `json:"tool"`
	Version string    `json:"version"`
	Runs    []jsonRun `json:"runs"`
}

type jsonRun struct {
	ID         string       `json:"id"`
	BaseURL    string       `json:"baseUrl"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Summary    jsonSummary  `json:"summary"`
	Results    []jsonResult `json:"results"`
}

type jsonSummary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
}

type jsonResult struct {
	Check      string             `json:"check"`
	Viewport   viewport.Viewport  `json:"viewport"`
	Path       string             `json:"path"`
	URL        string             `json:"url"`
	Status     runner.Status      `json:"status"`
	DurationMS int64              `json:"durationMs"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Violations []checks.Violation `json:"violations,omitempty"`
}

// JSONReporter buffers runs and writes one JSON document on Close.
type JSONReporter struct {
	writer io.WriteCloser
	doc    jsonDocument
	mu     sync.Mutex
}

// NewJSONReporter creates a JSON reporter that owns writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		doc:    jsonDocument{Tool: ToolName, Version: toolVersion, Runs: []jsonRun{}},
	}
}

// Write adds run to the document.
func (r *JSONReporter) Write(run *runner.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	passed, failed, errored := run.Counts()
	jr := jsonRun{
		ID:         run.ID,
		BaseURL:    run.BaseURL,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Summary:    jsonSummary{Passed: passed, Failed: failed, Errored: errored},
		Results:    make([]jsonResult, 0, len(run.Results)),
	}
	for _, res := range run.Results {
		item := jsonResult{
			Check:      res.Check,
			Viewport:   res.Viewport,
			Path:       res.Path,
			URL:        res.URL,
			Status:     res.Status,
			DurationMS: res.Duration.Milliseconds(),
			Message:    res.Message,
			Violations: res.Violations,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		jr.Results = append(jr.Results, item)
	}
	r.doc.Runs = append(r.doc.Runs, jr)
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.doc)
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
