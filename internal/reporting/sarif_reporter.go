// internal/reporting/sarif_reporter.go
package reporting

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/layoutprobe/internal/observability"
	"github.com/xkilldash9x/layoutprobe/internal/reporting/sarif"
	"github.com/xkilldash9x/layoutprobe/internal/runner"
)

// Constants for tool identification in reports.
const (
	ToolName     = "layoutprobe"
	ToolInfoURI  = "https://github.com/xkilldash9x/layoutprobe"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer collapses anything outside [a-zA-Z0-9_.] into one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFReporter implements Reporter for SARIF 2.1.0. Each check becomes a
// rule; each violation becomes a result located at the audited URL.
type SARIFReporter struct {
	writer      io.WriteCloser
	logger      *zap.Logger
	log         *sarif.Log
	toolVersion string
	mu          sync.Mutex
	// rules maps a check name to its registered rule ID.
	rules map[string]string
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs:    []*sarif.Run{},
	}
	return &SARIFReporter{
		writer:      writer,
		logger:      observability.GetLogger().Named("sarif_reporter"),
		log:         log,
		toolVersion: toolVersion,
		rules:       make(map[string]string),
	}
}

func (r *SARIFReporter) newRun(toolVersion string) *sarif.Run {
	return &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(toolVersion),
				InformationURI: pString(ToolInfoURI),
				Rules:          []*sarif.ReportingDescriptor{},
			},
		},
		Results: []*sarif.Result{},
	}
}

// Write converts a run into a SARIF run.
func (r *SARIFReporter) Write(run *runner.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sr := r.newRun(r.toolVersion)
	sr.Properties = &sarif.PropertyBag{"runId": run.ID, "baseUrl": run.BaseURL}
	r.rules = make(map[string]string)

	invocation := &sarif.Invocation{
		ExecutionSuccessful: true,
		StartTimeUTC:        pString(run.StartedAt.Format(time.RFC3339)),
		EndTimeUTC:          pString(run.FinishedAt.Format(time.RFC3339)),
	}

	for _, res := range run.Results {
		ruleID := r.ensureRule(sr, res)
		switch res.Status {
		case runner.StatusFail:
			for _, v := range res.Violations {
				sr.Results = append(sr.Results, &sarif.Result{
					RuleID:    ruleID,
					Message:   &sarif.Message{Text: pString(v.Summary())},
					Level:     sarif.LevelError,
					Locations: locations(res),
					Properties: &sarif.PropertyBag{
						"viewport": res.Viewport.Name,
						"width":    res.Viewport.Width,
						"height":   res.Viewport.Height,
					},
				})
			}
		case runner.StatusError:
			invocation.ExecutionSuccessful = false
			invocation.ToolExecutionNotifications = append(invocation.ToolExecutionNotifications, &sarif.Notification{
				Message: &sarif.Message{Text: pString(fmt.Sprintf("%s: %v", caseName(res), res.Err))},
				Level:   sarif.LevelError,
			})
		}
	}
	sr.Invocations = []*sarif.Invocation{invocation}
	r.log.Runs = append(r.log.Runs, sr)

	r.logger.Debug("Wrote run to SARIF buffer", zap.String("run_id", run.ID), zap.Int("results", len(sr.Results)))
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

// ruleID derives a stable rule identifier from a check name.
func ruleID(check string) string {
	name := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(check), "-"), "-")
	if name == "" {
		name = "UNNAMED-CHECK"
	}
	return "LAYOUTPROBE-" + name
}

// ensureRule registers the check of res as a rule once per run.
func (r *SARIFReporter) ensureRule(sr *sarif.Run, res runner.Result) string {
	if id, ok := r.rules[res.Check]; ok {
		return id
	}
	id := ruleID(res.Check)
	sr.Tool.Driver.Rules = append(sr.Tool.Driver.Rules, &sarif.ReportingDescriptor{
		ID:               id,
		Name:             pString(res.Check),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(res.Check)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(res.Description)},
		Properties: &sarif.PropertyBag{
			"tags": []string{"layout", "accessibility"},
		},
	})
	r.rules[res.Check] = id
	return id
}

func locations(res runner.Result) []*sarif.Location {
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(res.URL)},
		},
		Message: &sarif.Message{Text: pString(fmt.Sprintf("Observed at %s", res.Viewport))},
	}}
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
