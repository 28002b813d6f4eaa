// internal/reporting/text_reporter.go
package reporting

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/layoutprobe/internal/runner"
)

// TextReporter writes a human readable report.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewTextReporter creates a text reporter that owns writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

// Write renders every case of run followed by a summary line.
func (r *TextReporter) Write(run *runner.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := bufio.NewWriter(r.writer)
	fmt.Fprintf(w, "Run %s against %s\n\n", run.ID, run.BaseURL)
	for _, res := range run.Results {
		fmt.Fprintf(w, "%-5s %s (%s)\n", strings.ToUpper(string(res.Status)), caseName(res), res.Duration.Round(time.Millisecond))
		switch res.Status {
		case runner.StatusFail:
			fmt.Fprintf(w, "%s\n", indent(res.Message, "      "))
		case runner.StatusError:
			fmt.Fprintf(w, "      %v\n", res.Err)
		}
	}
	fmt.Fprintf(w, "\n%s\n", run.Summary())
	return w.Flush()
}

// Close closes the underlying writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
