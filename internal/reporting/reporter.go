// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/layoutprobe/internal/runner"
)

// Reporter writes audit runs to an output.
type Reporter interface {
	// Write records a completed run.
	Write(run *runner.Run) error
	// Close finalizes the report and closes the underlying writer.
	Close() error
}

// Formats lists the supported report formats.
var Formats = []string{"text", "json", "sarif", "junit"}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath, or to stdout when
// the path is empty or "stdout".
func New(format, outputPath, toolVersion string) (Reporter, error) {
	if !supported(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer, toolVersion)
}

// NewWriter creates a reporter for format that takes ownership of w.
func NewWriter(format string, w io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case "text":
		return NewTextReporter(w), nil
	case "json":
		return NewJSONReporter(w, toolVersion), nil
	case "sarif":
		return NewSARIFReporter(w, toolVersion), nil
	case "junit":
		return NewJUnitReporter(w), nil
	default:
		_ = w.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func supported(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

// caseName identifies a result within a run.
func caseName(res runner.Result) string {
	return fmt.Sprintf("%s @ %s %s", res.Check, res.Viewport, res.Path)
}
