// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/layoutprobe/internal/runner"
)

// JUnitReporter writes JUnit XML so CI systems can display cases. Each
// check is a test suite; each viewport and path is a test case.
type JUnitReporter struct {
	writer io.WriteCloser
	doc    *etree.Document
	root   *etree.Element
	mu     sync.Mutex

	tests, failures, errors int
	elapsed                 time.Duration
}

// NewJUnitReporter creates a JUnit reporter that owns writer.
func NewJUnitReporter(writer io.WriteCloser) *JUnitReporter {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("testsuites")
	root.CreateAttr("name", ToolName)
	return &JUnitReporter{writer: writer, doc: doc, root: root}
}

type suiteTally struct {
	el                      *etree.Element
	tests, failures, errors int
	elapsed                 time.Duration
}

// Write adds one suite per check of run.
func (r *JUnitReporter) Write(run *runner.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	suites := make(map[string]*suiteTally)
	var order []*suiteTally
	for _, res := range run.Results {
		s, ok := suites[res.Check]
		if !ok {
			el := r.root.CreateElement("testsuite")
			el.CreateAttr("name", res.Check)
			el.CreateAttr("timestamp", run.StartedAt.Format("2006-01-02T15:04:05"))
			props := el.CreateElement("properties")
			prop := props.CreateElement("property")
			prop.CreateAttr("name", "run_id")
			prop.CreateAttr("value", run.ID)
			s = &suiteTally{el: el}
			suites[res.Check] = s
			order = append(order, s)
		}

		tc := s.el.CreateElement("testcase")
		tc.CreateAttr("classname", res.Check)
		tc.CreateAttr("name", fmt.Sprintf("%s %s", res.Viewport, res.Path))
		tc.CreateAttr("time", seconds(res.Duration))
		s.tests++
		s.elapsed += res.Duration

		switch res.Status {
		case runner.StatusFail:
			s.failures++
			f := tc.CreateElement("failure")
			f.CreateAttr("type", "violation")
			f.CreateAttr("message", fmt.Sprintf("%d %s", len(res.Violations), pluralize(len(res.Violations), "violation")))
			f.SetText(res.Message)
		case runner.StatusError:
			s.errors++
			e := tc.CreateElement("error")
			e.CreateAttr("type", "infrastructure")
			e.CreateAttr("message", res.Err.Error())
		}
	}

	for _, s := range order {
		s.el.CreateAttr("tests", strconv.Itoa(s.tests))
		s.el.CreateAttr("failures", strconv.Itoa(s.failures))
		s.el.CreateAttr("errors", strconv.Itoa(s.errors))
		s.el.CreateAttr("time", seconds(s.elapsed))
		r.tests += s.tests
		r.failures += s.failures
		r.errors += s.errors
		r.elapsed += s.elapsed
	}
	return nil
}

// Close writes the document and closes the writer.
func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.root.CreateAttr("tests", strconv.Itoa(r.tests))
	r.root.CreateAttr("failures", strconv.Itoa(r.failures))
	r.root.CreateAttr("errors", strconv.Itoa(r.errors))
	r.root.CreateAttr("time", seconds(r.elapsed))
	r.doc.Indent(2)

	_, writeErr := r.doc.WriteTo(r.writer)
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write JUnit report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
