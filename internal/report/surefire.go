// Package report turns surefire XML reports and the specmatic log into one normalized failure summary.
package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/animus-coder/contractfix/internal/textutil"
)

const (
	// DetailLimit caps each failure's detail text.
	DetailLimit = 2000
	// LogLimit caps the embedded specmatic log.
	LogLimit = 4000

	header      = "== Parsed Test Results =="
	logHeader   = "\n== specmatic.log =="
	logTruncMrk = "\n...truncated..."
)

// Count is a suite counter; Unknown when the attribute is absent or not numeric.
type Count int

// Unknown marks a counter the report did not provide.
const Unknown Count = -1

func (c Count) String() string {
	if c < 0 {
		return "?"
	}
	return strconv.Itoa(int(c))
}

// TestCase is one failing test case.
type TestCase struct {
	Name    string
	Kind    string // "failure" or "error"
	Message string
	Detail  string
}

// Suite is one parsed result file. Err is set when the file could not be parsed.
type Suite struct {
	File     string
	Name     string
	Tests    Count
	Failures Count
	Errors   Count
	Cases    []TestCase
	Err      error
}

// Report is the normalized outcome of one parse. It is never mutated after Parse returns.
type Report struct {
	Dir          string
	Missing      bool
	Suites       []Suite
	Log          string
	HasLog       bool
	LogTruncated bool
}

// Parse reads every *.xml file in dir in sorted order plus the optional log at logPath.
// Parsing is best-effort per file; a missing dir yields a Report with Missing set.
func Parse(dir, logPath string) Report {
	rep := Report{Dir: dir}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		rep.Missing = true
		return rep
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		// Glob only fails on a malformed pattern, which a joined directory cannot produce.
		files = nil
	}
	sort.Strings(files)

	for _, f := range files {
		suite, ok := parseFile(f)
		if !ok {
			continue
		}
		rep.Suites = append(rep.Suites, suite)
	}

	if logPath != "" {
		if data, err := os.ReadFile(logPath); err == nil {
			rep.HasLog = true
			txt := strings.ToValidUTF8(string(data), "")
			rep.LogTruncated = textutil.Len(txt) > LogLimit
			rep.Log = textutil.Head(txt, LogLimit)
		}
	}
	return rep
}

type xmlSuite struct {
	XMLName  xml.Name
	Name     string    `xml:"name,attr"`
	Tests    string    `xml:"tests,attr"`
	Failures string    `xml:"failures,attr"`
	Errors   string    `xml:"errors,attr"`
	Cases    []xmlCase `xml:"testcase"`
}

type xmlCase struct {
	Name     string       `xml:"name,attr"`
	Failures []xmlProblem `xml:"failure"`
	Errors   []xmlProblem `xml:"error"`
}

type xmlProblem struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// parseFile returns ok=false for well-formed files whose root is not a testsuite.
func parseFile(path string) (Suite, bool) {
	base := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{File: base, Err: err}, true
	}

	var xs xmlSuite
	if err := xml.Unmarshal(data, &xs); err != nil {
		return Suite{File: base, Err: err}, true
	}
	if xs.XMLName.Local != "testsuite" {
		return Suite{}, false
	}

	s := Suite{
		File:     base,
		Name:     xs.Name,
		Tests:    parseCount(xs.Tests),
		Failures: parseCount(xs.Failures),
		Errors:   parseCount(xs.Errors),
	}
	if s.Name == "" {
		s.Name = base
	}
	for _, tc := range xs.Cases {
		name := tc.Name
		if name == "" {
			name = "?"
		}
		switch {
		case len(tc.Failures) > 0:
			s.Cases = append(s.Cases, newCase(name, "failure", tc.Failures[0]))
		case len(tc.Errors) > 0:
			s.Cases = append(s.Cases, newCase(name, "error", tc.Errors[0]))
		}
	}
	return s, true
}

func newCase(name, kind string, p xmlProblem) TestCase {
	return TestCase{
		Name:    name,
		Kind:    kind,
		Message: strings.TrimSpace(p.Message),
		Detail:  textutil.Head(strings.TrimSpace(p.Text), DetailLimit),
	}
}

func parseCount(raw string) Count {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return Unknown
	}
	return Count(n)
}

// FailureCount is the number of failing test cases across all suites.
func (r Report) FailureCount() int {
	n := 0
	for _, s := range r.Suites {
		n += len(s.Cases)
	}
	return n
}

// FailingTests lists failing test case names in report order.
func (r Report) FailingTests() []string {
	var out []string
	for _, s := range r.Suites {
		for _, c := range s.Cases {
			out = append(out, c.Name)
		}
	}
	return out
}

// String renders the normalized text blob embedded in prompts and written to parsed.txt.
func (r Report) String() string {
	if r.Missing {
		return fmt.Sprintf("No surefire dir: %s", r.Dir)
	}

	lines := []string{header}
	for _, s := range r.Suites {
		if s.Err != nil {
			lines = append(lines, fmt.Sprintf("PARSER_ERROR: %s: %v", s.File, s.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("Suite: %s | tests=%s failures=%s errors=%s", s.Name, s.Tests, s.Failures, s.Errors))
		for _, c := range s.Cases {
			label := "FAIL"
			if c.Kind == "error" {
				label = "ERROR"
			}
			lines = append(lines, fmt.Sprintf("  %s: %s : %s", label, c.Name, c.Message))
			if c.Detail != "" {
				lines = append(lines, "    DETAILS: "+c.Detail)
			}
		}
	}

	if r.HasLog {
		lines = append(lines, logHeader)
		body := r.Log
		if r.LogTruncated {
			body += logTruncMrk
		}
		lines = append(lines, body)
	}
	return strings.Join(lines, "\n")
}
