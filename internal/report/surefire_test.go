package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const orderSuite = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="OrderContractTest" tests="3" failures="1" errors="0">
  <testcase name="shouldCreateOrder"/>
  <testcase name="shouldListOrders"/>
  <testcase name="shouldReturn404">
    <failure message="expected 404 but got 200">java.lang.AssertionError: expected 404 but got 200
	at OrderContractTest.shouldReturn404(OrderContractTest.java:42)</failure>
  </testcase>
</testsuite>`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseSingleFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TEST-OrderContractTest.xml"), orderSuite)

	rep := Parse(dir, "")
	out := rep.String()

	require.True(t, strings.HasPrefix(out, "== Parsed Test Results =="))
	require.Contains(t, out, "Suite: OrderContractTest | tests=3 failures=1 errors=0")
	require.Contains(t, out, "  FAIL: shouldReturn404 : expected 404 but got 200")
	require.Contains(t, out, "    DETAILS: java.lang.AssertionError: expected 404 but got 200")
	require.NotContains(t, out, "specmatic.log")
	require.Equal(t, 1, rep.FailureCount())
	require.Equal(t, []string{"shouldReturn404"}, rep.FailingTests())
}

func TestParseMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	require.Equal(t, "No surefire dir: "+dir, Parse(dir, "").String())
}

func TestParseUnknownCountersAndDefaultName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TEST-Bare.xml"), `<testsuite tests="abc"><testcase name="ok"/></testsuite>`)

	out := Parse(dir, "").String()
	require.Contains(t, out, "Suite: TEST-Bare.xml | tests=? failures=? errors=?")
}

func TestParseBestEffortPerFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A-broken.xml"), `<testsuite name="Broken"`)
	writeFile(t, filepath.Join(dir, "B-other.xml"), `<coverage line-rate="1"/>`)
	writeFile(t, filepath.Join(dir, "C-good.xml"), orderSuite)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	rep := Parse(dir, "")
	require.Len(t, rep.Suites, 2)

	lines := strings.Split(rep.String(), "\n")
	require.True(t, strings.HasPrefix(lines[1], "PARSER_ERROR: A-broken.xml: "))
	require.Equal(t, "Suite: OrderContractTest | tests=3 failures=1 errors=0", lines[2])
}

func TestParseErrorElements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TEST-Err.xml"), `<testsuite name="Err" tests="1" failures="0" errors="1">
<testcase name="boom"><error message="NPE"></error></testcase></testsuite>`)

	out := Parse(dir, "").String()
	require.Contains(t, out, "  ERROR: boom : NPE")
	require.NotContains(t, out, "DETAILS")
}

func TestParseDetailsCapped(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("x", DetailLimit+500)
	writeFile(t, filepath.Join(dir, "TEST-Long.xml"),
		`<testsuite name="Long" tests="1" failures="1" errors="0"><testcase name="t"><failure message="m">`+long+`</failure></testcase></testsuite>`)

	rep := Parse(dir, "")
	require.Len(t, rep.Suites[0].Cases[0].Detail, DetailLimit)
}

func TestParseLogTruncation(t *testing.T) {
	dir := t.TempDir()
	reports := filepath.Join(dir, "surefire-reports")
	writeFile(t, filepath.Join(reports, "TEST-Order.xml"), orderSuite)

	shortLog := filepath.Join(dir, "short.log")
	writeFile(t, shortLog, strings.Repeat("a", LogLimit))
	out := Parse(reports, shortLog).String()
	require.True(t, strings.HasSuffix(out, "\n== specmatic.log ==\n"+strings.Repeat("a", LogLimit)))
	require.NotContains(t, out, "...truncated...")

	longLog := filepath.Join(dir, "long.log")
	writeFile(t, longLog, strings.Repeat("b", LogLimit+1))
	out = Parse(reports, longLog).String()
	require.True(t, strings.HasSuffix(out, strings.Repeat("b", LogLimit)+"\n...truncated..."))
}

func TestParseDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "TEST-B.xml"), strings.Replace(orderSuite, "OrderContractTest", "B", 1))
	writeFile(t, filepath.Join(dir, "TEST-A.xml"), strings.Replace(orderSuite, "OrderContractTest", "A", 1))
	logPath := filepath.Join(dir, "specmatic.log")
	writeFile(t, logPath, "contract mismatch at /orders")

	first := Parse(dir, logPath).String()
	second := Parse(dir, logPath).String()
	require.Equal(t, first, second)
	require.Less(t, strings.Index(first, "Suite: A "), strings.Index(first, "Suite: B "))
}
