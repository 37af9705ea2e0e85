// Package patch extracts unified diffs and full-file bodies from free-form model output.
package patch

import (
	"fmt"
	"regexp"
	"strings"
)

// HeaderlessName is the key of the first diff block without a recognizable
// file header; later headerless blocks get numbered keys (patch_2.diff, ...).
const HeaderlessName = "patch.diff"

var (
	diffBlockRe  = regexp.MustCompile("(?is)```diff\\s+(.*?)```")
	oldHeaderRe  = regexp.MustCompile(`(?m)^---[ \t]+(a/.+|/dev/null)[ \t]*\r?$`)
	newHeaderRe  = regexp.MustCompile(`(?m)^\+\+\+[ \t]+b/(.+?)[ \t]*\r?$`)
	fullBlockRe  = regexp.MustCompile("(?is)```(?:java|ya?ml|json|xml)[ \\t]*\\r?\\n(.*?)```")
	fileHeaderRe = regexp.MustCompile(`^\s*(?://|#)\s*FILE:\s*(.+?)\s*$`)
	hunkRe       = regexp.MustCompile(`(?m)^@@ -\d+(?:,\d+)? \+\d+(?:,\d+)? @@`)
)

// Diff is one extracted unified diff.
type Diff struct {
	Path string
	Body string
	// Headerless is set when Path was synthesized.
	Headerless bool
	// Hunkless is set when Body has no @@ hunk marker; git will reject it.
	Hunkless bool
}

// Set is an ordered mapping of target path to diff text. Order is the order
// in which paths first appeared; a repeated path keeps its slot and takes the
// later body.
type Set []Diff

// Map returns the set as a plain path -> body mapping.
func (s Set) Map() map[string]string {
	out := make(map[string]string, len(s))
	for _, d := range s {
		out[d.Path] = d.Body
	}
	return out
}

// Paths lists keys in order.
func (s Set) Paths() []string {
	out := make([]string, 0, len(s))
	for _, d := range s {
		out = append(out, d.Path)
	}
	return out
}

func (s Set) put(d Diff) Set {
	for i := range s {
		if s[i].Path == d.Path {
			s[i] = d
			return s
		}
	}
	return append(s, d)
}

// ExtractUnifiedDiffs scans text for ```diff fences. It never fails: a block
// without headers is kept under a synthesized name.
func ExtractUnifiedDiffs(text string) Set {
	var out Set
	headerless := 0
	for _, m := range diffBlockRe.FindAllStringSubmatch(text, -1) {
		body := m[1]
		if strings.TrimSpace(body) == "" {
			continue
		}
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		path, ok := targetPath(body)
		if !ok {
			headerless++
			path = HeaderlessName
			if headerless > 1 {
				path = fmt.Sprintf("patch_%d.diff", headerless)
			}
		}
		out = out.put(Diff{Path: path, Body: body, Headerless: !ok, Hunkless: !HasHunk(body)})
	}
	return out
}

// targetPath reads the first old-file header; /dev/null defers to the new-file header.
func targetPath(body string) (string, bool) {
	m := oldHeaderRe.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	if old := strings.TrimSpace(m[1]); old != "/dev/null" {
		return strings.TrimPrefix(old, "a/"), true
	}
	if nm := newHeaderRe.FindStringSubmatch(body); nm != nil {
		return strings.TrimSpace(nm[1]), true
	}
	return "", false
}

// HasHunk reports whether body carries at least one @@ hunk marker.
func HasHunk(body string) bool {
	return hunkRe.MatchString(body)
}

// FullFile is a complete file body declared with a FILE header comment.
type FullFile struct {
	Path string
	Body string
}

// ExtractFullFiles returns language-fenced blocks whose first non-blank line is
// a `// FILE: <path>` or `# FILE: <path>` header. The header line is removed.
func ExtractFullFiles(text string) []FullFile {
	var out []FullFile
	index := make(map[string]int)
	for _, m := range fullBlockRe.FindAllStringSubmatch(text, -1) {
		path, body, ok := splitFileHeader(m[1])
		if !ok {
			continue
		}
		if i, seen := index[path]; seen {
			out[i].Body = body
			continue
		}
		index[path] = len(out)
		out = append(out, FullFile{Path: path, Body: body})
	}
	return out
}

func splitFileHeader(block string) (string, string, bool) {
	rest := block
	for rest != "" {
		line, tail, _ := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == "" {
			rest = tail
			continue
		}
		m := fileHeaderRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			return "", "", false
		}
		path := strings.TrimSpace(m[1])
		if path == "" {
			return "", "", false
		}
		return path, strings.TrimLeft(tail, "\r\n"), true
	}
	return "", "", false
}

// HasAnyCode reports whether text holds a diff block or a header-carrying
// full-file block.
func HasAnyCode(text string) bool {
	if diffBlockRe.MatchString(text) {
		return true
	}
	return len(ExtractFullFiles(text)) > 0
}
