package collect

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FileWalker abstracts file traversal and reading.
type FileWalker interface {
	WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error
	ReadFile(path string) (string, error)
}

// Index ranks candidate repository paths by relevance to the failure summary.
type Index struct {
	fs           FileWalker
	maxScan      int
	maxFileBytes int
}

// IndexEntry is one ranked candidate path.
type IndexEntry struct {
	Path  string
	Score float64
}

var indexExts = map[string]struct{}{
	".java": {}, ".kt": {}, ".yml": {}, ".yaml": {}, ".json": {}, ".xml": {}, ".properties": {},
}

// NewIndex builds an index over fw. maxScan caps the number of indexable
// files considered; other files do not count toward it.
func NewIndex(fw FileWalker, maxScan int, maxFileBytes int) *Index {
	if maxScan <= 0 {
		maxScan = 2000
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024
	}
	return &Index{fs: fw, maxScan: maxScan, maxFileBytes: maxFileBytes}
}

// Build returns up to limit candidate paths, best match first. Files with no
// token overlap are still listed after every scored file so the model sees
// what it may create or edit.
func (ix *Index) Build(query string, limit int) ([]IndexEntry, error) {
	if ix == nil || ix.fs == nil {
		return nil, fmt.Errorf("file index unavailable")
	}
	if limit <= 0 {
		return nil, nil
	}
	qTokens := uniqueTokens(query)

	var entries []IndexEntry
	err := ix.fs.WalkFiles(".", 0, func(rel string, info fs.DirEntry) error {
		if info.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if _, ok := indexExts[strings.ToLower(filepath.Ext(rel))]; !ok {
			return nil
		}
		if len(entries) >= ix.maxScan {
			return fs.SkipAll
		}
		path := filepath.ToSlash(rel)
		score := 0.0
		if len(qTokens) > 0 {
			content, err := ix.fs.ReadFile(rel)
			if err != nil {
				content = ""
			}
			if len(content) > ix.maxFileBytes {
				content = content[:ix.maxFileBytes]
			}
			score = overlapScore(qTokens, tokenize(path+"\n"+content))
		}
		entries = append(entries, IndexEntry{Path: path, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score == entries[j].Score {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RenderIndex lists one path per line.
func RenderIndex(entries []IndexEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("- ")
		b.WriteString(e.Path)
		b.WriteByte('\n')
	}
	return b.String()
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_]+`)

// tokenize splits on non-word runes and also breaks camelCase identifiers so
// "OrderController" matches "order" in a failure message.
func tokenize(s string) []string {
	raw := tokenRe.FindAllString(s, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		lower := strings.ToLower(tok)
		out = append(out, lower)
		for _, part := range splitCamel(tok) {
			if p := strings.ToLower(part); p != lower && len(p) > 2 {
				out = append(out, p)
			}
		}
	}
	return out
}

func uniqueTokens(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, t := range tokenize(s) {
		if len(t) < 3 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func splitCamel(s string) []string {
	var parts []string
	start := 0
	for i := 1; i < len(s); i++ {
		c, prev := s[i], s[i-1]
		if c >= 'A' && c <= 'Z' && prev >= 'a' && prev <= 'z' {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	if start == 0 {
		return nil
	}
	return append(parts, s[start:])
}
