// Package collect gathers bounded snapshots of repository files for prompt context.
package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/logging"
	"github.com/animus-coder/contractfix/internal/textutil"
	"github.com/animus-coder/contractfix/internal/tools"
)

var (
	codeExts = map[string]struct{}{".java": {}, ".yml": {}, ".yaml": {}, ".json": {}}
	specExts = map[string]struct{}{".yml": {}, ".yaml": {}, ".json": {}}
)

const codeFileName = "pom.xml"

// Budget bounds one snapshot. Chars are counted in runes.
type Budget struct {
	MaxFiles int
	MaxChars int
}

// FileChunk is one admitted file. Path is absolute.
type FileChunk struct {
	Path      string
	Content   string
	Truncated bool
}

// Snapshot is an ordered set of chunks collected under one Budget.
type Snapshot struct {
	Budget Budget
	Chunks []FileChunk
	Used   int
}

// String renders every chunk with its provenance header.
func (s Snapshot) String() string {
	var b strings.Builder
	for _, c := range s.Chunks {
		fmt.Fprintf(&b, "\n--- FILE: %s ---\n%s\n", c.Path, c.Content)
	}
	return b.String()
}

// Paths lists chunk paths in collection order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		out = append(out, c.Path)
	}
	return out
}

func (s Snapshot) exhausted() bool {
	return len(s.Chunks) >= s.Budget.MaxFiles || s.Used >= s.Budget.MaxChars
}

// Collector reads files through a guarded filesystem with an LRU read cache
// shared by every snapshot of a run.
type Collector struct {
	fs     *tools.Filesystem
	cache  *lru.Cache[string, string]
	logger *zap.Logger
}

// New builds a collector. cacheEntries <= 0 uses a small default.
func New(fsys *tools.Filesystem, cacheEntries int, logger *zap.Logger) (*Collector, error) {
	if fsys == nil {
		return nil, errors.New("filesystem is required")
	}
	if cacheEntries <= 0 {
		cacheEntries = 128
	}
	cache, err := lru.New[string, string](cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	return &Collector{fs: fsys, cache: cache, logger: logging.OrNop(logger)}, nil
}

// Paths collects files under each root in order. Directories are walked
// recursively and filtered to source, resource and build files; roots that
// name a file directly are always admitted. Missing roots are skipped.
func (c *Collector) Paths(roots []string, budget Budget) Snapshot {
	snap := Snapshot{Budget: budget}
	for _, root := range roots {
		if snap.exhausted() {
			break
		}
		info, err := c.fs.Stat(root)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			c.admit(&snap, root)
			continue
		}
		_ = c.fs.WalkFiles(root, 0, func(rel string, d fs.DirEntry) error {
			if snap.exhausted() {
				return fs.SkipAll
			}
			if !admitCode(d.Name()) {
				return nil
			}
			c.admit(&snap, rel)
			return nil
		})
	}
	return snap
}

// Keyword collects spec-like files anywhere under the root whose relative
// path contains keyword, case-insensitively.
func (c *Collector) Keyword(keyword string, budget Budget) Snapshot {
	snap := Snapshot{Budget: budget}
	if snap.exhausted() {
		return snap
	}
	needle := strings.ToLower(keyword)
	_ = c.fs.WalkFiles(".", 0, func(rel string, d fs.DirEntry) error {
		if snap.exhausted() {
			return fs.SkipAll
		}
		if _, ok := specExts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}
		if !strings.Contains(strings.ToLower(filepath.ToSlash(rel)), needle) {
			return nil
		}
		c.admit(&snap, rel)
		return nil
	})
	return snap
}

// Single returns rel capped at maxChars, or an empty snapshot when it does not exist.
func (c *Collector) Single(rel string, maxChars int) Snapshot {
	snap := Snapshot{Budget: Budget{MaxFiles: 1, MaxChars: maxChars}}
	if _, err := c.fs.Stat(rel); err != nil {
		return snap
	}
	c.admit(&snap, rel)
	return snap
}

// admit reads rel into the snapshot using the remaining character budget.
// Read failures still occupy a file slot.
func (c *Collector) admit(snap *Snapshot, rel string) {
	remaining := snap.Budget.MaxChars - snap.Used
	abs, err := c.fs.Resolve(rel)
	if err != nil {
		abs = rel
	}

	content, err := c.ReadFile(rel)
	if err != nil {
		c.logger.Warn("context file unreadable", zap.String("path", abs), zap.Error(err))
		content = fmt.Sprintf("READ_ERROR(%s): %v", abs, err)
	}
	chunk := FileChunk{Path: abs, Content: textutil.Head(content, remaining)}
	chunk.Truncated = len(chunk.Content) < len(content)
	snap.Chunks = append(snap.Chunks, chunk)
	snap.Used += textutil.Len(chunk.Content)
}

// ReadFile returns the file as valid UTF-8, served from the cache when possible.
func (c *Collector) ReadFile(rel string) (string, error) {
	abs, err := c.fs.Resolve(rel)
	if err != nil {
		return "", err
	}
	if s, ok := c.cache.Get(abs); ok {
		return s, nil
	}
	s, err := c.fs.ReadFile(rel)
	if err != nil {
		return "", err
	}
	s = strings.ToValidUTF8(s, "")
	c.cache.Add(abs, s)
	return s, nil
}

// WalkFiles delegates to the underlying filesystem.
func (c *Collector) WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error {
	return c.fs.WalkFiles(root, maxFiles, fn)
}

func admitCode(name string) bool {
	if name == codeFileName {
		return true
	}
	_, ok := codeExts[strings.ToLower(filepath.Ext(name))]
	return ok
}
