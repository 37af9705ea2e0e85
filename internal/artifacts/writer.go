// Package artifacts persists every intermediate and final text of a run to a fixed layout.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/contractfix/internal/patch"
	"github.com/animus-coder/contractfix/internal/tools"
)

// Fixed artifact names under the output root.
const (
	SummaryFile              = "summary.txt"
	APISuggestionsFile       = "api_suggestions.txt"
	SpecSuggestionsFile      = "spec_suggestions.txt"
	SpecmaticSuggestionsFile = "specmatic_suggestions.txt"
	ParsedFile               = "parsed.txt"
	TestStdoutFile           = "test_stdout.txt"
	TestStderrFile           = "test_stderr.txt"
	RawDiffsFile             = "raw_diffs_or_snippets.txt"
	ResultFile               = "result.json"
	PatchesDir               = "patches"
	FullFilesDir             = "full_files"
)

// PatchFileName returns the name of the i-th (1-based) extracted diff.
func PatchFileName(i int) string {
	return fmt.Sprintf("patch_%02d.diff", i)
}

// Writer owns the output root for one run. Each artifact is written whole,
// so a reader never sees a torn file.
type Writer struct {
	fs      *tools.Filesystem
	runID   string
	mirror  Uploader
	logger  *zap.Logger
	written []string
}

// Option customises a Writer.
type Option func(*Writer)

// WithMirror uploads every artifact to u when Mirror is called.
func WithMirror(u Uploader) Option {
	return func(w *Writer) { w.mirror = u }
}

// WithLogger sets the writer logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates dir (and its patches subdirectory) if needed.
func NewWriter(dir, runID string, opts ...Option) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("output dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, PatchesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	fsys, err := tools.NewFilesystem(dir, true)
	if err != nil {
		return nil, err
	}
	w := &Writer{fs: fsys, runID: runID, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the absolute output root.
func (w *Writer) Dir() string {
	return w.fs.BaseDir()
}

// PatchesDir returns the absolute patches directory.
func (w *Writer) PatchesDir() string {
	return filepath.Join(w.fs.BaseDir(), PatchesDir)
}

// RunID returns the identifier used for mirrored object keys.
func (w *Writer) RunID() string {
	return w.runID
}

// Written lists artifact names written so far, in write order.
func (w *Writer) Written() []string {
	return append([]string(nil), w.written...)
}

// Prepare drops the previous run's patches and full files so the patches
// directory only ever holds this run's diffs.
func (w *Writer) Prepare() error {
	for _, dir := range []string{PatchesDir, FullFilesDir} {
		if err := w.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	return os.MkdirAll(w.PatchesDir(), 0o755)
}

// WriteText writes one named artifact.
func (w *Writer) WriteText(name, content string) error {
	return w.write(name, []byte(content))
}

// WriteJSON writes v as indented JSON.
func (w *Writer) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return w.write(name, append(data, '\n'))
}

// WritePatches writes each diff to patches/patch_NN.diff in extraction order
// and returns the artifact names.
func (w *Writer) WritePatches(set patch.Set) ([]string, error) {
	out := make([]string, 0, len(set))
	for i, d := range set {
		name := path.Join(PatchesDir, PatchFileName(i+1))
		if err := w.write(name, []byte(d.Body)); err != nil {
			return out, err
		}
		out = append(out, name)
	}
	return out, nil
}

// WriteFullFiles writes each body under full_files/<declared path>. Declared
// paths that would leave full_files are skipped with a warning.
func (w *Writer) WriteFullFiles(files []patch.FullFile) ([]string, error) {
	var out []string
	for _, f := range files {
		rel := path.Clean("/" + filepath.ToSlash(f.Path))
		if rel == "/" || f.Path != strings.TrimSpace(f.Path) || strings.Contains(f.Path, "..") {
			w.logger.Warn("skipping full file with unsafe path", zap.String("path", f.Path))
			continue
		}
		name := path.Join(FullFilesDir, strings.TrimPrefix(rel, "/"))
		if err := w.write(name, []byte(f.Body)); err != nil {
			return out, err
		}
		out = append(out, name)
	}
	return out, nil
}

func (w *Writer) write(name string, data []byte) error {
	if err := w.fs.WriteFile(filepath.FromSlash(name), data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	for _, n := range w.written {
		if n == name {
			return nil
		}
	}
	w.written = append(w.written, name)
	return nil
}

// Mirror uploads every artifact written so far. Upload failures are collected
// and returned together; the local artifacts are unaffected.
func (w *Writer) Mirror(ctx context.Context) error {
	if w.mirror == nil {
		return nil
	}
	var errs []error
	for _, name := range w.written {
		data, err := w.fs.ReadFile(filepath.FromSlash(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		if err := w.mirror.Put(ctx, w.runID, name, []byte(data)); err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
