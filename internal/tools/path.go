package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned for paths that resolve outside the guarded root.
var ErrEscapesBase = errors.New("path escapes base directory")

// PathGuard keeps model-declared and configured paths inside one root.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &PathGuard{BaseDir: filepath.Clean(absBase)}, nil
}

// Resolve returns an absolute path inside BaseDir. Relative paths are joined
// to the root; absolute paths are accepted only when already inside it.
func (g *PathGuard) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	abs := filepath.Clean(p)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.BaseDir, abs)
	}
	if !g.contains(abs) {
		return "", fmt.Errorf("%s: %w", p, ErrEscapesBase)
	}
	return abs, nil
}

func (g *PathGuard) contains(abs string) bool {
	return abs == g.BaseDir || strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator))
}
