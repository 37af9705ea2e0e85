package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem provides file operations rooted at a base directory.
type Filesystem struct {
	guard      *PathGuard
	allowWrite bool
	skip       map[string]struct{}
}

// NewFilesystem builds a filesystem tool with write permissions controlled by allowWrite.
func NewFilesystem(baseDir string, allowWrite bool) (*Filesystem, error) {
	guard, err := NewPathGuard(baseDir)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{})
	for _, name := range []string{".git", "node_modules", ".idea", ".vscode", "vendor", ".cache", ".github"} {
		skip[name] = struct{}{}
	}
	return &Filesystem{guard: guard, allowWrite: allowWrite, skip: skip}, nil
}

// BaseDir returns the absolute root.
func (f *Filesystem) BaseDir() string {
	return f.guard.BaseDir
}

// SkipDirs adds directory names that WalkFiles never descends into. Paths are
// cleaned; absolute ones are taken relative to the root and ignored outside it.
func (f *Filesystem) SkipDirs(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		n = filepath.Clean(n)
		if filepath.IsAbs(n) {
			rel, err := filepath.Rel(f.guard.BaseDir, n)
			if err != nil {
				continue
			}
			n = rel
		}
		n = strings.Trim(filepath.ToSlash(n), "/")
		if n == "" || n == "." || n == ".." || strings.HasPrefix(n, "../") {
			continue
		}
		f.skip[strings.ToLower(n)] = struct{}{}
	}
}

// Resolve returns the absolute path of rel inside the root.
func (f *Filesystem) Resolve(rel string) (string, error) {
	return f.guard.Resolve(rel)
}

// ReadFile returns file contents as string.
func (f *Filesystem) ReadFile(path string) (string, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile replaces path with content in a single rename so readers never
// observe a partial file.
func (f *Filesystem) WriteFile(path string, content []byte) error {
	if !f.allowWrite {
		return errors.New("write is disabled by configuration")
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	return writeAtomic(resolved, content)
}

// RemoveAll deletes path and everything below it.
func (f *Filesystem) RemoveAll(path string) error {
	if !f.allowWrite {
		return errors.New("write is disabled by configuration")
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	if resolved == f.guard.BaseDir {
		return errors.New("refusing to remove the base directory")
	}
	return os.RemoveAll(resolved)
}

// Stat returns file info for a path inside the guard.
func (f *Filesystem) Stat(path string) (fs.FileInfo, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(resolved)
}

// WalkFiles walks regular files under root in lexical order and invokes fn
// with the path relative to the base directory. fn may return fs.SkipAll to stop.
func (f *Filesystem) WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error {
	if fn == nil {
		return fmt.Errorf("fn is required")
	}
	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return err
	}
	count := 0
	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == resolved {
				return err
			}
			// unreadable subtrees are skipped, not fatal
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != resolved && f.skipped(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if maxFiles > 0 && count >= maxFiles {
			return fs.SkipAll
		}
		rel, _ := filepath.Rel(f.guard.BaseDir, path)
		count++
		return fn(rel, d)
	})
}

func (f *Filesystem) skipped(dir string) bool {
	if _, ok := f.skip[strings.ToLower(filepath.Base(dir))]; ok {
		return true
	}
	rel, err := filepath.Rel(f.guard.BaseDir, dir)
	if err != nil {
		return false
	}
	_, ok := f.skip[strings.ToLower(filepath.ToSlash(rel))]
	return ok
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}
