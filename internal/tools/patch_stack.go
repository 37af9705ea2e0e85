package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrLedgerEmpty is returned when no applied patch is recorded.
var ErrLedgerEmpty = errors.New("no applied patches recorded")

// PatchEntry is one applied patch with lineage.
type PatchEntry struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	FileName  string    `json:"file_name"`
	Source    string    `json:"source"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type patchStack struct {
	Entries []PatchEntry `json:"entries"`
}

func (s *patchStack) latest() *PatchEntry {
	if len(s.Entries) == 0 {
		return nil
	}
	return &s.Entries[len(s.Entries)-1]
}

// Ledger keeps a copy of every applied diff plus a stack.json index so that
// applications can be reversed later.
type Ledger struct {
	dir   string
	stack *patchStack
}

// OpenLedger loads (or starts) the ledger stored in dir.
func OpenLedger(dir string) (*Ledger, error) {
	st, err := loadPatchStack(filepath.Join(dir, "stack.json"))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return &Ledger{dir: dir, stack: st}, nil
}

// Dir returns the ledger directory.
func (l *Ledger) Dir() string {
	return l.dir
}

// Entries returns recorded patches, oldest first.
func (l *Ledger) Entries() []PatchEntry {
	out := make([]PatchEntry, len(l.stack.Entries))
	copy(out, l.stack.Entries)
	return out
}

// Record stores patch as applied from source on branch.
func (l *Ledger) Record(source string, patch []byte, branch string) (PatchEntry, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return PatchEntry{}, err
	}
	parent := ""
	if latest := l.stack.latest(); latest != nil {
		parent = latest.ID
	}
	id := "applied-" + uuid.NewString()[:8]
	entry := PatchEntry{
		ID:        id,
		ParentID:  parent,
		FileName:  id + ".diff",
		Source:    source,
		Branch:    branch,
		CreatedAt: time.Now().UTC(),
	}
	if err := os.WriteFile(filepath.Join(l.dir, entry.FileName), patch, 0o644); err != nil {
		return PatchEntry{}, err
	}
	l.stack.Entries = append(l.stack.Entries, entry)
	if err := l.stack.save(filepath.Join(l.dir, "stack.json")); err != nil {
		l.stack.Entries = l.stack.Entries[:len(l.stack.Entries)-1]
		return PatchEntry{}, err
	}
	return entry, nil
}

// Lookup returns the entry matching name (ID, file name or source) and its
// patch text; an empty name selects the latest entry.
func (l *Ledger) Lookup(name string) (PatchEntry, []byte, error) {
	if len(l.stack.Entries) == 0 {
		return PatchEntry{}, nil, ErrLedgerEmpty
	}
	var target *PatchEntry
	if name == "" {
		target = l.stack.latest()
	} else {
		for i := len(l.stack.Entries) - 1; i >= 0; i-- {
			e := &l.stack.Entries[i]
			if e.ID == name || e.FileName == name || filepath.Base(e.Source) == name {
				target = e
				break
			}
		}
		if target == nil {
			return PatchEntry{}, nil, fmt.Errorf("applied patch %s not found", name)
		}
	}
	data, err := os.ReadFile(filepath.Join(l.dir, target.FileName))
	if err != nil {
		return PatchEntry{}, nil, err
	}
	return *target, data, nil
}

// Remove drops id from the stack and deletes its stored copy.
func (l *Ledger) Remove(id string) error {
	kept := l.stack.Entries[:0:0]
	var removed *PatchEntry
	for i := range l.stack.Entries {
		if l.stack.Entries[i].ID == id {
			e := l.stack.Entries[i]
			removed = &e
			continue
		}
		kept = append(kept, l.stack.Entries[i])
	}
	if removed == nil {
		return fmt.Errorf("applied patch %s not found", id)
	}
	l.stack.Entries = kept
	if err := l.stack.save(filepath.Join(l.dir, "stack.json")); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, removed.FileName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func loadPatchStack(path string) (*patchStack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &patchStack{}, nil
		}
		return nil, err
	}
	var ps patchStack
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, err
	}
	return &ps, nil
}

func (s *patchStack) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
