package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Lock is the single-slot picking lock: while held, scans must stay on the
// active group and finish its expected SKU before another group may start.
// The zero value is the unlocked state. The lock is advisory across
// restarts; the engine revalidates it against pending units before
// trusting it.
type Lock struct {
	ActiveGroup string `json:"active_group"`
	ActiveSKU   string `json:"active_sku"`
}

// Held reports whether the lock is active.
func (l *Lock) Held() bool {
	return l.ActiveGroup != ""
}

// Acquire takes the lock for a group and its in-progress SKU. Taking an
// already-held lock is a programming error, guarded here because at most
// one active lock may ever exist.
func (l *Lock) Acquire(group, sku string) error {
	if l.Held() {
		return fmt.Errorf("lock already held for group %s", l.ActiveGroup)
	}
	l.ActiveGroup = group
	l.ActiveSKU = sku
	return nil
}

// Advance moves the held lock to the next expected SKU within its group.
func (l *Lock) Advance(sku string) error {
	if !l.Held() {
		return fmt.Errorf("cannot advance a released lock")
	}
	l.ActiveSKU = sku
	return nil
}

// Release clears the lock.
func (l *Lock) Release() {
	l.ActiveGroup = ""
	l.ActiveSKU = ""
}

// LockFile persists a Lock as a single small JSON record with the same
// atomic-replace semantics as the line store.
type LockFile struct {
	path string
}

// NewLockFile creates a lock persister at path.
func NewLockFile(path string) *LockFile {
	return &LockFile{path: path}
}

// Load reads the persisted lock. A missing or empty file is the unlocked
// state, not an error.
func (f *LockFile) Load() (Lock, error) {
	var l Lock
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, fmt.Errorf("read lock: %w", err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l); err != nil {
		// A corrupt lock is advisory state; treat as unlocked rather than
		// wedging every scan.
		return Lock{}, nil
	}
	return l, nil
}

// Save writes the lock atomically.
func (f *LockFile) Save(l Lock) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lock dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace lock: %w", err)
	}
	return nil
}
