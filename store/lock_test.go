package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLockTransitions(t *testing.T) {
	var l Lock
	if l.Held() {
		t.Fatal("zero value must be unlocked")
	}
	if err := l.Acquire("9990001111", "AT0001"); err != nil {
		t.Fatal(err)
	}
	if !l.Held() || l.ActiveSKU != "AT0001" {
		t.Fatalf("after acquire: %+v", l)
	}
	if err := l.Acquire("other", "AT0002"); err == nil {
		t.Error("double acquire must fail")
	}
	if err := l.Advance("AT0002"); err != nil {
		t.Fatal(err)
	}
	if l.ActiveSKU != "AT0002" || l.ActiveGroup != "9990001111" {
		t.Fatalf("after advance: %+v", l)
	}
	l.Release()
	if l.Held() {
		t.Fatal("release must clear the lock")
	}
	if err := l.Advance("AT0003"); err == nil {
		t.Error("advancing a released lock must fail")
	}
}

func TestLockFilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "scan_lock.json")
	f := NewLockFile(path)

	l, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if l.Held() {
		t.Fatal("missing file must read as unlocked")
	}

	l.Acquire("9990001111", "AT0001")
	if err := f.Save(l); err != nil {
		t.Fatal(err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != l {
		t.Errorf("round trip: got %+v, want %+v", got, l)
	}

	l.Release()
	if err := f.Save(l); err != nil {
		t.Fatal(err)
	}
	got, _ = f.Load()
	if got.Held() {
		t.Errorf("released lock persisted as held: %+v", got)
	}
}

func TestLockFileCorruptIsUnlocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan_lock.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := NewLockFile(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if l.Held() {
		t.Errorf("corrupt lock must read as unlocked: %+v", l)
	}
}
