package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"at-1", "AT0001"},
		{"AT0001", "AT0001"},
		{"at 100", "AT0100"},
		{"AT123456", "AT3456"}, // keep last 4 digits
		{"at0001 ", "AT0001"},
		{"a.t-0*0!01", "AT0001"},
		{"FREEBIE", "FREEBIE"}, // no numeric tail, stripped+upper only
		{"1234", "1234"},
		{"", ""},
		{"  ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func writeMasters(t *testing.T, master, noScan string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	mp := filepath.Join(dir, "sku_master.csv")
	np := filepath.Join(dir, "extras_noscan.csv")
	if err := os.WriteFile(mp, []byte(master), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(np, []byte(noScan), 0o644); err != nil {
		t.Fatal(err)
	}
	return mp, np
}

func TestClassify(t *testing.T) {
	mp, np := writeMasters(t,
		"sku,product_name,type\n"+
			"AT0001,Moonlight Black,Compulsory\n"+
			"AT0002,Galaxy Blue,Loose\n"+
			"AT0003,Gift Card,NoScan\n"+
			"AT0004,Overridden,Compulsory\n",
		"sku\nAT0004\nAT0009\n")
	r, err := New(mp, np)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		sku  string
		want SKUType
	}{
		{"AT0001", TypeCompulsory},
		{"AT0002", TypeLoose},
		{"AT0003", TypeNoScan},
		{"AT0004", TypeNoScan}, // noscan list wins over master type
		{"AT0009", TypeNoScan}, // noscan-only entry
		{"AT9999", TypeUnknown},
		{"", TypeUnknown},
	}
	for _, c := range cases {
		if got := r.Classify(c.sku); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.sku, got, c.want)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	mp, np := writeMasters(t,
		"sku,product_name,type,display_name\n"+
			"AT0001,moonlight black,Compulsory,Moonlight Black Frame\n"+
			"AT0002,Galaxy Blue,Loose,\n",
		"")
	r, err := New(mp, np)
	if err != nil {
		t.Fatal(err)
	}

	if got := r.CanonicalName("AT0001", "fallback"); got != "Moonlight Black Frame" {
		t.Errorf("display name not preferred: got %q", got)
	}
	if got := r.CanonicalName("AT0002", "fallback"); got != "Galaxy Blue" {
		t.Errorf("master name not used: got %q", got)
	}
	if got := r.CanonicalName("AT9999", "fallback"); got != "fallback" {
		t.Errorf("fallback not used: got %q", got)
	}
}

func TestMissingFilesYieldEmptyRegistry(t *testing.T) {
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "nope.csv"), filepath.Join(dir, "also-nope.csv"))
	if err != nil {
		t.Fatalf("missing masters should not error: %v", err)
	}
	if got := r.Classify("AT0001"); got != TypeUnknown {
		t.Errorf("empty registry should classify Unknown, got %q", got)
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	mp, np := writeMasters(t, "AT0001,First,Loose\n", "")
	r, err := New(mp, np)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Classify("AT0001"); got != TypeLoose {
		t.Fatalf("initial load: got %q", got)
	}

	if err := os.WriteFile(mp, []byte("AT0001,First,Compulsory\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := r.Classify("AT0001"); got != TypeCompulsory {
		t.Errorf("after reload: got %q, want Compulsory", got)
	}
}
