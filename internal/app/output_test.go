package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a", "b.json")

	n, err := writeJSON(path, []byte(`{"k":[1,2]}`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"k\": [\n    1,\n    2\n  ]\n}\n"
	if string(got) != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if n != int64(len(want)) {
		t.Errorf("n = %d, want %d", n, len(want))
	}

	if _, err := writeJSON(path, []byte(`{bad`)); err == nil {
		t.Error("invalid JSON should fail")
	}
	if got2, _ := os.ReadFile(path); string(got2) != want {
		t.Error("failed write clobbered the existing file")
	}
}

func TestMergeInto(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "m.json")

	// No existing file: the document itself.
	got, err := mergeInto(path, []byte(`{"a":1}`))
	if err != nil || string(got) != `{"a":1}` {
		t.Errorf("mergeInto(no file) = %s, %v", got, err)
	}

	// Existing array is replaced, not merged.
	os.WriteFile(path, []byte(`[1]`), 0o644)
	got, _ = mergeInto(path, []byte(`{"a":1}`))
	if string(got) != `{"a":1}` {
		t.Errorf("mergeInto(array file) = %s", got)
	}

	// Non-object payload passes through.
	os.WriteFile(path, []byte(`{"a":1}`), 0o644)
	got, _ = mergeInto(path, []byte(`[2]`))
	if string(got) != `[2]` {
		t.Errorf("mergeInto(array doc) = %s", got)
	}

	got, _ = mergeInto(path, []byte(`{"b":2}`))
	if string(got) != `{"a":1,"b":2}` {
		t.Errorf("mergeInto = %s", got)
	}
}
