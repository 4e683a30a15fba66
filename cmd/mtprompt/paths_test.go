package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/mtprompt/pkg/mpt"
)

func writeAdapter(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, mpt.AdapterConfigName), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write adapter config: %v", err)
	}
}

func TestResolveAdapterOut(t *testing.T) {
	t.Run("explicit output wins", func(t *testing.T) {
		outPath := filepath.Join(t.TempDir(), "nested", "sentiment")

		got, defaulted, err := resolveAdapterOut("prompts/sentiment.yaml", outPath)
		if err != nil {
			t.Fatalf("resolveAdapterOut returned error: %v", err)
		}
		if defaulted {
			t.Fatalf("expected explicit output to not be defaulted")
		}
		if got != filepath.Clean(outPath) {
			t.Fatalf("unexpected output path: got %q want %q", got, filepath.Clean(outPath))
		}
		if _, err := os.Stat(got); err != nil {
			t.Fatalf("expected output directory to exist: %v", err)
		}
	})

	t.Run("env output dir overrides default", func(t *testing.T) {
		envDir := filepath.Join(t.TempDir(), "adapters")
		t.Setenv(envAdaptersDir, envDir)

		got, defaulted, err := resolveAdapterOut(filepath.Join("prompts", "glue.yaml"), "")
		if err != nil {
			t.Fatalf("resolveAdapterOut returned error: %v", err)
		}
		if !defaulted {
			t.Fatalf("expected output to be defaulted")
		}
		want := filepath.Join(envDir, "glue")
		if got != want {
			t.Fatalf("unexpected output path: got %q want %q", got, want)
		}
	})

	t.Run("default output dir is ./out", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv(envAdaptersDir, "")

		got, defaulted, err := resolveAdapterOut("superglue.json", "")
		if err != nil {
			t.Fatalf("resolveAdapterOut returned error: %v", err)
		}
		if !defaulted {
			t.Fatalf("expected output to be defaulted")
		}
		want := filepath.Join(".", "out", "superglue")
		if got != want {
			t.Fatalf("unexpected output path: got %q want %q", got, want)
		}
	})
}

func TestDiscoverAdaptersSorted(t *testing.T) {
	dir := t.TempDir()
	writeAdapter(t, filepath.Join(dir, "b"))
	writeAdapter(t, filepath.Join(dir, "a"))
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := discoverAdapters(dir)
	if err != nil {
		t.Fatalf("discoverAdapters returned error: %v", err)
	}
	want := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}
	if len(got) != len(want) {
		t.Fatalf("unexpected adapter count: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected ordering at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestResolveAdapterPath(t *testing.T) {
	t.Run("adapter flag bypasses env", func(t *testing.T) {
		t.Setenv(envAdaptersDir, "")
		got, err := resolveAdapterPath("/tmp/adapters/glue/", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveAdapterPath returned error: %v", err)
		}
		if got != filepath.Clean("/tmp/adapters/glue") {
			t.Fatalf("unexpected adapter path: got %q", got)
		}
	})

	t.Run("missing everything", func(t *testing.T) {
		t.Setenv(envAdaptersDir, "")
		if _, err := resolveAdapterPath("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error without --adapter or adapters dir")
		}
	})

	t.Run("single adapter selects automatically", func(t *testing.T) {
		dir := t.TempDir()
		only := filepath.Join(dir, "only")
		writeAdapter(t, only)
		t.Setenv(envAdaptersDir, dir)

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return false }
		defer func() { stdinIsTTY = prevTTY }()

		got, err := resolveAdapterPath("", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveAdapterPath returned error: %v", err)
		}
		if got != only {
			t.Fatalf("unexpected adapter path: got %q want %q", got, only)
		}
	})

	t.Run("multiple adapters requires tty", func(t *testing.T) {
		dir := t.TempDir()
		writeAdapter(t, filepath.Join(dir, "a"))
		writeAdapter(t, filepath.Join(dir, "b"))
		t.Setenv(envAdaptersDir, dir)

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return false }
		defer func() { stdinIsTTY = prevTTY }()

		if _, err := resolveAdapterPath("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error when multiple adapters and stdin is not a tty")
		}
	})

	t.Run("interactive selection chooses sorted index", func(t *testing.T) {
		dir := t.TempDir()
		writeAdapter(t, filepath.Join(dir, "b"))
		writeAdapter(t, filepath.Join(dir, "a"))
		t.Setenv(envAdaptersDir, "")

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return true }
		defer func() { stdinIsTTY = prevTTY }()

		got, err := resolveAdapterPath("", dir, bytes.NewBufferString("x\n2\n"), io.Discard)
		if err != nil {
			t.Fatalf("resolveAdapterPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "b"); got != want {
			t.Fatalf("unexpected adapter selection: got %q want %q", got, want)
		}
	})
}
