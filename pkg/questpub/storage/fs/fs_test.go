package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/questlore/questpub/pkg/questpub"
)

func TestFSBackend_BasicOps(t *testing.T) {
	tmp := t.TempDir()
	backend, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}

	ctx := context.Background()
	key := "u1/d1/1700000000000.xml"

	// Upload
	data := []byte(`<quest title="fs"/>`)
	if err := backend.UploadWithParams(ctx, bytes.NewReader(data), questpub.UploadParams{ObjectKey: key, MimeType: questpub.ContentMimeType}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Download
	rc, err := backend.Download(ctx, key)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != string(data) {
		t.Fatalf("download mismatch: %q", string(got))
	}

	// No temp files left next to the artifact
	entries, err := os.ReadDir(filepath.Join(tmp, "u1", "d1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly the artifact, got %d entries", len(entries))
	}

	// Delete
	if err := backend.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, key)); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	// Empty owner directories are pruned
	if _, err := os.Stat(filepath.Join(tmp, "u1")); !os.IsNotExist(err) {
		t.Fatalf("expected empty dirs removed, stat err=%v", err)
	}
	if err := backend.Delete(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestFSBackend_WriteOnce(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	ctx := context.Background()

	if err := backend.Upload(ctx, "a/b.xml", strings.NewReader("first")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	err = backend.Upload(ctx, "a/b.xml", strings.NewReader("second"))
	if !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}

	rc, err := backend.Download(ctx, "a/b.xml")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "first" {
		t.Fatalf("artifact was overwritten: %q", got)
	}
}

func TestFSBackend_RejectsEscapingKeys(t *testing.T) {
	backend, err := New(Config{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	for _, key := range []string{"../outside.xml", "a/../../outside.xml", ""} {
		if err := backend.Upload(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestFSBackend_PublicURL(t *testing.T) {
	tmp := t.TempDir()

	withPrefix, err := New(Config{BaseDir: tmp, URLPrefix: "https://cdn.example.com/quests/"})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	if got := withPrefix.PublicURL("u/d/1.xml"); got != "https://cdn.example.com/quests/u/d/1.xml" {
		t.Fatalf("unexpected url %q", got)
	}

	noPrefix, err := New(Config{BaseDir: tmp})
	if err != nil {
		t.Fatalf("new fs backend: %v", err)
	}
	got := noPrefix.PublicURL("u/d/1.xml")
	if !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "/u/d/1.xml") {
		t.Fatalf("unexpected url %q", got)
	}
}
