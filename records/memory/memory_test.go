package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/records/recordstest"
	"github.com/google/go-cmp/cmp"
)

func TestStoreConformance(t *testing.T) {
	recordstest.RunStoreTests(t, func(t *testing.T) records.Store {
		s := New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func quietStore() *Store {
	return New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "readme.md"), "# hi")
	writeFile(t, filepath.Join(dir, "data", "rows.json"), `{"a":1}`)
	writeFile(t, filepath.Join(dir, "data", "blob.bin"), "\x00\x01\x02")
	writeFile(t, filepath.Join(dir, ".git", "config"), "secret")
	writeFile(t, filepath.Join(dir, ".env"), "secret")

	s := quietStore()
	ctx := context.Background()
	n, err := s.LoadDir(ctx, DirSource{Dir: dir, Organization: "acme", Group: "/Seed", Owner: "alice"})
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 documents, got %d", n)
	}

	root, _ := filepath.Abs(dir)
	got, err := s.GetDocument(ctx, "acme", FileObjectID(filepath.Join(root, "data", "rows.json")))
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Group != "/Seed/data" || got.Name != "rows.json" || got.ContentType != "application/json" || got.Owner != "alice" {
		t.Fatalf("unexpected document: %+v", got)
	}

	type row struct{ Name, ContentType string }
	var rows []row
	docs, err := s.ListDocuments(ctx, "acme", "/Seed/data", 0, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	for _, d := range docs {
		rows = append(rows, row{d.Name, d.ContentType})
	}
	want := []row{{"blob.bin", "application/octet-stream"}, {"rows.json", "application/json"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.ListDocuments(ctx, "acme", "/Seed/.git", 0, 0); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("hidden directory was loaded: %v", err)
	}
}

func TestLoadDirMissing(t *testing.T) {
	s := quietStore()
	_, err := s.LoadDir(context.Background(), DirSource{Dir: filepath.Join(t.TempDir(), "nope"), Organization: "acme"})
	if err == nil {
		t.Fatalf("expected an error for a missing directory")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	root, _ := filepath.Abs(dir)
	notes := filepath.Join(root, "notes.txt")
	writeFile(t, notes, "v1")

	s := quietStore()
	src := DirSource{Dir: root, Organization: "acme", Group: "/W"}
	if _, err := s.LoadDir(context.Background(), src); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, src) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register before mutating the tree.
	time.Sleep(100 * time.Millisecond)

	content := func(p string) string {
		d, err := s.GetDocument(context.Background(), "acme", FileObjectID(p))
		if err != nil {
			return ""
		}
		return string(d.Content)
	}

	writeFile(t, notes, "v2")
	eventually(t, "rewrite", func() bool { return content(notes) == "v2" })

	added := filepath.Join(root, "added.txt")
	writeFile(t, added, "new")
	eventually(t, "create", func() bool { return content(added) == "new" })

	nested := filepath.Join(root, "sub", "deep.txt")
	writeFile(t, nested, "deep")
	eventually(t, "new directory", func() bool { return content(nested) == "deep" })

	if err := os.Remove(notes); err != nil {
		t.Fatalf("remove: %v", err)
	}
	eventually(t, "remove", func() bool {
		_, err := s.GetDocument(context.Background(), "acme", FileObjectID(notes))
		return errors.Is(err, records.ErrNotFound)
	})

	if err := os.RemoveAll(filepath.Join(root, "sub")); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	eventually(t, "directory removal", func() bool {
		_, err := s.GetDocument(context.Background(), "acme", FileObjectID(nested))
		return errors.Is(err, records.ErrNotFound)
	})
}
