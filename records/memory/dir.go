package memory

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/google/uuid"
)

// MaxFileBytes is the largest file LoadDir will seed.
const MaxFileBytes = 8 << 20

// DirSource says where seeded documents land.
type DirSource struct {
	Dir          string
	Organization string
	// Group is the root group; subdirectories extend it.
	Group  string
	Owner  string
	Public bool
}

// LoadDir walks src.Dir and stores one document per regular file. Hidden
// files and directories are skipped. It returns the number of documents
// stored.
func (s *Store) LoadDir(ctx context.Context, src DirSource) (int, error) {
	root, err := filepath.Abs(src.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", src.Dir, err)
	}
	src.Dir = root

	n := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := s.loadFile(ctx, src, p)
		if err != nil {
			return err
		}
		if ok {
			n++
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("failed to load %s: %w", root, err)
	}
	s.log.InfoContext(ctx, "records.memory.load_dir.ok",
		slog.String("dir", root),
		slog.String("org", src.Organization),
		slog.Int("documents", n))
	return n, nil
}

// Watch keeps documents seeded from src.Dir in step with the file system
// until ctx is done. Call LoadDir first for the initial state.
func (s *Store) Watch(ctx context.Context, src DirSource) error {
	root, err := filepath.Abs(src.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", src.Dir, err)
	}
	src.Dir = root

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, w, src, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.WarnContext(ctx, "records.memory.watch.err", slog.String("err", err.Error()))
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, w *fsnotify.Watcher, src DirSource, ev fsnotify.Event) {
	if hidden(src.Dir, ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if n := s.forget(ev.Name); n > 0 {
			s.log.DebugContext(ctx, "records.memory.watch.removed",
				slog.String("path", ev.Name), slog.Int("documents", n))
		}
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		// Files written before the watch was added are picked up by the load.
		_ = w.Add(ev.Name)
		if _, err := s.LoadDir(ctx, DirSource{
			Dir:          ev.Name,
			Organization: src.Organization,
			Group:        groupFor(src, ev.Name),
			Owner:        src.Owner,
			Public:       src.Public,
		}); err != nil {
			s.log.WarnContext(ctx, "records.memory.watch.err", slog.String("err", err.Error()))
		}
		return
	}
	if !fi.Mode().IsRegular() {
		return
	}
	if _, err := s.loadFile(ctx, src, ev.Name); err != nil {
		s.log.WarnContext(ctx, "records.memory.watch.err",
			slog.String("path", ev.Name), slog.String("err", err.Error()))
		return
	}
	s.log.DebugContext(ctx, "records.memory.watch.loaded", slog.String("path", ev.Name))
}

// loadFile stores the file at p. Oversized files are skipped.
func (s *Store) loadFile(ctx context.Context, src DirSource, p string) (bool, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	if fi.Size() > MaxFileBytes {
		s.log.DebugContext(ctx, "records.memory.load_dir.skip",
			slog.String("path", p), slog.Int64("bytes", fi.Size()))
		return false, nil
	}
	body, err := os.ReadFile(p)
	if err != nil {
		return false, err
	}
	doc := &records.Document{
		Organization: src.Organization,
		Group:        groupFor(src, filepath.Dir(p)),
		ObjectID:     FileObjectID(p),
		Name:         filepath.Base(p),
		ContentType:  contentType(p, body),
		Owner:        src.Owner,
		Public:       src.Public,
		Content:      body,
		UpdatedAt:    fi.ModTime().UTC(),
	}
	if err := s.PutDocument(ctx, doc); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.files[p] = docKey{doc.Organization, doc.ObjectID}
	s.mu.Unlock()
	return true, nil
}

// forget deletes every document seeded from p or from beneath it.
func (s *Store) forget(p string) int {
	prefix := p + string(filepath.Separator)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, k := range s.files {
		if fp != p && !strings.HasPrefix(fp, prefix) {
			continue
		}
		delete(s.files, fp)
		delete(s.docs, k)
		n++
	}
	return n
}

// FileObjectID derives a stable object id from an absolute file path.
func FileObjectID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(absPath))).String()
}

func groupFor(src DirSource, dir string) string {
	rel, err := filepath.Rel(src.Dir, dir)
	if err != nil || rel == "." {
		return records.NormalizeGroup(src.Group)
	}
	return records.NormalizeGroup(path.Join(src.Group, filepath.ToSlash(rel)))
}

func hidden(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

func contentType(p string, body []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			return mt
		}
		return ct
	}
	ct := http.DetectContentType(body)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}
