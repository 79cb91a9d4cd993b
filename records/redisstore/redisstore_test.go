package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/records/recordstest"
	"github.com/redis/go-redis/v9"
)

func newStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg.Client = client
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStoreConformance(t *testing.T) {
	recordstest.RunStoreTests(t, func(t *testing.T) records.Store {
		s, _ := newStore(t, Config{})
		return s
	})
}

func TestStoreConformanceWithoutCache(t *testing.T) {
	recordstest.RunStoreTests(t, func(t *testing.T) records.Store {
		s, _ := newStore(t, Config{CacheSize: -1})
		return s
	})
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected an error without a client")
	}
}

func TestKeyLayout(t *testing.T) {
	s, mr := newStore(t, Config{KeyPrefix: "test:"})
	ctx := context.Background()

	doc := &records.Document{Organization: "acme", Group: "/Home", ObjectID: "d1", Name: "a.txt"}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := s.PutChat(ctx, &records.Chat{Organization: "acme", Name: "standup"}); err != nil {
		t.Fatalf("PutChat: %v", err)
	}

	for _, key := range []string{"test:doc:acme:d1", "test:docs:acme", "test:group:acme:/Home", "test:chat:acme:standup"} {
		if !mr.Exists(key) {
			t.Errorf("expected key %q to exist; have %v", key, mr.Keys())
		}
	}
	members, err := mr.ZMembers("test:docs:acme")
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(members) != 1 || members[0] != "a.txt\x00d1" {
		t.Fatalf("unexpected index members %q", members)
	}
}

func TestCacheInvalidation(t *testing.T) {
	s, mr := newStore(t, Config{})
	ctx := context.Background()

	doc := &records.Document{Organization: "acme", ObjectID: "d1", Name: "a", Content: []byte("v1")}
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "acme", "d1"); err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if s.cache.Len() != 1 {
		t.Fatalf("expected the read to populate the cache, len=%d", s.cache.Len())
	}

	// Served from cache even though redis no longer has it.
	mr.Del("mcpctx:doc:acme:d1")
	got, err := s.GetDocument(ctx, "acme", "d1")
	if err != nil || string(got.Content) != "v1" {
		t.Fatalf("expected cached read, got %v %v", got, err)
	}

	doc.Content = []byte("v2")
	if err := s.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	got, err = s.GetDocument(ctx, "acme", "d1")
	if err != nil || string(got.Content) != "v2" {
		t.Fatalf("expected fresh read after put, got %v %v", got, err)
	}
}
