// Package redisstore is a records.Store on Redis. Records are JSON values;
// sorted sets keyed per organization and per group give ordered listings.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/mcp-context-go/records"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes every key the store writes.
const DefaultKeyPrefix = "mcpctx:"

// DefaultCacheSize is the number of documents held by the read cache.
const DefaultCacheSize = 256

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "mcpctx:"
	KeyPrefix string

	// CacheSize bounds the GetDocument read cache. Zero selects
	// DefaultCacheSize and a negative value disables caching.
	CacheSize int
}

// Store implements records.Store on Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	cache     *lru.Cache[string, *records.Document]
	now       func() time.Time
}

var _ records.Store = (*Store)(nil)

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	if config.CacheSize == 0 {
		config.CacheSize = DefaultCacheSize
	}

	s := &Store{client: config.Client, keyPrefix: config.KeyPrefix, now: time.Now}
	if config.CacheSize > 0 {
		cache, err := lru.New[string, *records.Document](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Store) docKey(org, id string) string { return s.keyPrefix + "doc:" + org + ":" + id }

func (s *Store) orgIndexKey(org string) string { return s.keyPrefix + "docs:" + org }

func (s *Store) groupIndexKey(org, group string) string {
	return s.keyPrefix + "group:" + org + ":" + group
}

func (s *Store) chatKey(org, name string) string { return s.keyPrefix + "chat:" + org + ":" + name }

// chatIDKey maps a chat object id to its name.
func (s *Store) chatIDKey(org, id string) string { return s.keyPrefix + "chatid:" + org + ":" + id }

// member sorts lexically by name and then object id.
func member(d *records.Document) string { return d.Name + "\x00" + d.ObjectID }

func memberID(m string) string {
	if i := strings.LastIndexByte(m, 0); i >= 0 {
		return m[i+1:]
	}
	return m
}

func (s *Store) ListDocuments(ctx context.Context, org, group string, offset, limit int) ([]*records.Document, error) {
	group = records.NormalizeGroup(group)
	index := s.orgIndexKey(org)
	if group != "" {
		index = s.groupIndexKey(org, group)
		n, err := s.client.ZCard(ctx, index).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count group %s: %w", group, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("group %s: %w", group, records.ErrNotFound)
		}
	}

	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	members, err := s.client.ZRange(ctx, index, int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}

	out := make([]*records.Document, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.docKey(org, memberID(m))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a document; skip it.
			continue
		}
		var d records.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", keys[i], err)
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, org, objectID string) (*records.Document, error) {
	key := s.docKey(org, objectID)
	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			return d.Clone(), nil
		}
	}
	d, err := s.load(ctx, s.client, key)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
	}
	if s.cache != nil {
		s.cache.Add(key, d.Clone())
	}
	return d, nil
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, key string) (*records.Document, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	var d records.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored document: %w", err)
	}
	return &d, nil
}

func (s *Store) PutDocument(ctx context.Context, doc *records.Document) error {
	if err := records.PrepareDocument(doc, s.now()); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	key := s.docKey(doc.Organization, doc.ObjectID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if old != nil {
				s.unindex(ctx, p, old)
			}
			p.Set(ctx, key, data, 0)
			p.ZAdd(ctx, s.orgIndexKey(doc.Organization), redis.Z{Member: member(doc)})
			if doc.Group != "" {
				p.ZAdd(ctx, s.groupIndexKey(doc.Organization, doc.Group), redis.Z{Member: member(doc)})
			}
			return nil
		})
		return err
	}, key)
	if s.cache != nil {
		s.cache.Remove(key)
	}
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", doc.ObjectID, err)
	}
	return nil
}

func (s *Store) unindex(ctx context.Context, p redis.Pipeliner, d *records.Document) {
	p.ZRem(ctx, s.orgIndexKey(d.Organization), member(d))
	if d.Group != "" {
		p.ZRem(ctx, s.groupIndexKey(d.Organization, d.Group), member(d))
	}
}

func (s *Store) DeleteDocument(ctx context.Context, org, objectID string) error {
	key := s.docKey(org, objectID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			s.unindex(ctx, p, old)
			p.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if s.cache != nil {
		s.cache.Remove(key)
	}
	return err
}

func (s *Store) FindChat(ctx context.Context, org, name string) (*records.Chat, error) {
	raw, err := s.client.Get(ctx, s.chatKey(org, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("chat %s: %w", name, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", name, err)
	}
	var c records.Chat
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored chat: %w", err)
	}
	return &c, nil
}

func (s *Store) PutChat(ctx context.Context, chat *records.Chat) error {
	if err := records.PrepareChat(chat, s.now()); err != nil {
		return err
	}
	data, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.chatKey(chat.Organization, chat.Name), data, 0)
		p.Set(ctx, s.chatIDKey(chat.Organization, chat.ObjectID), chat.Name, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put chat %s: %w", chat.Name, err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, org, objectID string) (*records.Chat, error) {
	name, err := s.client.Get(ctx, s.chatIDKey(org, objectID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("chat %s: %w", objectID, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", objectID, err)
	}
	c, err := s.FindChat(ctx, org, name)
	if err != nil {
		return nil, err
	}
	// The name may since have been reused by another chat.
	if c.ObjectID != objectID {
		return nil, fmt.Errorf("chat %s: %w", objectID, records.ErrNotFound)
	}
	return c, nil
}

// Close purges the read cache. The client belongs to the caller.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Purge()
	}
	return nil
}
