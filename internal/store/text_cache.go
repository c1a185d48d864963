package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	mpkg "github.com/local/pdfchat/internal/metrics"
)

// TextCache keeps extracted page texts in one Redis hash per PDF, keyed by a
// fingerprint of the file contents.
type TextCache struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewTextCache connects to redisURL and pings it. A ttl of zero keeps entries
// forever.
func NewTextCache(redisURL string, ttl time.Duration) (*TextCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &TextCache{client: c, keyNS: "pdf", ttl: ttl}, nil
}

func (s *TextCache) Close() error { return s.client.Close() }

// Ping reports whether Redis is reachable.
func (s *TextCache) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *TextCache) key(fingerprint string) string {
	return fmt.Sprintf("%s:%s:pages", s.keyNS, fingerprint)
}

// SavePages stores every page text under the fingerprint and refreshes the TTL.
func (s *TextCache) SavePages(ctx context.Context, fingerprint string, pages []string) error {
	key := s.key(fingerprint)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodePages(pages))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pages %s: %w", fingerprint, err)
	}
	return nil
}

// LoadPages returns the cached page texts. ok is false on a miss or when the
// entry is incomplete.
func (s *TextCache) LoadPages(ctx context.Context, fingerprint string) ([]string, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(fingerprint)).Result()
	if err != nil {
		mpkg.IncTextCache("error")
		return nil, false, fmt.Errorf("load pages %s: %w", fingerprint, err)
	}
	pages, ok := decodePages(res)
	if !ok {
		mpkg.IncTextCache("miss")
		return nil, false, nil
	}
	mpkg.IncTextCache("hit")
	return pages, true, nil
}

const countField = "count"

func pageField(i int) string { return "page:" + strconv.Itoa(i) }

func encodePages(pages []string) map[string]interface{} {
	m := make(map[string]interface{}, len(pages)+1)
	m[countField] = len(pages)
	for i, text := range pages {
		m[pageField(i)] = text
	}
	return m
}

func decodePages(res map[string]string) ([]string, bool) {
	if len(res) == 0 {
		return nil, false
	}
	n, err := strconv.Atoi(res[countField])
	if err != nil || n < 0 {
		return nil, false
	}
	pages := make([]string, n)
	for i := range pages {
		text, ok := res[pageField(i)]
		if !ok {
			return nil, false
		}
		pages[i] = text
	}
	return pages, true
}
