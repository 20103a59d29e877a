package tts

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache keeps encoded basic-mode containers. Basic output depends only on the
// text length, so the length is the key. Cached slices are shared and must
// not be modified by readers.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

// NewCache returns nil when size is not positive; a nil *Cache never hits.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func basicKey(sampleRate, textLength int) string {
	return fmt.Sprintf("basic:%d:%d", sampleRate, textLength)
}

func (c *Cache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *Cache) Add(key string, wav []byte) {
	if c == nil {
		return
	}
	c.lru.Add(key, wav)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
