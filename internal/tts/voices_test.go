package tts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loqalabs/loqa-tts/internal/config"
)

func TestCatalogOrderAndSource(t *testing.T) {
	c := NewCatalog(config.Default().Voices, "online-")

	list := c.List()
	assert.Len(t, list, 5)
	assert.Equal(t, "local-default", list[0].ID)
	assert.Equal(t, SourceLocal, list[0].Source)
	for _, v := range list[1:] {
		assert.Equal(t, SourceOnline, v.Source, v.ID)
	}

	list[0].DisplayName = "mutated"
	p, ok := c.Lookup("local-default")
	assert.True(t, ok)
	assert.Equal(t, "System Default", p.DisplayName)
}

func TestCatalogNameFallsBackToID(t *testing.T) {
	c := NewCatalog([]config.VoiceConfig{{ID: "bare"}}, "online-")
	p, ok := c.Lookup("bare")
	assert.True(t, ok)
	assert.Equal(t, "bare", p.DisplayName)
}

func TestCatalogResolve(t *testing.T) {
	c := NewCatalog(config.Default().Voices, "online-")

	assert.Equal(t, "Ava (Online)", c.Resolve("online-ava", "").DisplayName)
	assert.Equal(t, "Custom", c.Resolve("online-ava", "Custom").DisplayName)

	unknown := c.Resolve("online-zed", "")
	assert.Equal(t, "online-zed", unknown.ID)
	assert.Empty(t, unknown.DisplayName)
	assert.Equal(t, SourceOnline, unknown.Source)
}

func TestCatalogEmptyPrefix(t *testing.T) {
	c := NewCatalog(nil, "")
	assert.Equal(t, SourceLocal, c.SourceFor("online-emma"))
	assert.Empty(t, c.List())
}

func TestCache(t *testing.T) {
	var nilCache *Cache
	nilCache.Add("k", []byte{1})
	_, ok := nilCache.Get("k")
	assert.False(t, ok)
	assert.Zero(t, nilCache.Len())
	assert.Nil(t, NewCache(0, time.Minute))

	c := NewCache(2, time.Minute)
	c.Add(basicKey(22050, 1), []byte{1})
	c.Add(basicKey(22050, 2), []byte{2})
	c.Add(basicKey(22050, 3), []byte{3})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(basicKey(22050, 1))
	assert.False(t, ok, "oldest entry should be evicted")
	v, ok := c.Get(basicKey(22050, 3))
	assert.True(t, ok)
	assert.Equal(t, []byte{3}, v)

	assert.NotEqual(t, basicKey(22050, 3), basicKey(44100, 3))
}
