package tts

import (
	"strings"

	"github.com/loqalabs/loqa-tts/internal/config"
)

// Source tells where a voice is expected to run.
type Source string

const (
	SourceLocal  Source = "local"
	SourceOnline Source = "online"
)

// VoiceProfile is presentation metadata for a voice. Only DisplayName and the
// online prefix of ID influence synthesis.
type VoiceProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Source      Source `json:"source"`
}

// Catalog holds the configured voices in configuration order.
type Catalog struct {
	onlinePrefix string
	voices       []VoiceProfile
	byID         map[string]VoiceProfile
}

func NewCatalog(voices []config.VoiceConfig, onlinePrefix string) *Catalog {
	c := &Catalog{
		onlinePrefix: onlinePrefix,
		byID:         make(map[string]VoiceProfile, len(voices)),
	}
	for _, v := range voices {
		name := v.Name
		if name == "" {
			name = v.ID
		}
		p := VoiceProfile{ID: v.ID, DisplayName: name, Source: c.SourceFor(v.ID)}
		c.voices = append(c.voices, p)
		c.byID[v.ID] = p
	}
	return c
}

// SourceFor reports SourceOnline when id carries the online prefix.
func (c *Catalog) SourceFor(id string) Source {
	if c.onlinePrefix != "" && strings.HasPrefix(id, c.onlinePrefix) {
		return SourceOnline
	}
	return SourceLocal
}

func (c *Catalog) List() []VoiceProfile {
	return append([]VoiceProfile(nil), c.voices...)
}

func (c *Catalog) Lookup(id string) (VoiceProfile, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Resolve builds the profile used for a request. A caller-supplied name wins
// over the catalog; unknown ids are accepted as-is.
func (c *Catalog) Resolve(id, name string) VoiceProfile {
	p, ok := c.byID[id]
	if !ok {
		p = VoiceProfile{ID: id, Source: c.SourceFor(id)}
	}
	if name != "" {
		p.DisplayName = name
	}
	return p
}
