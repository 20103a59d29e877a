package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyVoice(t *testing.T) {
	cases := map[string]VoiceParams{
		"EMMA":             HighVoice,
		"Ava Jones":        HighVoice,
		"bring ava online": HighVoice,
		"Microsoft Emma":   HighVoice,
		"James T.":         LowVoice,
		"oliver":           LowVoice,
		"OLIVER twist":     LowVoice,
		"":                 DefaultVoice,
		"Zira":             DefaultVoice,
		"Samantha":         DefaultVoice,
	}
	for name, want := range cases {
		assert.Equal(t, want, ClassifyVoice(name), "voice %q", name)
	}
}

func TestClassifyVoiceFirstRuleWins(t *testing.T) {
	assert.Equal(t, HighVoice, ClassifyVoice("James and Emma"))
}

func TestVoiceParameterSets(t *testing.T) {
	assert.Equal(t, VoiceParams{Name: "high", BaseFreq: 250, FormantFreq: 1000, VibratoRate: 6, VibratoDepth: 0.08}, HighVoice)
	assert.Equal(t, VoiceParams{Name: "low", BaseFreq: 180, FormantFreq: 700, VibratoRate: 4, VibratoDepth: 0.04}, LowVoice)
	assert.Equal(t, VoiceParams{Name: "neutral", BaseFreq: 200, FormantFreq: 800, VibratoRate: 5, VibratoDepth: 0.05}, DefaultVoice)
}
