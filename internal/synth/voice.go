package synth

import "strings"

// VoiceParams shapes the enhanced waveform.
type VoiceParams struct {
	Name         string
	BaseFreq     float64
	FormantFreq  float64
	VibratoRate  float64
	VibratoDepth float64
}

var (
	HighVoice = VoiceParams{Name: "high", BaseFreq: 250, FormantFreq: 1000, VibratoRate: 6, VibratoDepth: 0.08}
	LowVoice  = VoiceParams{Name: "low", BaseFreq: 180, FormantFreq: 700, VibratoRate: 4, VibratoDepth: 0.04}
	// DefaultVoice applies when no rule matches.
	DefaultVoice = VoiceParams{Name: "neutral", BaseFreq: 200, FormantFreq: 800, VibratoRate: 5, VibratoDepth: 0.05}
)

type voiceRule struct {
	match  func(lower string) bool
	params VoiceParams
}

// Evaluated top to bottom; first match wins.
var voiceRules = []voiceRule{
	{match: containsAny("emma", "ava"), params: HighVoice},
	{match: containsAny("james", "oliver"), params: LowVoice},
}

// ClassifyVoice maps a display name to waveform parameters using a
// case-insensitive substring match.
func ClassifyVoice(displayName string) VoiceParams {
	lower := strings.ToLower(displayName)
	for _, rule := range voiceRules {
		if rule.match(lower) {
			return rule.params
		}
	}
	return DefaultVoice
}

func containsAny(needles ...string) func(string) bool {
	return func(s string) bool {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
		return false
	}
}
