package collab

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
)

// StubTranscriber returns a fixed transcript regardless of input. Used in
// tests and local development where no real STT backend is configured.
type StubTranscriber struct {
	Text string
	Err  error
}

func (s StubTranscriber) Transcribe(_ context.Context, _ []byte, _ int) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Text, nil
}

// StubSynthesizer returns a silent PCM buffer sized to the text so the audio-reply
// path has something to send without a real TTS backend.
type StubSynthesizer struct {
	Err error
}

func (s StubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	// A minimal deterministic placeholder waveform: silence, sized to the
	// utterance length so longer confirmations produce longer replies.
	return make([]byte, 2*len(text)), nil
}

// LevenshteinMatcher is the default, network-free fuzzy matcher: it scores
// text against every known intent token by normalised edit distance and
// returns the closest match. Always available, never fails, grounded on
// no external service.
type LevenshteinMatcher struct{}

func (LevenshteinMatcher) Match(text string) MatchResult {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return MatchResult{}
	}

	best := ""
	bestDist := -1
	for _, intent := range Intents {
		d := levenshtein.ComputeDistance(text, intent)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = intent
		}
	}

	maxLen := len(text)
	if len(best) > maxLen {
		maxLen = len(best)
	}
	if maxLen == 0 {
		return MatchResult{}
	}

	confidence := 1.0 - float64(bestDist)/float64(maxLen)
	if confidence < 0 {
		confidence = 0
	}
	return MatchResult{Intent: best, Confidence: confidence}
}
