// Package collab defines the three external collaborators the audio
// pipeline treats as pure effects: speech-to-text, text-to-speech, and
// fuzzy intent matching (spec.md §1 Deliberately OUT of scope, §9 design
// note on external collaborators). The core only ever depends on these
// interfaces; concrete implementations are stub (deterministic, for tests
// and offline operation) or OpenAI-backed.
package collab

import "context"

// Transcriber turns raw PCM audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

// Synthesizer turns text into raw PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// MatchResult is the outcome of a fuzzy intent match.
type MatchResult struct {
	Intent     string
	Confidence float64
}

// Matcher maps normalised, prefix-stripped text to one of a closed set of
// intents with a confidence score.
type Matcher interface {
	Match(text string) MatchResult
}

// Intents is the closed enumeration the fuzzy matcher scores against
// (spec.md §4.7 step 5).
var Intents = []string{
	"forward", "backward", "left", "right", "stop",
	"resetposition", "handsup", "headleft", "headright", "headup", "headdown",
}
