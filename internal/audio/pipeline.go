// Package audio implements the ingest -> intent -> dispatch pipeline
// (C7): a raw PCM upload is transcribed, gated on a wake-phrase prefix,
// fuzzy-matched to a closed intent set, dispatched through the command
// router, and answered with a synthesised confirmation sent back over the
// originating device's session.
package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/collab"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/metrics"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
)

const audioChunkBytes = 4096

// Store is the subset of the audit store the pipeline writes transcripts to.
type Store interface {
	InsertTranscript(ctx context.Context, t model.AudioTranscript) error
}

// Router is the subset of the command router the pipeline dispatches through.
type Router interface {
	Dispatch(ctx context.Context, deviceType, commandName string, payload map[string]any) (model.CommandRecord, error)
}

// Sessions is the subset of the session manager needed to reply with
// synthesised audio over the originating channel.
type Sessions interface {
	Send(deviceID string, f session.Frame) string
	HasSession(deviceID string) bool
}

// Options configures the prefix gate and match threshold (spec.md §6).
type Options struct {
	PrefixPhrases       []string
	ConfidenceThreshold float64
	SampleRate          int
}

// Pipeline wires the three external collaborators plus the router,
// sessions, and store.
type Pipeline struct {
	transcriber collab.Transcriber
	synthesizer collab.Synthesizer
	matcher     collab.Matcher
	router      Router
	sessions    Sessions
	store       Store
	opts        atomic.Pointer[Options]
	log         zerolog.Logger
}

func New(tr collab.Transcriber, ts collab.Synthesizer, m collab.Matcher, router Router, sessions Sessions, store Store, opts Options, log zerolog.Logger) *Pipeline {
	p := &Pipeline{
		transcriber: tr,
		synthesizer: ts,
		matcher:     m,
		router:      router,
		sessions:    sessions,
		store:       store,
		log:         log,
	}
	p.opts.Store(&opts)
	return p
}

// SetOptions atomically swaps the live options (prefix phrases, confidence
// threshold, sample rate), picked up by the next call to Process. This is the landing
// point for config hot-reload (spec.md §6's file-driven config watch).
func (p *Pipeline) SetOptions(opts Options) {
	p.opts.Store(&opts)
}

func (p *Pipeline) options() Options {
	return *p.opts.Load()
}

// UploadParams carries the query-string fields accompanying a PCM upload
// (spec.md §6).
type UploadParams struct {
	DeviceID  string
	Manual    bool
	Level     *float64
	Threshold *float64
}

// Result is the HTTP-visible outcome of one upload (spec.md §4.7 step 10).
type Result struct {
	Matched    bool    `json:"matched"`
	Reason     string  `json:"reason,omitempty"`
	CommandID  string  `json:"command_id,omitempty"`
	Intent     string  `json:"intent,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Process runs the full ten-step pipeline described in spec.md §4.7.
// Exactly one transcript row is persisted per call, and the HTTP-visible
// result is always "successful" (200-worthy); failures fail soft into a
// reason code.
func (p *Pipeline) Process(ctx context.Context, params UploadParams, pcm []byte) Result {
	opts := p.options()
	now := time.Now().UTC()
	transcript := model.AudioTranscript{
		DeviceID:  params.DeviceID,
		Manual:    params.Manual,
		Timestamp: now,
	}

	rawText, err := p.transcriber.Transcribe(ctx, pcm, opts.SampleRate)
	if err != nil {
		transcript.Reason = "stt_failed"
		p.persist(ctx, transcript)
		metrics.AudioUploadsTotal.WithLabelValues("stt_failed").Inc()
		return Result{Matched: false, Reason: "stt_failed"}
	}
	transcript.RawText = rawText

	normalized := normalize(rawText)
	transcript.NormalizedText = normalized

	stripped := normalized
	prefixOK := params.Manual
	if !params.Manual {
		matchedPrefix, rest, ok := stripPrefix(normalized, opts.PrefixPhrases)
		if !ok {
			transcript.PrefixOK = false
			transcript.Reason = "prefix_missing"
			p.persist(ctx, transcript)
			metrics.AudioUploadsTotal.WithLabelValues("prefix_missing").Inc()
			return Result{Matched: false, Reason: "prefix_missing"}
		}
		_ = matchedPrefix
		stripped = rest
		prefixOK = true
	}
	transcript.PrefixOK = prefixOK

	match := p.matcher.Match(stripped)
	transcript.Confidence = match.Confidence
	if match.Intent == "" || match.Confidence < opts.ConfidenceThreshold {
		transcript.Reason = "low_confidence"
		p.persist(ctx, transcript)
		metrics.AudioUploadsTotal.WithLabelValues("low_confidence").Inc()
		return Result{Matched: false, Reason: "low_confidence", Confidence: match.Confidence}
	}

	route, ok := intentRoutes[match.Intent]
	if !ok {
		transcript.Reason = "unmapped_intent"
		p.persist(ctx, transcript)
		metrics.AudioUploadsTotal.WithLabelValues("unmapped_intent").Inc()
		return Result{Matched: false, Reason: "unmapped_intent", Confidence: match.Confidence}
	}

	record, err := p.router.Dispatch(ctx, route.DeviceType, route.CommandName, map[string]any{})
	if err != nil {
		p.log.Warn().Err(err).Msg("dispatch failed during audio pipeline")
	}
	transcript.MatchedCommand = &route.CommandName
	transcript.CommandID = &record.CommandID

	p.persist(ctx, transcript)
	p.replyWithConfirmation(ctx, params.DeviceID, route.CommandName)
	metrics.AudioUploadsTotal.WithLabelValues("matched").Inc()

	return Result{
		Matched:    true,
		CommandID:  record.CommandID,
		Intent:     match.Intent,
		Confidence: match.Confidence,
	}
}

func (p *Pipeline) persist(ctx context.Context, t model.AudioTranscript) {
	if err := p.store.InsertTranscript(ctx, t); err != nil {
		p.log.Warn().Err(err).Str("device_id", t.DeviceID).Msg("failed to persist audio transcript")
	}
}

// replyWithConfirmation synthesises a short utterance and streams it back
// to the originating session as base64 audio_chunk frames, terminated by
// is_last=true (spec.md §4.7 step 9). If the session has disappeared the
// reply is skipped but the command dispatch already stands.
func (p *Pipeline) replyWithConfirmation(ctx context.Context, deviceID, commandName string) {
	if !p.sessions.HasSession(deviceID) {
		p.log.Info().Str("device_id", deviceID).Msg("originating session gone, skipping audio reply")
		return
	}

	text := fmt.Sprintf("Executing %s", commandName)
	pcm, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		p.log.Warn().Err(err).Str("device_id", deviceID).Msg("tts synthesis failed, skipping audio reply")
		return
	}

	p.sendChunks(deviceID, pcm)
}

// NotifyText synthesises arbitrary text and sends it to a named device,
// used by the standalone GET /audio/notify endpoint (spec.md §4.9, a thin
// wrapper over step 9).
func (p *Pipeline) NotifyText(ctx context.Context, deviceID, text string) error {
	if !p.sessions.HasSession(deviceID) {
		return fmt.Errorf("no live session for device %s", deviceID)
	}
	pcm, err := p.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	p.sendChunks(deviceID, pcm)
	return nil
}

func (p *Pipeline) sendChunks(deviceID string, pcm []byte) {
	sampleRate := p.options().SampleRate
	if len(pcm) == 0 {
		p.sessions.Send(deviceID, session.Frame{MessageType: session.MessageAudioChunk, IsLast: true, SampleRate: sampleRate, Format: "pcm16"})
		return
	}
	for offset := 0; offset < len(pcm); offset += audioChunkBytes {
		end := offset + audioChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		isLast := end == len(pcm)
		frame := session.Frame{
			MessageType: session.MessageAudioChunk,
			AudioBase64: base64.StdEncoding.EncodeToString(pcm[offset:end]),
			IsLast:      isLast,
			SampleRate:  sampleRate,
			Format:      "pcm16",
		}
		p.sessions.Send(deviceID, frame)
	}
}

func normalize(text string) string {
	return strings.ToUpper(strings.Join(strings.Fields(text), " "))
}

// stripPrefix reports whether normalized begins with one of the
// configured wake phrases and, if so, returns the remainder with that
// phrase removed and trimmed.
func stripPrefix(normalized string, phrases []string) (matched, rest string, ok bool) {
	for _, phrase := range phrases {
		p := strings.ToUpper(strings.TrimSpace(phrase))
		if strings.HasPrefix(normalized, p) {
			return p, strings.TrimSpace(strings.TrimPrefix(normalized, p)), true
		}
	}
	return "", normalized, false
}
