package collab

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAITranscriber implements Transcriber against OpenAI's audio
// transcription endpoint. It is selected by the "openai" stt_provider
// config value; the default remains the stub for offline development.
type OpenAITranscriber struct {
	client openai.Client
	model  openai.AudioModel
}

func NewOpenAITranscriber(apiKey string) OpenAITranscriber {
	return OpenAITranscriber{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.AudioModelWhisper1,
	}
}

// Transcribe wraps the raw little-endian PCM16 buffer as a WAV container
// before handing it to the API, since the upload endpoint accepts bare
// PCM octets (spec.md §6) but the transcription API expects a file with a
// recognised audio container format.
func (o OpenAITranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wav := wrapPCMAsWAV(pcm, sampleRate)
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  fileReader{bytes.NewReader(wav), "audio.wav"},
		Model: o.model,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return resp.Text, nil
}

// OpenAISynthesizer implements Synthesizer against OpenAI's text-to-speech
// endpoint.
type OpenAISynthesizer struct {
	client openai.Client
	voice  openai.AudioSpeechNewParamsVoice
	model  openai.SpeechModel
}

func NewOpenAISynthesizer(apiKey string) OpenAISynthesizer {
	return OpenAISynthesizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		voice:  openai.AudioSpeechNewParamsVoiceAlloy,
		model:  openai.SpeechModelTTS1,
	}
}

func (o OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          o.model,
		Voice:          o.voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech synthesis: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// fileReader adapts an io.Reader with a filename to the multipart file
// parameter shape the openai-go client expects for uploads.
type fileReader struct {
	io.Reader
	name string
}

func (f fileReader) Name() string { return f.name }

// wrapPCMAsWAV prepends a minimal 44-byte canonical WAV header describing
// mono 16-bit little-endian PCM at sampleRate, per spec.md §6's upload
// format.
func wrapPCMAsWAV(pcm []byte, sampleRate int) []byte {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataLen := len(pcm)

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	writeUint32LE(buf, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	writeUint32LE(buf, 16)
	writeUint16LE(buf, 1) // PCM
	writeUint16LE(buf, numChannels)
	writeUint32LE(buf, uint32(sampleRate))
	writeUint32LE(buf, uint32(byteRate))
	writeUint16LE(buf, uint16(blockAlign))
	writeUint16LE(buf, bitsPerSample)
	buf.WriteString("data")
	writeUint32LE(buf, uint32(dataLen))
	buf.Write(pcm)
	return buf.Bytes()
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeUint16LE(buf *bytes.Buffer, v uint16) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
}
