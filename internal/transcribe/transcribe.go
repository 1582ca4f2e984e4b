// Package transcribe produces a word-timestamped transcript from a mono WAV
// file, per SPEC_FULL.md §4.5.
package transcribe

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/clipforge/shorts-worker/internal/models"
	"github.com/clipforge/shorts-worker/internal/werror"
)

// Transcriber is the narrow one-method contract the Job Runner depends on.
// The shipped implementation shells a speech-to-text subprocess; tests and
// alternative backends may supply their own.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (models.Transcript, error)
}

// SubprocessTranscriber shells a whisper-compatible CLI that emits
// word-level timestamps as JSON. It is constructed once at process start
// and holds the resolved binary path, never re-resolved per call.
type SubprocessTranscriber struct {
	binPath string
	model   string
	timeout time.Duration
}

// NewSubprocessTranscriber resolves binPath via exec.LookPath once, failing
// fast if the transcription binary is missing.
func NewSubprocessTranscriber(binPath, model string, timeout time.Duration) (*SubprocessTranscriber, error) {
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, werror.Wrap(werror.ConfigError, "transcribe", err, "resolving transcription binary")
	}
	return &SubprocessTranscriber{binPath: resolved, model: model, timeout: timeout}, nil
}

// wireOutput mirrors a whisper.cpp-style full JSON transcript: one entry per
// segment, each carrying its own word-level token list with second offsets.
type wireOutput struct {
	Transcription []wireSegment `json:"transcription"`
}

type wireSegment struct {
	Offsets struct {
		FromSeconds float64 `json:"from_seconds"`
		ToSeconds   float64 `json:"to_seconds"`
	} `json:"offsets"`
	Text   string      `json:"text"`
	Tokens []wireToken `json:"tokens"`
}

type wireToken struct {
	Text      string  `json:"text"`
	FromSeconds float64 `json:"from_seconds"`
	ToSeconds   float64 `json:"to_seconds"`
}

// Transcribe runs the resolved binary against wavPath and normalizes its
// output. Segments whose tokens carry no timing are dropped; an entirely
// empty result is fatal.
func (s *SubprocessTranscriber) Transcribe(ctx context.Context, wavPath string) (models.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.binPath,
		"--model", s.model,
		"--output-json-full",
		"--output-stdout",
		"--word-timestamps",
		wavPath,
	)
	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return models.Transcript{}, werror.Wrap(werror.Timeout, "transcribe", ctx.Err(), "transcription timed out")
	}
	if err != nil {
		return models.Transcript{}, werror.Wrap(werror.TranscribeFailed, "transcribe", err, "running transcription binary")
	}

	transcript, err := parseWireOutput(out)
	if err != nil {
		return models.Transcript{}, err
	}
	if len(transcript.Segments) == 0 {
		return models.Transcript{}, werror.New(werror.TranscribeFailed, "transcribe", "empty transcript")
	}
	return transcript, nil
}

func parseWireOutput(raw []byte) (models.Transcript, error) {
	var wire wireOutput
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Transcript{}, werror.Wrap(werror.TranscribeFailed, "transcribe", err, "parsing transcript JSON")
	}

	var segments []models.Segment
	for _, ws := range wire.Transcription {
		words := make([]models.Word, 0, len(ws.Tokens))
		for _, tok := range ws.Tokens {
			text := cleanToken(tok.Text)
			if text == "" {
				continue
			}
			words = append(words, models.Word{
				Start: tok.FromSeconds,
				End:   tok.ToSeconds,
				Text:  text,
			})
		}
		if len(words) == 0 {
			// No word-level timing recovered for this segment; drop it
			// rather than emit a segment the Segmenter cannot align.
			continue
		}
		segments = append(segments, models.Segment{
			Start: ws.Offsets.FromSeconds,
			End:   ws.Offsets.ToSeconds,
			Text:  ws.Text,
			Words: words,
		})
	}

	return models.Transcript{Segments: segments}, nil
}

// cleanToken strips whisper.cpp's special tokens ([_BEG_], [_TT_N], etc.)
// and surrounding whitespace, returning "" for tokens with no speech text.
func cleanToken(text string) string {
	trimmed := text
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t') {
		trimmed = trimmed[1:]
	}
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == ' ' || trimmed[len(trimmed)-1] == '\t') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if len(trimmed) >= 2 && trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']' {
		return ""
	}
	return trimmed
}
