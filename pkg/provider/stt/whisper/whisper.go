// Package whisper implements stt.Provider on top of the whisper.cpp CGO
// bindings. The static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/slipspeak/slipspeak/pkg/provider/stt"
)

const defaultLanguage = "en"

// modelSampleRate is the only input rate whisper.cpp accepts. Audio at any
// other rate must be resampled before Process.
const modelSampleRate = 16000

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider runs whisper.cpp inference in-process, eliminating network
// overhead entirely. The model is loaded once at startup and shared across
// all concurrent transcriptions; each Transcribe call creates its own
// whisper context, so calls from different channels do not interfere.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en". A per-call stt.Config.Language
// takes precedence.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe downmixes the PCM utterance to mono, resamples it from
// cfg.SampleRate to the model's 16 kHz rate and runs whisper.cpp inference
// using a fresh context. Note that the CGO call
// cannot be interrupted mid-inference; callers wanting a hard deadline
// should wrap the provider with stt.WithTimeout.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return stt.Result{}, fmt.Errorf("whisper: empty audio: %w", stt.ErrNoSpeech)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = modelSampleRate
	}

	// Discord voice arrives as 48 kHz PCM; whisper.cpp only accepts 16 kHz.
	mono := downmixMono(pcm, channels)
	mono = resampleMono16(mono, rate, modelSampleRate)
	samples := pcmToFloat32(mono)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("%w: create context: %v", stt.ErrUnavailable, err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("%w: process audio: %v", stt.ErrUnavailable, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("%w: read segment: %v", stt.ErrUnavailable, err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return stt.Result{}, stt.ErrNoSpeech
	}
	return stt.Result{Text: text}, nil
}
