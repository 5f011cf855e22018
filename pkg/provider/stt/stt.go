// Package stt defines the transcription contract for speech-to-text
// backends.
//
// A provider takes one complete PCM utterance and returns the recognised
// text. The game core is backend-agnostic: a local whisper.cpp model and the
// OpenAI transcription API both implement [Provider], selected by
// configuration. Backend model state is loaded once at process start and
// shared read-only across calls; providers hold no per-call state and must
// be safe for concurrent use.
//
// Failures the game treats as outcomes rather than faults are reported via
// the sentinel errors [ErrNoSpeech], [ErrUnavailable], and [ErrTimeout];
// match them with errors.Is.
package stt

import (
	"context"
	"errors"
	"time"
)

// Transcription failure taxonomy. Providers wrap these sentinels so callers
// can branch on the class of failure without knowing the backend.
var (
	// ErrNoSpeech means the audio contained no recognisable speech.
	ErrNoSpeech = errors.New("stt: no speech detected")

	// ErrUnavailable means the backend is down, misconfigured, or rejected
	// the request for non-audio reasons.
	ErrUnavailable = errors.New("stt: engine unavailable")

	// ErrTimeout means the backend did not answer within the deadline.
	ErrTimeout = errors.New("stt: transcription timed out")
)

// Config describes the audio format and recognition hints for a
// transcription call.
type Config struct {
	// SampleRate is the PCM sample rate in Hz. Common values: 48000
	// (Discord Opus decode output), 16000 (STT-optimised mono).
	SampleRate int

	// Channels is the number of interleaved channels in the PCM data.
	// Providers downmix to mono internally when needed.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// Result is a completed transcription.
type Result struct {
	// Text is the recognised speech, trimmed. Never empty: providers return
	// ErrNoSpeech instead of an empty result.
	Text string

	// Confidence is the backend's overall confidence in [0, 1]. Zero when
	// the backend does not report one.
	Confidence float64
}

// Provider is the abstraction over any speech-to-text backend.
//
// Transcribe must honour ctx cancellation and must not retain pcm after
// returning. Implementations must be safe for concurrent use; multiple
// transcriptions may run simultaneously (one per active game channel).
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, cfg Config) (Result, error)
}

// WithTimeout wraps p so every Transcribe call is bounded by d. Exceeding
// the deadline surfaces [ErrTimeout]. A non-positive d returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{inner: p, timeout: d}
}

type timeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// Transcribe runs the wrapped provider on its own goroutine so the caller is
// released at the deadline even when the backend cannot observe ctx (CGO
// inference). A timed-out backend call finishes in the background and its
// result is discarded.
func (t *timeoutProvider) Transcribe(ctx context.Context, pcm []byte, cfg Config) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := t.inner.Transcribe(ctx, pcm, cfg)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrTimeout
		}
		return o.res, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, ErrTimeout
		}
		return Result{}, ctx.Err()
	}
}
