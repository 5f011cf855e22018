package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slipspeak/slipspeak/pkg/provider/stt"
)

// ErrAllFailed is returned when every backend in an [STTFallback] fails or
// is refused by its breaker.
var ErrAllFailed = errors.New("resilience: all stt backends failed")

// sttBackend pairs a transcription backend with its own breaker, so one
// flaky backend cannot poison the health accounting of the others.
type sttBackend struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// STTFallback implements [stt.Provider] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker,
// so a local whisper model with a broken model file or a hosted API outage
// is bypassed after a few failures instead of stalling every turn.
//
// [stt.ErrNoSpeech] is an outcome, not a fault: silence from one backend is
// returned as-is, never retried against the fallback, and does not count
// against the breaker.
type STTFallback struct {
	backends []sttBackend
	breaker  BreakerConfig
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. The breaker config is applied per backend, with Name replaced by
// the backend's name.
func NewSTTFallback(primary stt.Provider, primaryName string, breaker BreakerConfig) *STTFallback {
	f := &STTFallback{breaker: breaker}
	f.add(primaryName, primary)
	return f
}

// AddFallback registers an additional backend. Backends are tried in
// registration order, primary first.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.add(name, provider)
}

func (f *STTFallback) add(name string, provider stt.Provider) {
	cfg := f.breaker
	cfg.Name = name
	f.backends = append(f.backends, sttBackend{
		name:     name,
		provider: provider,
		breaker:  NewBreaker(cfg),
	})
}

// Transcribe runs the utterance against the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	var lastErr error
	for i := range f.backends {
		be := &f.backends[i]

		var res stt.Result
		var silent bool
		err := be.breaker.Execute(func() error {
			r, terr := be.provider.Transcribe(ctx, pcm, cfg)
			if errors.Is(terr, stt.ErrNoSpeech) {
				silent = true
				return nil
			}
			res = r
			return terr
		})
		if err == nil {
			if silent {
				return stt.Result{}, stt.ErrNoSpeech
			}
			return res, nil
		}

		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("stt backend skipped, breaker open", "backend", be.name)
		} else {
			slog.Warn("stt backend failed, trying next",
				"backend", be.name,
				"error", err,
			)
		}
	}
	return stt.Result{}, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
