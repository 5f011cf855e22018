// Package mock provides a test double for the stt.Provider interface.
//
// Configure Results with the transcriptions to return in order, or set Err
// to force every call to fail. Recorded calls can be inspected afterwards:
//
//	p := &mock.Provider{Results: []stt.Result{{Text: "she sells seashells"}}}
//	res, _ := p.Transcribe(ctx, pcm, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/slipspeak/slipspeak/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// PCMLen is the byte length of the audio passed to Transcribe.
	PCMLen int
	// Cfg is the Config passed to Transcribe.
	Cfg stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order, one per call. When the slice is
	// exhausted the last element is repeated. Empty Results yields a zero
	// stt.Result.
	Results []stt.Result

	// Err, if non-nil, is returned as the error from every Transcribe call
	// in place of a result.
	Err error

	// TranscribeFunc, if non-nil, overrides the canned Results/Err behaviour
	// entirely. The call is still recorded.
	TranscribeFunc func(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next canned result.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (stt.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{PCMLen: len(pcm), Cfg: cfg})
	n := len(p.TranscribeCalls) - 1
	fn := p.TranscribeFunc
	results := p.Results
	err := p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, pcm, cfg)
	}
	if err != nil {
		return stt.Result{}, err
	}
	if len(results) == 0 {
		return stt.Result{}, nil
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n], nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
