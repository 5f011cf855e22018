package turn

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/slipspeak/slipspeak/pkg/voice"
)

// ErrVoiceClosed is returned when the voice frame stream ends before the
// recording finished, typically because the bot was disconnected from the
// channel. Any audio captured up to that point is still returned.
var ErrVoiceClosed = errors.New("turn: voice stream closed")

const (
	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit
	// PCM units) below which a frame is considered silent. The maximum
	// possible value for 16-bit audio is 32 767; 300 corresponds to
	// near-silence.
	defaultRMSThreshold = 300.0

	defaultSilenceThreshold = 500 * time.Millisecond
	defaultMaxDuration      = 30 * time.Second
)

// FrameSource is the subset of a voice connection the recorder consumes.
type FrameSource interface {
	Frames() <-chan voice.SpeakerFrame
}

// Result is one captured utterance.
type Result struct {
	// PCM is the recorded 16-bit signed little-endian audio, including any
	// trailing silence up to the stop decision. Empty when NoAudio is set.
	PCM []byte

	// SampleRate and Channels describe the PCM format, taken from the first
	// speech frame. Zero when NoAudio is set.
	SampleRate int
	Channels   int

	// Elapsed is the time from recording start to the end of the last
	// speech frame. It includes the player's reaction time, which is what
	// the speed bonus is scored against.
	Elapsed time.Duration

	// NoAudio is set when the recording window expired without a single
	// speech frame from the player.
	NoAudio bool
}

// Recorder captures one player's utterance from a mixed voice frame stream.
// Frames from other speakers are ignored. Recording stops after sustained
// silence once speech has been heard, or when the overall window expires.
//
// A Recorder is stateless across calls and safe for concurrent use; each
// Record call tracks its own buffer.
type Recorder struct {
	silenceThreshold time.Duration
	maxDuration      time.Duration
	rmsThreshold     float64
}

// RecorderOption is a functional option for configuring a Recorder.
type RecorderOption func(*Recorder)

// WithSilenceThreshold sets the consecutive-silence duration that ends a
// recording once speech has started. Defaults to 500 ms.
func WithSilenceThreshold(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.silenceThreshold = d }
}

// WithMaxDuration sets the overall recording window. A player who never
// speaks within it gets a NoAudio result. Defaults to 30 s.
func WithMaxDuration(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.maxDuration = d }
}

// WithRMSThreshold sets the energy level separating speech from silence.
func WithRMSThreshold(level float64) RecorderOption {
	return func(r *Recorder) { r.rmsThreshold = level }
}

// NewRecorder creates a Recorder with the given options applied over the
// defaults.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		silenceThreshold: defaultSilenceThreshold,
		maxDuration:      defaultMaxDuration,
		rmsThreshold:     defaultRMSThreshold,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Record consumes frames from src until the stop condition is met and
// returns the captured utterance. Leading silence before the first speech
// frame is discarded. The silence timer runs on the wall clock rather than
// on received audio, because a quiet participant stops transmitting frames
// entirely.
//
// On ctx cancellation or stream close the audio captured so far is returned
// alongside the error.
func (r *Recorder) Record(ctx context.Context, src FrameSource, speakerID string) (Result, error) {
	start := time.Now()
	deadline := time.NewTimer(r.maxDuration)
	defer deadline.Stop()

	// The silence check polls rather than arming a timer per frame: a quiet
	// participant produces no frames at all, so the stop condition must fire
	// without any channel activity.
	interval := r.silenceThreshold / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	check := time.NewTicker(interval)
	defer check.Stop()

	var (
		res       Result
		hadSpeech bool
		speechEnd time.Time
	)

	finish := func() Result {
		if !hadSpeech {
			return Result{NoAudio: true}
		}
		res.Elapsed = speechEnd.Sub(start)
		return res
	}

	for {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()

		case <-deadline.C:
			return finish(), nil

		case <-check.C:
			if hadSpeech && time.Since(speechEnd) >= r.silenceThreshold {
				return finish(), nil
			}

		case sf, ok := <-src.Frames():
			if !ok {
				return finish(), ErrVoiceClosed
			}
			if sf.SpeakerID != speakerID {
				continue
			}
			if computeRMS(sf.Frame.Data) >= r.rmsThreshold {
				if !hadSpeech {
					hadSpeech = true
					res.SampleRate = sf.Frame.SampleRate
					res.Channels = sf.Frame.Channels
				}
				speechEnd = time.Now()
				res.PCM = append(res.PCM, sf.Frame.Data...)
			} else if hadSpeech {
				// Trailing silence is kept so the utterance does not end
				// abruptly mid-word for the transcriber.
				res.PCM = append(res.PCM, sf.Frame.Data...)
			}
		}
	}
}

// computeRMS returns the root-mean-square amplitude of 16-bit signed
// little-endian PCM audio.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
