package turn

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/slipspeak/slipspeak/pkg/voice"
	voicemock "github.com/slipspeak/slipspeak/pkg/voice/mock"
)

// pcmFrame builds a voice frame filled with the given 16-bit amplitude.
func pcmFrame(amplitude int16, samples int) voice.Frame {
	data := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return voice.Frame{Data: data, SampleRate: 48000, Channels: 1, Timestamp: 20 * time.Millisecond}
}

func fastRecorder() *Recorder {
	return NewRecorder(
		WithSilenceThreshold(40*time.Millisecond),
		WithMaxDuration(500*time.Millisecond),
	)
}

func TestRecorder_StopsOnSilence(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()
	for range 5 {
		conn.Send("player1", pcmFrame(8000, 960))
	}

	res, err := fastRecorder().Record(context.Background(), conn, "player1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if res.NoAudio {
		t.Fatal("NoAudio = true; want captured speech")
	}
	if want := 5 * 960 * 2; len(res.PCM) != want {
		t.Errorf("len(PCM) = %d; want %d", len(res.PCM), want)
	}
	if res.SampleRate != 48000 || res.Channels != 1 {
		t.Errorf("format = %d Hz / %d ch; want 48000/1", res.SampleRate, res.Channels)
	}
	if res.Elapsed < 0 || res.Elapsed > 400*time.Millisecond {
		t.Errorf("Elapsed = %v; expected well under the silence stop", res.Elapsed)
	}
}

func TestRecorder_NoSpeechTimesOut(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()
	conn.Send("player1", pcmFrame(0, 960)) // pure silence

	r := NewRecorder(
		WithSilenceThreshold(40*time.Millisecond),
		WithMaxDuration(80*time.Millisecond),
	)
	res, err := r.Record(context.Background(), conn, "player1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !res.NoAudio {
		t.Error("NoAudio = false; want true for silent window")
	}
	if len(res.PCM) != 0 {
		t.Errorf("len(PCM) = %d; want 0", len(res.PCM))
	}
}

func TestRecorder_IgnoresOtherSpeakers(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()
	for range 5 {
		conn.Send("heckler", pcmFrame(8000, 960))
	}

	r := NewRecorder(
		WithSilenceThreshold(40*time.Millisecond),
		WithMaxDuration(80*time.Millisecond),
	)
	res, err := r.Record(context.Background(), conn, "player1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !res.NoAudio {
		t.Error("NoAudio = false; another speaker's audio must not count")
	}
}

func TestRecorder_TrailingSilenceKept(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()
	conn.Send("player1", pcmFrame(8000, 960))
	conn.Send("player1", pcmFrame(0, 960))

	res, err := fastRecorder().Record(context.Background(), conn, "player1")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if want := 2 * 960 * 2; len(res.PCM) != want {
		t.Errorf("len(PCM) = %d; want %d (speech plus trailing silence)", len(res.PCM), want)
	}
}

func TestRecorder_StreamClosedReturnsPartial(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()
	conn.Send("player1", pcmFrame(8000, 960))
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	res, err := fastRecorder().Record(context.Background(), conn, "player1")
	if !errors.Is(err, ErrVoiceClosed) {
		t.Fatalf("error = %v; want ErrVoiceClosed", err)
	}
	if res.NoAudio || len(res.PCM) == 0 {
		t.Error("expected partial audio returned alongside ErrVoiceClosed")
	}
}

func TestRecorder_ContextCancelled(t *testing.T) {
	t.Parallel()
	conn := voicemock.NewConnection()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastRecorder().Record(ctx, conn, "player1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v; want context.Canceled", err)
	}
}
