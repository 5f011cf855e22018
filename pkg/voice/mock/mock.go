// Package mock provides in-memory test doubles for the [voice.Platform] and
// [voice.Connection] interfaces.
//
// All mocks are safe for concurrent use. They record every method call so
// tests can assert on call counts and arguments, and expose exported fields
// the test sets to control behaviour.
//
// Typical usage:
//
//	conn := mock.NewConnection()
//	platform := &mock.Platform{ConnectResult: conn}
//	go conn.Send("player-1", frame)
package mock

import (
	"context"
	"sync"

	"github.com/slipspeak/slipspeak/pkg/voice"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [voice.Connection]. Feed frames to
// consumers with [Connection.Send]; terminate the stream with Disconnect.
type Connection struct {
	mu sync.Mutex

	frames chan voice.SpeakerFrame
	closed bool

	// DisconnectError is returned by the first Disconnect call.
	DisconnectError error

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// RecordedCallbacks holds callbacks registered via OnParticipantChange,
	// in order of registration.
	RecordedCallbacks []func(voice.Event)
}

// NewConnection creates a Connection with a buffered frame channel.
func NewConnection() *Connection {
	return &Connection{frames: make(chan voice.SpeakerFrame, 256)}
}

// Send delivers one frame to the consumer. Returns false if the connection
// has been disconnected or the buffer is full.
func (c *Connection) Send(speakerID string, frame voice.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.frames <- voice.SpeakerFrame{SpeakerID: speakerID, Frame: frame}:
		return true
	default:
		return false
	}
}

// Frames implements [voice.Connection].
func (c *Connection) Frames() <-chan voice.SpeakerFrame {
	return c.frames
}

// OnParticipantChange implements [voice.Connection], recording the callback.
func (c *Connection) OnParticipantChange(cb func(voice.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RecordedCallbacks = append(c.RecordedCallbacks, cb)
}

// Emit invokes the most recently registered participant callback, if any.
func (c *Connection) Emit(ev voice.Event) {
	c.mu.Lock()
	var cb func(voice.Event)
	if n := len(c.RecordedCallbacks); n > 0 {
		cb = c.RecordedCallbacks[n-1]
	}
	c.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// Disconnect implements [voice.Connection]. The first call closes the frame
// channel and returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.frames)
	return c.DisconnectError
}

// Compile-time interface assertion.
var _ voice.Connection = (*Connection)(nil)

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records a single invocation of Platform.Connect.
type ConnectCall struct {
	Ctx       context.Context
	ChannelID string
}

// Platform is a mock implementation of [voice.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect. If nil, Connect returns a fresh
	// [NewConnection] per call.
	ConnectResult voice.Connection

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns ConnectResult, ConnectErr.
func (p *Platform) Connect(ctx context.Context, channelID string) (voice.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, ChannelID: channelID})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.ConnectResult != nil {
		return p.ConnectResult, nil
	}
	return NewConnection(), nil
}

// Compile-time interface assertion.
var _ voice.Platform = (*Platform)(nil)
