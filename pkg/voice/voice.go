// Package voice defines the interfaces and types for voice-channel
// connectivity: joining a channel and receiving per-speaker PCM audio.
//
// The two primary abstractions are:
//
//   - [Platform] — connects to a voice channel and returns a [Connection].
//   - [Connection] — an active presence on that channel, delivering a single
//     merged stream of (speaker, frame) events plus participant lifecycle
//     events.
//
// Implementations live in platform-specific adapter packages (e.g.
// voice/discord). The interfaces are intentionally narrow so the game core
// stays decoupled from provider details, and the package lives under pkg/
// because third-party platform adapters are expected to implement them.
package voice

import (
	"context"
	"time"
)

// Frame is a single chunk of PCM audio captured from a speaker.
type Frame struct {
	// Data is 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate in Hz (48000 for Discord Opus decode output).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// SpeakerFrame attributes a [Frame] to the participant who produced it.
type SpeakerFrame struct {
	// SpeakerID is the platform-specific participant identifier. Adapters
	// resolve it to a stable user ID where the platform allows; otherwise it
	// is a transport-level stream identifier.
	SpeakerID string

	Frame Frame
}

// EventType classifies participant lifecycle events.
type EventType int

const (
	// EventJoin is emitted when a participant enters the voice channel.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the voice channel.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a participant lifecycle change on a voice channel.
type Event struct {
	Type     EventType
	UserID   string
	Username string
}

// Connection is an active presence on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and remains valid until
// [Connection.Disconnect] is called. The frame channel is closed when the
// connection terminates, including abnormal transport disconnects, so
// consumers always observe end-of-stream.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Frames returns the merged read-only stream of per-speaker audio.
	// Frames from all participants are interleaved; consumers filter by
	// SpeakerID. The channel is closed on Disconnect.
	Frames() <-chan SpeakerFrame

	// OnParticipantChange registers cb to be invoked whenever a participant
	// joins or leaves the channel. Only one callback may be registered at a
	// time; later calls replace the earlier registration. The callback runs
	// on an internal goroutine — it must not block.
	OnParticipantChange(cb func(Event))

	// Disconnect tears down the connection and closes the frame channel.
	// Safe to call more than once; subsequent calls are no-ops returning nil.
	Disconnect() error
}

// Platform is the entry point for a voice-channel provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the voice channel identified by channelID and returns an
	// active [Connection]. ctx governs the connection attempt only; the
	// returned Connection lives until Disconnect.
	Connect(ctx context.Context, channelID string) (Connection, error)
}
