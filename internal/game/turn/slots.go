// Package turn captures a single player's spoken attempt from a voice
// channel: it owns the per-channel recording slot and the silence-driven
// recorder that turns a frame stream into one PCM utterance.
package turn

import (
	"errors"
	"sync"
)

// ErrChannelBusy is returned when a recording slot for the channel is
// already held by another turn.
var ErrChannelBusy = errors.New("turn: channel already recording")

type slotKey struct {
	guildID   string
	channelID string
}

// ChannelSlots enforces at most one live recording per voice channel.
// The slot is held for the whole turn (recording plus transcription) so a
// second player cannot start speaking while the previous attempt is still
// being processed.
type ChannelSlots struct {
	mu   sync.Mutex
	held map[slotKey]struct{}
}

// NewChannelSlots creates an empty slot table.
func NewChannelSlots() *ChannelSlots {
	return &ChannelSlots{held: make(map[slotKey]struct{})}
}

// Acquire claims the slot for the given channel. It returns ErrChannelBusy
// without blocking if the slot is already held. The returned Slot must be
// released when the turn completes; Release is idempotent and safe to defer.
func (s *ChannelSlots) Acquire(guildID, channelID string) (*Slot, error) {
	key := slotKey{guildID: guildID, channelID: channelID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.held[key]; busy {
		return nil, ErrChannelBusy
	}
	s.held[key] = struct{}{}
	return &Slot{slots: s, key: key}, nil
}

// Held reports whether the channel's slot is currently taken.
func (s *ChannelSlots) Held(guildID, channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.held[slotKey{guildID: guildID, channelID: channelID}]
	return busy
}

// Slot is a claimed recording slot. Zero value is not usable; obtain one
// via ChannelSlots.Acquire.
type Slot struct {
	slots *ChannelSlots
	key   slotKey
	once  sync.Once
}

// Release frees the slot for the next turn. Safe to call multiple times.
func (s *Slot) Release() {
	s.once.Do(func() {
		s.slots.mu.Lock()
		delete(s.slots.held, s.key)
		s.slots.mu.Unlock()
	})
}
