// Package twisters holds the tongue twister library: the phrases players are
// challenged with, their difficulty tiers, and random selection with
// difficulty filtering.
//
// A [Library] is built once at startup (from the built-in set, a YAML file,
// or both) and is read-only afterwards, so it is safe for concurrent use.
package twisters

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Difficulty is the tier of a tongue twister. It drives the score multiplier
// and the twister pools used by timed challenges, duels, and brackets.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Insane Difficulty = "insane"
)

// Difficulties lists all tiers in ascending order of difficulty.
var Difficulties = []Difficulty{Easy, Medium, Hard, Insane}

// IsValid reports whether d is a recognised difficulty tier.
func (d Difficulty) IsValid() bool {
	switch d {
	case Easy, Medium, Hard, Insane:
		return true
	}
	return false
}

// ParseDifficulty converts a user-supplied string into a [Difficulty].
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", fmt.Errorf("twisters: unknown difficulty %q (valid: easy, medium, hard, insane)", s)
	}
	return d, nil
}

// Twister is a single challenge phrase. Twisters are immutable once loaded
// into a [Library].
type Twister struct {
	// ID uniquely identifies the twister within the library.
	ID int `yaml:"id"`

	// Text is the phrase the player must say.
	Text string `yaml:"text"`

	// Difficulty is the tier this twister belongs to.
	Difficulty Difficulty `yaml:"difficulty"`

	// WordCount is derived from Text at load time; any value in the source
	// file is overwritten.
	WordCount int `yaml:"word_count"`

	// FocusSounds is a short human-readable note about which sounds the
	// twister exercises (e.g. "S sounds"). Display only.
	FocusSounds string `yaml:"focus_sounds"`
}

// ErrNoTwister is returned by [Library.Random] when no twister matches the
// requested difficulty filter.
var ErrNoTwister = errors.New("twisters: no twister matches the requested filter")

// Library is the read-only twister collection used by the game core.
type Library struct {
	all    []Twister
	byID   map[int]Twister
	byTier map[Difficulty][]Twister
}

// NewLibrary builds a Library from the given twisters. Word counts are
// derived from the text. Returns an error on duplicate IDs, empty text, or
// an invalid difficulty.
func NewLibrary(tws []Twister) (*Library, error) {
	if len(tws) == 0 {
		return nil, errors.New("twisters: library must contain at least one twister")
	}

	l := &Library{
		all:    make([]Twister, 0, len(tws)),
		byID:   make(map[int]Twister, len(tws)),
		byTier: make(map[Difficulty][]Twister),
	}

	for i, tw := range tws {
		if strings.TrimSpace(tw.Text) == "" {
			return nil, fmt.Errorf("twisters: twister %d (index %d) has empty text", tw.ID, i)
		}
		if !tw.Difficulty.IsValid() {
			return nil, fmt.Errorf("twisters: twister %d has invalid difficulty %q", tw.ID, tw.Difficulty)
		}
		if _, dup := l.byID[tw.ID]; dup {
			return nil, fmt.Errorf("twisters: duplicate twister id %d", tw.ID)
		}
		tw.WordCount = len(strings.Fields(tw.Text))

		l.all = append(l.all, tw)
		l.byID[tw.ID] = tw
		l.byTier[tw.Difficulty] = append(l.byTier[tw.Difficulty], tw)
	}

	return l, nil
}

// LoadFile reads a YAML twister list from path. The file is a sequence of
// twister entries using the same field names as [Twister].
func LoadFile(path string) ([]Twister, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("twisters: open %q: %w", path, err)
	}
	defer f.Close()

	var tws []Twister
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&tws); err != nil {
		return nil, fmt.Errorf("twisters: decode %q: %w", path, err)
	}
	return tws, nil
}

// Get returns the twister with the given ID.
func (l *Library) Get(id int) (Twister, bool) {
	tw, ok := l.byID[id]
	return tw, ok
}

// Random returns a uniformly random twister drawn from the given difficulty
// tiers. With no filter, the whole library is the pool. Returns
// [ErrNoTwister] when the pool is empty.
func (l *Library) Random(filter ...Difficulty) (Twister, error) {
	pool := l.all
	if len(filter) > 0 {
		pool = nil
		for _, d := range filter {
			pool = append(pool, l.byTier[d]...)
		}
	}
	if len(pool) == 0 {
		return Twister{}, fmt.Errorf("%w: %v", ErrNoTwister, filter)
	}
	return pool[rand.IntN(len(pool))], nil
}

// List returns all twisters of the given difficulty, or the full library
// when difficulty is empty.
func (l *Library) List(d Difficulty) []Twister {
	if d == "" {
		out := make([]Twister, len(l.all))
		copy(out, l.all)
		return out
	}
	out := make([]Twister, len(l.byTier[d]))
	copy(out, l.byTier[d])
	return out
}

// Len returns the number of twisters in the library.
func (l *Library) Len() int { return len(l.all) }
