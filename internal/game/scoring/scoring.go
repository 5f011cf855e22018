// Package scoring turns a transcribed attempt into points: it compares the
// spoken text against the target twister, applies speed bonuses and
// difficulty multipliers, and reports where the attempt diverged.
//
// The engine is pure and deterministic: identical inputs always produce
// identical results, and no I/O happens anywhere in this package.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/slipspeak/slipspeak/internal/game/twisters"
)

// closeCallThreshold is the Jaro-Winkler similarity above which a mismatched
// fragment counts as a near miss rather than a wrong word.
const closeCallThreshold = 0.80

// SpeedBonus is one band of the speed bonus table: attempts faster than
// Under earn Points (the first matching band wins).
type SpeedBonus struct {
	Under  time.Duration
	Points int
}

// Tables holds the tunable scoring parameters. Zero-valued fields fall back
// to the defaults from [DefaultTables].
type Tables struct {
	// Multipliers maps each difficulty tier to its score multiplier.
	Multipliers map[twisters.Difficulty]float64

	// SpeedBonuses are checked in order; keep them sorted by Under ascending.
	SpeedBonuses []SpeedBonus

	// MinAccuracyPct is the accuracy at or above which an attempt counts as
	// successful.
	MinAccuracyPct float64
}

// DefaultTables returns the stock scoring tables: multipliers 1.0/1.5/2.0/3.0
// for easy through insane, bonuses of 500/300/100 points under 3s/5s/8s, and
// an 80% success threshold.
func DefaultTables() Tables {
	return Tables{
		Multipliers: map[twisters.Difficulty]float64{
			twisters.Easy:   1.0,
			twisters.Medium: 1.5,
			twisters.Hard:   2.0,
			twisters.Insane: 3.0,
		},
		SpeedBonuses: []SpeedBonus{
			{Under: 3 * time.Second, Points: 500},
			{Under: 5 * time.Second, Points: 300},
			{Under: 8 * time.Second, Points: 100},
		},
		MinAccuracyPct: 80,
	}
}

// Mismatch is one diverging fragment pair from the alignment between spoken
// and target text. Either side may be empty (dropped or inserted speech).
// Mismatches drive player feedback only; they never affect the score.
type Mismatch struct {
	Spoken string
	Target string

	// Close marks a near miss: the fragments are phonographically similar
	// even though they did not align exactly.
	Close bool
}

// Result is the outcome of scoring one attempt.
type Result struct {
	// AccuracyPct is the alignment ratio as a percentage, rounded to one
	// decimal place.
	AccuracyPct float64

	// Points is the final score: floor((accuracy*10 + speedBonus) * multiplier).
	Points int

	// Successful reports whether AccuracyPct met the configured minimum.
	Successful bool

	// Mismatches lists the diverging fragments, in order of appearance.
	Mismatches []Mismatch
}

// Engine scores attempts using a fixed set of [Tables]. Engines are
// read-only after construction and safe for concurrent use.
type Engine struct {
	tables Tables
}

// New creates an Engine. Missing table entries are filled from
// [DefaultTables].
func New(tables Tables) *Engine {
	def := DefaultTables()
	if tables.Multipliers == nil {
		tables.Multipliers = def.Multipliers
	}
	if tables.SpeedBonuses == nil {
		tables.SpeedBonuses = def.SpeedBonuses
	}
	if tables.MinAccuracyPct == 0 {
		tables.MinAccuracyPct = def.MinAccuracyPct
	}
	return &Engine{tables: tables}
}

// Score compares spoken against target and computes the points earned.
// spoken == "" means no speech was detected: accuracy and points are zero
// regardless of elapsed time and difficulty.
func (e *Engine) Score(spoken, target string, elapsed time.Duration, difficulty twisters.Difficulty) Result {
	normSpoken := Normalize(spoken)
	normTarget := Normalize(target)

	if normSpoken == "" || normTarget == "" {
		return Result{}
	}

	ratio, blocks := similarity(normSpoken, normTarget)
	accuracy := math.Round(ratio*1000) / 10

	base := accuracy * 10
	bonus := e.speedBonus(elapsed)
	multiplier, ok := e.tables.Multipliers[difficulty]
	if !ok {
		multiplier = 1.0
	}

	points := int(math.Floor((base + float64(bonus)) * multiplier))
	if points < 0 {
		points = 0
	}

	return Result{
		AccuracyPct: accuracy,
		Points:      points,
		Successful:  accuracy >= e.tables.MinAccuracyPct,
		Mismatches:  mismatches(normSpoken, normTarget, blocks),
	}
}

// Successful reports whether an accuracy percentage meets the configured
// success threshold.
func (e *Engine) Successful(accuracyPct float64) bool {
	return accuracyPct >= e.tables.MinAccuracyPct
}

func (e *Engine) speedBonus(elapsed time.Duration) int {
	for _, band := range e.tables.SpeedBonuses {
		if elapsed < band.Under {
			return band.Points
		}
	}
	return 0
}

// mismatches walks the gaps between matching blocks and pairs up the
// fragments each side skipped. Fragments within closeCallThreshold
// Jaro-Winkler similarity are flagged as near misses.
func mismatches(spoken, target string, blocks []matchBlock) []Mismatch {
	rs, rt := []rune(spoken), []rune(target)

	var out []Mismatch
	si, ti := 0, 0
	emit := func(sHi, tHi int) {
		sFrag := strings.TrimSpace(string(rs[si:sHi]))
		tFrag := strings.TrimSpace(string(rt[ti:tHi]))
		if sFrag == "" && tFrag == "" {
			return
		}
		m := Mismatch{Spoken: sFrag, Target: tFrag}
		if sFrag != "" && tFrag != "" {
			m.Close = matchr.JaroWinkler(sFrag, tFrag, false) >= closeCallThreshold
		}
		out = append(out, m)
	}

	for _, blk := range blocks {
		if si < blk.A || ti < blk.B {
			emit(blk.A, blk.B)
		}
		si, ti = blk.A+blk.Size, blk.B+blk.Size
	}
	if si < len(rs) || ti < len(rt) {
		emit(len(rs), len(rt))
	}
	return out
}
