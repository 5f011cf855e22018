package scoring

import (
	"strings"
	"unicode"
)

// Normalize prepares text for comparison: lowercase, strip everything except
// letters, digits and whitespace, collapse whitespace runs, and trim the
// ends. Normalize is idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// matchBlock is a run of identical runes: a[A:A+Size] == b[B:B+Size].
type matchBlock struct {
	A, B, Size int
}

// similarity returns the matching-block ratio between a and b in [0, 1]
// together with the matching blocks themselves: 2*M / (len(a)+len(b)) where
// M is the total length of all matching blocks. This is an alignment-based
// measure, not an edit distance; transposed or repeated fragments score by
// how much of the text aligns, which suits garbled tongue twister attempts.
func similarity(a, b string) (float64, []matchBlock) {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0, nil
	}

	blocks := matchingBlocks(ra, rb, 0, len(ra), 0, len(rb))

	var matched int
	for _, blk := range blocks {
		matched += blk.Size
	}
	return 2 * float64(matched) / float64(len(ra)+len(rb)), blocks
}

// matchingBlocks recursively splits around the longest common block, the
// classic Ratcliff/Obershelp pattern-matching recursion. Blocks are returned
// in ascending order of position.
func matchingBlocks(a, b []rune, alo, ahi, blo, bhi int) []matchBlock {
	bi, bj, size := longestMatch(a, b, alo, ahi, blo, bhi)
	if size == 0 {
		return nil
	}

	var blocks []matchBlock
	blocks = append(blocks, matchingBlocks(a, b, alo, bi, blo, bj)...)
	blocks = append(blocks, matchBlock{A: bi, B: bj, Size: size})
	blocks = append(blocks, matchingBlocks(a, b, bi+size, ahi, bj+size, bhi)...)
	return blocks
}

// longestMatch finds the longest run of identical runes within
// a[alo:ahi] and b[blo:bhi]. Ties resolve to the earliest match in a, then
// the earliest in b, so output is deterministic.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, size int) {
	// runLen[j] is the length of the matching run ending at a[i-1], b[j].
	runLen := make(map[int]int)
	for i := alo; i < ahi; i++ {
		next := make(map[int]int)
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				continue
			}
			k := runLen[j-1] + 1
			next[j] = k
			if k > size {
				besti, bestj, size = i-k+1, j-k+1, k
			}
		}
		runLen = next
	}
	return besti, bestj, size
}
