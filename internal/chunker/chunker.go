// Package chunker splits text into overlapping fixed-size windows.
//
// Boundaries are raw character (rune) offsets; no attempt is made to respect
// words or sentences.
package chunker

import (
	"fmt"

	"github.com/dmitrijs2005/claimgate/internal/common"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// SplitWithOverlap cuts text into windows of chunkSize characters, each
// starting chunkSize-overlap characters after the previous one. The last
// window may be shorter and ends exactly at the end of text. Text that fits
// in one window is returned as a single chunk.
//
// For len(text) > chunkSize the number of chunks is
// ceil((len-overlap) / (chunkSize-overlap)).
func SplitWithOverlap(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", common.ErrValidation)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be >= 0 and < chunk size", common.ErrValidation)
	}

	r := []rune(text)
	n := len(r)
	if n <= chunkSize {
		return []string{text}, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, (n-overlap+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+chunkSize, n)
		chunks = append(chunks, string(r[start:end]))
		if end == n {
			break
		}
	}
	return chunks, nil
}

// PositionTag is the traceability tag of chunk i (0-based) out of total.
func PositionTag(i, total int) string {
	return fmt.Sprintf("chunk:%d/%d", i+1, total)
}

// Tags returns base plus the position tag for chunk i when the text was
// split into more than one chunk. base is never modified.
func Tags(base []string, i, total int) []string {
	out := make([]string, 0, len(base)+1)
	out = append(out, base...)
	if total > 1 {
		out = append(out, PositionTag(i, total))
	}
	return out
}
