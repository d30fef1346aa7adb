package extractor

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Paperbase/internal/core"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunks with Pos/Text/TokenCnt.
func streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan core.TextChunk {
	out := make(chan core.TextChunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []string
			tokSum int
			pos    int
			fresh  bool // buffer holds fragments not yet emitted (not just overlap carry-over)
		)

		// flush emits the current buffer as a chunk and prepares the buffer for the next chunk,
		// preserving overlapTokens from the tail if configured.
		flush := func() error {
			if tokSum == 0 {
				return nil
			}
			ch := core.TextChunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum}
			pos++
			fresh = false

			// Emit the chunk to downstream; backpressure applies here.
			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}

			// Compute overlap: keep a tail whose token sum ≈ overlapTokens.
			if overlapTokens > 0 {
				keep := []string{}
				remain := overlapTokens
				for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
					t := approxTokens(buf[j])
					keep = append([]string{buf[j]}, keep...) // prepend to keep original order
					remain -= t
				}
				buf = keep

				// Recompute tokSum for the kept tail.
				tokSum = 0
				for _, s := range buf {
					tokSum += approxTokens(s)
				}
			} else {
				buf = buf[:0]
				tokSum = 0
			}
			return nil
		}

		for frag := range frags {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			buf = append(buf, frag)
			tokSum += approxTokens(frag)
			fresh = true

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		// Emit the remaining tail, unless the buffer is only the overlap
		// carried over from the previous chunk.
		if fresh {
			if err := flush(); err != nil {
				return err
			}
		}
		return nil
	})

	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
// Replace with a real tokenizer later to improve chunk boundaries.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
