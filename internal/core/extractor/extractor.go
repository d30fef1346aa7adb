package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Paperbase/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// ExtractConfig tunes the chunking stage.
//
// TargetTokens:  approximate tokens per chunk (e.g., 500).
// OverlapTokens: token overlap between consecutive chunks for context bleed (e.g., 50).
type ExtractConfig struct {
	TargetTokens  int
	OverlapTokens int
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	cfg            ExtractConfig
}

func NewDocconvExtractor(useReadability bool, cfg ExtractConfig) *DocconvExtractor {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 500
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	return &DocconvExtractor{useReadability: useReadability, cfg: cfg}
}

// WordCount converts the document and counts whitespace-separated words.
func (e *DocconvExtractor) WordCount(ctx context.Context, data []byte, contentType string) (int, error) {
	body, err := e.convert(ctx, data, contentType)
	if err != nil {
		return 0, err
	}
	return len(strings.Fields(body)), nil
}

// Extract converts the document and groups its text into token-bounded,
// positioned chunks ready for embedding.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) ([]core.TextChunk, error) {
	body, err := e.convert(ctx, data, contentType)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)

	fragCh := streamFragments(gctx, g, body)
	chunkCh := streamChunk(gctx, g, fragCh, e.cfg.TargetTokens, e.cfg.OverlapTokens)

	var chunks []core.TextChunk
	g.Go(func() error {
		for ch := range chunkCh {
			chunks = append(chunks, ch)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (e *DocconvExtractor) convert(ctx context.Context, data []byte, contentType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: extraction failed for content type %q: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if res.Body == "" {
		return "", fmt.Errorf("docconv: extracted empty text for content type %q", contentType)
	}
	return res.Body, nil
}

// streamFragments splits the extracted text into non-empty lines and emits
// them as fragments for the chunking stage.
func streamFragments(ctx context.Context, g *errgroup.Group, body string) <-chan string {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		for _, line := range strings.Split(body, "\n") {
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out
}
