package rag

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/samzhu/ragkit/document"
)

// ErrInvalidParameter reports a self-contradictory chunking configuration.
var ErrInvalidParameter = errors.New("invalid chunking parameter")

// SplitterConfig bounds chunk sizes. All sizes count characters (runes).
type SplitterConfig struct {
	// ChunkSize is the target length the splitter accumulates before
	// looking for a boundary.
	ChunkSize int `koanf:"chunk_size" yaml:"chunk_size"`
	// MaxChunkSize is a hard upper bound on chunk length.
	MaxChunkSize int `koanf:"max_chunk_size" yaml:"max_chunk_size"`
	// MinChunkSizeChars: shorter chunks are merged into a neighbour.
	MinChunkSizeChars int `koanf:"min_chunk_size_chars" yaml:"min_chunk_size_chars"`
	// MaxNumChunks caps the chunks produced per document.
	MaxNumChunks int `koanf:"max_num_chunks" yaml:"max_num_chunks"`
	// KeepSeparator retains boundary whitespace in chunk text.
	KeepSeparator bool `koanf:"keep_separator" yaml:"keep_separator"`
}

// DefaultSplitterConfig returns 200/350/5/10000 with separators kept.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:         200,
		MaxChunkSize:      350,
		MinChunkSizeChars: 5,
		MaxNumChunks:      10000,
		KeepSeparator:     true,
	}
}

// Validate reports ErrInvalidParameter for contradictory settings.
func (c SplitterConfig) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidParameter, c.ChunkSize)
	case c.MaxChunkSize <= 0:
		return fmt.Errorf("%w: max chunk size %d must be positive", ErrInvalidParameter, c.MaxChunkSize)
	case c.MaxNumChunks <= 0:
		return fmt.Errorf("%w: max chunks %d must be positive", ErrInvalidParameter, c.MaxNumChunks)
	case c.MinChunkSizeChars < 0:
		return fmt.Errorf("%w: min chunk size %d must not be negative", ErrInvalidParameter, c.MinChunkSizeChars)
	case c.MinChunkSizeChars > c.MaxChunkSize:
		return fmt.Errorf("%w: min chunk size %d exceeds max chunk size %d", ErrInvalidParameter, c.MinChunkSizeChars, c.MaxChunkSize)
	case c.ChunkSize > c.MaxChunkSize:
		return fmt.Errorf("%w: chunk size %d exceeds max chunk size %d", ErrInvalidParameter, c.ChunkSize, c.MaxChunkSize)
	}
	return nil
}

// TokenTextSplitter splits documents into bounded chunks. It prefers to cut
// after sentence punctuation or a newline, then after whitespace, and only
// cuts mid-word when neither appears within the max size.
type TokenTextSplitter struct {
	cfg SplitterConfig
}

// NewTokenTextSplitter validates cfg and returns a splitter.
func NewTokenTextSplitter(cfg SplitterConfig) (*TokenTextSplitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenTextSplitter{cfg: cfg}, nil
}

// Config returns the splitter's configuration.
func (s *TokenTextSplitter) Config() SplitterConfig { return s.cfg }

// Split chunks every document in order. Output is deterministic for a
// given input and configuration.
func (s *TokenTextSplitter) Split(docs []document.Document) ([]document.Chunk, error) {
	var out []document.Chunk
	for _, doc := range docs {
		chunks, err := s.SplitDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// SplitDocument chunks a single document.
func (s *TokenTextSplitter) SplitDocument(doc document.Document) ([]document.Chunk, error) {
	texts, err := s.SplitText(doc.Text)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	chunks := make([]document.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = document.NewChunk(doc, i, t)
	}
	return chunks, nil
}

// SplitText returns the chunk texts for text.
func (s *TokenTextSplitter) SplitText(text string) ([]string, error) {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	cfg := s.cfg
	if n > cfg.MaxNumChunks*cfg.MaxChunkSize {
		return nil, fmt.Errorf("%w: %d characters cannot fit in %d chunks of at most %d",
			ErrInvalidParameter, n, cfg.MaxNumChunks, cfg.MaxChunkSize)
	}

	// Every chunk but the last is at least target long, so ceil(n/target)
	// bounds the count.
	target := cfg.ChunkSize
	if ceilDiv(n, target) > cfg.MaxNumChunks {
		target = ceilDiv(n, cfg.MaxNumChunks)
	}

	spans := mergeShort(cutSpans(runes, target, cfg.MaxChunkSize), cfg.MinChunkSizeChars, cfg.MaxChunkSize)

	out := make([]string, 0, len(spans))
	for _, sp := range spans {
		t := string(runes[sp.start:sp.end])
		if !cfg.KeepSeparator {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

func cutSpans(runes []rune, target, max int) []span {
	n := len(runes)
	var spans []span
	for start := 0; start < n; {
		end := start + target
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		end = boundary(runes, end, min(start+max, n))
		spans = append(spans, span{start, end})
		start = end
	}
	return spans
}

// boundary picks a cut position in [from, limit]: the first one following
// sentence punctuation or a newline, else the first following whitespace,
// else from.
func boundary(runes []rune, from, limit int) int {
	for p := from; p <= limit; p++ {
		if isSentenceEnd(runes[p-1]) {
			return p
		}
	}
	for p := from; p <= limit; p++ {
		if unicode.IsSpace(runes[p-1]) {
			return p
		}
	}
	return from
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '\n', '。', '！', '？', '；':
		return true
	}
	return false
}

// mergeShort folds spans shorter than minLen into the previous span, or
// the next one, when the result stays within maxLen.
func mergeShort(spans []span, minLen, maxLen int) []span {
	if minLen <= 0 || len(spans) < 2 {
		return spans
	}
	merged := make([]span, 0, len(spans))
	for _, sp := range spans {
		if last := len(merged) - 1; last >= 0 && sp.len() < minLen && merged[last].len()+sp.len() <= maxLen {
			merged[last].end = sp.end
			continue
		}
		merged = append(merged, sp)
	}

	out := merged[:0]
	for i := 0; i < len(merged); i++ {
		sp := merged[i]
		if sp.len() < minLen && i+1 < len(merged) && sp.len()+merged[i+1].len() <= maxLen {
			merged[i+1].start = sp.start
			continue
		}
		out = append(out, sp)
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
