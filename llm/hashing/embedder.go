// Package hashing provides a deterministic, offline embedder based on
// feature hashing of word unigrams and bigrams. It needs no network and is
// used for local runs and tests; similarity reflects shared vocabulary only.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/samzhu/ragkit/llm"
)

// DefaultDimensions matches the catalogue entry for llm.ModelHashing.
const DefaultDimensions = 256

// Embedder maps text to an L2-normalized vector of fixed size.
type Embedder struct {
	dims int
}

// New returns an embedder producing vectors of length dims (default 256).
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Dimensions returns the vector length.
func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, llm.AsCollaboratorError(llm.ProviderLocal, err)
	}
	return e.vector(text), nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, llm.AsCollaboratorError(llm.ProviderLocal, err)
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float64 {
	v := make([]float64, e.dims)
	words := tokenize(text)
	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// add uses the signed hashing trick: the low bits pick the bucket, one more
// bit picks the sign so collisions tend to cancel.
func (e *Embedder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// tokenize lowercases and splits on anything that is not a letter or digit.
// Han characters become single-rune tokens.
func tokenize(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

var _ llm.Embedder = (*Embedder)(nil)
