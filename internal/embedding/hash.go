package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// DefaultDimension matches the all-MiniLM-L6-v2 output size so hash and
// model-backed indices can share a schema.
const DefaultDimension = 384

const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
)

// HashProvider is a deterministic feature-hashing embedder. Each token and
// adjacent token pair is hashed with BLAKE3 into one bucket of a fixed-size
// vector, which is then L2-normalized.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash embedder. Non-positive dimensions fall back
// to DefaultDimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{dimension: dimension}
}

// Embed converts text to a normalized bag-of-features vector.
func (h *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrEmbeddingFailure)
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: text has no embeddable tokens", ErrEmbeddingFailure)
	}

	vec := make([]float32, h.dimension)
	for i, token := range tokens {
		vec[h.bucket(token)] += unigramWeight
		if i > 0 {
			vec[h.bucket(tokens[i-1]+"_"+token)] += bigramWeight
		}
	}

	return Normalize(vec), nil
}

// Model returns the hash configuration identifier.
func (h *HashProvider) Model() string {
	return fmt.Sprintf("hash-blake3-%d", h.dimension)
}

// Dimension returns the vector length.
func (h *HashProvider) Dimension() int {
	return h.dimension
}

func (h *HashProvider) bucket(feature string) int {
	sum := blake3.Sum256([]byte(feature))
	return int(binary.LittleEndian.Uint64(sum[:8]) % uint64(h.dimension))
}

// Tokenize lowercases text and splits it into runs of Unicode letters
// and digits.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
