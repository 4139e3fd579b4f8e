// Package testutil provides deterministic test doubles shared across
// packages: an ai.Embedder with controllable vectors and failure injection.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder implements ai.Embedder for testing.
//
// By default it generates a deterministic vector from content using SHA-256,
// so distinct texts get distinct (roughly orthogonal) vectors. Explicit
// mappings can be added for precise cosine similarity control.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int

	// Err, when set, is returned by every Embed call. Used to exercise
	// degraded paths (classification falling back to keywords).
	Err error

	callCount int
}

// NewMockEmbedder creates a mock embedder producing vectors of the given
// dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given content string.
// Use this to control exact cosine similarity between test inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// CallCount returns how many times Embed has been invoked.
func (e *MockEmbedder) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// Name implements ai.Embedder.
func (e *MockEmbedder) Name() string {
	return "mock/test-embedder"
}

// Register implements ai.Embedder. No-op for testing.
func (e *MockEmbedder) Register(r api.Registry) {}

// Embed implements ai.Embedder.
func (e *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	e.callCount++
	err := e.Err
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// vectorFor returns the registered vector for content, falling back to a
// deterministic hash-derived vector.
func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	v, ok := e.vectors[content]
	e.mu.Unlock()
	if ok {
		return v
	}
	return deterministicVector(content, e.dim)
}

// documentText extracts all text content from a Document's parts.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector generates a normalized vector from content using
// SHA-256. The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
