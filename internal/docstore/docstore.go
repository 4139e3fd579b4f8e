// Package docstore wraps a chromem-go persistent vector index behind a small
// search interface. One Store corresponds to one corpus (one on-disk index
// loaded by path), mirroring how the knowledge bases are built: the Calamity
// wiki index and the GeM bid document index live in separate directories.
//
// A Chunk is the unit of retrieval: a bounded span of source text plus
// metadata. Chunks are immutable once produced; downstream components
// reference them but never mutate them.
package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Metadata keys attached to chunks at ingestion time.
const (
	// MetaSource identifies the originating document
	// (e.g. "GeM-Bidding-7893321.pdf" or a wiki URL).
	MetaSource = "source"

	// MetaChunkIndex is the zero-based position of the chunk in its document.
	MetaChunkIndex = "chunk_index"

	// MetaTotalChunks is the number of chunks the document was split into.
	MetaTotalChunks = "total_chunks"

	// MetaCategory is the GeM item category, when one was detected.
	MetaCategory = "category"

	// MetaChunkType tags synthesized chunks ("summary", "bid_opening").
	MetaChunkType = "chunk_type"

	// MetaExtractionType marks answer-shaped chunks produced by the
	// structured field extractor; generation returns them verbatim.
	MetaExtractionType = "extraction_type"
)

// Chunk type and extraction markers.
const (
	ChunkTypeSummary    = "summary"
	ChunkTypeBidOpening = "bid_opening"

	ExtractionStructured = "structured"
)

// Chunk is a bounded span of source text plus metadata, the unit of
// retrieval and caching. Similarity is populated on search results and is
// zero for freshly ingested or synthesized chunks.
type Chunk struct {
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity,omitempty"`
}

// Source returns the chunk's source document identifier, or "" if untagged.
func (c Chunk) Source() string {
	return c.Metadata[MetaSource]
}

// Fingerprint returns a stable identity for deduplication, derived from a
// prefix of the content. Chunks from overlapping searches share a
// fingerprint when their text starts identically.
func (c Chunk) Fingerprint() string {
	const prefixLen = 100
	text := c.Content
	if len(text) > prefixLen {
		text = text[:prefixLen]
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// Dedupe returns chunks with duplicate content fingerprints removed,
// preserving first-seen order.
func Dedupe(chunks []Chunk) []Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		fp := c.Fingerprint()
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, c)
	}
	return out
}

// searchTimeout bounds a single vector search, embedding included.
const searchTimeout = 10 * time.Second
