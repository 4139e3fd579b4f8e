package docstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	chromem "github.com/philippgille/chromem-go"
)

// wildcardQuery stands in for the "match anything" sweep used by the
// exhaustive retrieval fallback. The index has no notion of an empty query
// (every query is embedded), so a generic structural phrase is used instead.
const wildcardQuery = "document summary details"

// Store wraps one chromem-go collection. It is a thin pass-through to the
// embedding index; its only added contract is that callers must never assume
// global ordering stability across separate calls with different k.
//
// Store is safe for concurrent use.
type Store struct {
	name   string
	coll   *chromem.Collection
	logger *slog.Logger
}

// Open loads (or creates) the persistent index at path and returns a Store
// over the named collection. The embedder must match the one the index was
// built with: embeddings are only comparable within one model version.
func Open(path, name string, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector index at %q: %w", path, err)
	}

	coll, err := db.GetOrCreateCollection(name, nil, NewEmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}

	logger.Info("vector index loaded", "path", path, "collection", name, "chunks", coll.Count())
	return &Store{name: name, coll: coll, logger: logger}, nil
}

// OpenMemory returns a Store over an in-memory collection. Used by tests and
// one-off inspection tooling; production corpora are opened with Open.
func OpenMemory(name string, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	coll, err := chromem.NewDB().GetOrCreateCollection(name, nil, NewEmbeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}
	return &Store{name: name, coll: coll, logger: logger}, nil
}

// Count returns the number of chunks in the collection.
func (s *Store) Count() int {
	return s.coll.Count()
}

// Add embeds and stores the given chunks. Chunk IDs are derived from source
// and chunk index so re-ingesting a document overwrites its previous chunks.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		id := c.Metadata[MetaSource] + "#" + c.Metadata[MetaChunkIndex]
		if id == "#" {
			id = c.Fingerprint()
		}
		docs = append(docs, chromem.Document{
			ID:       id,
			Content:  c.Content,
			Metadata: c.Metadata,
		})
	}

	if err := s.coll.AddDocuments(ctx, docs, 2); err != nil {
		return fmt.Errorf("adding %d chunks to %q: %w", len(docs), s.name, err)
	}
	s.logger.Debug("chunks indexed", "collection", s.name, "count", len(docs))
	return nil
}

// Search returns up to k chunks ordered by similarity, most similar first.
// An empty query is treated as a wildcard sweep. k is clamped to the
// collection size; an empty collection yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	return s.query(ctx, query, k, nil)
}

// SearchFiltered is Search restricted to chunks whose metadata matches every
// key/value pair in where exactly.
func (s *Store) SearchFiltered(ctx context.Context, query string, k int, where map[string]string) ([]Chunk, error) {
	return s.query(ctx, query, k, where)
}

func (s *Store) query(ctx context.Context, query string, k int, where map[string]string) ([]Chunk, error) {
	if query == "" {
		query = wildcardQuery
	}
	if count := s.coll.Count(); k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	results, err := s.coll.Query(queryCtx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", s.name, err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		meta := make(map[string]string, len(r.Metadata))
		for key, val := range r.Metadata {
			meta[key] = val
		}
		chunks = append(chunks, Chunk{
			Content:    r.Content,
			Metadata:   meta,
			Similarity: r.Similarity,
		})
	}
	return chunks, nil
}
