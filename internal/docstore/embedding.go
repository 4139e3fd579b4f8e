package docstore

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	chromem "github.com/philippgille/chromem-go"
)

// NewEmbeddingFunc adapts a Genkit ai.Embedder to the chromem-go callback.
// One text in, one vector out; chromem-go normalizes vectors itself before
// storing them.
func NewEmbeddingFunc(embedder ai.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
			Input: []*ai.Document{ai.DocumentFromText(text, nil)},
		})
		if err != nil {
			return nil, fmt.Errorf("embedding chunk text: %w", err)
		}

		if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
			return nil, fmt.Errorf("embedder returned no vector for chunk text")
		}
		return resp.Embeddings[0].Embedding, nil
	}
}
