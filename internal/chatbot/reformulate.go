package chatbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/calagem/calagem/internal/session"
)

// Reformulator rewrites a follow-up question into a standalone one before
// retrieval, so "what does it drop" becomes searchable after a turn about a
// specific boss.
type Reformulator interface {
	Standalone(ctx context.Context, question string, history []session.Message) (string, error)
}

const reformulateSystemPrompt = "Reformulate the user question based on chat " +
	"history to be a standalone question. Do not answer it."

// LLMReformulator rewrites questions with the completion model.
type LLMReformulator struct {
	g     *genkit.Genkit
	model string
}

// NewLLMReformulator creates a Reformulator backed by the named model.
func NewLLMReformulator(g *genkit.Genkit, model string) *LLMReformulator {
	return &LLMReformulator{g: g, model: model}
}

// Standalone implements Reformulator. With no history the question is
// already standalone and no model call is made.
func (r *LLMReformulator) Standalone(ctx context.Context, question string, history []session.Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.model),
		ai.WithSystem(reformulateSystemPrompt),
		ai.WithMessages(toMessages(history)...),
		ai.WithPrompt("%s", question),
	)
	if err != nil {
		return "", fmt.Errorf("question reformulation: %w", err)
	}

	standalone := strings.TrimSpace(resp.Text())
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}
