// Package grade filters retrieved chunks for relevance before generation.
//
// Grading is a cost/latency tradeoff: only the first few candidates get an
// individual judgment call, and whole classes of questions skip grading
// entirely because their retrieval is already precise (document-targeted
// searches) or because filtering would destroy required coverage
// (multi-document comparisons).
package grade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/calagem/calagem/internal/classify"
	"github.com/calagem/calagem/internal/docstore"
	"github.com/calagem/calagem/internal/retrieve"
)

const (
	// maxJudged caps how many candidates receive an individual judgment.
	// Anything ranked below the cap is dropped unless a short-circuit
	// rule keeps the whole set.
	maxJudged = 3

	// excerptLen is the content prefix shown to the judge.
	excerptLen = 1000
)

// rubrics are the per-corpus relevance instructions given to the judge.
var rubrics = map[classify.Label]string{
	classify.LabelCalamity: "You are a grader assessing if a document is relevant " +
		"to a Terraria Calamity mod question. A document is relevant if it contains " +
		"specific information about Calamity mod content (weapons, bosses, items, " +
		"mechanics, etc.). Give a binary JSON output with 'is_relevant': 'yes' or 'no'.",
	classify.LabelGem: "You are a grader assessing if a document is relevant " +
		"to a GeM procurement question. A document is relevant if it contains " +
		"information about government bidding, procurement processes, requirements, " +
		"or procedures. Give a binary JSON output with 'is_relevant': 'yes' or 'no'.",
}

// verdict is the judge's structured output.
type verdict struct {
	IsRelevant string `json:"is_relevant"`
}

// Judge renders a binary relevance verdict for one candidate.
type Judge interface {
	Relevant(ctx context.Context, label classify.Label, question, excerpt string) (bool, error)
}

// LLMJudge asks the completion model for a structured yes/no verdict.
type LLMJudge struct {
	g     *genkit.Genkit
	model string
}

// NewLLMJudge creates a Judge backed by the named model.
func NewLLMJudge(g *genkit.Genkit, model string) *LLMJudge {
	return &LLMJudge{g: g, model: model}
}

// Relevant implements Judge.
func (j *LLMJudge) Relevant(ctx context.Context, label classify.Label, question, excerpt string) (bool, error) {
	rubric, ok := rubrics[label]
	if !ok {
		return false, fmt.Errorf("no grading rubric for label %q", label)
	}

	resp, err := genkit.Generate(ctx, j.g,
		ai.WithModelName(j.model),
		ai.WithSystem(rubric),
		ai.WithPrompt("Document: %s\nUser Question: %s", excerpt, question),
		ai.WithOutputType(verdict{}),
	)
	if err != nil {
		return false, fmt.Errorf("relevance judgment: %w", err)
	}

	var v verdict
	if err := resp.Output(&v); err != nil {
		return false, fmt.Errorf("parsing relevance verdict: %w", err)
	}
	return v.IsRelevant == "yes", nil
}

// Grader applies the short-circuit rules and delegates the rest to a Judge.
type Grader struct {
	judge  Judge
	logger *slog.Logger
}

// New creates a Grader.
func New(judge Judge, logger *slog.Logger) *Grader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grader{judge: judge, logger: logger}
}

// Grade filters candidates for relevance to the question.
//
// Short-circuits, in order: a document-number question keeps all candidates
// (targeted retrieval is already precise); a multi-document question keeps
// all candidates (filtering would discard required coverage); a general
// question keeps the first few without judgment. Otherwise the first few
// candidates are individually judged; a failed judgment skips that one
// candidate rather than aborting the pass. The result is the relevant
// subset, or empty when nothing passed: no context beats wrong context.
func (g *Grader) Grade(ctx context.Context, label classify.Label, question string, candidates []docstore.Chunk) []docstore.Chunk {
	if len(candidates) == 0 {
		return nil
	}

	if _, ok := retrieve.DocID(question); ok {
		g.logger.Debug("grading skipped for document-targeted question")
		return candidates
	}
	if retrieve.IsMultiDocQuery(question) {
		g.logger.Debug("grading skipped for multi-document question")
		return candidates
	}
	if label == classify.LabelGeneral {
		if len(candidates) > maxJudged {
			return candidates[:maxJudged]
		}
		return candidates
	}

	var relevant []docstore.Chunk
	for i, c := range candidates {
		if i >= maxJudged {
			break
		}
		excerpt := c.Content
		if len(excerpt) > excerptLen {
			excerpt = excerpt[:excerptLen]
		}

		ok, err := g.judge.Relevant(ctx, label, question, excerpt)
		if err != nil {
			g.logger.Warn("relevance judgment failed, skipping candidate",
				"index", i, "source", c.Source(), "error", err)
			continue
		}
		if ok {
			relevant = append(relevant, c)
		}
	}

	g.logger.Debug("grading complete",
		"label", label, "candidates", len(candidates), "relevant", len(relevant))
	return relevant
}
