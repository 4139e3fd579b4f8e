// Package classify routes a question to one of the knowledge corpora.
//
// Classification is layered: cheap lexical signals first (a 7-digit bid
// document number, procurement vocabulary), then embedding similarity against
// per-corpus prototype descriptions, then a keyword fallback. The layers are
// ordered so that the unambiguous signals short-circuit before any network
// call is made.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// Label identifies which corpus a question targets.
type Label string

const (
	// LabelCalamity targets the Terraria Calamity mod wiki corpus.
	LabelCalamity Label = "calamity"

	// LabelGem targets the GeM government procurement bid corpus.
	LabelGem Label = "gem"

	// LabelGeneral means neither corpus: answer from background knowledge.
	LabelGeneral Label = "general"

	// LabelUnclear means the question could not be resolved to a corpus
	// and the caller should ask the user to disambiguate.
	LabelUnclear Label = "unclear"
)

// ParseLabel returns the Label for s if it names a user-choosable corpus.
// "unclear" is not a valid user choice.
func ParseLabel(s string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelCalamity:
		return LabelCalamity, true
	case LabelGem:
		return LabelGem, true
	case LabelGeneral:
		return LabelGeneral, true
	}
	return "", false
}

// confidenceThreshold is the minimum cosine similarity for the semantic
// layer to accept its best-scoring label.
const confidenceThreshold = 0.55

// docIDPattern matches a bare 7-digit bid document number.
var docIDPattern = regexp.MustCompile(`\b\d{7}\b`)

// gemIndicators are procurement terms that resolve a question to the GeM
// corpus before any semantic work.
var gemIndicators = []string{
	"bidding", "bid", "tender", "procurement", "gem", "ministry",
	"organisation", "item category", "documents",
}

// Fallback keyword lexicons, scanned in declaration order.
var (
	calamityKeywords = []string{
		"calamity", "terraria", "boss", "weapon", "item", "mod", "yharon",
		"supreme", "devourer", "providence", "astrum",
	}
	gemKeywords = []string{
		"gem", "procurement", "bidding", "tender", "ministry", "government",
		"bid", "contract", "purchase", "supplier", "vendor", "amc",
		"maintenance", "defence", "department", "proposal",
	}
)

// prototypes are the per-corpus descriptions the semantic layer compares
// questions against. Dense keyword strings rather than prose: they exist to
// occupy a region of embedding space, not to be read.
var prototypes = map[Label]string{
	LabelGem: "government procurement bidding tender contract ministry " +
		"defence department supplier vendor purchase proposal military " +
		"equipment services maintenance annual contract GeM marketplace " +
		"public sector acquisition",
	LabelCalamity: "terraria calamity mod boss weapon item crafting recipe " +
		"strategy guide gaming video game yharon providence devourer astrum " +
		"supreme calamitas scal draedon exo mechs",
	LabelGeneral: "general knowledge facts information science history " +
		"geography mathematics basic questions everyday topics",
}

// PrototypeDescription returns the description text embedded for a corpus
// label, for tooling that needs to pin or inspect prototype embeddings.
func PrototypeDescription(label Label) string {
	return prototypes[label]
}

// maxUnclearWords bounds how short a question must be for the keyword
// fallback to leave it unresolved. A bare term like "abyss" carries no
// lexical evidence either way; defaulting it to "general" would silently
// skip retrieval, so it is left for disambiguation instead.
const maxUnclearWords = 2

// Classifier assigns a corpus label to each question. Prototype embeddings
// are computed lazily on first use and cached for the process lifetime; a
// failed computation is retried on the next call.
//
// Classifier is safe for concurrent use.
type Classifier struct {
	embedder ai.Embedder
	logger   *slog.Logger

	mu         sync.Mutex
	protoCache map[Label][]float32
}

// New creates a Classifier backed by the given embedder.
func New(embedder ai.Embedder, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		embedder:   embedder,
		logger:     logger,
		protoCache: make(map[Label][]float32),
	}
}

// Classify resolves question to a corpus label. A non-empty choice naming a
// valid label wins outright; it is the user's answer to a previous
// disambiguation prompt. Classify never returns an error: embedding failures
// degrade to the keyword fallback.
func (c *Classifier) Classify(ctx context.Context, question, choice string) Label {
	if label, ok := ParseLabel(choice); ok {
		c.logger.Debug("classification from user choice", "label", label)
		return label
	}

	if docIDPattern.MatchString(question) {
		c.logger.Debug("document number detected", "label", LabelGem)
		return LabelGem
	}

	lower := strings.ToLower(question)
	for _, term := range gemIndicators {
		if strings.Contains(lower, term) {
			c.logger.Debug("procurement indicator matched", "term", term)
			return LabelGem
		}
	}

	if label := c.classifySemantic(ctx, question); label != LabelUnclear {
		return label
	}

	return c.classifyKeywords(lower)
}

// classifySemantic scores the question against each prototype by cosine
// similarity. Any failure along the way yields LabelUnclear so the keyword
// fallback can take over.
func (c *Classifier) classifySemantic(ctx context.Context, question string) Label {
	qvec, err := c.embed(ctx, question)
	if err != nil {
		c.logger.Warn("question embedding failed, falling back to keywords", "error", err)
		return LabelUnclear
	}

	best := LabelUnclear
	bestScore := float64(-1)
	for label := range prototypes {
		pvec, err := c.prototypeVector(ctx, label)
		if err != nil {
			c.logger.Warn("prototype embedding failed, falling back to keywords",
				"label", label, "error", err)
			return LabelUnclear
		}
		if score := cosine(qvec, pvec); score > bestScore {
			best, bestScore = label, score
		}
	}

	if bestScore > confidenceThreshold {
		c.logger.Debug("semantic classification", "label", best, "score", bestScore)
		return best
	}
	c.logger.Debug("semantic classification below threshold",
		"best", best, "score", bestScore)
	return LabelUnclear
}

// classifyKeywords is the last layer: lexicon scan, calamity list first.
// Short questions with no lexical evidence stay unresolved so the caller
// can ask which corpus was meant.
func (c *Classifier) classifyKeywords(lower string) Label {
	for _, kw := range calamityKeywords {
		if strings.Contains(lower, kw) {
			return LabelCalamity
		}
	}
	for _, kw := range gemKeywords {
		if strings.Contains(lower, kw) {
			return LabelGem
		}
	}
	if len(strings.Fields(lower)) <= maxUnclearWords {
		return LabelUnclear
	}
	return LabelGeneral
}

// prototypeVector returns the cached embedding for a prototype description,
// computing it on first use.
func (c *Classifier) prototypeVector(ctx context.Context, label Label) ([]float32, error) {
	c.mu.Lock()
	vec, ok := c.protoCache[label]
	c.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := c.embed(ctx, prototypes[label])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.protoCache[label] = vec
	c.mu.Unlock()
	return vec, nil
}

func (c *Classifier) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding for %q", text)
	}
	return resp.Embeddings[0].Embedding, nil
}

// cosine returns the cosine similarity of two vectors. A zero-norm vector
// has similarity 0 against anything.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
