// Package chatbot orchestrates one conversation turn: classify the question
// to a corpus, retrieve and grade context, then either generate an answer
// through the corpus-specific answerer or ask the user to disambiguate.
//
// The engine is explicitly constructed once at startup and shared by
// reference across request handlers; its fields are immutable after
// construction.
package chatbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/calagem/calagem/internal/cache"
	"github.com/calagem/calagem/internal/classify"
	"github.com/calagem/calagem/internal/docstore"
	"github.com/calagem/calagem/internal/extract"
	"github.com/calagem/calagem/internal/grade"
	"github.com/calagem/calagem/internal/retrieve"
	"github.com/calagem/calagem/internal/session"
)

// Answer sources reported in results.
const (
	SourceCache          = "cache"
	SourceDisambiguation = "disambiguation"
)

// disambiguationMessage is the fixed menu issued when the corpus cannot be
// resolved. The user's next message naming one of the labels replays the
// original question under that label.
const disambiguationMessage = "I can help you with different types of questions:\n\n" +
	"**Calamity** - For Terraria Calamity mod questions (weapons, bosses, items)\n" +
	"**GeM** - For Government procurement and bidding questions\n" +
	"**General** - For general knowledge questions\n\n" +
	"Which topic is your question about? Please type 'calamity', 'gem', or 'general'."

// User-visible failure messages. Internal errors never reach the user raw;
// authentication-class failures get a distinct message because retrying
// will not help until an operator fixes the credential.
const (
	apologyMessage = "I'm sorry, I ran into a problem while answering that. " +
		"Please try again in a moment."
	configErrorMessage = "The language model credentials appear to be missing or " +
		"invalid. Please contact the operator."
)

// Retrieval widths per path.
const (
	defaultSearchK = 5
	singleDocK     = 8
	multiDocK      = 50
	gemFallbackK   = 8
)

// Result is the outcome of one conversation turn.
type Result struct {
	Answer   string                  `json:"answer"`
	Label    classify.Label          `json:"label"`
	Source   string                  `json:"source"`
	Coverage *retrieve.CoverageStats `json:"coverage,omitempty"`
}

// cachedResponse is the response-cache payload. The label rides along so a
// cache hit reports the same classification as the turn that produced it.
type cachedResponse struct {
	Answer string
	Label  classify.Label
}

// Config carries the engine's dependencies. All fields are required unless
// noted.
type Config struct {
	Classifier   *classify.Classifier
	Calamity     *retrieve.Retriever
	Gem          *retrieve.Retriever
	Extractor    *extract.Extractor
	Grader       *grade.Grader
	Reformulator Reformulator
	Answerers    map[classify.Label]Answerer
	Sessions     *session.Store
	Logger       *slog.Logger

	ResponseTTL time.Duration
	ChunkTTL    time.Duration
}

func (cfg Config) validate() error {
	switch {
	case cfg.Classifier == nil:
		return errors.New("classifier is required")
	case cfg.Calamity == nil:
		return errors.New("calamity retriever is required")
	case cfg.Gem == nil:
		return errors.New("gem retriever is required")
	case cfg.Extractor == nil:
		return errors.New("extractor is required")
	case cfg.Grader == nil:
		return errors.New("grader is required")
	case cfg.Reformulator == nil:
		return errors.New("reformulator is required")
	case cfg.Sessions == nil:
		return errors.New("session store is required")
	}
	for _, label := range []classify.Label{classify.LabelCalamity, classify.LabelGem, classify.LabelGeneral} {
		if cfg.Answerers[label] == nil {
			return errors.New("answerer missing for label " + string(label))
		}
	}
	return nil
}

// Engine runs the conversation state machine. Safe for concurrent use.
type Engine struct {
	classifier   *classify.Classifier
	calamity     *retrieve.Retriever
	gem          *retrieve.Retriever
	extractor    *extract.Extractor
	grader       *grade.Grader
	reformulator Reformulator
	answerers    map[classify.Label]Answerer
	sessions     *session.Store
	logger       *slog.Logger

	responses   *cache.Store[cachedResponse]
	chunks      *cache.Store[[]docstore.Chunk]
	responseTTL time.Duration
	chunkTTL    time.Duration
}

// New creates an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	responseTTL := cfg.ResponseTTL
	if responseTTL <= 0 {
		responseTTL = 5 * time.Minute
	}
	chunkTTL := cfg.ChunkTTL
	if chunkTTL <= 0 {
		chunkTTL = 10 * time.Minute
	}

	return &Engine{
		classifier:   cfg.Classifier,
		calamity:     cfg.Calamity,
		gem:          cfg.Gem,
		extractor:    cfg.Extractor,
		grader:       cfg.Grader,
		reformulator: cfg.Reformulator,
		answerers:    cfg.Answerers,
		sessions:     cfg.Sessions,
		logger:       logger,
		responses:    cache.New[cachedResponse](),
		chunks:       cache.New[[]docstore.Chunk](),
		responseTTL:  responseTTL,
		chunkTTL:     chunkTTL,
	}, nil
}

// Chat runs one conversation turn. choice, when non-empty, is an explicit
// corpus selection accompanying the question. Chat never fails the turn:
// internal errors degrade to user-facing messages per the error policy.
func (e *Engine) Chat(ctx context.Context, sessionID, question, choice string) Result {
	question = strings.TrimSpace(question)

	// A turn that follows a disambiguation prompt either names a corpus,
	// in which case the original question is replayed under it, or is a
	// fresh question and the pending marker is simply dropped.
	if choice == "" {
		if original, ok := e.sessions.TakePending(sessionID); ok {
			if label, valid := classify.ParseLabel(question); valid {
				e.logger.Debug("disambiguation resolved",
					"session", sessionID, "label", label)
				choice = string(label)
				question = original
			}
		}
	}

	history := e.sessions.History(sessionID)

	respKey := cache.ResponseKey(question, historyStrings(history))
	if cached, ok := e.responses.Get(respKey); ok {
		e.logger.Debug("response cache hit", "session", sessionID)
		e.recordTurn(sessionID, question, cached.Answer)
		return Result{Answer: cached.Answer, Label: cached.Label, Source: SourceCache}
	}

	label := e.classifier.Classify(ctx, question, choice)

	if label == classify.LabelUnclear {
		e.sessions.SetPending(sessionID, question)
		e.recordTurn(sessionID, question, disambiguationMessage)
		return Result{
			Answer: disambiguationMessage,
			Label:  label,
			Source: SourceDisambiguation,
		}
	}

	context, coverage := e.retrieveFor(ctx, label, question, history)
	graded := e.grader.Grade(ctx, label, question, context)

	answer := e.generate(ctx, label, question, history, graded)

	e.recordTurn(sessionID, question, answer)
	e.responses.Set(respKey, cachedResponse{Answer: answer, Label: label}, e.responseTTL)

	return Result{
		Answer:   answer,
		Label:    label,
		Source:   string(label),
		Coverage: coverage,
	}
}

// retrieveFor gathers context for the question under the resolved label.
// Retrieval failures degrade to empty context; they never abort the turn.
func (e *Engine) retrieveFor(ctx context.Context, label classify.Label, question string, history []session.Message) ([]docstore.Chunk, *retrieve.CoverageStats) {
	if label == classify.LabelGeneral {
		return nil, nil
	}

	chunkKey := cache.ChunkKey(question)
	if cached, ok := e.chunks.Get(chunkKey); ok {
		e.logger.Debug("chunk cache hit", "label", label)
		return cached, nil
	}

	var (
		chunks   []docstore.Chunk
		coverage *retrieve.CoverageStats
	)

	switch label {
	case classify.LabelCalamity:
		chunks = e.search(ctx, e.calamity, e.standalone(ctx, question, history), defaultSearchK)

	case classify.LabelGem:
		switch docID, hasDocID := retrieve.DocID(question); {
		case hasDocID:
			chunks = e.retrieveSingleDoc(ctx, question, docID)
		case retrieve.IsMultiDocQuery(question):
			var stats retrieve.CoverageStats
			chunks, stats = e.gem.MultiDocument(ctx, question, multiDocK)
			coverage = &stats
		default:
			chunks = e.search(ctx, e.gem, e.standalone(ctx, question, history), defaultSearchK)
		}
	}

	if len(chunks) > 0 {
		e.chunks.Set(chunkKey, chunks, e.chunkTTL)
	}
	return chunks, coverage
}

// retrieveSingleDoc handles a question naming one bid document: structured
// field extraction over the document's full text first, then scoped
// semantic retrieval, then an unscoped search as a last resort.
func (e *Engine) retrieveSingleDoc(ctx context.Context, question, docID string) []docstore.Chunk {
	if text := e.gem.DocumentText(ctx, docID); text != "" {
		if chunk, ok := e.extractor.Extract(question, text, docID); ok {
			return []docstore.Chunk{chunk}
		}
	}

	if chunks := e.gem.SingleDocument(ctx, question, docID, singleDocK); len(chunks) > 0 {
		return chunks
	}
	return e.search(ctx, e.gem, question, gemFallbackK)
}

// standalone reformulates the question against history, falling back to the
// original question when reformulation fails.
func (e *Engine) standalone(ctx context.Context, question string, history []session.Message) string {
	q, err := e.reformulator.Standalone(ctx, question, history)
	if err != nil {
		e.logger.Warn("reformulation failed, using original question", "error", err)
		return question
	}
	return q
}

func (e *Engine) search(ctx context.Context, r *retrieve.Retriever, query string, k int) []docstore.Chunk {
	chunks, err := r.Search(ctx, query, k)
	if err != nil {
		e.logger.Warn("retrieval failed, continuing without context", "error", err)
		return nil
	}
	return chunks
}

// generate produces the answer through the label's answerer, converting
// failures into user-facing messages.
func (e *Engine) generate(ctx context.Context, label classify.Label, question string, history []session.Message, context []docstore.Chunk) string {
	answerer := e.answerers[label]

	answer, err := answerer.Answer(ctx, question, history, context)
	if err != nil {
		e.logger.Error("generation failed", "label", label, "error", err)
		if isAuthError(err) {
			return configErrorMessage
		}
		return apologyMessage
	}
	if strings.TrimSpace(answer) == "" {
		return apologyMessage
	}
	return answer
}

func (e *Engine) recordTurn(sessionID, question, answer string) {
	e.sessions.Append(sessionID, session.RoleUser, question)
	e.sessions.Append(sessionID, session.RoleAssistant, answer)
}

// historyStrings flattens history for cache-key derivation.
func historyStrings(history []session.Message) []string {
	out := make([]string, len(history))
	for i, m := range history {
		out[i] = m.Role + ":" + m.Content
	}
	return out
}

// authErrorMarkers identify credential and permission failures from the
// model provider, which warrant the operator-facing message.
var authErrorMarkers = []string{
	"api key", "unauthorized", "unauthenticated", "permission denied",
	"401", "403",
}

func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range authErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
