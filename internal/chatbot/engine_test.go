package chatbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/calagem/calagem/internal/cache"
	"github.com/calagem/calagem/internal/classify"
	"github.com/calagem/calagem/internal/docstore"
	"github.com/calagem/calagem/internal/extract"
	"github.com/calagem/calagem/internal/grade"
	"github.com/calagem/calagem/internal/log"
	"github.com/calagem/calagem/internal/retrieve"
	"github.com/calagem/calagem/internal/session"
	"github.com/calagem/calagem/internal/testutil"
)

// stubAnswerer returns a canned prefix plus the question, counting calls.
type stubAnswerer struct {
	prefix string
	err    error
	calls  int
}

func (a *stubAnswerer) Answer(ctx context.Context, question string, history []session.Message, context []docstore.Chunk) (string, error) {
	a.calls++
	if a.err != nil {
		return "", a.err
	}
	return a.prefix + question, nil
}

// identityReformulator skips the model round trip in tests.
type identityReformulator struct{}

func (identityReformulator) Standalone(ctx context.Context, question string, history []session.Message) (string, error) {
	return question, nil
}

// verdictJudge renders a fixed verdict for every candidate.
type verdictJudge struct {
	relevant bool
}

func (j verdictJudge) Relevant(ctx context.Context, label classify.Label, question, excerpt string) (bool, error) {
	return j.relevant, nil
}

type engineFixture struct {
	engine   *Engine
	embedder *testutil.MockEmbedder
	sessions *session.Store
	gemStore *docstore.Store
	calamity *stubAnswerer
	general  *stubAnswerer
}

// axis returns a 16-dimensional unit vector along one axis, for pinning
// exact cosine similarities.
func axis(i int) []float32 {
	v := make([]float32, 16)
	v[i] = 1
	return v
}

func newFixture(t *testing.T, gemAnswerer Answerer, judge grade.Judge) *engineFixture {
	t.Helper()

	embedder := testutil.NewMockEmbedder(16)
	logger := log.NewNop()

	// Pin the prototype embeddings to distinct axes so a question pinned
	// to another axis always scores below the semantic threshold.
	embedder.SetVector(classify.PrototypeDescription(classify.LabelCalamity), axis(0))
	embedder.SetVector(classify.PrototypeDescription(classify.LabelGem), axis(1))
	embedder.SetVector(classify.PrototypeDescription(classify.LabelGeneral), axis(2))

	calamityStore, err := docstore.OpenMemory("calamity", embedder, logger)
	if err != nil {
		t.Fatalf("OpenMemory calamity: %v", err)
	}
	gemStore, err := docstore.OpenMemory("gem", embedder, logger)
	if err != nil {
		t.Fatalf("OpenMemory gem: %v", err)
	}

	f := &engineFixture{
		embedder: embedder,
		sessions: session.NewStore(),
		gemStore: gemStore,
		calamity: &stubAnswerer{prefix: "CALAMITY:"},
		general:  &stubAnswerer{prefix: "GENERAL:"},
	}
	if gemAnswerer == nil {
		gemAnswerer = NewGemAnswerer(nil, "unused")
	}
	if judge == nil {
		judge = verdictJudge{relevant: true}
	}

	roster := []string{"7893321", "7908419"}
	f.engine, err = New(Config{
		Classifier:   classify.New(embedder, logger),
		Calamity:     retrieve.New(calamityStore, nil, logger),
		Gem:          retrieve.New(gemStore, roster, logger),
		Extractor:    extract.New(logger),
		Grader:       grade.New(judge, logger),
		Reformulator: identityReformulator{},
		Answerers: map[classify.Label]Answerer{
			classify.LabelCalamity: f.calamity,
			classify.LabelGem:      gemAnswerer,
			classify.LabelGeneral:  f.general,
		},
		Sessions: f.sessions,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func addBidDocument(t *testing.T, store *docstore.Store, docNum, content string) {
	t.Helper()
	err := store.Add(context.Background(), []docstore.Chunk{{
		Content: content,
		Metadata: map[string]string{
			docstore.MetaSource:     "GeM-Bidding-" + docNum + ".pdf",
			docstore.MetaChunkIndex: "0",
		},
	}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestChatStructuredExtractionEndToEnd(t *testing.T) {
	f := newFixture(t, nil, nil)
	addBidDocument(t, f.gemStore, "7893321",
		"Bid Details\nBid Opening Date/Time 14-08-2025 12:30:00\nMinistry Of Defence")

	got := f.engine.Chat(context.Background(), session.NewID(),
		"What is document 7893321's bid opening time?", "")

	if got.Label != classify.LabelGem {
		t.Errorf("label = %q, want gem", got.Label)
	}
	if !strings.Contains(got.Answer, "14-08-2025 12:30:00") {
		t.Errorf("answer = %q, want the extracted value verbatim", got.Answer)
	}
	if !strings.Contains(got.Answer, "GeM-Bidding-7893321") {
		t.Errorf("answer = %q, want it to name the document", got.Answer)
	}
}

func TestChatDisambiguationFlow(t *testing.T) {
	f := newFixture(t, nil, verdictJudge{relevant: false})
	addBidDocument(t, f.gemStore, "7893321", "some procurement content here")

	// Keep "abyss" below the semantic threshold so it stays unresolved.
	f.embedder.SetVector("abyss", axis(3))

	ctx := context.Background()
	id := session.NewID()

	first := f.engine.Chat(ctx, id, "abyss", "")
	if first.Source != SourceDisambiguation {
		t.Fatalf("first turn source = %q, want disambiguation", first.Source)
	}
	if !strings.Contains(first.Answer, "calamity") || !strings.Contains(first.Answer, "gem") {
		t.Errorf("disambiguation menu missing choices: %q", first.Answer)
	}

	// The user picks a corpus; the original question is replayed under it.
	second := f.engine.Chat(ctx, id, "gem", "")
	if second.Label != classify.LabelGem {
		t.Fatalf("second turn label = %q, want gem", second.Label)
	}
	if second.Answer != noDocumentsMessage {
		t.Errorf("second turn answer = %q, want the no-documents message", second.Answer)
	}

	// The replayed question, not the literal "gem", enters the history.
	h := f.sessions.History(id)
	if h[len(h)-2].Content != "abyss" {
		t.Errorf("replayed user turn = %q, want %q", h[len(h)-2].Content, "abyss")
	}
}

func TestChatIgnoredDisambiguationIsANewQuestion(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.embedder.SetVector("abyss", axis(3))
	next := "what is the tallest mountain on earth anyway"
	f.embedder.SetVector(next, axis(3))

	ctx := context.Background()
	id := session.NewID()

	f.engine.Chat(ctx, id, "abyss", "")
	got := f.engine.Chat(ctx, id, next, "")

	if got.Label != classify.LabelGeneral {
		t.Fatalf("label = %q, want general for a fresh question", got.Label)
	}
	if got.Answer != "GENERAL:"+next {
		t.Errorf("answer = %q, want the new question answered, not the pending one", got.Answer)
	}

	// The pending marker was consumed; a later "gem" is a new question.
	if _, ok := f.sessions.TakePending(id); ok {
		t.Errorf("pending marker survived an ignored disambiguation")
	}
}

func TestChatMultiDocumentCoverage(t *testing.T) {
	gemStub := &stubAnswerer{prefix: "GEM:"}
	f := newFixture(t, gemStub, nil)
	addBidDocument(t, f.gemStore, "7893321", "Bid Opening Date/Time 14-08-2025 12:30:00")
	addBidDocument(t, f.gemStore, "7908419", "Bid Opening Date/Time 19-08-2025 09:30:00")

	got := f.engine.Chat(context.Background(), session.NewID(),
		"list all bid opening times in all documents", "")

	if got.Label != classify.LabelGem {
		t.Fatalf("label = %q, want gem", got.Label)
	}
	if got.Coverage == nil {
		t.Fatalf("multi-document turn reported no coverage stats")
	}
	if got.Coverage.Ratio() != 1.0 {
		t.Errorf("coverage ratio = %v, want 1.0", got.Coverage.Ratio())
	}
	if gemStub.calls != 1 {
		t.Errorf("gem answerer called %d times, want 1", gemStub.calls)
	}
}

func TestChatResponseCache(t *testing.T) {
	f := newFixture(t, nil, nil)

	ctx := context.Background()
	question := "how do I beat yharon in calamity"
	f.embedder.SetVector(question, axis(3))

	first := f.engine.Chat(ctx, session.NewID(), question, "")
	second := f.engine.Chat(ctx, session.NewID(), question, "")

	if first.Answer != second.Answer {
		t.Errorf("cached answer differs: %q vs %q", first.Answer, second.Answer)
	}
	if second.Source != SourceCache {
		t.Errorf("second turn source = %q, want cache", second.Source)
	}
	if second.Label != first.Label {
		t.Errorf("cached turn label = %q, want %q as on the fresh turn", second.Label, first.Label)
	}
	if f.calamity.calls != 1 {
		t.Errorf("answerer called %d times, want 1 with a cache hit", f.calamity.calls)
	}
}

func TestChatGenerationFailureMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth failure", errors.New("API key not valid"), configErrorMessage},
		{"transient failure", errors.New("connection reset"), apologyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil, nil)
			f.general.err = tt.err

			got := f.engine.Chat(context.Background(), session.NewID(),
				"what is the capital of france then", "general")
			if got.Answer != tt.want {
				t.Errorf("answer = %q, want %q", got.Answer, tt.want)
			}
		})
	}
}

func TestChatGeneralIgnoresRetrieval(t *testing.T) {
	f := newFixture(t, nil, nil)

	got := f.engine.Chat(context.Background(), session.NewID(),
		"what is photosynthesis exactly", "general")

	if got.Label != classify.LabelGeneral {
		t.Fatalf("label = %q, want general", got.Label)
	}
	if f.general.calls != 1 {
		t.Errorf("general answerer called %d times, want 1", f.general.calls)
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatalf("New accepted an empty config")
	}
}

func TestResponseKeyChangesWithHistory(t *testing.T) {
	// Guards the cache contract the engine relies on: a turn with different
	// trailing history must not reuse an earlier answer.
	a := cache.ResponseKey("question", nil)
	b := cache.ResponseKey("question", []string{"user:earlier turn"})
	if a == b {
		t.Errorf("history-insensitive response key")
	}
}
