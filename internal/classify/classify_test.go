package classify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/calagem/calagem/internal/log"
	"github.com/calagem/calagem/internal/testutil"
)

func newTestClassifier(embedder *testutil.MockEmbedder) *Classifier {
	return New(embedder, log.NewNop())
}

func TestClassifyUserChoiceOverrides(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	embedder.Err = errors.New("embedder must not be called")
	c := newTestClassifier(embedder)

	for _, choice := range []string{"calamity", "gem", "general", " GeM "} {
		got := c.Classify(context.Background(), "what is the capital of France?", choice)
		want, _ := ParseLabel(choice)
		if got != want {
			t.Errorf("Classify with choice %q = %q, want %q", choice, got, want)
		}
	}
	if embedder.CallCount() != 0 {
		t.Errorf("user choice path embedded %d times, want 0", embedder.CallCount())
	}
}

func TestClassifyDocumentNumberProperty(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	embedder.Err = errors.New("embedder must not be called")
	c := newTestClassifier(embedder)

	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog", "hello", "world"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		prefix := words[rng.Intn(len(words))] + " " + words[rng.Intn(len(words))]
		suffix := words[rng.Intn(len(words))]
		question := fmt.Sprintf("%s %07d %s", prefix, rng.Intn(10000000), suffix)

		if got := c.Classify(context.Background(), question, ""); got != LabelGem {
			t.Fatalf("Classify(%q) = %q, want %q", question, got, LabelGem)
		}
	}
}

func TestClassifyDocumentNumberRequiresBareToken(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	embedder.Err = errors.New("force keyword fallback")
	c := newTestClassifier(embedder)

	// An 8-digit run has no bare 7-digit token in it.
	got := c.Classify(context.Background(), "what does the number 12345678 mean in this context", "")
	if got == LabelGem {
		t.Errorf("Classify treated an 8-digit run as a document number")
	}
}

func TestClassifyGemIndicators(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	embedder.Err = errors.New("embedder must not be called")
	c := newTestClassifier(embedder)

	for _, q := range []string{
		"What is the Bidding process?",
		"which ministry issued this",
		"list the item category for each",
	} {
		if got := c.Classify(context.Background(), q, ""); got != LabelGem {
			t.Errorf("Classify(%q) = %q, want %q", q, got, LabelGem)
		}
	}
	if embedder.CallCount() != 0 {
		t.Errorf("indicator path embedded %d times, want 0", embedder.CallCount())
	}
}

func TestClassifySemantic(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	question := "how do I summon the jungle dragon"

	// The question aligns exactly with the calamity prototype and is
	// orthogonal to the others.
	embedder.SetVector(question, []float32{1, 0, 0})
	embedder.SetVector(prototypes[LabelCalamity], []float32{1, 0, 0})
	embedder.SetVector(prototypes[LabelGem], []float32{0, 1, 0})
	embedder.SetVector(prototypes[LabelGeneral], []float32{0, 0, 1})

	c := newTestClassifier(embedder)
	if got := c.Classify(context.Background(), question, ""); got != LabelCalamity {
		t.Errorf("Classify(%q) = %q, want %q", question, got, LabelCalamity)
	}
}

func TestClassifySemanticBelowThresholdFallsBack(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	question := "how strong is the yharon fight really"

	// Orthogonal to every prototype: best score 0, below threshold, so the
	// keyword fallback decides ("yharon" is a calamity keyword).
	embedder.SetVector(question, []float32{0, 0, 0, 1})
	embedder.SetVector(prototypes[LabelCalamity], []float32{1, 0, 0, 0})
	embedder.SetVector(prototypes[LabelGem], []float32{0, 1, 0, 0})
	embedder.SetVector(prototypes[LabelGeneral], []float32{0, 0, 1, 0})

	c := newTestClassifier(embedder)
	if got := c.Classify(context.Background(), question, ""); got != LabelCalamity {
		t.Errorf("Classify(%q) = %q, want %q", question, got, LabelCalamity)
	}
}

func TestClassifyEmbedFailureFallsBack(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	embedder.Err = errors.New("network unreachable")
	c := newTestClassifier(embedder)

	tests := []struct {
		question string
		want     Label
	}{
		{"tell me about the supreme witch fight", "calamity"},
		{"abyss", LabelUnclear},
		{"what is the tallest mountain in the world today", LabelGeneral},
	}
	for _, tt := range tests {
		if got := c.Classify(context.Background(), tt.question, ""); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestClassifyShortAmbiguousQuestion(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)

	// Orthogonal vectors keep the semantic layer below threshold; "abyss"
	// matches no lexicon either, so it stays unresolved.
	embedder.SetVector("abyss", []float32{0, 0, 0, 1})
	embedder.SetVector(prototypes[LabelCalamity], []float32{1, 0, 0, 0})
	embedder.SetVector(prototypes[LabelGem], []float32{0, 1, 0, 0})
	embedder.SetVector(prototypes[LabelGeneral], []float32{0, 0, 1, 0})

	c := newTestClassifier(embedder)
	if got := c.Classify(context.Background(), "abyss", ""); got != LabelUnclear {
		t.Errorf("Classify(%q) = %q, want %q", "abyss", got, LabelUnclear)
	}
}

func TestPrototypeVectorsCached(t *testing.T) {
	embedder := testutil.NewMockEmbedder(8)
	c := newTestClassifier(embedder)

	q := "some question without any lexicon words at all here"
	c.Classify(context.Background(), q, "")
	first := embedder.CallCount()

	c.Classify(context.Background(), q, "")
	second := embedder.CallCount() - first

	// Second pass re-embeds only the question, not the three prototypes.
	if second != 1 {
		t.Errorf("second classification made %d embed calls, want 1", second)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); got != tt.want {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLabel(t *testing.T) {
	if _, ok := ParseLabel("unclear"); ok {
		t.Errorf("ParseLabel accepted %q as a user choice", "unclear")
	}
	if _, ok := ParseLabel(""); ok {
		t.Errorf("ParseLabel accepted the empty string")
	}
	if label, ok := ParseLabel("Calamity"); !ok || label != LabelCalamity {
		t.Errorf("ParseLabel(%q) = %q, %v", "Calamity", label, ok)
	}
}
