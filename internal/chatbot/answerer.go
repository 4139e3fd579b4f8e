package chatbot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/calagem/calagem/internal/docstore"
	"github.com/calagem/calagem/internal/extract"
	"github.com/calagem/calagem/internal/retrieve"
	"github.com/calagem/calagem/internal/session"
)

// Answerer generates the final answer text for one corpus. Each corpus has
// its own implementation behind this interface; the engine selects one by
// the classified label.
type Answerer interface {
	Answer(ctx context.Context, question string, history []session.Message, context []docstore.Chunk) (string, error)
}

// calamitySystemPrompt binds the wiki answerer strictly to its context.
const calamitySystemPrompt = "You are a Terraria Calamity mod expert assistant. " +
	"CRITICAL RULES:\n" +
	"1. Answer ONLY using information from the provided context\n" +
	"2. If the context doesn't contain enough information, say 'I don't have enough information about that in my knowledge base'\n" +
	"3. Focus specifically on Calamity mod content (weapons, bosses, items, mechanics)\n" +
	"4. Be precise and factual - no speculation or general Terraria advice\n\n" +
	"Context:\n%s"

// generalSystemPrompt is the plain conversational persona. It never
// receives retrieved context.
const generalSystemPrompt = "You are a helpful assistant. Be conversational but " +
	"not overly casual. Answer questions clearly and add a touch of personality " +
	"when appropriate."

// noDocumentsMessage is returned for procurement questions when retrieval
// found nothing to ground an answer on.
const noDocumentsMessage = "No relevant documents found for this GeM query."

// CalamityAnswerer answers wiki questions from supplied context only,
// refusing rather than speculating when the context falls short.
type CalamityAnswerer struct {
	g     *genkit.Genkit
	model string
}

// NewCalamityAnswerer creates the wiki corpus answerer.
func NewCalamityAnswerer(g *genkit.Genkit, model string) *CalamityAnswerer {
	return &CalamityAnswerer{g: g, model: model}
}

// Answer implements Answerer.
func (a *CalamityAnswerer) Answer(ctx context.Context, question string, history []session.Message, context []docstore.Chunk) (string, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.model),
		ai.WithSystem(calamitySystemPrompt, joinChunks(context)),
		ai.WithMessages(toMessages(history)...),
		ai.WithPrompt("%s", question),
	)
	if err != nil {
		return "", fmt.Errorf("calamity generation: %w", err)
	}
	return resp.Text(), nil
}

// GemAnswerer answers procurement questions. A structured extraction result
// short-circuits straight to its content; everything else goes through a
// direct analyst prompt, with a multi-document table variant when the
// question spans the corpus.
type GemAnswerer struct {
	g     *genkit.Genkit
	model string
}

// NewGemAnswerer creates the bid corpus answerer.
func NewGemAnswerer(g *genkit.Genkit, model string) *GemAnswerer {
	return &GemAnswerer{g: g, model: model}
}

// Answer implements Answerer. History is deliberately not forwarded: the
// analyst prompts are self-contained over the supplied document content.
func (a *GemAnswerer) Answer(ctx context.Context, question string, history []session.Message, context []docstore.Chunk) (string, error) {
	if len(context) == 0 {
		return noDocumentsMessage, nil
	}
	if extract.IsStructured(context[0]) {
		return context[0].Content, nil
	}

	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.model),
		ai.WithPrompt("%s", buildGemPrompt(question, context)),
	)
	if err != nil {
		return "", fmt.Errorf("gem generation: %w", err)
	}
	return resp.Text(), nil
}

// buildGemPrompt assembles the direct analyst prompt over the retrieved
// document content.
func buildGemPrompt(question string, context []docstore.Chunk) string {
	text := joinChunks(context)

	if retrieve.IsMultiDocQuery(question) {
		return fmt.Sprintf(`You are analyzing multiple GeM procurement documents to extract bid opening times. The content below comes from different PDF documents:

%s
%s

Question: %s

INSTRUCTIONS FOR BID OPENING TIME EXTRACTION:
1. Search through ALL the content for "Bid Opening Date/Time" or similar phrases
2. Look for date-time patterns like "DD-MM-YYYY HH:MM:SS" (e.g., "14-08-2025 12:30:00")
3. For each document source mentioned, find its corresponding bid opening time
4. Present results in a clear table format with columns: Document Source | Bid Opening Date/Time
5. If you find multiple documents, list ALL of them systematically
6. Ignore Hindi text and focus on English date/time information
7. If no bid opening time is found for a document, state "Not found in provided content"

Create a comprehensive table showing bid opening times from ALL available documents:`,
			sourcesLine(context), text, question)
	}

	return fmt.Sprintf(`You are a GeM procurement document analyst. Analyze the following document content carefully:

%s

Question: %s

INSTRUCTIONS:
1. Read through ALL the content thoroughly, including paragraphs, lists, and any structured data
2. Look for information in both tabular format AND narrative text
3. If you find exact matches (dates, numbers, names), quote them precisely
4. If information is scattered across multiple sections, synthesize it coherently
5. If the answer requires interpretation of policy text or procedures, explain clearly
6. If no relevant information exists, state "This information is not available in the provided document"

Provide a comprehensive answer based on the document content:`, text, question)
}

// sourcesLine lists the distinct source documents feeding a multi-document
// prompt, so the model can attribute values per document.
func sourcesLine(context []docstore.Chunk) string {
	set := make(map[string]struct{})
	for _, c := range context {
		if src := c.Source(); src != "" {
			set[src] = struct{}{}
		}
	}
	if len(set) == 0 {
		return ""
	}

	sources := make([]string, 0, len(set))
	for src := range set {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return "\nDocument sources found: " + strings.Join(sources, ", ") + "\n"
}

// GeneralAnswerer answers from background knowledge, ignoring any retrieved
// context entirely.
type GeneralAnswerer struct {
	g     *genkit.Genkit
	model string
}

// NewGeneralAnswerer creates the fallback answerer.
func NewGeneralAnswerer(g *genkit.Genkit, model string) *GeneralAnswerer {
	return &GeneralAnswerer{g: g, model: model}
}

// Answer implements Answerer.
func (a *GeneralAnswerer) Answer(ctx context.Context, question string, history []session.Message, _ []docstore.Chunk) (string, error) {
	resp, err := genkit.Generate(ctx, a.g,
		ai.WithModelName(a.model),
		ai.WithSystem(generalSystemPrompt),
		ai.WithMessages(toMessages(history)...),
		ai.WithPrompt("%s", question),
	)
	if err != nil {
		return "", fmt.Errorf("general generation: %w", err)
	}
	return resp.Text(), nil
}

// joinChunks concatenates chunk contents for prompt assembly.
func joinChunks(context []docstore.Chunk) string {
	parts := make([]string, 0, len(context))
	for _, c := range context {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// toMessages converts session history into model messages.
func toMessages(history []session.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		role := ai.RoleUser
		if m.Role == session.RoleAssistant {
			role = ai.RoleModel
		}
		msgs = append(msgs, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	return msgs
}
