// Package extract pulls exact field values out of bid document text with
// regular expressions, bypassing generative synthesis for the handful of
// queries where pattern matching beats semantics.
//
// The activation guard is deliberately strict: only short questions naming a
// known field engage the extractor. Broad questions must go through semantic
// retrieval; regex matching on them would be precise-looking and wrong.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/calagem/calagem/internal/docstore"
)

// maxQuestionWords is the activation bound: a question longer than this is
// not a specific field query no matter what phrases it contains. Seven
// words admits the common "what is document N's bid opening time" shape
// while still excluding open-ended requests.
const maxQuestionWords = 7

// dateTimeValue matches the fixed DD-MM-YYYY HH:MM:SS format the bid
// documents use for schedule fields.
const dateTimeValue = `([0-9]{2}-[0-9]{2}-[0-9]{4}\s+[0-9]{2}:[0-9]{2}:[0-9]{2})`

// field pairs a trigger phrase with the pattern that captures its value.
// The (?is) flags make the label match case-insensitive and let the label
// and value span intervening text, including newlines.
type field struct {
	trigger string
	pattern *regexp.Regexp
}

var fields = []field{
	{"bid opening date", regexp.MustCompile(`(?is)Bid Opening Date/Time[^\n]*?` + dateTimeValue)},
	{"bid opening time", regexp.MustCompile(`(?is)Bid Opening Date/Time[^\n]*?` + dateTimeValue)},
	{"bid end date", regexp.MustCompile(`(?is)Bid End[^\n]*?` + dateTimeValue)},
	{"bid end time", regexp.MustCompile(`(?is)Bid End[^\n]*?` + dateTimeValue)},
}

// Extractor synthesizes answer-shaped chunks from exact field matches.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract attempts a structured field extraction for question against the
// full text of one bid document. On success it returns a single chunk whose
// content is the final answer sentence, tagged so generation returns it
// verbatim. It returns ok=false when the question fails the activation
// guard or the field pattern does not match.
func (e *Extractor) Extract(question, text, docID string) (docstore.Chunk, bool) {
	lower := strings.ToLower(question)
	if len(strings.Fields(lower)) > maxQuestionWords {
		return docstore.Chunk{}, false
	}

	for _, f := range fields {
		if !strings.Contains(lower, f.trigger) {
			continue
		}

		m := f.pattern.FindStringSubmatch(text)
		if m == nil {
			e.logger.Debug("field trigger matched but no value found",
				"field", f.trigger, "doc", docID)
			return docstore.Chunk{}, false
		}

		value := strings.TrimSpace(m[1])
		e.logger.Debug("structured field extracted",
			"field", f.trigger, "doc", docID, "value", value)

		return docstore.Chunk{
			Content: fmt.Sprintf("According to GeM-Bidding-%s, the %s is **%s**.",
				docID, fieldTitle(f.trigger), value),
			Metadata: map[string]string{
				docstore.MetaSource:         "GeM-Bidding-" + docID + ".pdf",
				docstore.MetaExtractionType: docstore.ExtractionStructured,
			},
		}, true
	}

	return docstore.Chunk{}, false
}

// fieldTitle renders a trigger phrase in title case for the answer sentence.
func fieldTitle(trigger string) string {
	words := strings.Fields(trigger)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// IsStructured reports whether a chunk was produced by the extractor, in
// which case its content is the final answer.
func IsStructured(c docstore.Chunk) bool {
	return c.Metadata[docstore.MetaExtractionType] == docstore.ExtractionStructured
}
