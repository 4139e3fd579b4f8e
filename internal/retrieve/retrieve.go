// Package retrieve implements corpus retrieval on top of a docstore.Store.
//
// The GeM bid corpus gets two specialized paths beyond plain similarity
// search: a single-document path that runs intent-scoped query variants
// filtered to one bid document, and a coverage-aware multi-document path
// that escalates through increasingly aggressive strategies until every
// document in the known roster is represented (or proven absent from the
// index).
package retrieve

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/calagem/calagem/internal/docstore"
)

// docIDPattern captures a bare 7-digit bid document number.
var docIDPattern = regexp.MustCompile(`\b(\d{7})\b`)

// DocID returns the first bid document number in the question, if any.
func DocID(question string) (string, bool) {
	m := docIDPattern.FindStringSubmatch(question)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// multiDocIndicators mark a question as spanning the whole bid corpus
// rather than one document.
var multiDocIndicators = []string{
	"each pdf", "all pdf", "all documents", "each document",
	"systematic manner", "compare", "list all", "all the bid",
	"all bid documents", "in all",
}

// IsMultiDocQuery reports whether the question asks about the bid corpus as
// a whole ("compare all documents" style).
func IsMultiDocQuery(question string) bool {
	lower := strings.ToLower(question)
	for _, ind := range multiDocIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// anchorTerms seed the broad pass of the multi-document search: field labels
// and sample time values strongly associated with bid opening schedules.
var anchorTerms = []string{
	"Bid Opening Date/Time", "bid opening", "opening date", "opening time",
	"Bid Details", "09:30:00", "10:30:00", "11:30:00", "12:30:00", "14:30:00",
}

// Per-pass search widths and per-document bucket quotas. The quotas shrink
// as the passes get more desperate: a document surfaced only by the
// exhaustive sweep contributes two chunks, not six.
const (
	broadSearchK = 60
	broadQuota   = 6

	gapSearchK = 40
	gapQuota   = 4

	sweepSearchK = 200
	sweepQuota   = 2

	singleDocSearchK = 15
	fullTextSearchK  = 50
)

// CoverageStats reports how much of the required document roster a
// multi-document retrieval actually reached.
type CoverageStats struct {
	Required int      `json:"required"`
	Covered  int      `json:"covered"`
	Missing  []string `json:"missing,omitempty"`
}

// Ratio returns covered/required, or 1 for an empty roster.
func (s CoverageStats) Ratio() float64 {
	if s.Required == 0 {
		return 1
	}
	return float64(s.Covered) / float64(s.Required)
}

// Retriever runs corpus-specific retrieval over one store.
type Retriever struct {
	store        *docstore.Store
	requiredDocs []string
	logger       *slog.Logger
}

// New creates a Retriever. requiredDocs is the roster of bid document
// numbers the multi-document path must try to cover.
func New(store *docstore.Store, requiredDocs []string, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, requiredDocs: requiredDocs, logger: logger}
}

// Search is plain similarity search, used by the non-specialized paths.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]docstore.Chunk, error) {
	return r.store.Search(ctx, query, k)
}

// SingleDocument retrieves up to k chunks scoped to one bid document. It
// runs a prioritized list of query variants chosen by the question's intent,
// keeps only hits whose source names the document, deduplicates by content
// fingerprint, and preserves the order in which distinct chunks were first
// discovered. Individual search failures are logged and skipped.
func (r *Retriever) SingleDocument(ctx context.Context, question, docID string, k int) []docstore.Chunk {
	strategies := singleDocStrategies(question, docID)

	seen := make(map[string]struct{})
	var out []docstore.Chunk

	for _, strategy := range strategies {
		if len(out) >= k {
			break
		}
		hits, err := r.store.Search(ctx, strategy, singleDocSearchK)
		if err != nil {
			r.logger.Warn("single-document search failed",
				"strategy", strategy, "doc", docID, "error", err)
			continue
		}
		for _, c := range hits {
			if len(out) >= k {
				break
			}
			if !strings.Contains(c.Source(), docID) {
				continue
			}
			fp := c.Fingerprint()
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			out = append(out, c)
		}
	}

	r.logger.Debug("single-document retrieval", "doc", docID, "chunks", len(out))
	return out
}

// singleDocStrategies builds the query variant list: the question itself,
// the bare document number, then intent-specific field phrases.
func singleDocStrategies(question, docID string) []string {
	strategies := []string{question, docID}
	lower := strings.ToLower(question)

	switch {
	case containsAny(lower, "document", "required", "seller", "upload", "eligibility"):
		strategies = append(strategies, "documents required", "seller documents", "eligibility")
	case containsAny(lower, "bid", "opening", "date", "time"):
		strategies = append(strategies, "Bid Opening Date/Time", "bid opening", "Bid Details")
	case containsAny(lower, "validity", "period", "duration"):
		strategies = append(strategies, "Bid Offer Validity", "validity period")
	default:
		strategies = append(strategies, "terms and conditions", "specifications", "requirements")
	}
	return strategies
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// DocumentText returns the concatenated text of every indexed chunk for one
// bid document, for regex field extraction over the whole document.
func (r *Retriever) DocumentText(ctx context.Context, docID string) string {
	hits, err := r.store.Search(ctx, docID, fullTextSearchK)
	if err != nil {
		r.logger.Warn("full-text fetch failed", "doc", docID, "error", err)
		return ""
	}

	var parts []string
	for _, c := range hits {
		if strings.Contains(c.Source(), docID) {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// MultiDocument retrieves up to k chunks spanning the required document
// roster. Coverage is best effort with escalation: a broad anchor-term pass,
// then per-missing-document gap filling, then one exhaustive sweep. Chunks
// are unique by content fingerprint across all passes. Within each document's
// bucket chunks are ranked by field relevance, then the buckets are
// interleaved round-robin so truncating to k keeps every covered document's
// top chunk.
func (r *Retriever) MultiDocument(ctx context.Context, question string, k int) ([]docstore.Chunk, CoverageStats) {
	buckets := make(map[string][]docstore.Chunk)

	// The anchor terms and gap-fill strategies overlap heavily, so the same
	// chunk surfaces in pass after pass. One fingerprint set spans them all.
	seen := make(map[string]struct{})
	add := func(src string, c docstore.Chunk, quota int) {
		if len(buckets[src]) >= quota {
			return
		}
		fp := c.Fingerprint()
		if _, dup := seen[fp]; dup {
			return
		}
		seen[fp] = struct{}{}
		buckets[src] = append(buckets[src], c)
	}

	// Broad pass over the anchor phrases.
	for _, term := range anchorTerms {
		hits, err := r.store.Search(ctx, term, broadSearchK)
		if err != nil {
			r.logger.Warn("broad pass search failed", "term", term, "error", err)
			continue
		}
		for _, c := range hits {
			if src := c.Source(); src != "" {
				add(src, c, broadQuota)
			}
		}
	}

	// Gap filling: escalate per missing document, stopping at first capture.
	for _, docNum := range r.requiredDocs {
		if bucketsCover(buckets, docNum) {
			continue
		}
		r.logger.Debug("document missing after broad pass", "doc", docNum)

		strategies := []string{
			docNum,
			"GeM-Bidding-" + docNum,
			docNum + " bid opening",
			"summary",
			"bid_opening",
		}
		for _, strategy := range strategies {
			hits, err := r.store.Search(ctx, strategy, gapSearchK)
			if err != nil {
				r.logger.Warn("gap-fill search failed",
					"doc", docNum, "strategy", strategy, "error", err)
				continue
			}
			for _, c := range hits {
				if src := c.Source(); strings.Contains(src, docNum) {
					add(src, c, gapQuota)
				}
			}
			if bucketsCover(buckets, docNum) {
				break
			}
		}
	}

	// Exhaustive sweep for anything still uncovered. The most expensive and
	// least targeted call, so it runs at most once.
	var missing []string
	for _, docNum := range r.requiredDocs {
		if !bucketsCover(buckets, docNum) {
			missing = append(missing, docNum)
		}
	}
	if len(missing) > 0 {
		hits, err := r.store.Search(ctx, "", sweepSearchK)
		if err != nil {
			r.logger.Warn("exhaustive sweep failed", "error", err)
		}
		for _, c := range hits {
			src := c.Source()
			for _, docNum := range missing {
				if strings.Contains(src, docNum) {
					add(src, c, sweepQuota)
				}
			}
		}
	}

	// Rank within buckets, then interleave them round-robin: every covered
	// document contributes its best chunk before any document contributes a
	// second one, so truncating to k never empties a covered bucket as long
	// as k is at least the number of covered documents.
	sources := make([]string, 0, len(buckets))
	for src, chunks := range buckets {
		sort.SliceStable(chunks, func(i, j int) bool {
			return fieldRelevance(chunks[i]) > fieldRelevance(chunks[j])
		})
		sources = append(sources, src)
		r.logger.Debug("bucket assembled", "source", src, "chunks", len(chunks))
	}
	sort.Strings(sources)

	var out []docstore.Chunk
	for round := 0; len(out) < k; round++ {
		progressed := false
		for _, src := range sources {
			bucket := buckets[src]
			if round >= len(bucket) {
				continue
			}
			progressed = true
			if len(out) < k {
				out = append(out, bucket[round])
			}
		}
		if !progressed {
			break
		}
	}

	stats := r.coverage(buckets)
	r.logger.Info("multi-document retrieval",
		"chunks", len(out), "covered", stats.Covered, "required", stats.Required)
	return out, stats
}

// fieldRelevance ranks a chunk for within-bucket ordering: literal field
// text beats a summary chunk, which beats a field-tagged chunk.
func fieldRelevance(c docstore.Chunk) int {
	score := 0
	if strings.Contains(strings.ToLower(c.Content), "bid opening") {
		score += 4
	}
	if strings.Contains(c.Metadata[docstore.MetaChunkType], docstore.ChunkTypeSummary) {
		score += 2
	}
	if strings.Contains(c.Metadata[docstore.MetaChunkType], docstore.ChunkTypeBidOpening) {
		score++
	}
	return score
}

func bucketsCover(buckets map[string][]docstore.Chunk, docNum string) bool {
	for src := range buckets {
		if strings.Contains(src, docNum) {
			return true
		}
	}
	return false
}

func (r *Retriever) coverage(buckets map[string][]docstore.Chunk) CoverageStats {
	stats := CoverageStats{Required: len(r.requiredDocs)}
	for _, docNum := range r.requiredDocs {
		if bucketsCover(buckets, docNum) {
			stats.Covered++
		} else {
			stats.Missing = append(stats.Missing, docNum)
		}
	}
	return stats
}
