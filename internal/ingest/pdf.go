package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/calagem/calagem/internal/docstore"
)

// Chunking parameters for bid documents: smaller chunks than wiki pages
// because the PDFs are dense tables and short clauses.
const (
	pdfChunkSize    = 800
	pdfChunkOverlap = 100
)

// Metadata patterns for GeM bid documents.
var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	hindiOnly    = regexp.MustCompile(`^[\x{0900}-\x{097F}\s]+$`)
	hasLatin     = regexp.MustCompile(`[A-Za-z]`)
	keepData     = regexp.MustCompile(`\d{2}-\d{2}-\d{4}|\d+|GEM/\d+`)

	bidNumberPattern  = regexp.MustCompile(`GEM/\d{4}/B/\d+`)
	ministryPattern   = regexp.MustCompile(`Ministry Of ([^\n\r]+)`)
	departmentPattern = regexp.MustCompile(`Department Of ([^\n\r]+)`)
	categoryPattern   = regexp.MustCompile(`Item Category/[^\n\r]*\n([^\n\r]+)`)

	bidOpeningLine = regexp.MustCompile(`(?i)Bid Opening Date/Time[^\n]*`)
)

// PDFIngester builds the bid document index from a directory of GeM PDFs.
type PDFIngester struct {
	store  *docstore.Store
	logger *slog.Logger
}

// NewPDFIngester creates a PDFIngester writing into store.
func NewPDFIngester(store *docstore.Store, logger *slog.Logger) *PDFIngester {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFIngester{store: store, logger: logger}
}

// IngestDir processes every .pdf file in dir. A failed document is logged
// and skipped; the return value is the number of chunks indexed.
func (p *PDFIngester) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading document directory: %w", err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}

		n, err := p.ingestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			p.logger.Error("bid document skipped", "file", entry.Name(), "error", err)
			continue
		}
		p.logger.Info("bid document indexed", "file", entry.Name(), "chunks", n)
		total += n
	}
	return total, nil
}

func (p *PDFIngester) ingestFile(ctx context.Context, path string) (int, error) {
	text, err := readPDFText(path)
	if err != nil {
		return 0, err
	}

	cleaned := CleanBidText(text)
	if cleaned == "" {
		return 0, fmt.Errorf("no usable text in %s", filepath.Base(path))
	}

	filename := filepath.Base(path)
	meta := ExtractBidMetadata(filename, cleaned)

	chunks := buildBidChunks(filename, cleaned, meta)
	if err := p.store.Add(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// readPDFText extracts the plain text of every page.
func readPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading text: %w", err)
	}
	return string(raw), nil
}

// CleanBidText normalizes raw PDF text: control characters removed, line
// endings unified, Hindi-only lines dropped (the documents carry bilingual
// duplicates) while lines holding dates, numbers, or GEM identifiers are
// kept, whitespace and asterisk runs collapsed.
func CleanBidText(text string) string {
	text = controlChars.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case hasLatin.MatchString(line) && !hindiOnly.MatchString(line):
			kept = append(kept, line)
		case keepData.MatchString(line):
			kept = append(kept, line)
		}
	}

	out := strings.Join(kept, "\n")
	out = regexp.MustCompile(`\n+`).ReplaceAllString(out, "\n")
	out = regexp.MustCompile(` +`).ReplaceAllString(out, " ")
	out = regexp.MustCompile(`\*+`).ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// ExtractBidMetadata pulls document-level fields out of cleaned bid text.
func ExtractBidMetadata(filename, content string) map[string]string {
	meta := map[string]string{docstore.MetaSource: filename}

	if m := bidNumberPattern.FindString(content); m != "" {
		meta["bid_number"] = m
	}
	if m := ministryPattern.FindStringSubmatch(content); m != nil {
		meta["ministry"] = strings.TrimSpace(m[1])
	}
	if m := departmentPattern.FindStringSubmatch(content); m != nil {
		meta["department"] = strings.TrimSpace(m[1])
	}
	if m := categoryPattern.FindStringSubmatch(content); m != nil {
		meta[docstore.MetaCategory] = strings.TrimSpace(m[1])
	}
	return meta
}

// buildBidChunks splits the document and appends two synthesized chunks:
// a summary of the document-level fields and, when present, the bid
// opening line on its own. The synthesized chunks give the coverage
// retriever stable anchors per document.
func buildBidChunks(filename, content string, meta map[string]string) []docstore.Chunk {
	parts := SplitText(content, pdfChunkSize, pdfChunkOverlap)

	chunks := make([]docstore.Chunk, 0, len(parts)+2)
	for i, part := range parts {
		m := copyMeta(meta)
		m[docstore.MetaChunkIndex] = strconv.Itoa(i)
		m[docstore.MetaTotalChunks] = strconv.Itoa(len(parts))
		chunks = append(chunks, docstore.Chunk{Content: part, Metadata: m})
	}

	next := len(parts)
	if summary := buildSummary(filename, content, meta); summary != "" {
		m := copyMeta(meta)
		m[docstore.MetaChunkIndex] = strconv.Itoa(next)
		m[docstore.MetaChunkType] = docstore.ChunkTypeSummary
		chunks = append(chunks, docstore.Chunk{Content: summary, Metadata: m})
		next++
	}
	if line := bidOpeningLine.FindString(content); line != "" {
		m := copyMeta(meta)
		m[docstore.MetaChunkIndex] = strconv.Itoa(next)
		m[docstore.MetaChunkType] = docstore.ChunkTypeBidOpening
		chunks = append(chunks, docstore.Chunk{Content: line, Metadata: m})
	}
	return chunks
}

// buildSummary condenses the document-level fields into one chunk.
func buildSummary(filename, content string, meta map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document %s.", strings.TrimSuffix(filename, filepath.Ext(filename)))

	if v := meta["bid_number"]; v != "" {
		fmt.Fprintf(&b, " Bid Number: %s.", v)
	}
	if v := meta["ministry"]; v != "" {
		fmt.Fprintf(&b, " Ministry Of %s.", v)
	}
	if v := meta["department"]; v != "" {
		fmt.Fprintf(&b, " Department Of %s.", v)
	}
	if v := meta[docstore.MetaCategory]; v != "" {
		fmt.Fprintf(&b, " Item Category: %s.", v)
	}
	if line := bidOpeningLine.FindString(content); line != "" {
		fmt.Fprintf(&b, " %s.", line)
	}
	return b.String()
}

func copyMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
