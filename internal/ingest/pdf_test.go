package ingest

import (
	"strings"
	"testing"

	"github.com/calagem/calagem/internal/docstore"
)

const rawBidText = "Bid Number: GEM/2025/B/6312416\x00\r\n" +
	"बोली क्रमांक\r\n" +
	"Dated: 01-08-2025\r\n" +
	"Ministry Of Defence\r\n" +
	"Department Of Military Affairs\r\n" +
	"Item Category/वस्तु श्रेणी\n" +
	"Annual Maintenance Service\r\n" +
	"Bid  Opening   Date/Time   14-08-2025 12:30:00\r\n" +
	"***\r\n" +
	"12345\r\n"

func TestCleanBidText(t *testing.T) {
	got := CleanBidText(rawBidText)

	if strings.ContainsRune(got, '\x00') {
		t.Error("control character survived cleaning")
	}
	if strings.Contains(got, "बोली") {
		t.Error("Hindi-only line survived cleaning")
	}
	if strings.Contains(got, "*") {
		t.Error("asterisk run survived cleaning")
	}
	if !strings.Contains(got, "GEM/2025/B/6312416") {
		t.Error("bid number lost during cleaning")
	}
	if !strings.Contains(got, "12345") {
		t.Error("numeric line was dropped")
	}
	if strings.Contains(got, "  ") {
		t.Error("whitespace runs not collapsed")
	}
}

func TestExtractBidMetadata(t *testing.T) {
	content := CleanBidText(rawBidText)
	meta := ExtractBidMetadata("GeM-Bidding-7893321.pdf", content)

	want := map[string]string{
		docstore.MetaSource:   "GeM-Bidding-7893321.pdf",
		"bid_number":          "GEM/2025/B/6312416",
		"ministry":            "Defence",
		"department":          "Military Affairs",
		docstore.MetaCategory: "Annual Maintenance Service",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("meta[%q] = %q, want %q", k, meta[k], v)
		}
	}
}

func TestExtractBidMetadataAbsentFields(t *testing.T) {
	meta := ExtractBidMetadata("doc.pdf", "nothing structured here")

	for _, k := range []string{"bid_number", "ministry", "department", docstore.MetaCategory} {
		if _, ok := meta[k]; ok {
			t.Errorf("meta[%q] present for unstructured text", k)
		}
	}
	if meta[docstore.MetaSource] != "doc.pdf" {
		t.Errorf("source = %q", meta[docstore.MetaSource])
	}
}

func TestBuildBidChunksSynthesized(t *testing.T) {
	content := CleanBidText(rawBidText)
	meta := ExtractBidMetadata("GeM-Bidding-7893321.pdf", content)

	chunks := buildBidChunks("GeM-Bidding-7893321.pdf", content, meta)

	var summary, opening *docstore.Chunk
	for i := range chunks {
		switch chunks[i].Metadata[docstore.MetaChunkType] {
		case docstore.ChunkTypeSummary:
			summary = &chunks[i]
		case docstore.ChunkTypeBidOpening:
			opening = &chunks[i]
		}
	}

	if summary == nil {
		t.Fatal("no summary chunk synthesized")
	}
	if !strings.Contains(summary.Content, "GeM-Bidding-7893321") {
		t.Errorf("summary = %q, want document name", summary.Content)
	}
	if !strings.Contains(summary.Content, "GEM/2025/B/6312416") {
		t.Errorf("summary = %q, want bid number", summary.Content)
	}

	if opening == nil {
		t.Fatal("no bid_opening chunk synthesized")
	}
	if !strings.Contains(opening.Content, "14-08-2025 12:30:00") {
		t.Errorf("bid_opening chunk = %q, want the opening timestamp", opening.Content)
	}
	if opening.Source() != "GeM-Bidding-7893321.pdf" {
		t.Errorf("bid_opening source = %q", opening.Source())
	}
}

func TestBuildBidChunksIndexing(t *testing.T) {
	content := strings.Repeat("Terms and conditions clause text. ", 60)
	meta := map[string]string{docstore.MetaSource: "GeM-Bidding-1111111.pdf"}

	chunks := buildBidChunks("GeM-Bidding-1111111.pdf", content, meta)

	body := 0
	for _, c := range chunks {
		if c.Metadata[docstore.MetaChunkType] != "" {
			continue
		}
		body++
		if c.Metadata[docstore.MetaChunkIndex] == "" {
			t.Error("body chunk missing chunk_index")
		}
		if c.Metadata[docstore.MetaTotalChunks] == "" {
			t.Error("body chunk missing total_chunks")
		}
		if len(c.Content) > pdfChunkSize {
			t.Errorf("chunk of %d characters exceeds %d", len(c.Content), pdfChunkSize)
		}
	}
	if body < 2 {
		t.Fatalf("got %d body chunks, want several", body)
	}
}
