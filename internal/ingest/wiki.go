package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/calagem/calagem/internal/config"
	"github.com/calagem/calagem/internal/docstore"
)

// Chunking parameters for wiki pages: larger chunks than bid documents
// because wiki prose carries context across paragraphs.
const (
	wikiChunkSize    = 1000
	wikiChunkOverlap = 200
)

// keepPageMinChars is the minimum cleaned length for a page to be indexed.
const keepPageMinChars = 300

// navWords identify navigation chrome lines that survive HTML stripping.
// Lowercase substring match against each line.
var navWords = []string{
	"create account", "log in", "navigation menu", "namespaces",
	"pagediscussion", "english", "views", "readsign up", "purge cache",
	"main pagerecent", "class setupsguides", "accessoriesarmor",
	"websiteforumdiscord", "what links here", "русскийespañol",
}

// wikiKeywords gate indexing: a page must mention at least one to count
// as game content rather than boilerplate.
var wikiKeywords = []string{
	"calamity", "terraria", "weapon", "boss", "biome", "damage", "enemy", "item",
}

// minLineLen drops stub lines (icons, single links) from wiki text.
const minLineLen = 10

// WikiIngester crawls a fixed list of wiki pages and builds the game
// knowledge index.
type WikiIngester struct {
	store   *docstore.Store
	scraper config.ScraperConfig
	logger  *slog.Logger
}

// NewWikiIngester creates a WikiIngester writing into store.
func NewWikiIngester(store *docstore.Store, scraper config.ScraperConfig, logger *slog.Logger) *WikiIngester {
	if logger == nil {
		logger = slog.Default()
	}
	return &WikiIngester{store: store, scraper: scraper, logger: logger}
}

// IngestURLs crawls the given pages and indexes those that pass the
// content gate. A failed page is logged and skipped; the return value is
// the number of chunks indexed.
func (w *WikiIngester) IngestURLs(ctx context.Context, urls []string) (int, error) {
	c := colly.NewCollector(
		colly.UserAgent("calagem/1.0"),
	)
	c.SetRequestTimeout(time.Duration(w.scraper.TimeoutMs) * time.Millisecond)

	err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: w.scraper.Parallelism,
		Delay:       time.Duration(w.scraper.DelayMs) * time.Millisecond,
	})
	if err != nil {
		return 0, fmt.Errorf("configuring crawler: %w", err)
	}

	var (
		mu    sync.Mutex
		total int
	)

	c.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()

		text, err := extractPageText(r.Body, r.Request.URL)
		if err != nil {
			w.logger.Error("wiki page skipped", "url", pageURL, "error", err)
			return
		}

		cleaned := CleanWikiText(text)
		if !KeepWikiPage(cleaned) {
			w.logger.Info("wiki page below content gate", "url", pageURL, "chars", len(cleaned))
			return
		}

		chunks := buildWikiChunks(pageURL, cleaned)
		if err := w.store.Add(ctx, chunks); err != nil {
			w.logger.Error("wiki page not indexed", "url", pageURL, "error", err)
			return
		}
		w.logger.Info("wiki page indexed", "url", pageURL, "chunks", len(chunks))

		mu.Lock()
		total += len(chunks)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		w.logger.Error("wiki page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	for _, u := range urls {
		if err := c.Visit(u); err != nil {
			w.logger.Error("wiki page visit failed", "url", u, "error", err)
		}
	}
	c.Wait()

	return total, nil
}

// extractPageText pulls readable text from a wiki page. The MediaWiki
// content container is preferred; readability is the fallback for pages
// without one.
func extractPageText(body []byte, pageURL *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	content := doc.Find("#mw-content-text")
	if content.Length() > 0 {
		content.Find("script, style, nav, .navbox, .mw-editsection").Remove()
		return content.Text(), nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting article: %w", err)
	}
	return article.TextContent, nil
}

// CleanWikiText drops navigation chrome and stub lines from extracted
// wiki text.
func CleanWikiText(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < minLineLen {
			continue
		}
		if isNavLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isNavLine(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range navWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// KeepWikiPage reports whether cleaned page text carries enough game
// content to be worth indexing.
func KeepWikiPage(text string) bool {
	if len(text) <= keepPageMinChars {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range wikiKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func buildWikiChunks(pageURL, text string) []docstore.Chunk {
	parts := SplitText(text, wikiChunkSize, wikiChunkOverlap)

	chunks := make([]docstore.Chunk, 0, len(parts))
	for i, part := range parts {
		chunks = append(chunks, docstore.Chunk{
			Content: part,
			Metadata: map[string]string{
				docstore.MetaSource:      pageURL,
				docstore.MetaChunkIndex:  strconv.Itoa(i),
				docstore.MetaTotalChunks: strconv.Itoa(len(parts)),
			},
		})
	}
	return chunks
}
