package ingest

import (
	"net/url"
	"strings"
	"testing"

	"github.com/calagem/calagem/internal/docstore"
)

const wikiPageHTML = `<html><body>
<div id="mw-content-text">
<p>The Murasama is a post-Moon Lord melee weapon from the Calamity mod that fires
devastating slashes at enemies. It deals massive damage and is dropped in the lab.</p>
<script>var tracked = true;</script>
<span class="mw-editsection">edit</span>
<div class="navbox">Weapons navigation box</div>
<p>Its best modifier is Legendary. The blade can strike a boss repeatedly.</p>
</div>
<nav>Navigation menu</nav>
</body></html>`

func TestExtractPageTextPrefersContentContainer(t *testing.T) {
	u, _ := url.Parse("https://calamitymod.wiki.gg/wiki/Murasama")

	text, err := extractPageText([]byte(wikiPageHTML), u)
	if err != nil {
		t.Fatalf("extractPageText: %v", err)
	}

	if !strings.Contains(text, "post-Moon Lord melee weapon") {
		t.Errorf("text = %q, want article prose", text)
	}
	if strings.Contains(text, "var tracked") {
		t.Error("script content survived extraction")
	}
	if strings.Contains(text, "navigation box") {
		t.Error("navbox content survived extraction")
	}
	if strings.Contains(text, "edit") {
		t.Error("edit section marker survived extraction")
	}
}

func TestExtractPageTextReadabilityFallback(t *testing.T) {
	para := "Standalone article text about a Terraria boss fight, long enough for " +
		"the readability extractor to treat it as the main content of this page. " +
		strings.Repeat("The fight has several phases and each phase changes the attack pattern. ", 10)
	html := `<html><head><title>Page</title></head><body>
<article><p>` + para + `</p></article>
</body></html>`
	u, _ := url.Parse("https://example.com/page")

	text, err := extractPageText([]byte(html), u)
	if err != nil {
		t.Fatalf("extractPageText: %v", err)
	}
	if !strings.Contains(text, "Terraria boss fight") {
		t.Errorf("text = %q, want fallback article prose", text)
	}
}

func TestCleanWikiText(t *testing.T) {
	input := strings.Join([]string{
		"The Murasama is a powerful melee weapon.",
		"Navigation menu",
		"ok", // below the minimum line length
		"Create account or Log in to edit",
		"Its best modifier is Legendary for damage.",
		"РусскийEspañol",
	}, "\n")

	got := CleanWikiText(input)

	if strings.Contains(got, "Navigation") || strings.Contains(got, "account") {
		t.Errorf("navigation chrome survived: %q", got)
	}
	if strings.Contains(got, "ok") {
		t.Errorf("stub line survived: %q", got)
	}
	if !strings.Contains(got, "Murasama") || !strings.Contains(got, "Legendary") {
		t.Errorf("content lines lost: %q", got)
	}
}

func TestKeepWikiPage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			"long page with keyword",
			strings.Repeat("The boss drops many items when defeated in battle. ", 10),
			true,
		},
		{
			"long page without keywords",
			strings.Repeat("Nothing relevant appears on this particular page at all. ", 10),
			false,
		},
		{
			"short page with keyword",
			"calamity",
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeepWikiPage(tt.text); got != tt.want {
				t.Errorf("KeepWikiPage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildWikiChunks(t *testing.T) {
	text := strings.Repeat("The Calamity mod adds many weapons and bosses to the game. ", 60)

	chunks := buildWikiChunks("https://calamitymod.wiki.gg/wiki/Weapons", text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Content) > wikiChunkSize {
			t.Errorf("chunk %d has %d characters, want <= %d", i, len(c.Content), wikiChunkSize)
		}
		if c.Source() != "https://calamitymod.wiki.gg/wiki/Weapons" {
			t.Errorf("chunk %d source = %q", i, c.Source())
		}
		if c.Metadata[docstore.MetaTotalChunks] == "" {
			t.Errorf("chunk %d missing total_chunks", i)
		}
	}
}
