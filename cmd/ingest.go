package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calagem/calagem/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the knowledge indexes",
}

var ingestWikiCmd = &cobra.Command{
	Use:   "wiki [url...]",
	Short: "Crawl Calamity wiki pages into the calamity index",
	RunE:  runIngestWiki,
}

var ingestGemCmd = &cobra.Command{
	Use:   "gem [dir]",
	Short: "Index GeM bid PDFs into the gem index",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIngestGem,
}

func init() {
	ingestCmd.AddCommand(ingestWikiCmd)
	ingestCmd.AddCommand(ingestGemCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestWiki(cmd *cobra.Command, args []string) error {
	logger := initLogger()
	ctx := context.Background()

	a, err := setup(ctx, logger, false)
	if err != nil {
		return err
	}

	urls := args
	if len(urls) == 0 {
		urls = a.Config.WikiURLs
	}

	ing := ingest.NewWikiIngester(a.Calamity, a.Config.Scraper, logger)
	n, err := ing.IngestURLs(ctx, urls)
	if err != nil {
		return fmt.Errorf("ingesting wiki pages: %w", err)
	}

	fmt.Printf("Indexed %d chunks from %d pages (%d chunks total).\n",
		n, len(urls), a.Calamity.Count())
	return nil
}

func runIngestGem(cmd *cobra.Command, args []string) error {
	logger := initLogger()
	ctx := context.Background()

	a, err := setup(ctx, logger, false)
	if err != nil {
		return err
	}

	dir := a.Config.GemPDFDir
	if len(args) > 0 {
		dir = args[0]
	}

	ing := ingest.NewPDFIngester(a.Gem, logger)
	n, err := ing.IngestDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingesting bid documents: %w", err)
	}

	fmt.Printf("Indexed %d chunks from %s (%d chunks total).\n",
		n, dir, a.Gem.Count())
	return nil
}
