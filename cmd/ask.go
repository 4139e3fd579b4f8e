package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calagem/calagem/internal/session"
)

var askChoice string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askChoice, "corpus", "",
		"force a corpus instead of classifying (calamity, gem, general)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger := initLogger()
	ctx := context.Background()

	a, err := setup(ctx, logger, true)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	result := a.Engine.Chat(ctx, session.NewID(), question, askChoice)

	fmt.Println(result.Answer)
	if result.Coverage != nil {
		fmt.Printf("\n[coverage: %d/%d documents]\n",
			result.Coverage.Covered, result.Coverage.Required)
	}
	return nil
}
