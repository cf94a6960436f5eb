package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratespro/cratesearch/internal/chat"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a one-shot question grounded in the crate index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		session := chat.NewSession(systemPrompt)
		answer, err := app.orchestrator.ChatWithEmbedding(ctx, session, args[0])
		if err != nil {
			return err
		}

		fmt.Println(answer.Text)
		if answer.Degraded {
			fmt.Println("\n(answered without index context: retrieval was unavailable)")
		} else if len(answer.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, src := range answer.Sources {
				fmt.Printf("  %s (similarity %.2f)\n", src.CrateID, src.Score)
			}
		}
		return nil
	},
}
