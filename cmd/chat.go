package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cratespro/cratesearch/internal/chat"
)

func init() {
	chatCmd.Flags().Bool("no-rag", false, "answer without retrieving crate context")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation grounded in the crate index",
	Long: `chat starts a multi-turn conversation on a single session. Each turn
retrieves the most similar indexed crates and injects their descriptions as
context before generating. With --no-rag, turns go straight to the model.

Type "exit" or press Ctrl-D to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		noRAG, _ := cmd.Flags().GetBool("no-rag")

		app, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		session := chat.NewSession(systemPrompt)
		fmt.Printf("Session %s. Type \"exit\" to quit.\n\n", session.ID())

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			if noRAG {
				reply, err := app.orchestrator.Chat(ctx, session, line)
				if err != nil {
					if errors.Is(err, chat.ErrGeneration) {
						fmt.Printf("generation failed: %v\n", err)
						continue
					}
					return err
				}
				fmt.Printf("\n%s\n\n", reply)
				continue
			}

			answer, err := app.orchestrator.ChatWithEmbedding(ctx, session, line)
			if err != nil {
				if errors.Is(err, chat.ErrGeneration) {
					fmt.Printf("generation failed: %v\n", err)
					continue
				}
				return err
			}

			fmt.Printf("\n%s\n", answer.Text)
			if answer.Degraded {
				fmt.Println("(context retrieval unavailable for this turn)")
			}
			fmt.Println()
		}

		return scanner.Err()
	},
}
