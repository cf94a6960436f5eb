package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratespro/cratesearch/internal/crate"
	"github.com/cratespro/cratesearch/internal/embed"
)

func init() {
	indexCmd.Flags().Bool("reset", false,
		"clear stored embeddings before indexing (all crates, or the given id)")
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [crate-id]",
	Short: "Embed crates that have not been indexed yet",
	Long: `index embeds every crate whose embedding column is still empty and
stores the vectors. Already-indexed crates are skipped, so the command is
safe to re-run after a partial failure.

With --reset, stored embeddings are cleared first: all of them, or only
the given crate id. Use this after switching embedder models.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		app, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		reset, _ := cmd.Flags().GetBool("reset")
		if reset {
			if len(args) == 1 {
				if err := app.store.ResetEmbedding(ctx, args[0]); err != nil {
					if errors.Is(err, crate.ErrNotFound) {
						return fmt.Errorf("crate %q not found", args[0])
					}
					return err
				}
				fmt.Printf("Cleared embedding for %s\n", args[0])
			} else {
				cleared, err := app.store.ResetEmbeddings(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Cleared %d embeddings\n", cleared)
			}
		} else if len(args) == 1 {
			// Without --reset a crate id means: index just this crate.
			if err := app.embedService.UpdateCrateEmbedding(ctx, args[0]); err != nil {
				if errors.Is(err, crate.ErrNotFound) {
					return fmt.Errorf("crate %q not found", args[0])
				}
				return err
			}
			fmt.Printf("Indexed %s\n", args[0])
			return nil
		}

		report, err := app.embedService.UpdateAllMissingEmbeddings(ctx)
		if err != nil {
			var partial *embed.PartialError
			if errors.As(err, &partial) {
				fmt.Printf("Indexed %d crates, %d failed:\n", report.Updated, len(report.Failed))
				for _, id := range report.Failed {
					fmt.Printf("  %s\n", id)
				}
				return errors.New("some crates could not be indexed; re-run to retry")
			}
			return err
		}

		fmt.Printf("Indexed %d crates\n", report.Updated)
		return nil
	},
}
