package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratespro/cratesearch/internal/search"
)

func init() {
	searchCmd.Flags().Bool("semantic", false, "rank purely by embedding similarity")
	searchCmd.Flags().Bool("traditional", false, "rank with full-text strategies only, no model calls")
	searchCmd.MarkFlagsMutuallyExclusive("semantic", "traditional")
	searchCmd.Flags().String("sort", string(search.SortComprehensive),
		"hybrid ranking criteria: comprehensive, relevance or downloads")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the crate index",
	Long: `search runs the hybrid pipeline by default: the query is rewritten
into keywords, matched against the full-text index and reranked by blending
keyword rank with embedding similarity.

With --semantic the full-text stage is skipped and crates are ranked purely
by cosine similarity between the query embedding and stored embeddings.

With --traditional no model is called at all: substring, prefix and
websearch full-text strategies are merged under fixed weights.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := args[0]

		limit, _ := cmd.Flags().GetInt("limit")
		semantic, _ := cmd.Flags().GetBool("semantic")
	traditional, _ := cmd.Flags().GetBool("traditional")
		sortFlag, _ := cmd.Flags().GetString("sort")

		criteria, err := search.ParseSortCriteria(sortFlag)
		if err != nil {
			return err
		}

		app, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if semantic {
			results, err := app.engine.SearchText(ctx, query, limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No indexed crates matched.")
				return nil
			}
			for i, r := range results {
				desc, err := app.store.Description(ctx, r.CrateID)
				if err != nil {
					return err
				}
				fmt.Printf("%2d. %-24s %.4f  %s\n", i+1, r.CrateID, r.Score, desc)
			}
			return nil
		}

		var ranked []search.RankedCrate
		if traditional {
			ranked, err = app.traditional.Search(ctx, query, criteria)
		} else {
			ranked, err = app.engine.SearchCrates(ctx, app.rewriter, query, criteria)
		}
		if err != nil {
			return err
		}
		if len(ranked) == 0 {
			fmt.Println("No crates matched.")
			return nil
		}
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		for i, r := range ranked {
			fmt.Printf("%2d. %-24s %.4f  %s\n", i+1, r.Name, r.FinalScore, r.Description)
		}
		return nil
	},
}
