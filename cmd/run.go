package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/model"
)

var (
	runCity     string
	runState    string
	runCategory string
	runPerQuery int
	runMaxURLs  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery pipeline for a city/state/category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		input := model.RunInput{
			City:     runCity,
			State:    runState,
			Category: model.Category(runCategory),
			PerQuery: runPerQuery,
			MaxURLs:  runMaxURLs,
		}
		if input.City == "" || input.State == "" || input.Category == "" {
			return eris.New("city, state, and category are required")
		}

		run, err := e.Orchestrator.Run(ctx, input)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.Int("urls", len(run.CandidateURLs)),
			zap.Int("records", len(run.Extracted)),
			zap.String("output_dir", cfg.Output.Dir),
		)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runCity, "city", "", "city to search (required)")
	runCmd.Flags().StringVar(&runState, "state", "", "two-letter state (required)")
	runCmd.Flags().StringVar(&runCategory, "category", "", "service category, e.g. FOOD_BANK (required)")
	runCmd.Flags().IntVar(&runPerQuery, "per-query", 0, "result URLs per search query (default from config)")
	runCmd.Flags().IntVar(&runMaxURLs, "max-urls", 0, "cap on URLs extracted per run (default from config)")
	rootCmd.AddCommand(runCmd)
}
