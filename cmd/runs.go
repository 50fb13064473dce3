package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/communityforge/scout/internal/model"
	"github.com/communityforge/scout/internal/store"
)

var (
	runsCity     string
	runsState    string
	runsCategory string
	runsLimit    int
)

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "List past runs, or show one run in full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			run, err := e.Store.GetRun(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "get run")
			}
			return enc.Encode(run)
		}

		runs, err := e.Store.ListRuns(ctx, store.RunFilter{
			City:     runsCity,
			State:    runsState,
			Category: model.Category(runsCategory),
			Limit:    runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		type runSummary struct {
			ID       string `json:"id"`
			City     string `json:"city"`
			State    string `json:"state"`
			Category string `json:"category"`
			Records  int    `json:"records"`
			Finished string `json:"finished"`
		}
		out := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			out = append(out, runSummary{
				ID:       r.ID,
				City:     r.Input.City,
				State:    r.Input.State,
				Category: string(r.Input.Category),
				Records:  len(r.Extracted),
				Finished: r.FinishedAt.Format("2006-01-02 15:04:05"),
			})
		}
		return enc.Encode(out)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsCity, "city", "", "filter by city")
	runsCmd.Flags().StringVar(&runsState, "state", "", "filter by state")
	runsCmd.Flags().StringVar(&runsCategory, "category", "", "filter by category")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	rootCmd.AddCommand(runsCmd)
}
