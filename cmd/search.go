package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/engine"
	"github.com/jobscout/jobscout/internal/model"
)

var searchCriteria model.SearchCriteria

var (
	searchMaxItems     int
	searchResumeOffset int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a single search-and-ingest session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := runSearch(ctx, eng, searchCriteria, engine.RunOptions{
			MaxItems:     searchMaxItems,
			ResumeOffset: searchResumeOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

// runSearch performs the full start / refine / run sequence for one set of
// criteria.
func runSearch(ctx context.Context, eng *engine.Engine, criteria model.SearchCriteria, opts engine.RunOptions) (*model.RunStats, error) {
	res, err := eng.Start(ctx, criteria)
	if err != nil {
		return nil, eris.Wrap(err, "start session")
	}
	if res.Completed {
		zap.L().Info("no results discovered", zap.Int64("session_id", res.SessionID))
		stats := model.RunStats{SessionID: res.SessionID}
		return &stats, nil
	}

	if r := criteria.Refinements(); !r.Empty() {
		refined, err := eng.Refine(ctx, res.SessionID, r)
		if err != nil {
			return nil, eris.Wrap(err, "refine session")
		}
		zap.L().Info("search refined",
			zap.Int64("session_id", res.SessionID),
			zap.Int("discovered", refined.Discovered))
	}

	stats, err := eng.Run(ctx, res.SessionID, opts)
	if err != nil {
		return nil, eris.Wrap(err, "run session")
	}
	return &stats, nil
}

func init() {
	searchCmd.Flags().StringVarP(&searchCriteria.Query, "query", "q", "", "search query (required)")
	searchCmd.Flags().StringVarP(&searchCriteria.Location, "location", "l", "", "search location (required)")
	searchCmd.Flags().StringVar(&searchCriteria.PreferredLocation, "preferred-location", "", "preferred location for ranking ties")
	searchCmd.Flags().BoolVar(&searchCriteria.EasyApply, "easy-apply", false, "only easy-apply postings")
	searchCmd.Flags().BoolVar(&searchCriteria.Remote, "remote", false, "only remote postings")
	searchCmd.Flags().StringVar(&searchCriteria.DatePosted, "date-posted", "", "posting recency window (e.g. last_day, last_week)")
	searchCmd.Flags().StringVar(&searchCriteria.JobType, "job-type", "", "job type (e.g. full_time, contract)")
	searchCmd.Flags().StringVar(&searchCriteria.MinRating, "min-rating", "", "minimum company rating")
	searchCmd.Flags().IntVar(&searchCriteria.SalaryMin, "salary-min", 0, "salary range lower bound")
	searchCmd.Flags().IntVar(&searchCriteria.SalaryMax, "salary-max", 0, "salary range upper bound")
	searchCmd.Flags().IntVar(&searchMaxItems, "max-items", 0, "cap on results to process (0 = all)")
	searchCmd.Flags().IntVar(&searchResumeOffset, "resume-offset", 0, "start extraction at this result index")
	_ = searchCmd.MarkFlagRequired("query")
	_ = searchCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(searchCmd)
}
