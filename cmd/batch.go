package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jobscout/jobscout/internal/engine"
	"github.com/jobscout/jobscout/internal/model"
)

var batchFile string

// batchSpec is the YAML shape of a batch file: a list of searches with an
// optional shared items cap.
type batchSpec struct {
	MaxItems int                    `yaml:"max_items"`
	Searches []model.SearchCriteria `yaml:"searches"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run every search listed in a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(batchFile)
		if err != nil {
			return eris.Wrapf(err, "read batch file %s", batchFile)
		}
		var spec batchSpec
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return eris.Wrap(err, "parse batch file")
		}
		if len(spec.Searches) == 0 {
			return eris.New("batch file lists no searches")
		}

		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// One failed search never aborts the rest of the batch.
		var results []model.RunStats
		failures := 0
		for i, criteria := range spec.Searches {
			stats, err := runSearch(ctx, eng, criteria, engine.RunOptions{MaxItems: spec.MaxItems})
			if err != nil {
				failures++
				zap.L().Error("batch search failed",
					zap.Int("index", i),
					zap.String("query", criteria.Query),
					zap.Error(err))
				continue
			}
			results = append(results, *stats)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
		if failures > 0 {
			return eris.Errorf("%d of %d searches failed", failures, len(spec.Searches))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "batch.yaml", "YAML file with the searches to run")
	rootCmd.AddCommand(batchCmd)
}
