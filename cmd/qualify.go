package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pql-agent/internal/importer"
	"github.com/sells-group/pql-agent/internal/pipeline"
)

var (
	qualifyFile         string
	qualifyThreshold    int
	qualifySkipResearch bool
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify",
	Short: "Import leads from a file and run the pipeline on them",
	Long:  "Reads leads from a CSV, XLSX, JSON, or YAML file, stores them, then qualifies, researches, and drafts emails for each one. Prints the batch result as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var opts []pipeline.Option
		if qualifySkipResearch {
			opts = append(opts, pipeline.WithSkipResearch())
		}

		env, err := initApp(ctx, "qualify", opts...)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := importer.LoadFile(ctx, qualifyFile)
		if err != nil {
			return eris.Wrap(err, "qualify: load file")
		}
		leads, err := importer.Import(ctx, env.Store, records)
		if err != nil {
			return err
		}

		var threshold *int
		if cmd.Flags().Changed("threshold") {
			threshold = &qualifyThreshold
		}

		batch, err := env.Pipeline.RunBatch(ctx, leads, threshold)
		if err != nil {
			return err
		}

		zap.L().Info("qualify complete",
			zap.String("file", qualifyFile),
			zap.Int("imported", len(leads)),
			zap.Int("qualified", len(batch.Qualified)),
			zap.Int("failed", len(batch.Failed)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	},
}

func init() {
	qualifyCmd.Flags().StringVar(&qualifyFile, "file", "", "lead file (.csv, .xlsx, .json, .yaml)")
	qualifyCmd.Flags().IntVar(&qualifyThreshold, "threshold", 0, "qualification threshold override (1-10)")
	qualifyCmd.Flags().BoolVar(&qualifySkipResearch, "skip-research", false, "stop after qualification")
	_ = qualifyCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(qualifyCmd)
}
