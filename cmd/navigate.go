package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/pql-agent/internal/model"
)

var (
	navigateSubject    string
	navigateURL        string
	navigateSequential bool
)

var navigateCmd = &cobra.Command{
	Use:   "navigate",
	Short: "Gather web evidence for a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("navigate"); err != nil {
			return err
		}
		env := initEvidenceOnly()
		defer env.Close()

		var hint *string
		if navigateURL != "" {
			hint = &navigateURL
		}

		var bundle model.EvidenceBundle
		if navigateSequential {
			bundle = env.Gatherer.GatherSequential(cmd.Context(), navigateSubject, hint)
		} else {
			bundle = env.Gatherer.Gather(cmd.Context(), navigateSubject, hint)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	},
}

func init() {
	navigateCmd.Flags().StringVar(&navigateSubject, "subject", "", "company name or search subject")
	navigateCmd.Flags().StringVar(&navigateURL, "url", "", "website hint URL")
	navigateCmd.Flags().BoolVar(&navigateSequential, "sequential", false, "fetch the page before searching instead of concurrently")
	_ = navigateCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(navigateCmd)
}
