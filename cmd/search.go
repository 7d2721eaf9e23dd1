package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/pql-agent/internal/evidence"
)

var (
	searchQuery string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Print the top search result links for a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("navigate"); err != nil {
			return err
		}
		env := initEvidenceOnly()
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env.Gatherer.TopLinks(cmd.Context(), searchQuery, searchLimit))
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "search query")
	searchCmd.Flags().IntVar(&searchLimit, "limit", evidence.DefaultLimit, "number of links (1-10)")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}
