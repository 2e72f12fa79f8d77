package cmd

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var statsAccountID string

// statsCmd reads aggregate delivery counts
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate delivery counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/stats"
		if statsAccountID != "" {
			path += "?" + url.Values{"account_id": {statsAccountID}}.Encode()
		}
		resp, err := makeRequest("GET", path, nil, nil)
		if err != nil {
			return fmt.Errorf("stats query failed: %w", err)
		}
		return printResponse(resp)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsAccountID, "account-id", "", "scope stats to one account")
	rootCmd.AddCommand(statsCmd)
}
