package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	logsEventID       string
	logsAccountID     string
	logsDestinationID string
	logsStatus        string
	logsLimit         int
)

// logsCmd queries the delivery log
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query the delivery log",
	Long:  `Query per-(event, destination) delivery attempts with optional filters.`,
	Example: `  hookctl logs --event-id 6f1c...
  hookctl logs --account-id 9a2e... --status failed --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if logsEventID != "" {
			q.Set("event_id", logsEventID)
		}
		if logsAccountID != "" {
			q.Set("account_id", logsAccountID)
		}
		if logsDestinationID != "" {
			q.Set("destination_id", logsDestinationID)
		}
		if logsStatus != "" {
			q.Set("status", logsStatus)
		}
		if logsLimit > 0 {
			q.Set("limit", strconv.Itoa(logsLimit))
		}

		path := "/logs"
		if enc := q.Encode(); enc != "" {
			path += "?" + enc
		}
		resp, err := makeRequest("GET", path, nil, nil)
		if err != nil {
			return fmt.Errorf("logs query failed: %w", err)
		}
		return printResponse(resp)
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsEventID, "event-id", "", "filter by event identifier")
	logsCmd.Flags().StringVar(&logsAccountID, "account-id", "", "filter by account")
	logsCmd.Flags().StringVar(&logsDestinationID, "destination-id", "", "filter by destination")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "filter by status (pending|processing|success|failed)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 0, "maximum rows to return")
	rootCmd.AddCommand(logsCmd)
}
