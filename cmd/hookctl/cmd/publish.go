package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	publishPayload string
	publishFile    string
	publishEventID string
)

// publishCmd submits one event payload to the ingestion endpoint
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Submit an event payload for delivery",
	Long: `Submit a JSON event payload to the ingestion endpoint. The payload is
fanned out to every destination configured on the account identified by the
secret token.`,
	Example: `  hookctl publish --token my-secret --payload '{"order_id": 42}'
  hookctl publish --token my-secret --file event.json --event-id order-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if authToken == "" {
			return fmt.Errorf("a secret token is required (--token or HOOKLINE_TOKEN)")
		}

		body := []byte(publishPayload)
		if publishFile != "" {
			var err error
			body, err = os.ReadFile(publishFile)
			if err != nil {
				return fmt.Errorf("read payload file: %w", err)
			}
		}
		if len(body) == 0 {
			return fmt.Errorf("a payload is required (--payload or --file)")
		}

		headers := map[string]string{"CL-X-TOKEN": authToken}
		if publishEventID != "" {
			headers["CL-X-EVENT-ID"] = publishEventID
		}

		resp, err := makeRequest("POST", "/incoming_data", headers, body)
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		return printResponse(resp)
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishPayload, "payload", "", "inline JSON payload")
	publishCmd.Flags().StringVar(&publishFile, "file", "", "path to a JSON payload file")
	publishCmd.Flags().StringVar(&publishEventID, "event-id", "", "caller-supplied event identifier")
	rootCmd.AddCommand(publishCmd)
}
