package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// healthCmd checks the ingest service health endpoint
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the hookline service",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeRequest("GET", "/healthz", nil, nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == 200 {
			fmt.Println("service is healthy")
		} else {
			fmt.Printf("service is unhealthy (HTTP %d)\n", resp.StatusCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
