package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd groups configuration management subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hookctl configuration",
	Long:  `View, set, and initialize hookctl configuration settings.`,
}

// configViewCmd shows the effective settings
var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Current configuration:")
		fmt.Printf("  Server: %s\n", serverAddr)
		fmt.Printf("  Timeout: %s\n", timeout)
		if authToken != "" {
			fmt.Println("  Token: (set)")
		} else {
			fmt.Println("  Token: (not set)")
		}
		fmt.Printf("  JSON output: %v\n", outputJSON)

		if viper.ConfigFileUsed() != "" {
			fmt.Printf("  Config file: %s\n", viper.ConfigFileUsed())
		} else {
			fmt.Println("  Config file: none (using defaults)")
		}
	},
}

// configSetCmd persists one setting to the config file
var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the config file.

Examples:
  hookctl config set server localhost:8080
  hookctl config set timeout 60s
  hookctl config set json true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		parsed, err := parseConfigValue(key, value)
		if err != nil {
			return err
		}
		viper.Set(key, parsed)

		path, err := configFilePath()
		if err != nil {
			return err
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		fmt.Printf("Configuration saved to: %s\n", path)
		return nil
	},
}

// configInitCmd creates a default config file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
			}
		}

		viper.Set("server", "localhost:8080")
		viper.Set("timeout", "30s")
		viper.Set("json", false)
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("create config file: %w", err)
		}
		fmt.Printf("Configuration file created: %s\n", path)
		return nil
	},
}

// parseConfigValue validates a settable key and converts its value to the
// type viper should store.
func parseConfigValue(key, value string) (any, error) {
	switch key {
	case "server", "token":
		return value, nil
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for timeout: %q", value)
		}
		return d, nil
	case "json":
		switch value {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean value for json: %q (use true/false)", value)
	default:
		return nil, fmt.Errorf("invalid configuration key: %s (valid keys: server, timeout, token, json)", key)
	}
}

func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".hookctl.yaml"), nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite existing config file")
}
