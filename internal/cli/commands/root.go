package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/auth"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/config"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/hours"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/message"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/project"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/resource"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/ticket"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "desk",
		Short: "Service desk CLI",
		Long: `A CLI tool for working service desk tickets.

This tool allows you to:
  - Open, view and categorize support and project tickets
  - Post messages with status changes, attachments and hours
  - Manage the resources working a ticket
  - Report logged hours`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.servicedesk/config.yaml)")
	rootCmd.PersistentFlags().String("api-url", cliutil.DefaultAPIURL, "API server URL")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Request timeout (default 30s)")

	// Bind flags to viper
	viper.BindPFlag(cliutil.KeyAPIURL, rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag(cliutil.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(cliutil.KeyOutput, rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag(cliutil.KeyTimeout, rootCmd.PersistentFlags().Lookup("timeout"))

	// Add subcommands
	rootCmd.AddCommand(ticket.TicketCmd)
	rootCmd.AddCommand(message.MessageCmd)
	rootCmd.AddCommand(resource.ResourceCmd)
	rootCmd.AddCommand(hours.HoursCmd)
	rootCmd.AddCommand(project.ProjectCmd)
	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(config.ConfigCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		// Create config directory if it doesn't exist
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintln(os.Stderr, "Error creating config directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("DESK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool(cliutil.KeyVerbose) {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
