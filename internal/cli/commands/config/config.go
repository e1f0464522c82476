package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
)

// ConfigCmd represents the config command group
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `View and modify CLI configuration settings.

Configuration is stored in ~/.servicedesk/config.yaml. Every key can also be
set through a DESK_ prefixed environment variable (DESK_TOKEN, DESK_API_URL).

Examples:
  # Initialize configuration
  desk config init

  # View current configuration
  desk config view

  # Set a configuration value
  desk config set api_url https://desk.example.com

  # Get a configuration value
  desk config get api_url`,
}

func init() {
	ConfigCmd.AddCommand(initCmd)
	ConfigCmd.AddCommand(viewCmd)
	ConfigCmd.AddCommand(setCmd)
	ConfigCmd.AddCommand(getCmd)
}

// Dir returns the CLI configuration directory
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".servicedesk"), nil
}

// Save writes the current settings to the config file in use, creating the
// default file when none was loaded
func Save() error {
	if viper.ConfigFileUsed() != "" {
		if err := viper.WriteConfig(); err == nil {
			return nil
		}
	}
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(dir, "config.yaml"))
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize CLI configuration",
	Long: `Initialize the CLI configuration file.

This will create a default configuration file at
~/.servicedesk/config.yaml`,
	Run: runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	dir, err := Dir()
	if err != nil {
		cliutil.Fail(fmt.Errorf("finding home directory: %w", err))
	}
	configFile := filepath.Join(dir, "config.yaml")

	// Check if config already exists
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("Configuration already exists at %s\n", configFile)
		if !cliutil.Confirm(os.Stdin, os.Stdout, "Overwrite?") {
			fmt.Println("Cancelled")
			return
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		cliutil.Fail(fmt.Errorf("creating config directory: %w", err))
	}

	// Set default values
	viper.Set(cliutil.KeyAPIURL, cliutil.DefaultAPIURL)
	viper.Set(cliutil.KeyOutput, "table")
	viper.Set(cliutil.KeyVerbose, false)
	viper.Set(cliutil.KeyTimeout, "30s")

	if err := viper.WriteConfigAs(configFile); err != nil {
		cliutil.Fail(fmt.Errorf("writing config file: %w", err))
	}

	fmt.Printf("Configuration initialized at %s\n", configFile)
}

var viewCmd = &cobra.Command{
	Use:     "view",
	Aliases: []string{"show"},
	Short:   "View current configuration",
	Run:     runView,
}

func runView(cmd *cobra.Command, args []string) {
	settings := viper.AllSettings()
	if _, ok := settings[cliutil.KeyToken]; ok {
		settings[cliutil.KeyToken] = "********"
	}

	cliutil.Print(settings, func(out io.Writer) {
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%v\n", k, settings[k])
		}
		w.Flush()
	})
}

var setCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Examples:
  desk config set api_url https://desk.example.com
  desk config set output json
  desk config set timeout 1m`,
	Args: cobra.ExactArgs(2),
	Run:  runSet,
}

func runSet(cmd *cobra.Command, args []string) {
	key := args[0]
	value := args[1]

	viper.Set(key, value)

	if err := Save(); err != nil {
		cliutil.Fail(fmt.Errorf("writing config: %w", err))
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	Run:   runGet,
}

func runGet(cmd *cobra.Command, args []string) {
	key := args[0]
	value := viper.Get(key)

	if value == nil {
		fmt.Printf("%s is not set\n", key)
		return
	}

	fmt.Printf("%s = %v\n", key, value)
}
