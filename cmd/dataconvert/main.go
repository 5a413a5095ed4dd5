// Package main is the entry point for the dataconvert CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the dataconvert CLI.
var rootCmd = &cobra.Command{
	Use:   "dataconvert",
	Short: "Preview and convert CSV and XLSX files to JSON or XML",
	Long: `dataconvert runs the same preview and conversion pipeline as the server
from the command line. Defaults for every flag can be set in dataconvert.yaml
(current directory or ~/.config/dataconvert) or through DATACONVERT_* variables.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./dataconvert.yaml or ~/.config/dataconvert/dataconvert.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dataconvert")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "dataconvert"))
		}
	}

	// convert.max_size is read from DATACONVERT_CONVERT_MAX_SIZE.
	viper.SetEnvPrefix("DATACONVERT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
