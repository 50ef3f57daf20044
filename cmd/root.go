// Package cmd implements the quire command line.
//
// Configuration is read from, in order of precedence: command-line flags,
// QUIRE_<SECTION>_<KEY> environment variables, and a YAML file chosen by
// --config, QUIRE_CONFIG_FILE or .quire.yml in the working directory.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quire",
	Short: "Serve a blog from a directory of markdown files",
	Long: `quire renders a personal site from a content directory of markdown
files with YAML front matter. Pages are rendered at request time from an
in-memory snapshot that is rebuilt whenever files change.

Commands:
  quire serve      Serve the site with live reload
  quire check      Build once and report problems
  quire history    Show recent reloads from the journal
  quire version    Show build information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .quire.yml, can also use QUIRE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the config file and the QUIRE_ environment.
func initConfig() {
	configure(viper.GetViper(), os.Stderr)
}

func configure(v *viper.Viper, stderr io.Writer) {
	file := config.ConfigFile(cfgFile)
	if err := config.Configure(v, file); err != nil {
		fmt.Fprintln(stderr, "Warning:", err)

		return
	}
	if used := v.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			fmt.Fprintln(stderr, "Using config file:", used)
		}
	}
}
