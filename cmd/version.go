package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quire/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringP("format", "f", "text", "output format (text, json, yaml)")
	versionCmd.Flags().Bool("short", false, "print the version only")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	short, _ := cmd.Flags().GetBool("short")
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		if short {
			_, err := fmt.Fprintln(out, version.GetShortVersion())

			return err
		}
		_, err := fmt.Fprintln(out, version.GetDetailedVersion())

		return err
	case "json", "yaml":
		return writeStructured(out, format, version.GetBuildInfo())
	default:
		return fmt.Errorf("unsupported format %q (supported: text, json, yaml)", format)
	}
}
