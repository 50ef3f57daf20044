package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties a flag to the config key it overrides.
type flagBinding struct {
	flag string
	key  string
}

// contentFlags declares the flags shared by commands that build content.
func contentFlags() (*pflag.FlagSet, []flagBinding) {
	fs := pflag.NewFlagSet("content", pflag.ContinueOnError)
	fs.StringP("content", "c", "content", "content directory")
	fs.Bool("drafts", false, "include draft posts and entries")
	fs.Int("workers", 0, "render workers (default: number of CPUs)")

	return fs, []flagBinding{
		{"content", "content.path"},
		{"drafts", "content.drafts"},
		{"workers", "content.workers"},
	}
}

// serverFlags declares the listen flags of serve.
func serverFlags() (*pflag.FlagSet, []flagBinding) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.IntP("port", "p", 8080, "port to serve on")
	fs.String("host", "localhost", "host to bind to")
	fs.String("base-url", "", "public URL of the site (default http://host:port)")
	fs.Bool("no-watch", false, "disable filesystem watching; rely on periodic rescans")

	return fs, []flagBinding{
		{"port", "server.port"},
		{"host", "server.host"},
		{"base-url", "server.base_url"},
	}
}

// addFlags adds each set to cmd. The flags are bound into the global viper
// when cmd runs, so commands sharing a config key do not steal each other's
// binding. Flags only override the config when set explicitly.
func addFlags(cmd *cobra.Command, sets ...func() (*pflag.FlagSet, []flagBinding)) {
	var all []flagBinding
	for _, set := range sets {
		fs, bindings := set()
		cmd.Flags().AddFlagSet(fs)
		all = append(all, bindings...)
	}

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		return bindFlags(viper.GetViper(), cmd, all)
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings []flagBinding) error {
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, cmd.Flags().Lookup(b.flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", b.flag, err)
		}
	}

	return nil
}
