package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootOptions 所有子命令共享的参数
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "autframe",
		Short: "Run web applications inside an automation harness frame",
		Long: `autframe drives a Chrome tab over the DevTools protocol and serves a harness
page whose iframe hosts the application under test.

Requests for the harness origin are answered with the harness document, and
asset requests are proxied through the backend, so applications that forbid
framing can still be loaded next to the automation tooling.

Quick Start:
  autframe serve                          # launch Chrome and serve on :3000
  autframe serve --devtools http://127.0.0.1:9222
  autframe version`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "autframe "+versionString())
		},
	}
}
