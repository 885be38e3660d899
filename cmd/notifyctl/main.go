package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	server  string
	timeout time.Duration
}

func (o *globalOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "notifyctl",
		Short: "CLI for the notify gateway - send messages and alerts to Lark, WeCom and Telegram",
		Long: `notifyctl talks to a running notify gateway over HTTP.
Messages are sent through the gateway, so channel credentials never leave the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("NOTIFY_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "Gateway server URL (env NOTIFY_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(
		newSendCmd(opts),
		newRawCmd(opts),
		newAlertCmd(opts),
		newChatsCmd(opts),
		newChannelsCmd(opts),
		newUploadCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}
