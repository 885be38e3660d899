package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

func newAlertCmd(opts *globalOptions) *cobra.Command {
	var (
		dest   target
		file   string
		native bool
	)

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Deliver a Grafana alert payload read from a file or stdin",
		Example: `  echo '{"state":"alerting","ruleName":"CPU high"}' | notifyctl alert -c wecom -t <key>
  notifyctl alert -c lark -t oc_123 --native -f alert.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("alert must be a JSON object: %w", err)
			}

			path := "/api/webhooks/grafana"
			if native {
				path += "/native"
			}
			q := url.Values{"channel": {dest.channel}, "to": {dest.to}}

			var result notifications.SendResult
			if err := opts.client().do(cmd.Context(), "POST", path+"?"+q.Encode(), payload, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	dest.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Alert JSON file, - for stdin")
	cmd.Flags().BoolVar(&native, "native", false, "Use the channel's native alert layout")
	return cmd
}
