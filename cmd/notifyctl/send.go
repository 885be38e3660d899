package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

type target struct {
	channel string
	to      string
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.channel, "channel", "c", "", "Channel to send through (lark, wecom, telegram)")
	cmd.Flags().StringVarP(&t.to, "to", "t", "", "Destination chat id or webhook key")
	cmd.MarkFlagRequired("channel") //nolint:errcheck
	cmd.MarkFlagRequired("to")      //nolint:errcheck
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	var (
		dest   target
		params notifications.MessageParams
		color  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message built from common parameters",
		Example: `  notifyctl send -c lark -t oc_123 --title "Deploy finished" --color Green
  notifyctl send -c wecom -t <key> --content "disk at 91%" --note "host db-1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Color = notifications.Color(color)
			body := map[string]any{"channel": dest.channel, "to": dest.to, "params": params}

			var result notifications.SendResult
			if err := opts.client().do(cmd.Context(), "POST", "/api/messages", body, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	dest.register(cmd)
	f := cmd.Flags()
	f.StringVar(&params.Title, "title", "", "Message title")
	f.StringVar(&params.Content, "content", "", "Message body")
	f.StringVar(&color, "color", "", "Accent color (Blue, Green, Orange, Grey, Red, Purple)")
	f.StringVar(&params.URL, "url", "", "Link shown as a button or trailing link")
	f.StringVar(&params.Image, "image", "", "Image URL or channel image key")
	f.StringVar(&params.Note, "note", "", "Footnote")
	return cmd
}

func newRawCmd(opts *globalOptions) *cobra.Command {
	var (
		dest target
		file string
	)

	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Send a channel-native message body read from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var message map[string]any
			if err := json.Unmarshal(data, &message); err != nil {
				return fmt.Errorf("message must be a JSON object: %w", err)
			}

			body := map[string]any{"channel": dest.channel, "to": dest.to, "message": message}
			var result notifications.SendResult
			if err := opts.client().do(cmd.Context(), "POST", "/api/messages/raw", body, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	dest.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON file to send, - for stdin")
	return cmd
}

// readInput reads path, or stdin when path is "-" or empty.
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
