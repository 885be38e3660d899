package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

func newChannelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List channels registered on the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			var channels []struct {
				Channel      string                     `json:"channel"`
				Capabilities notifications.Capabilities `json:"capabilities"`
			}
			if err := opts.client().do(cmd.Context(), "GET", "/api/channels", nil, &channels); err != nil {
				return fmt.Errorf("failed to fetch channels: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s  %-6s  %s\n", "CHANNEL", "UPLOAD", "LIST CHATS")
			for _, c := range channels {
				fmt.Fprintf(out, "%-10s  %-6t  %t\n", c.Channel, c.Capabilities.Upload, c.Capabilities.ListChats)
			}
			return nil
		},
	}
}

func newChatsCmd(opts *globalOptions) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats the channel's bot belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			var chats []notifications.ChatItem
			path := "/api/chats?channel=" + url.QueryEscape(channel)
			if err := opts.client().do(cmd.Context(), "GET", path, nil, &chats); err != nil {
				return fmt.Errorf("failed to fetch chats: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(chats) == 0 {
				fmt.Fprintln(out, "No chats available.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %s\n", "CHAT ID", "NAME")
			for _, c := range chats {
				fmt.Fprintf(out, "%-36s  %s\n", c.ChatID, c.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&channel, "channel", "c", "lark", "Channel to list chats for")
	return cmd
}

func newUploadCmd(opts *globalOptions) *cobra.Command {
	var channel, imageURL string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an image by URL and print the channel's image key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				ImageKey string `json:"imageKey"`
			}
			body := map[string]string{"channel": channel, "url": imageURL}
			if err := opts.client().do(cmd.Context(), "POST", "/api/images", body, &result); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.ImageKey)
			return nil
		},
	}

	cmd.Flags().StringVarP(&channel, "channel", "c", "lark", "Channel to upload to")
	cmd.Flags().StringVar(&imageURL, "url", "", "Image URL to upload")
	cmd.MarkFlagRequired("url") //nolint:errcheck
	return cmd
}
