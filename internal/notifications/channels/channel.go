// Package channels holds the chat backends that implement
// notifications.NotifyService: Lark, WeCom and Telegram.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// DefaultTimeout bounds every outbound vendor call when no timeout is
// configured.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a vendor response is read.
const maxResponseBytes = 4 << 20

var (
	_ notifications.NotifyService = (*LarkService)(nil)
	_ notifications.ImageUploader = (*LarkService)(nil)
	_ notifications.ChatLister    = (*LarkService)(nil)
	_ notifications.AlertRenderer = (*LarkService)(nil)
	_ notifications.NotifyService = (*WecomService)(nil)
	_ notifications.AlertRenderer = (*WecomService)(nil)
	_ notifications.NotifyService = (*TelegramService)(nil)
	_ notifications.AlertRenderer = (*TelegramService)(nil)
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// postJSON marshals payload and POSTs it to url. The caller closes the
// response body.
func postJSON(ctx context.Context, client *http.Client, channel notifications.Channel, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, notifications.TransportError(channel, "marshal payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, notifications.TransportError(channel, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, notifications.TransportError(channel, "request", err)
	}
	return resp, nil
}

// decodeResponse reads a JSON vendor response into out. A body that cannot
// be decoded is reported with the HTTP status when the status is an error.
func decodeResponse(channel notifications.Channel, resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return notifications.TransportError(channel, "read response", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode >= 400 {
			return notifications.VendorError(channel, resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return notifications.TransportError(channel, "decode response", fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	return nil
}
