package channels

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// DefaultTelegramBaseURL is the Telegram Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// TelegramConfig holds the configuration for a Telegram Bot channel.
type TelegramConfig struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramService sends HTML messages via the Telegram Bot API. The
// destination is a chat ID, optionally followed by ":<thread id>" to post
// into a forum topic.
type TelegramService struct {
	config  TelegramConfig
	client  *http.Client
	baseURL string // overridable for testing
	logger  *zap.Logger
	now     func() time.Time
}

// NewTelegramService creates a TelegramService from the given config.
func NewTelegramService(config TelegramConfig, logger *zap.Logger) (*TelegramService, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot_token is required for Telegram channel")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	return &TelegramService{
		config:  config,
		client:  newHTTPClient(config.Timeout),
		baseURL: baseURL,
		logger:  orNop(logger).Named("telegram"),
		now:     time.Now,
	}, nil
}

func (s *TelegramService) Channel() notifications.Channel { return notifications.ChannelTelegram }

func (s *TelegramService) Capabilities() notifications.Capabilities {
	return notifications.Capabilities{}
}

// BuildMessage renders params as HTML text.
func (s *TelegramService) BuildMessage(params notifications.MessageParams) notifications.RawMessage {
	return telegramHTML(formatTelegramMessage(params.WithFallbackNote(s.now())))
}

// RenderAlert renders an alert as HTML text headed by its state glyph.
func (s *TelegramService) RenderAlert(view notifications.AlertView) notifications.RawMessage {
	return telegramHTML(formatTelegramAlert(view))
}

func (s *TelegramService) SendMessage(ctx context.Context, to string, params notifications.MessageParams) (*notifications.SendResult, error) {
	return s.SendRawMessage(ctx, to, s.BuildMessage(params))
}

// SendRawMessage calls sendMessage for the target. Keys of message override
// the defaults derived from the target.
func (s *TelegramService) SendRawMessage(ctx context.Context, to string, message notifications.RawMessage) (*notifications.SendResult, error) {
	chatID, threadID := splitTelegramTarget(to)

	payload := map[string]any{
		"chat_id":              chatID,
		"link_preview_options": map[string]bool{"is_disabled": true},
	}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	for k, v := range message {
		payload[k] = v
	}

	s.logger.Info("sending message", zap.String("chat_id", chatID), zap.Int("thread_id", threadID))

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.config.BotToken)
	resp, err := postJSON(ctx, s.client, notifications.ChannelTelegram, url, payload)
	if err != nil {
		s.logger.Warn("send failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
		Result      struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
	}
	if err := decodeResponse(notifications.ChannelTelegram, resp, &result); err != nil {
		return nil, err
	}
	if !result.OK {
		s.logger.Warn("send rejected", zap.Int("error_code", result.ErrorCode), zap.String("description", result.Description))
		return nil, notifications.VendorError(notifications.ChannelTelegram, result.ErrorCode, result.Description)
	}

	res := &notifications.SendResult{Success: true}
	if result.Result.MessageID != 0 {
		res.MessageID = strconv.Itoa(result.Result.MessageID)
	}
	return res, nil
}

// splitTelegramTarget splits "chat:thread". A suffix that is not a number
// is treated as part of the chat ID.
func splitTelegramTarget(target string) (string, int) {
	idx := strings.LastIndex(target, ":")
	if idx == -1 {
		return target, 0
	}
	threadID, err := strconv.Atoi(target[idx+1:])
	if err != nil {
		return target, 0
	}
	return target[:idx], threadID
}

func telegramHTML(text string) notifications.RawMessage {
	return notifications.RawMessage{
		"text":       text,
		"parse_mode": "HTML",
	}
}

func formatTelegramMessage(params notifications.MessageParams) string {
	var parts []string

	if params.Title != "" {
		parts = append(parts, "<b>"+escapeHTML(params.Title)+"</b>")
	}
	if params.Content != "" {
		parts = append(parts, escapeHTML(params.Content))
	}
	if params.Image != "" {
		parts = append(parts, fmt.Sprintf(`<a href="%s">Image</a>`, escapeAttr(params.Image)))
	}
	if params.URL != "" {
		parts = append(parts, fmt.Sprintf(`<a href="%s">View Details</a>`, escapeAttr(params.URL)))
	}
	if params.Note != "" {
		parts = append(parts, "<i>"+escapeHTML(params.Note)+"</i>")
	}

	return strings.Join(parts, "\n\n")
}

func formatTelegramAlert(view notifications.AlertView) string {
	name := escapeHTML(view.RuleName)
	if !strings.HasPrefix(view.RuleName, view.Glyph) {
		name = view.Glyph + " " + name
	}
	parts := []string{"<b>" + name + "</b>"}

	if len(view.Matches) > 0 {
		parts = append(parts, escapeHTML(view.MatchBlock()))
	}
	if view.Message != "" {
		parts = append(parts, "<i>"+escapeHTML(view.Message)+"</i>")
	}
	if view.Timestamp != "" {
		parts = append(parts, view.Timestamp)
	}

	return strings.Join(parts, "\n\n")
}

var (
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }
