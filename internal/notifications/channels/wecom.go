package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// DefaultWecomWebhookURL is the WeCom group robot endpoint.
const DefaultWecomWebhookURL = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send"

const wecomDivider = `<font color="comment">──────────</font>`

// WecomConfig holds the configuration for WeCom group robots. The robot
// key is supplied per message as the destination.
type WecomConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// WecomService sends markdown and news messages to WeCom group robots.
type WecomService struct {
	webhookURL string // overridable for testing
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewWecomService creates a WecomService from the given config.
func NewWecomService(config WecomConfig, logger *zap.Logger) (*WecomService, error) {
	webhookURL := config.WebhookURL
	if webhookURL == "" {
		webhookURL = DefaultWecomWebhookURL
	}
	u, err := url.Parse(webhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook_url for WeCom channel: %q", webhookURL)
	}
	return &WecomService{
		webhookURL: webhookURL,
		client:     newHTTPClient(config.Timeout),
		logger:     orNop(logger).Named("wecom"),
		now:        time.Now,
	}, nil
}

func (s *WecomService) Channel() notifications.Channel { return notifications.ChannelWecom }

func (s *WecomService) Capabilities() notifications.Capabilities {
	return notifications.Capabilities{}
}

// BuildMessage renders params as a news card when there is an image or a
// link, and as markdown otherwise.
func (s *WecomService) BuildMessage(params notifications.MessageParams) notifications.RawMessage {
	params = params.WithFallbackNote(s.now())
	if params.Image != "" || params.URL != "" {
		return buildWecomNews(params)
	}
	return buildWecomMarkdown(params)
}

// RenderAlert renders an alert as markdown with comment-colored sections.
func (s *WecomService) RenderAlert(view notifications.AlertView) notifications.RawMessage {
	return buildWecomAlert(view)
}

func (s *WecomService) SendMessage(ctx context.Context, to string, params notifications.MessageParams) (*notifications.SendResult, error) {
	return s.SendRawMessage(ctx, to, s.BuildMessage(params))
}

// SendRawMessage posts message to the robot whose key is to.
func (s *WecomService) SendRawMessage(ctx context.Context, to string, message notifications.RawMessage) (*notifications.SendResult, error) {
	s.logger.Info("sending message", zap.String("msgtype", fmt.Sprint(message["msgtype"])))

	resp, err := postJSON(ctx, s.client, notifications.ChannelWecom, s.robotURL(to), message)
	if err != nil {
		s.logger.Warn("send failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		ErrCode int    `json:"errcode"`
		ErrMsg  string `json:"errmsg"`
	}
	if err := decodeResponse(notifications.ChannelWecom, resp, &result); err != nil {
		s.logger.Warn("send failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, err
	}
	if resp.StatusCode >= 400 {
		code, msg := result.ErrCode, result.ErrMsg
		if code == 0 {
			code, msg = resp.StatusCode, http.StatusText(resp.StatusCode)
		}
		return nil, notifications.VendorError(notifications.ChannelWecom, code, msg)
	}
	if result.ErrCode != 0 {
		s.logger.Warn("send rejected", zap.Int("errcode", result.ErrCode), zap.String("errmsg", result.ErrMsg))
		return nil, notifications.VendorError(notifications.ChannelWecom, result.ErrCode, result.ErrMsg)
	}
	return &notifications.SendResult{Success: true}, nil
}

func (s *WecomService) robotURL(key string) string {
	sep := "?"
	if strings.Contains(s.webhookURL, "?") {
		sep = "&"
	}
	return s.webhookURL + sep + "key=" + url.QueryEscape(key)
}

func buildWecomMarkdown(params notifications.MessageParams) notifications.RawMessage {
	var parts []string

	if params.Title != "" {
		glyph := ""
		if params.Color != "" {
			glyph = notifications.ColorEmoji[params.Color]
		}
		if glyph != "" && !strings.HasPrefix(params.Title, glyph) {
			parts = append(parts, "### "+glyph+" "+params.Title)
		} else {
			parts = append(parts, "### "+params.Title)
		}
	}

	if params.Content != "" {
		parts = append(parts, params.Content)
	}

	if params.Note != "" {
		parts = append(parts, quoteLines(params.Note))
	}

	return wecomMarkdown(strings.Join(parts, "\n\n"))
}

func buildWecomNews(params notifications.MessageParams) notifications.RawMessage {
	title := params.Title
	if title == "" {
		title = "Notification"
	}

	article := map[string]any{"title": title}

	var desc []string
	if params.Content != "" {
		desc = append(desc, params.Content)
	}
	if params.Note != "" {
		desc = append(desc, params.Note)
	}
	if len(desc) > 0 {
		article["description"] = strings.Join(desc, "\n\n")
	}
	if params.URL != "" {
		article["url"] = params.URL
	}
	if params.Image != "" {
		article["picurl"] = params.Image
	}

	return notifications.RawMessage{
		"msgtype": "news",
		"news": map[string]any{
			"articles": []any{article},
		},
	}
}

func buildWecomAlert(view notifications.AlertView) notifications.RawMessage {
	heading := "### " + view.RuleName
	if !strings.HasPrefix(view.RuleName, view.Glyph) {
		heading = "### " + view.Glyph + " " + view.RuleName
	}
	parts := []string{heading}

	if len(view.Matches) > 0 {
		parts = append(parts, wecomDivider, view.MatchBlock())
	}

	if view.Message != "" {
		lines := strings.Split(view.Message, "\n")
		for i, line := range lines {
			lines[i] = `<font color="comment">` + strings.TrimPrefix(line, "- ") + `</font>`
		}
		parts = append(parts, wecomDivider, strings.Join(lines, "\n"))
	}

	if view.Timestamp != "" {
		parts = append(parts, "> "+view.Timestamp)
	}

	return wecomMarkdown(strings.Join(parts, "\n"))
}

func wecomMarkdown(content string) notifications.RawMessage {
	return notifications.RawMessage{
		"msgtype":  "markdown",
		"markdown": map[string]any{"content": content},
	}
}

func quoteLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
