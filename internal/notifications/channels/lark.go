package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// DefaultLarkBaseURL is the Feishu open platform endpoint.
const DefaultLarkBaseURL = "https://open.feishu.cn"

// larkMaxChatPages bounds chat listing pagination.
const larkMaxChatPages = 20

// maxImageBytes caps the size of an image downloaded for upload.
const maxImageBytes = 10 << 20

// LarkConfig holds the credentials of a Lark (Feishu) custom app.
type LarkConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
	Timeout   time.Duration
}

// LarkService sends interactive cards through the Lark IM API. Calls are
// authenticated with a tenant access token that is cached until it expires.
type LarkService struct {
	config  LarkConfig
	client  *http.Client // carries the tenant token
	plain   *http.Client // token endpoint and image downloads
	baseURL string       // overridable for testing
	logger  *zap.Logger
	now     func() time.Time
}

// NewLarkService creates a LarkService from the given config.
func NewLarkService(config LarkConfig, logger *zap.Logger) (*LarkService, error) {
	if config.AppID == "" {
		return nil, fmt.Errorf("app_id is required for Lark channel")
	}
	if config.AppSecret == "" {
		return nil, fmt.Errorf("app_secret is required for Lark channel")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultLarkBaseURL
	}

	s := &LarkService{
		config:  config,
		plain:   newHTTPClient(config.Timeout),
		baseURL: baseURL,
		logger:  orNop(logger).Named("lark"),
		now:     time.Now,
	}
	s.client = &http.Client{
		Timeout: s.plain.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, &larkTokenSource{svc: s}),
		},
	}
	return s, nil
}

func (s *LarkService) Channel() notifications.Channel { return notifications.ChannelLark }

func (s *LarkService) Capabilities() notifications.Capabilities {
	return notifications.Capabilities{Upload: true, ListChats: true}
}

// BuildMessage renders params as an interactive card.
func (s *LarkService) BuildMessage(params notifications.MessageParams) notifications.RawMessage {
	return buildLarkCard(params.WithFallbackNote(s.now()))
}

// RenderAlert renders an alert as a card linking to its rule.
func (s *LarkService) RenderAlert(view notifications.AlertView) notifications.RawMessage {
	return buildLarkCard(view.Params())
}

func (s *LarkService) SendMessage(ctx context.Context, to string, params notifications.MessageParams) (*notifications.SendResult, error) {
	return s.SendRawMessage(ctx, to, s.BuildMessage(params))
}

// SendRawMessage posts message as the content of an interactive message to
// the chat identified by to.
func (s *LarkService) SendRawMessage(ctx context.Context, to string, message notifications.RawMessage) (*notifications.SendResult, error) {
	content, err := json.Marshal(message)
	if err != nil {
		return nil, notifications.TransportError(notifications.ChannelLark, "marshal card", err)
	}
	payload := map[string]any{
		"receive_id": to,
		"msg_type":   "interactive",
		"content":    string(content),
	}

	s.logger.Info("sending message", zap.String("to", to))

	resp, err := postJSON(ctx, s.client, notifications.ChannelLark, s.baseURL+"/open-apis/im/v1/messages?receive_id_type=chat_id", payload)
	if err != nil {
		s.logger.Warn("send failed", zap.String("to", to), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	var data struct {
		MessageID string `json:"message_id"`
	}
	if err := s.decode(resp, &data); err != nil {
		s.logger.Warn("send rejected", zap.String("to", to), zap.Error(err))
		return nil, err
	}
	return &notifications.SendResult{MessageID: data.MessageID, Success: true}, nil
}

// UploadImage downloads imageURL and uploads it as a message image,
// returning the image key to reference from cards.
func (s *LarkService) UploadImage(ctx context.Context, imageURL string) (string, error) {
	image, err := s.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("image_type", "message"); err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "build upload", err)
	}
	part, err := mw.CreateFormFile("image", "image")
	if err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "build upload", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "build upload", err)
	}
	if err := mw.Close(); err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "build upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/open-apis/im/v1/images", &body)
	if err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "build upload", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", notifications.TransportError(notifications.ChannelLark, "upload image", err)
	}
	defer resp.Body.Close()

	var data struct {
		ImageKey string `json:"image_key"`
	}
	if err := s.decode(resp, &data); err != nil {
		return "", err
	}
	if data.ImageKey == "" {
		return "", notifications.VendorError(notifications.ChannelLark, 0, "Failed to upload image")
	}
	s.logger.Debug("image uploaded", zap.String("image_key", data.ImageKey))
	return data.ImageKey, nil
}

// ListChats returns every chat the app has joined.
func (s *LarkService) ListChats(ctx context.Context) ([]notifications.ChatItem, error) {
	var chats []notifications.ChatItem
	pageToken := ""

	for page := 0; page < larkMaxChatPages; page++ {
		endpoint := s.baseURL + "/open-apis/im/v1/chats?page_size=100"
		if pageToken != "" {
			endpoint += "&page_token=" + url.QueryEscape(pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, notifications.TransportError(notifications.ChannelLark, "build request", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, notifications.TransportError(notifications.ChannelLark, "list chats", err)
		}

		var data struct {
			Items []struct {
				ChatID      string `json:"chat_id"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"items"`
			PageToken string `json:"page_token"`
			HasMore   bool   `json:"has_more"`
		}
		err = s.decode(resp, &data)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		for _, item := range data.Items {
			chats = append(chats, notifications.ChatItem{
				ChatID:      item.ChatID,
				Name:        item.Name,
				Description: item.Description,
			})
		}
		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}
	if chats == nil {
		chats = []notifications.ChatItem{}
	}
	return chats, nil
}

func (s *LarkService) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, notifications.TransportError(notifications.ChannelLark, "download image", err)
	}
	resp, err := s.plain.Do(req)
	if err != nil {
		return nil, notifications.TransportError(notifications.ChannelLark, "download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, notifications.VendorError(notifications.ChannelLark, resp.StatusCode, "download image: "+http.StatusText(resp.StatusCode))
	}
	image, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, notifications.TransportError(notifications.ChannelLark, "download image", err)
	}
	if len(image) > maxImageBytes {
		return nil, notifications.VendorError(notifications.ChannelLark, http.StatusRequestEntityTooLarge, "download image: image exceeds 10 MiB")
	}
	return image, nil
}

// larkEnvelope is the common shape of Lark open platform responses.
type larkEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (s *LarkService) decode(resp *http.Response, data any) error {
	var env larkEnvelope
	if err := decodeResponse(notifications.ChannelLark, resp, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return notifications.VendorError(notifications.ChannelLark, env.Code, env.Msg)
	}
	if data == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return notifications.TransportError(notifications.ChannelLark, "decode data", err)
	}
	return nil
}

// larkTokenSource fetches tenant access tokens for the app credentials.
type larkTokenSource struct {
	svc *LarkService
}

func (ts *larkTokenSource) Token() (*oauth2.Token, error) {
	s := ts.svc
	payload := map[string]string{
		"app_id":     s.config.AppID,
		"app_secret": s.config.AppSecret,
	}
	resp, err := postJSON(context.Background(), s.plain, notifications.ChannelLark, s.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := decodeResponse(notifications.ChannelLark, resp, &result); err != nil {
		return nil, err
	}
	if result.Code != 0 {
		return nil, notifications.VendorError(notifications.ChannelLark, result.Code, "get tenant access token: "+result.Msg)
	}

	s.logger.Debug("tenant access token refreshed", zap.Int("expire", result.Expire))
	return &oauth2.Token{
		AccessToken: result.TenantAccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(result.Expire) * time.Second),
	}, nil
}

// buildLarkCard renders params as a Lark interactive card.
func buildLarkCard(params notifications.MessageParams) notifications.RawMessage {
	card := notifications.RawMessage{
		"config": map[string]any{"wide_screen_mode": true},
	}

	if params.URL != "" {
		card["card_link"] = map[string]any{"url": params.URL}
	}

	if params.Title != "" {
		color := params.Color
		if color == "" {
			color = notifications.ColorBlue
		}
		card["header"] = map[string]any{
			"title":    map[string]any{"tag": "plain_text", "content": params.Title},
			"template": string(color),
		}
	}

	elements := []any{}

	if params.Image != "" {
		alt := params.Title
		if alt == "" {
			alt = "image"
		}
		elements = append(elements, map[string]any{
			"tag":     "img",
			"img_key": params.Image,
			"alt":     map[string]any{"tag": "plain_text", "content": alt},
		})
	}

	if params.Content != "" {
		elements = append(elements, map[string]any{
			"tag":     "markdown",
			"content": params.Content,
		})
	}

	if params.Note != "" {
		if params.Content != "" || params.URL != "" {
			elements = append(elements, map[string]any{"tag": "hr"})
		}
		elements = append(elements, map[string]any{
			"tag":      "note",
			"elements": []any{map[string]any{"tag": "plain_text", "content": params.Note}},
		})
	}

	card["elements"] = elements
	return card
}
