package notifications

import (
	"strings"
	"time"
)

// Channel identifies the chat backend that handles a request.
type Channel string

const (
	ChannelLark     Channel = "lark"
	ChannelWecom    Channel = "wecom"
	ChannelTelegram Channel = "telegram"
)

// Color selects the accent of a rendered message.
type Color string

const (
	ColorBlue   Color = "Blue"
	ColorGreen  Color = "Green"
	ColorOrange Color = "Orange"
	ColorGrey   Color = "Grey"
	ColorRed    Color = "Red"
	ColorPurple Color = "Purple"
)

// Colors lists every accepted Color in display order.
var Colors = []Color{ColorBlue, ColorGreen, ColorOrange, ColorGrey, ColorRed, ColorPurple}

// Valid reports whether c is one of the enumerated colors.
func (c Color) Valid() bool {
	for _, known := range Colors {
		if c == known {
			return true
		}
	}
	return false
}

// ColorEmoji maps a color to the glyph used by text-only backends.
var ColorEmoji = map[Color]string{
	ColorBlue:   "ℹ️",
	ColorGreen:  "✅",
	ColorOrange: "⚠️",
	ColorGrey:   "⏸️",
	ColorRed:    "❌",
	ColorPurple: "🔮",
}

// MessageParams is the canonical, backend-neutral message. An empty string
// means the field is not present.
type MessageParams struct {
	Title   string `json:"title,omitempty"`
	Color   Color  `json:"color,omitempty"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image,omitempty"`
	URL     string `json:"url,omitempty"`
	Note    string `json:"note,omitempty"`
}

// IsBare reports whether the message has nothing to show besides a title.
func (p MessageParams) IsBare() bool {
	return p.Content == "" && p.URL == "" && p.Note == "" && p.Image == ""
}

// WithFallbackNote returns p with a timestamp note when p would otherwise
// render without a body.
func (p MessageParams) WithFallbackNote(now time.Time) MessageParams {
	if p.IsBare() {
		p.Note = FormatTimestamp(now)
	}
	return p
}

// FormatTimestamp renders the fallback note used when a message has no body.
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	MessageID string `json:"messageId,omitempty"`
	Success   bool   `json:"success"`
}

// ChatItem is a destination reachable by a backend's credentials.
type ChatItem struct {
	ChatID      string `json:"chatId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RawMessage is a vendor-native payload sent without transformation.
type RawMessage map[string]any

// EvalMatch is one metric sample attached to an alert.
type EvalMatch struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

// AlertPayload is a monitoring alert as posted by Grafana's legacy webhook.
type AlertPayload struct {
	State       string      `json:"state"`
	RuleName    string      `json:"ruleName"`
	RuleURL     string      `json:"ruleUrl,omitempty"`
	Message     string      `json:"message,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	EvalMatches []EvalMatch `json:"evalMatches,omitempty"`
}

// AlertFormat selects how an alert is rendered for its backend.
type AlertFormat string

const (
	// AlertFormatCanonical converts the alert to MessageParams and lets the
	// backend build its message.
	AlertFormatCanonical AlertFormat = "canonical"
	// AlertFormatNative renders the alert straight into the backend's
	// native payload.
	AlertFormatNative AlertFormat = "native"
)

// ParseAlertFormat maps a user supplied format name, defaulting to canonical.
func ParseAlertFormat(s string) (AlertFormat, bool) {
	switch AlertFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlertFormatCanonical:
		return AlertFormatCanonical, true
	case AlertFormatNative:
		return AlertFormatNative, true
	default:
		return "", false
	}
}
