package notifications

import (
	"strconv"
	"strings"
	"time"
)

// Alert states reported by Grafana.
const (
	AlertStateAlerting = "alerting"
	AlertStateOK       = "ok"
)

// AlertView is the presentation of an alert shared by every rendering path.
type AlertView struct {
	State    string
	RuleName string
	Title    string
	Color    Color
	// Glyph marks the state in text-only layouts.
	Glyph   string
	RuleURL string
	// Image is an image key or URL, depending on the backend.
	Image   string
	Matches []string
	Message string
	// Timestamp is set only when the alert has neither matches nor message.
	Timestamp string
}

// PresentAlert applies the alert presentation policy. It never fails.
func PresentAlert(alert AlertPayload, now time.Time) AlertView {
	view := AlertView{
		State:    alert.State,
		RuleName: alert.RuleName,
		Title:    alert.RuleName,
		RuleURL:  alert.RuleURL,
		Image:    alert.ImageURL,
		Message:  alert.Message,
	}

	switch alert.State {
	case AlertStateAlerting:
		view.Color = ColorOrange
		view.Glyph = "⚠️"
	case AlertStateOK:
		view.Color = ColorGreen
		view.Glyph = "✅"
		if !strings.HasPrefix(alert.RuleName, "✅") {
			view.Title = "✅ " + alert.RuleName
		}
	default:
		view.Color = ColorGrey
		view.Glyph = "📢"
	}

	for _, m := range alert.EvalMatches {
		view.Matches = append(view.Matches, m.Metric+": "+FormatValue(m.Value))
	}

	if len(view.Matches) == 0 && view.Message == "" {
		view.Timestamp = FormatTimestamp(now)
	}
	return view
}

// MatchBlock joins the eval match lines.
func (v AlertView) MatchBlock() string {
	return strings.Join(v.Matches, "\n")
}

// Note is the alert message, or the fallback timestamp.
func (v AlertView) Note() string {
	if v.Message != "" {
		return v.Message
	}
	return v.Timestamp
}

// Params converts the view into canonical message params.
func (v AlertView) Params() MessageParams {
	return MessageParams{
		Title:   v.Title,
		Color:   v.Color,
		Content: v.MatchBlock(),
		Image:   v.Image,
		URL:     v.RuleURL,
		Note:    v.Note(),
	}
}

// FormatValue renders a metric value in its shortest decimal form.
func FormatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
