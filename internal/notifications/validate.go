package notifications

import (
	"bytes"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SendMessageInput is a validated request to deliver a canonical message.
type SendMessageInput struct {
	Channel Channel       `json:"channel"`
	To      string        `json:"to"`
	Params  MessageParams `json:"params"`
}

// SendRawMessageInput is a validated request to deliver a native payload.
type SendRawMessageInput struct {
	Channel Channel    `json:"channel"`
	To      string     `json:"to"`
	Message RawMessage `json:"message"`
}

// Validate checks the input against the set of known channels.
func (in SendMessageInput) Validate(known []Channel) error {
	var v validator
	v.channel("channel", in.Channel, known)
	v.target("to", in.To)
	v.params("params", in.Params)
	return v.err()
}

// Validate checks the input against the set of known channels.
func (in SendRawMessageInput) Validate(known []Channel) error {
	var v validator
	v.channel("channel", in.Channel, known)
	v.target("to", in.To)
	if in.Message == nil {
		v.add("message", "must be an object")
	}
	return v.err()
}

// DecodeSendMessage parses and validates a send-message body. The
// destination may be given as "to" or "target".
func DecodeSendMessage(body []byte, known []Channel) (SendMessageInput, error) {
	var v validator
	obj := v.object(body)
	if obj == nil {
		return SendMessageInput{}, v.err()
	}

	in := SendMessageInput{
		Channel: Channel(v.optionalString(obj, "channel", "channel")),
		To:      v.destination(obj),
	}
	in.Params = v.decodeParams(obj["params"], "params")

	v.channel("channel", in.Channel, known)
	v.target("to", in.To)
	v.params("params", in.Params)
	return in, v.err()
}

// DecodeSendRawMessage parses and validates a raw-message body.
func DecodeSendRawMessage(body []byte, known []Channel) (SendRawMessageInput, error) {
	var v validator
	obj := v.object(body)
	if obj == nil {
		return SendRawMessageInput{}, v.err()
	}

	in := SendRawMessageInput{
		Channel: Channel(v.optionalString(obj, "channel", "channel")),
		To:      v.destination(obj),
	}
	if msg, ok := obj["message"].(map[string]any); ok {
		in.Message = RawMessage(msg)
	} else {
		v.add("message", "must be an object")
	}

	v.channel("channel", in.Channel, known)
	v.target("to", in.To)
	return in, v.err()
}

// DecodeAlert parses and validates a Grafana alert body.
func DecodeAlert(body []byte) (AlertPayload, error) {
	var v validator
	obj := v.object(body)
	if obj == nil {
		return AlertPayload{}, v.err()
	}
	alert := v.decodeAlert(obj, "")
	return alert, v.err()
}

// DecodeAlertObject validates an alert that has already been unmarshalled
// into a generic JSON object. prefix is prepended to every field path.
func DecodeAlertObject(raw any, prefix string) (AlertPayload, error) {
	var v validator
	obj, ok := raw.(map[string]any)
	if !ok {
		v.add(strings.TrimSuffix(prefix, "."), "must be an object")
		return AlertPayload{}, v.err()
	}
	alert := v.decodeAlert(obj, prefix)
	return alert, v.err()
}

// ValidateTarget checks a channel and destination given outside a body,
// such as webhook query parameters.
func ValidateTarget(channel Channel, to string, known []Channel) error {
	var v validator
	v.channel("channel", channel, known)
	v.target("to", to)
	return v.err()
}

// ValidateImageURL checks a channel and the absolute URL of an image to
// upload.
func ValidateImageURL(channel Channel, imageURL string, known []Channel) error {
	var v validator
	v.channel("channel", channel, known)
	if !isAbsoluteURL(imageURL) {
		v.add("url", "must be a valid URL")
	}
	return v.err()
}

// ValidateChannel checks that a channel name was supplied.
func ValidateChannel(channel Channel, known []Channel) error {
	var v validator
	v.channel("channel", channel, known)
	return v.err()
}

type validator struct {
	problems []FieldError
}

func (v *validator) add(field, message string) {
	v.problems = append(v.problems, FieldError{Field: field, Message: message})
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

func (v *validator) object(body []byte) map[string]any {
	if len(bytes.TrimSpace(body)) == 0 {
		v.add("body", "must be a JSON object")
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		v.add("body", "must be a JSON object")
		return nil
	}
	return obj
}

// optionalString returns the string at key. Absent and null values yield
// the empty string; any other type is a problem.
func (v *validator) optionalString(obj map[string]any, key, path string) string {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		v.add(path, "must be a string")
		return ""
	}
	return s
}

func (v *validator) destination(obj map[string]any) string {
	if to := v.optionalString(obj, "to", "to"); to != "" {
		return to
	}
	return v.optionalString(obj, "target", "target")
}

func (v *validator) decodeParams(raw any, path string) MessageParams {
	if raw == nil {
		return MessageParams{}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		v.add(path, "must be an object")
		return MessageParams{}
	}
	return MessageParams{
		Title:   v.optionalString(obj, "title", path+".title"),
		Color:   Color(v.optionalString(obj, "color", path+".color")),
		Content: v.optionalString(obj, "content", path+".content"),
		Image:   v.optionalString(obj, "image", path+".image"),
		URL:     v.optionalString(obj, "url", path+".url"),
		Note:    v.optionalString(obj, "note", path+".note"),
	}
}

func (v *validator) decodeAlert(obj map[string]any, prefix string) AlertPayload {
	alert := AlertPayload{
		State:    v.optionalString(obj, "state", prefix+"state"),
		RuleName: v.optionalString(obj, "ruleName", prefix+"ruleName"),
		RuleURL:  v.optionalString(obj, "ruleUrl", prefix+"ruleUrl"),
		Message:  v.optionalString(obj, "message", prefix+"message"),
		ImageURL: v.optionalString(obj, "imageUrl", prefix+"imageUrl"),
	}
	if obj["state"] == nil {
		v.add(prefix+"state", "must be a string")
	}
	if alert.RuleName == "" {
		if _, isString := obj["ruleName"].(string); isString || obj["ruleName"] == nil {
			v.add(prefix+"ruleName", "must be non-empty string")
		}
	}

	raw, ok := obj["evalMatches"]
	if !ok || raw == nil {
		return alert
	}
	items, ok := raw.([]any)
	if !ok {
		v.add(prefix+"evalMatches", "must be an array")
		return alert
	}
	for i, item := range items {
		path := prefix + "evalMatches[" + strconv.Itoa(i) + "]"
		m, ok := item.(map[string]any)
		if !ok {
			v.add(path, "must be an object")
			continue
		}
		match := EvalMatch{Metric: v.optionalString(m, "metric", path+".metric")}
		value, ok := m["value"].(float64)
		if !ok {
			v.add(path+".value", "must be a number")
			continue
		}
		match.Value = value
		alert.EvalMatches = append(alert.EvalMatches, match)
	}
	return alert
}

func (v *validator) channel(path string, ch Channel, known []Channel) {
	if ch != "" {
		return
	}
	names := make([]string, len(known))
	for i, c := range known {
		names[i] = string(c)
	}
	sort.Strings(names)
	v.add(path, "must be one of "+strings.Join(names, ", "))
}

func (v *validator) target(path, to string) {
	if strings.TrimSpace(to) == "" {
		v.add(path, "must be non-empty string")
	}
}

func (v *validator) params(path string, p MessageParams) {
	if p.URL != "" && !isAbsoluteURL(p.URL) {
		v.add(path+".url", "must be a valid URL")
	}
	if p.Color != "" && !p.Color.Valid() {
		names := make([]string, len(Colors))
		for i, c := range Colors {
			names[i] = string(c)
		}
		v.add(path+".color", "must be one of "+strings.Join(names, ", "))
	}
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
