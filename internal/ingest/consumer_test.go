package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/no-end-to-learning/notify/internal/notifications"
	"github.com/no-end-to-learning/notify/internal/notifications/channels"
)

// trackingSubscriber records subscriptions and lets tests publish records
// synchronously.
type trackingSubscriber struct {
	mu       sync.Mutex
	topics   []string
	handlers map[string]Handler
	closed   bool
}

func newTrackingSubscriber() *trackingSubscriber {
	return &trackingSubscriber{handlers: make(map[string]Handler)}
}

func (s *trackingSubscriber) Subscribe(topic string, handler Handler) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("subscriber is closed")
	}
	s.topics = append(s.topics, topic)
	s.handlers[topic] = handler
	return "sub-" + topic, nil
}

func (s *trackingSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *trackingSubscriber) publish(topic string, value string) {
	s.mu.Lock()
	h := s.handlers[topic]
	s.mu.Unlock()
	if h != nil {
		h(context.Background(), []byte(value))
	}
}

func newWecomDispatcher(t *testing.T) (*notifications.Dispatcher, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	t.Cleanup(server.Close)

	wecom, err := channels.NewWecomService(channels.WecomConfig{WebhookURL: server.URL}, nil)
	require.NoError(t, err)
	reg, err := notifications.NewRegistry(wecom)
	require.NoError(t, err)
	return notifications.NewDispatcher(reg, nil), &bodies
}

func TestConsumer_SubscribesAlertTopic(t *testing.T) {
	sub := newTrackingSubscriber()
	d, _ := newWecomDispatcher(t)

	consumer := NewConsumer(sub, d, "", nil)
	require.NoError(t, consumer.Start())
	assert.Equal(t, []string{DefaultAlertTopic}, sub.topics)

	require.NoError(t, consumer.Stop())
	assert.True(t, sub.closed)
}

func TestConsumer_DispatchesRecords(t *testing.T) {
	sub := newTrackingSubscriber()
	d, bodies := newWecomDispatcher(t)

	consumer := NewConsumer(sub, d, "alerts", nil)
	require.NoError(t, consumer.Start())

	sub.publish("alerts", `{"channel":"wecom","to":"k","alert":{"state":"ok","ruleName":"Disk OK","message":"- all clear"}}`)
	sub.publish("alerts", `{"channel":"wecom","target":"k","format":"native","alert":{"state":"ok","ruleName":"Disk OK","message":"- all clear"}}`)

	require.Len(t, *bodies, 2)
	canonical := (*bodies)[0]["markdown"].(map[string]any)["content"]
	native := (*bodies)[1]["markdown"].(map[string]any)["content"]
	assert.Equal(t, "### ✅ Disk OK\n\n> - all clear", canonical)
	assert.Contains(t, native, `<font color="comment">all clear</font>`)
}

func TestConsumer_SkipsBadRecords(t *testing.T) {
	sub := newTrackingSubscriber()
	d, bodies := newWecomDispatcher(t)
	core, logs := observer.New(zap.WarnLevel)

	consumer := NewConsumer(sub, d, "alerts", zap.New(core))
	require.NoError(t, consumer.Start())

	sub.publish("alerts", `not json`)
	sub.publish("alerts", `{"channel":"slack","to":"x","alert":{"state":"ok","ruleName":"r"}}`)
	sub.publish("alerts", `{"channel":"wecom","to":"k","alert":{"state":"ok","ruleName":"after"}}`)

	assert.Len(t, *bodies, 1)
	assert.Equal(t, 1, logs.FilterMessage("invalid record skipped").Len())
	assert.Equal(t, 1, logs.FilterMessage("alert dispatch failed").Len())
}

func TestDecodeRecord(t *testing.T) {
	known := []notifications.Channel{notifications.ChannelLark, notifications.ChannelWecom}

	rec, err := DecodeRecord([]byte(`{"channel":"lark","to":"oc_1","alert":{"state":"alerting","ruleName":"CPU high","evalMatches":[{"metric":"cpu","value":95}]}}`), known)
	require.NoError(t, err)
	assert.Equal(t, notifications.AlertFormatCanonical, rec.Format)
	assert.Equal(t, "CPU high", rec.Alert.RuleName)
	assert.Equal(t, []notifications.EvalMatch{{Metric: "cpu", Value: 95}}, rec.Alert.EvalMatches)
}

func TestDecodeRecord_ListsEveryProblem(t *testing.T) {
	known := []notifications.Channel{notifications.ChannelLark, notifications.ChannelWecom}

	_, err := DecodeRecord([]byte(`{"format":"fancy","alert":{"evalMatches":[{"value":"x"}]}}`), known)
	var verr *notifications.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t,
		"channel: must be one of lark, wecom, to: must be non-empty string, format: must be one of canonical, native, alert.state: must be a string, alert.ruleName: must be non-empty string, alert.evalMatches[0].value: must be a number",
		err.Error())

	_, err = DecodeRecord([]byte(`{"channel":"lark","to":"x"}`), known)
	assert.EqualError(t, err, "alert: must be an object")
}
