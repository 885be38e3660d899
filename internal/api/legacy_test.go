package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

func TestLegacyListChats(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/lark/chats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{"chat_id":"oc_1","name":"ops","description":"on-call"}]`, rr.Body.String())
}

func TestLegacySendMessage(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, "POST", "/api/lark/message/send", `{"receive_id":"oc_9","params":{"title":"hi","color":"Red"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"message_id": "om_1"}, body)
	assert.Equal(t, []string{"oc_9"}, env.lark.to)
	assert.Equal(t, notifications.MessageParams{Title: "hi", Color: notifications.ColorRed}, env.lark.params[0])
}

func TestLegacySendMessage_MissingReceiveID(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/lark/message/send", "/api/lark/message/send/raw"} {
		rr, body := env.do(t, "POST", path, `{"params":{"title":"hi"},"message":{}}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		assert.Equal(t, "receive_id: must be non-empty string", body["message"], path)
	}
	assert.Empty(t, env.lark.to)
}

func TestLegacySendRawMessage(t *testing.T) {
	env := newTestEnv(t)

	rr, body := env.do(t, "POST", "/api/lark/message/send/raw", `{"receive_id":"oc_9","message":{"elements":[]}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"message_id": "om_1"}, body)
	assert.Equal(t, notifications.RawMessage{"elements": []any{}}, env.lark.raw[0])
}

func TestLegacyGrafana(t *testing.T) {
	env := newTestEnv(t)

	rr, _ := env.do(t, "POST", "/api/lark/message/send/grafana?receive_id=oc_2", `{"state":"ok","ruleName":"Disk OK","message":"fine"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "✅ Disk OK", env.lark.params[0].Title)
	assert.Equal(t, "fine", env.lark.params[0].Note)

	rr, body := env.do(t, "POST", "/api/lark/message/send/grafana", `{"state":"ok","ruleName":"Disk OK"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "receive_id: must be non-empty string", body["message"])
}
