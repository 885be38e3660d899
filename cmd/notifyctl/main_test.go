package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	uri    string
	body   map[string]any
}

func fakeGateway(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var got []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, uri: r.URL.RequestURI()}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			json.Unmarshal(data, &rec.body)
		}
		got = append(got, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	srv, got := fakeGateway(t, 200, `{"messageId":"om_1","success":true}`)

	out, err := run(t, "", "--server", srv.URL, "send", "-c", "lark", "-t", "oc_1", "--title", "Deploy", "--color", "Green")
	require.NoError(t, err)
	assert.Contains(t, out, `"messageId": "om_1"`)

	require.Len(t, *got, 1)
	assert.Equal(t, "/api/messages", (*got)[0].uri)
	assert.Equal(t, map[string]any{
		"channel": "lark",
		"to":      "oc_1",
		"params":  map[string]any{"title": "Deploy", "color": "Green"},
	}, (*got)[0].body)
}

func TestSendCommand_RequiresTarget(t *testing.T) {
	_, err := run(t, "", "send", "-c", "lark")
	assert.ErrorContains(t, err, `"to"`)
}

func TestSendCommand_APIError(t *testing.T) {
	srv, _ := fakeGateway(t, 404, `{"error":"NOT_FOUND","message":"unknown channel: slack"}`)

	_, err := run(t, "", "--server", srv.URL, "send", "-c", "slack", "-t", "x")
	assert.EqualError(t, err, "API error 404 NOT_FOUND: unknown channel: slack")
}

func TestRawCommand_Stdin(t *testing.T) {
	srv, got := fakeGateway(t, 200, `{"success":true}`)

	_, err := run(t, `{"msgtype":"text","text":{"content":"hi"}}`, "--server", srv.URL, "raw", "-c", "wecom", "-t", "k")
	require.NoError(t, err)
	assert.Equal(t, "/api/messages/raw", (*got)[0].uri)
	assert.Equal(t, map[string]any{"msgtype": "text", "text": map[string]any{"content": "hi"}}, (*got)[0].body["message"])
}

func TestRawCommand_RejectsNonObject(t *testing.T) {
	_, err := run(t, `[1,2]`, "raw", "-c", "wecom", "-t", "k")
	assert.ErrorContains(t, err, "message must be a JSON object")
}

func TestAlertCommand_Native(t *testing.T) {
	srv, got := fakeGateway(t, 200, `{"success":true}`)

	_, err := run(t, `{"state":"ok","ruleName":"Disk OK"}`, "--server", srv.URL, "alert", "-c", "wecom", "-t", "k ey", "--native")
	require.NoError(t, err)
	assert.Equal(t, "/api/webhooks/grafana/native?channel=wecom&to=k+ey", (*got)[0].uri)
	assert.Equal(t, "Disk OK", (*got)[0].body["ruleName"])
}

func TestChatsCommand(t *testing.T) {
	srv, got := fakeGateway(t, 200, `[{"chatId":"oc_1","name":"ops"}]`)

	out, err := run(t, "", "--server", srv.URL, "chats")
	require.NoError(t, err)
	assert.Equal(t, "/api/chats?channel=lark", (*got)[0].uri)
	assert.Contains(t, out, "oc_1")
	assert.Contains(t, out, "ops")
}

func TestChannelsCommand(t *testing.T) {
	srv, _ := fakeGateway(t, 200, `[{"channel":"lark","capabilities":{"upload":true,"listChats":true}}]`)

	out, err := run(t, "", "--server", srv.URL, "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "lark")
	assert.Contains(t, out, "true")
}

func TestUploadCommand(t *testing.T) {
	srv, got := fakeGateway(t, 200, `{"imageKey":"img_v2_1"}`)

	out, err := run(t, "", "--server", srv.URL, "upload", "--url", "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "img_v2_1\n", out)
	assert.Equal(t, map[string]any{"channel": "lark", "url": "https://example.com/a.png"}, (*got)[0].body)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "notifyctl version dev")
}
