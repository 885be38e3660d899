package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// okHandler is a simple handler that returns 200 OK.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func TestRequestID_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesValidHeader(t *testing.T) {
	id := uuid.New().String()
	handler := RequestID()(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, id)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get(RequestIDHeader))

	req.Header.Set(RequestIDHeader, "<script>")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.NotEqual(t, "<script>", rr.Header().Get(RequestIDHeader))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := RequestID()(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/api/messages", fields["path"])
	assert.Equal(t, int64(http.StatusBadRequest), fields["status"])
	assert.Equal(t, "203.0.113.7", fields["remote_ip"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRecoverer(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := Recoverer(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "INTERNAL_ERROR", "message": "Internal server error"}, body)
	assert.Equal(t, 1, logs.Len())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	assert.Equal(t, "192.168.1.1", clientIP(req))

	req.RemoteAddr = "192.168.1.1"
	assert.Equal(t, "192.168.1.1", clientIP(req))
}
