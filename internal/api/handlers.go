// Package api exposes the notification dispatcher over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/httputil"
	"github.com/no-end-to-learning/notify/internal/notifications"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handlers provides HTTP handlers for the notification API.
type Handlers struct {
	dispatcher *notifications.Dispatcher
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers.
func NewHandlers(dispatcher *notifications.Dispatcher, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{dispatcher: dispatcher, logger: logger.Named("api")}
}

// RegisterRoutes wires the notification endpoints onto the provided router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/api/channels", h.ListChannels).Methods("GET")
	r.HandleFunc("/api/messages", h.SendMessage).Methods("POST")
	r.HandleFunc("/api/messages/raw", h.SendRawMessage).Methods("POST")
	r.HandleFunc("/api/chats", h.ListChats).Methods("GET")
	r.HandleFunc("/api/images", h.UploadImage).Methods("POST")
	r.HandleFunc("/api/webhooks/grafana", h.grafanaWebhook(notifications.AlertFormatCanonical)).Methods("POST")
	r.HandleFunc("/api/webhooks/grafana/native", h.grafanaWebhook(notifications.AlertFormatNative)).Methods("POST")

	h.registerLegacyRoutes(r.PathPrefix("/api/lark").Subrouter())
}

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// channelInfo describes a registered backend.
type channelInfo struct {
	Channel      notifications.Channel      `json:"channel"`
	Capabilities notifications.Capabilities `json:"capabilities"`
}

// ListChannels handles GET /api/channels
func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	reg := h.dispatcher.Registry()
	out := []channelInfo{}
	for _, ch := range reg.Channels() {
		svc, err := reg.Get(ch)
		if err != nil {
			continue
		}
		out = append(out, channelInfo{Channel: ch, Capabilities: svc.Capabilities()})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// SendMessage handles POST /api/messages
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	in, err := notifications.DecodeSendMessage(body, h.dispatcher.Registry().Channels())
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}

	result, err := h.dispatcher.SendMessage(r.Context(), in)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// SendRawMessage handles POST /api/messages/raw
func (h *Handlers) SendRawMessage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	in, err := notifications.DecodeSendRawMessage(body, h.dispatcher.Registry().Channels())
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}

	result, err := h.dispatcher.SendRawMessage(r.Context(), in)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// ListChats handles GET /api/chats?channel=
func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request) {
	channel := notifications.Channel(r.URL.Query().Get("channel"))

	chats, err := h.dispatcher.ListChats(r.Context(), channel)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, chats)
}

type uploadImageRequest struct {
	Channel notifications.Channel `json:"channel"`
	URL     string                `json:"url"`
}

// UploadImage handles POST /api/images
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	var req uploadImageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteAppError(w, h.logger, notifications.NewValidationError("body", "must be a JSON object"))
		return
	}
	key, err := h.dispatcher.UploadImage(r.Context(), req.Channel, req.URL)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"imageKey": key})
}

// grafanaWebhook handles POST /api/webhooks/grafana?channel=&to=
func (h *Handlers) grafanaWebhook(format notifications.AlertFormat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := notifications.Channel(q.Get("channel"))
		to := destination(q.Get("to"), q.Get("target"))

		if err := notifications.ValidateTarget(channel, to, h.dispatcher.Registry().Channels()); err != nil {
			httputil.WriteAppError(w, h.logger, err)
			return
		}

		body, err := readBody(w, r)
		if err != nil {
			httputil.WriteAppError(w, h.logger, err)
			return
		}
		alert, err := notifications.DecodeAlert(body)
		if err != nil {
			httputil.WriteAppError(w, h.logger, err)
			return
		}

		result, err := h.dispatcher.IngestAlert(r.Context(), channel, to, alert, format)
		if err != nil {
			httputil.WriteAppError(w, h.logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func destination(to, target string) string {
	if to != "" {
		return to
	}
	return target
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, notifications.NewValidationError("body", "could not be read: "+err.Error())
	}
	return body, nil
}
