package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/no-end-to-learning/notify/internal/httputil"
	"github.com/no-end-to-learning/notify/internal/notifications"
)

// The /api/lark routes predate multi-channel support. They always target
// the lark backend and speak snake_case.

func (h *Handlers) registerLegacyRoutes(r *mux.Router) {
	r.HandleFunc("/chats", h.LegacyListChats).Methods("GET")
	r.HandleFunc("/message/send", h.LegacySendMessage).Methods("POST")
	r.HandleFunc("/message/send/grafana", h.LegacyGrafana).Methods("POST")
	r.HandleFunc("/message/send/raw", h.LegacySendRawMessage).Methods("POST")
}

type legacyChat struct {
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type legacySendResult struct {
	MessageID string `json:"message_id,omitempty"`
}

// LegacyListChats handles GET /api/lark/chats
func (h *Handlers) LegacyListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.dispatcher.ListChats(r.Context(), notifications.ChannelLark)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	out := make([]legacyChat, len(chats))
	for i, c := range chats {
		out[i] = legacyChat{ChatID: c.ChatID, Name: c.Name, Description: c.Description}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// LegacySendMessage handles POST /api/lark/message/send
func (h *Handlers) LegacySendMessage(w http.ResponseWriter, r *http.Request) {
	body, err := legacyBody(w, r)
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
	httputil.WriteJSON(w, http.StatusOK, legacySendResult{MessageID: result.MessageID})
}

// LegacySendRawMessage handles POST /api/lark/message/send/raw
func (h *Handlers) LegacySendRawMessage(w http.ResponseWriter, r *http.Request) {
	body, err := legacyBody(w, r)
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
	httputil.WriteJSON(w, http.StatusOK, legacySendResult{MessageID: result.MessageID})
}

// LegacyGrafana handles POST /api/lark/message/send/grafana?receive_id=
func (h *Handlers) LegacyGrafana(w http.ResponseWriter, r *http.Request) {
	to := r.URL.Query().Get("receive_id")
	if to == "" {
		httputil.WriteAppError(w, h.logger, notifications.NewValidationError("receive_id", "must be non-empty string"))
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

	result, err := h.dispatcher.IngestAlert(r.Context(), notifications.ChannelLark, to, alert, notifications.AlertFormatCanonical)
	if err != nil {
		httputil.WriteAppError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, legacySendResult{MessageID: result.MessageID})
}

// legacyBody reads a {receive_id, ...} body and rewrites it into the
// current {channel, to, ...} shape.
func legacyBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, notifications.NewValidationError("body", "must be a JSON object")
	}
	if id, _ := obj["receive_id"].(string); id == "" {
		return nil, notifications.NewValidationError("receive_id", "must be non-empty string")
	}
	obj["channel"] = string(notifications.ChannelLark)
	obj["to"] = obj["receive_id"]
	delete(obj, "receive_id")
	return json.Marshal(obj)
}
