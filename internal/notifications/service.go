package notifications

import (
	"context"
	"fmt"
)

// Capabilities advertises the optional operations a backend supports.
type Capabilities struct {
	Upload    bool `json:"upload"`
	ListChats bool `json:"listChats"`
}

// NotifyService is implemented by every chat backend.
type NotifyService interface {
	// Channel returns the identifier the backend is registered under.
	Channel() Channel

	// Capabilities reports which optional interfaces the backend serves.
	Capabilities() Capabilities

	// BuildMessage converts canonical params into the backend's native
	// payload. It performs no I/O.
	BuildMessage(params MessageParams) RawMessage

	// SendMessage builds the native payload for params and delivers it to
	// the destination to.
	SendMessage(ctx context.Context, to string, params MessageParams) (*SendResult, error)

	// SendRawMessage delivers a native payload unchanged.
	SendRawMessage(ctx context.Context, to string, message RawMessage) (*SendResult, error)
}

// ImageUploader is implemented by backends that host images themselves.
type ImageUploader interface {
	UploadImage(ctx context.Context, imageURL string) (string, error)
}

// ChatLister is implemented by backends that can enumerate destinations.
type ChatLister interface {
	ListChats(ctx context.Context) ([]ChatItem, error)
}

// AlertRenderer is implemented by backends with a dedicated alert layout.
type AlertRenderer interface {
	RenderAlert(view AlertView) RawMessage
}

// AsUploader returns the upload capability of svc, or a ValidationError
// when the backend does not advertise one.
func AsUploader(svc NotifyService) (ImageUploader, error) {
	if up, ok := svc.(ImageUploader); ok && svc.Capabilities().Upload {
		return up, nil
	}
	return nil, NewValidationError("channel", fmt.Sprintf("channel %s does not support image upload", svc.Channel()))
}

// AsChatLister returns the chat listing capability of svc, or a
// ValidationError when the backend does not advertise one.
func AsChatLister(svc NotifyService) (ChatLister, error) {
	if cl, ok := svc.(ChatLister); ok && svc.Capabilities().ListChats {
		return cl, nil
	}
	return nil, NewValidationError("channel", fmt.Sprintf("channel %s does not support listing chats", svc.Channel()))
}
