package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is a test double for NotifyService. It records every call.
type fakeService struct {
	channel Channel
	caps    Capabilities

	sentParams []MessageParams
	sentRaw    []RawMessage
	sentTo     []string
	uploads    []string
	sendErr    error
	uploadKey  string
	chats      []ChatItem
}

func (f *fakeService) Channel() Channel           { return f.channel }
func (f *fakeService) Capabilities() Capabilities { return f.caps }

func (f *fakeService) BuildMessage(p MessageParams) RawMessage {
	return RawMessage{"title": p.Title, "content": p.Content, "note": p.Note, "image": p.Image}
}

func (f *fakeService) SendMessage(ctx context.Context, to string, p MessageParams) (*SendResult, error) {
	f.sentParams = append(f.sentParams, p)
	return f.SendRawMessage(ctx, to, f.BuildMessage(p))
}

func (f *fakeService) SendRawMessage(_ context.Context, to string, m RawMessage) (*SendResult, error) {
	f.sentTo = append(f.sentTo, to)
	f.sentRaw = append(f.sentRaw, m)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &SendResult{MessageID: "msg-1", Success: true}, nil
}

// fakeUploader adds upload, chat listing and native alert rendering.
type fakeUploader struct {
	fakeService
}

func (f *fakeUploader) UploadImage(_ context.Context, imageURL string) (string, error) {
	f.uploads = append(f.uploads, imageURL)
	return f.uploadKey, nil
}

func (f *fakeUploader) ListChats(context.Context) ([]ChatItem, error) {
	return f.chats, nil
}

func (f *fakeUploader) RenderAlert(v AlertView) RawMessage {
	return RawMessage{"native": v.Title, "image": v.Image}
}

func newTestDispatcher(t *testing.T, services ...NotifyService) *Dispatcher {
	t.Helper()
	reg, err := NewRegistry(services...)
	require.NoError(t, err)
	d := NewDispatcher(reg, nil)
	d.now = testNow
	return d
}

func TestDispatcher_SendMessage(t *testing.T) {
	wecom := &fakeService{channel: ChannelWecom}
	d := newTestDispatcher(t, wecom)

	res, err := d.SendMessage(context.Background(), SendMessageInput{
		Channel: ChannelWecom,
		To:      "key-1",
		Params:  MessageParams{Title: "hi"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"key-1"}, wecom.sentTo)
}

func TestDispatcher_UnknownChannelMakesNoCalls(t *testing.T) {
	lark := &fakeService{channel: ChannelLark}
	wecom := &fakeService{channel: ChannelWecom}
	d := newTestDispatcher(t, lark, wecom)

	_, err := d.SendMessage(context.Background(), SendMessageInput{Channel: "slack", To: "x"})
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Empty(t, lark.sentTo)
	assert.Empty(t, wecom.sentTo)
}

func TestDispatcher_ValidationBeforeResolution(t *testing.T) {
	d := newTestDispatcher(t, &fakeService{channel: ChannelLark})

	_, err := d.SendRawMessage(context.Background(), SendRawMessageInput{Channel: "slack"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "to: must be non-empty string, message: must be an object", err.Error())
}

func TestDispatcher_SendMessagePropagatesServiceError(t *testing.T) {
	svcErr := VendorError(ChannelWecom, 93000, "invalid webhook url")
	d := newTestDispatcher(t, &fakeService{channel: ChannelWecom, sendErr: svcErr})

	_, err := d.SendMessage(context.Background(), SendMessageInput{Channel: ChannelWecom, To: "k"})
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "wecom: 93000 - invalid webhook url", se.Error())
}

func TestDispatcher_ListChatsUnsupported(t *testing.T) {
	d := newTestDispatcher(t, &fakeService{channel: ChannelWecom})

	_, err := d.ListChats(context.Background(), ChannelWecom)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "channel: channel wecom does not support listing chats", err.Error())
}

func TestDispatcher_ListChatsRequiresAdvertisedCapability(t *testing.T) {
	// Implements ChatLister but does not advertise it.
	svc := &fakeUploader{fakeService{channel: ChannelLark, chats: []ChatItem{{ChatID: "oc_1"}}}}
	d := newTestDispatcher(t, svc)

	_, err := d.ListChats(context.Background(), ChannelLark)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	svc.caps.ListChats = true
	chats, err := d.ListChats(context.Background(), ChannelLark)
	require.NoError(t, err)
	assert.Equal(t, []ChatItem{{ChatID: "oc_1"}}, chats)
}

func TestDispatcher_UploadImage(t *testing.T) {
	svc := &fakeUploader{fakeService{channel: ChannelLark, caps: Capabilities{Upload: true}, uploadKey: "img_v2_1"}}
	d := newTestDispatcher(t, svc, &fakeService{channel: ChannelWecom})

	key, err := d.UploadImage(context.Background(), ChannelLark, "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "img_v2_1", key)

	_, err = d.UploadImage(context.Background(), ChannelWecom, "https://example.com/a.png")
	assert.EqualError(t, err, "channel: channel wecom does not support image upload")
}

func TestDispatcher_UploadImageRejectsBadURL(t *testing.T) {
	svc := &fakeUploader{fakeService{channel: ChannelLark, caps: Capabilities{Upload: true}, uploadKey: "img_v2_1"}}
	d := newTestDispatcher(t, svc)

	for _, raw := range []string{"", "not a url", "/render.png", "example.com/a.png"} {
		_, err := d.UploadImage(context.Background(), ChannelLark, raw)
		assert.Equal(t, []string{"url: must be a valid URL"}, problemsOf(t, err), raw)
	}

	_, err := d.UploadImage(context.Background(), "", "nope")
	assert.Equal(t, []string{"channel: must be one of lark", "url: must be a valid URL"}, problemsOf(t, err))
	assert.Empty(t, svc.uploads)
}

func TestDispatcher_IngestAlertCanonical(t *testing.T) {
	svc := &fakeUploader{fakeService{channel: ChannelLark, caps: Capabilities{Upload: true}, uploadKey: "img_v2_1"}}
	d := newTestDispatcher(t, svc)

	_, err := d.IngestAlert(context.Background(), ChannelLark, "oc_1", AlertPayload{
		State:       "alerting",
		RuleName:    "CPU high",
		ImageURL:    "https://grafana.example.com/render.png",
		EvalMatches: []EvalMatch{{Metric: "cpu", Value: 95}, {Metric: "mem", Value: 40}},
	}, AlertFormatCanonical)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://grafana.example.com/render.png"}, svc.uploads)
	require.Len(t, svc.sentParams, 1)
	assert.Equal(t, MessageParams{
		Title:   "CPU high",
		Color:   ColorOrange,
		Content: "cpu: 95\nmem: 40",
		Image:   "img_v2_1",
	}, svc.sentParams[0])
}

func TestDispatcher_IngestAlertWithoutUploadKeepsURL(t *testing.T) {
	svc := &fakeService{channel: ChannelWecom}
	d := newTestDispatcher(t, svc)

	_, err := d.IngestAlert(context.Background(), ChannelWecom, "k", AlertPayload{
		State:    "ok",
		RuleName: "Disk OK",
		ImageURL: "https://grafana.example.com/render.png",
	}, AlertFormatCanonical)
	require.NoError(t, err)
	require.Len(t, svc.sentParams, 1)
	assert.Equal(t, "https://grafana.example.com/render.png", svc.sentParams[0].Image)
	assert.Equal(t, "2024-03-01 12:30:00 UTC", svc.sentParams[0].Note)
}

func TestDispatcher_IngestAlertNative(t *testing.T) {
	svc := &fakeUploader{fakeService{channel: ChannelLark}}
	plain := &fakeService{channel: ChannelWecom}
	d := newTestDispatcher(t, svc, plain)

	alert := AlertPayload{State: "ok", RuleName: "Disk OK", Message: "- all clear"}

	_, err := d.IngestAlert(context.Background(), ChannelLark, "oc_1", alert, AlertFormatNative)
	require.NoError(t, err)
	assert.Empty(t, svc.sentParams)
	assert.Equal(t, []RawMessage{{"native": "✅ Disk OK", "image": ""}}, svc.sentRaw)

	// Without a renderer the canonical path is used.
	_, err = d.IngestAlert(context.Background(), ChannelWecom, "k", alert, AlertFormatNative)
	require.NoError(t, err)
	require.Len(t, plain.sentParams, 1)
	assert.Equal(t, "- all clear", plain.sentParams[0].Note)
}

func TestDispatcher_CallerCancellationDoesNotAbortSend(t *testing.T) {
	var seen context.Context
	svc := &ctxService{fakeService: fakeService{channel: ChannelWecom}, seen: &seen}
	d := newTestDispatcher(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.SendMessage(ctx, SendMessageInput{Channel: ChannelWecom, To: "k"})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.NoError(t, seen.Err())
}

type ctxService struct {
	fakeService
	seen *context.Context
}

func (c *ctxService) SendMessage(ctx context.Context, to string, p MessageParams) (*SendResult, error) {
	*c.seen = ctx
	return c.fakeService.SendMessage(ctx, to, p)
}
