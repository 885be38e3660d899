package notifications

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher validates requests, resolves their backend through the
// registry and invokes it.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher over registry. A nil logger disables
// logging.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger.Named("dispatcher"),
		now:      time.Now,
	}
}

// Registry returns the registry the dispatcher resolves channels against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// SendMessage delivers a canonical message.
func (d *Dispatcher) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	if err := in.Validate(d.registry.Channels()); err != nil {
		return nil, err
	}
	svc, err := d.registry.Get(in.Channel)
	if err != nil {
		return nil, err
	}
	return svc.SendMessage(context.WithoutCancel(ctx), in.To, in.Params)
}

// SendRawMessage delivers a native payload without transformation.
func (d *Dispatcher) SendRawMessage(ctx context.Context, in SendRawMessageInput) (*SendResult, error) {
	if err := in.Validate(d.registry.Channels()); err != nil {
		return nil, err
	}
	svc, err := d.registry.Get(in.Channel)
	if err != nil {
		return nil, err
	}
	return svc.SendRawMessage(context.WithoutCancel(ctx), in.To, in.Message)
}

// ListChats enumerates the destinations reachable on channel.
func (d *Dispatcher) ListChats(ctx context.Context, channel Channel) ([]ChatItem, error) {
	if err := ValidateChannel(channel, d.registry.Channels()); err != nil {
		return nil, err
	}
	svc, err := d.registry.Get(channel)
	if err != nil {
		return nil, err
	}
	lister, err := AsChatLister(svc)
	if err != nil {
		return nil, err
	}
	return lister.ListChats(context.WithoutCancel(ctx))
}

// UploadImage hosts imageURL on channel and returns the backend's key.
func (d *Dispatcher) UploadImage(ctx context.Context, channel Channel, imageURL string) (string, error) {
	if err := ValidateImageURL(channel, imageURL, d.registry.Channels()); err != nil {
		return "", err
	}
	svc, err := d.registry.Get(channel)
	if err != nil {
		return "", err
	}
	uploader, err := AsUploader(svc)
	if err != nil {
		return "", err
	}
	return uploader.UploadImage(context.WithoutCancel(ctx), imageURL)
}

// IngestAlert presents a monitoring alert and delivers it to channel. The
// canonical format goes through the backend's BuildMessage; the native
// format uses the backend's alert renderer when it has one.
func (d *Dispatcher) IngestAlert(ctx context.Context, channel Channel, to string, alert AlertPayload, format AlertFormat) (*SendResult, error) {
	if err := ValidateTarget(channel, to, d.registry.Channels()); err != nil {
		return nil, err
	}
	svc, err := d.registry.Get(channel)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	view := PresentAlert(alert, d.now())
	if view.Image != "" {
		if uploader, err := AsUploader(svc); err == nil {
			key, err := uploader.UploadImage(ctx, view.Image)
			if err != nil {
				return nil, err
			}
			view.Image = key
		}
	}

	d.logger.Info("alert received",
		zap.String("channel", string(channel)),
		zap.String("rule", alert.RuleName),
		zap.String("state", alert.State),
		zap.String("format", string(format)),
	)

	if format == AlertFormatNative {
		if renderer, ok := svc.(AlertRenderer); ok {
			return svc.SendRawMessage(ctx, to, renderer.RenderAlert(view))
		}
	}
	return svc.SendMessage(ctx, to, view.Params())
}
