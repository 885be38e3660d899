package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/notifications"
)

// DefaultAlertTopic is the topic alerts are read from when none is set.
const DefaultAlertTopic = "notify.alerts"

// Record is one alert delivery request read from the broker.
type Record struct {
	Channel notifications.Channel
	To      string
	Format  notifications.AlertFormat
	Alert   notifications.AlertPayload
}

// DecodeRecord parses and validates a broker record of the form
// {"channel", "to", "format", "alert"}. "target" is accepted for "to".
func DecodeRecord(value []byte, known []notifications.Channel) (Record, error) {
	var raw struct {
		Channel string          `json:"channel"`
		To      string          `json:"to"`
		Target  string          `json:"target"`
		Format  string          `json:"format"`
		Alert   json.RawMessage `json:"alert"`
	}
	if err := json.Unmarshal(value, &raw); err != nil {
		return Record{}, notifications.NewValidationError("record", "must be a JSON object with string fields")
	}

	rec := Record{Channel: notifications.Channel(raw.Channel), To: raw.To}
	if rec.To == "" {
		rec.To = raw.Target
	}

	var problems []notifications.FieldError
	collect := func(err error) {
		var verr *notifications.ValidationError
		if errors.As(err, &verr) {
			problems = append(problems, verr.Problems...)
		}
	}

	collect(notifications.ValidateTarget(rec.Channel, rec.To, known))

	format, ok := notifications.ParseAlertFormat(raw.Format)
	if !ok {
		problems = append(problems, notifications.FieldError{Field: "format", Message: "must be one of canonical, native"})
	}
	rec.Format = format

	var alertObj any
	if len(raw.Alert) > 0 {
		if err := json.Unmarshal(raw.Alert, &alertObj); err != nil {
			alertObj = nil
		}
	}
	alert, err := notifications.DecodeAlertObject(alertObj, "alert.")
	collect(err)
	rec.Alert = alert

	if len(problems) > 0 {
		return rec, &notifications.ValidationError{Problems: problems}
	}
	return rec, nil
}

// Consumer subscribes to the alert topic and dispatches every record.
// Failed records are logged and skipped.
type Consumer struct {
	subscriber Subscriber
	dispatcher *notifications.Dispatcher
	topic      string
	logger     *zap.Logger
}

// NewConsumer creates a new Consumer.
func NewConsumer(subscriber Subscriber, dispatcher *notifications.Dispatcher, topic string, logger *zap.Logger) *Consumer {
	if topic == "" {
		topic = DefaultAlertTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		subscriber: subscriber,
		dispatcher: dispatcher,
		topic:      topic,
		logger:     logger.Named("ingest"),
	}
}

// Start subscribes to the alert topic. It returns immediately; records are
// handled on the subscriber's goroutines.
func (c *Consumer) Start() error {
	id, err := c.subscriber.Subscribe(c.topic, c.handle)
	if err != nil {
		return err
	}
	c.logger.Info("subscribed", zap.String("topic", c.topic), zap.String("subscription", id))
	return nil
}

// Stop closes the underlying subscriber.
func (c *Consumer) Stop() error {
	return c.subscriber.Close()
}

func (c *Consumer) handle(ctx context.Context, value []byte) {
	rec, err := DecodeRecord(value, c.dispatcher.Registry().Channels())
	if err != nil {
		c.logger.Warn("invalid record skipped", zap.String("topic", c.topic), zap.Error(err))
		return
	}

	result, err := c.dispatcher.IngestAlert(ctx, rec.Channel, rec.To, rec.Alert, rec.Format)
	if err != nil {
		c.logger.Error("alert dispatch failed",
			zap.String("channel", string(rec.Channel)),
			zap.String("rule", rec.Alert.RuleName),
			zap.Error(err),
		)
		return
	}
	c.logger.Info("alert dispatched",
		zap.String("channel", string(rec.Channel)),
		zap.String("rule", rec.Alert.RuleName),
		zap.String("message_id", result.MessageID),
	)
}
