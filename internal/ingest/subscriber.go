// Package ingest feeds monitoring alerts published on a message broker
// into the notification dispatcher.
package ingest

import "context"

// Handler processes one record value. It runs on the subscriber's
// goroutine; ctx is cancelled when the subscriber closes.
type Handler func(ctx context.Context, value []byte)

// Subscriber delivers the records of a topic to a handler.
type Subscriber interface {
	// Subscribe registers handler for every record on topic and returns a
	// subscription ID for logging.
	Subscribe(topic string, handler Handler) (string, error)

	// Close stops every subscription and releases broker connections.
	// After Close returns, Subscribe must not be called.
	Close() error
}
