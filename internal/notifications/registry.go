package notifications

import (
	"fmt"
	"sort"
)

// Registry maps each channel to exactly one backend. It is built once at
// start-up and never modified afterwards, so it is safe for concurrent use.
type Registry struct {
	services map[Channel]NotifyService
	channels []Channel
}

// NewRegistry indexes services by channel. It fails when a service reports
// an empty channel or when two services claim the same channel.
func NewRegistry(services ...NotifyService) (*Registry, error) {
	r := &Registry{services: make(map[Channel]NotifyService, len(services))}
	for _, svc := range services {
		if svc == nil {
			return nil, fmt.Errorf("nil notify service")
		}
		ch := svc.Channel()
		if ch == "" {
			return nil, fmt.Errorf("notify service %T has an empty channel", svc)
		}
		if _, exists := r.services[ch]; exists {
			return nil, fmt.Errorf("duplicate notify service for channel %q", ch)
		}
		r.services[ch] = svc
		r.channels = append(r.channels, ch)
	}
	sort.Slice(r.channels, func(i, j int) bool { return r.channels[i] < r.channels[j] })
	return r, nil
}

// Get returns the backend for channel, or a NotFoundError.
func (r *Registry) Get(channel Channel) (NotifyService, error) {
	svc, ok := r.services[channel]
	if !ok {
		return nil, &NotFoundError{Channel: channel}
	}
	return svc, nil
}

// Channels lists the registered channels in sorted order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}
