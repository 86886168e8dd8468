package tether

import "context"

// ChannelWatcher wraps an existing event channel as a Watcher.
// Useful for testing and for hosts that already receive change notifications.
type ChannelWatcher struct {
	ch <-chan Event
}

// NewChannelWatcher creates a ChannelWatcher that forwards events from the
// given channel.
func NewChannelWatcher(ch <-chan Event) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// Watch returns a channel that emits events from the wrapped channel.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
