package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch without blocking the
// publisher. Events are dropped while ch is full; SSE handlers select on ch
// together with the request context. A nil bus never delivers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	if bus == nil {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
