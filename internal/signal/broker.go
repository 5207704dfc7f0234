package signal

import "sync"

// subscriberQueueDepth bounds how many signals a slow subscriber can fall
// behind by before Dispatch starts dropping for it; subscribers only ever
// care about Start/Stop for one stream id, so this is generous headroom.
const subscriberQueueDepth = 32

// Broker is the process-local fan-out point for one signal connection: it
// remembers the publishes map (stream id -> multicast port) and holds a
// channel per subscribing receiver, exactly mirroring the relay's own
// bookkeeping so a receiver never needs its own TCP connection to learn a
// port.
type Broker struct {
	mu        sync.RWMutex
	publishes map[uint32]uint16
	channels  map[uint32]chan Signal
	nextIndex uint32
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		publishes: make(map[uint32]uint16),
		channels:  make(map[uint32]chan Signal),
	}
}

// Dispatch applies a decoded signal to the publishes map and fans it out
// to every subscriber. Subscribers that can't keep up have this signal
// dropped for them rather than blocking the reader that drives Dispatch.
func (b *Broker) Dispatch(sig Signal) {
	b.mu.Lock()
	switch sig.Tag {
	case Start:
		b.publishes[sig.ID] = sig.Port
	case Stop:
		delete(b.publishes, sig.ID)
	}

	subs := make([]chan Signal, 0, len(b.channels))
	for _, ch := range b.channels {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- sig:
		default:
		}
	}
}

// Publish returns the multicast port currently published for id, if any.
func (b *Broker) Publish(id uint32) (port uint16, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	port, ok = b.publishes[id]
	return
}

// Subscribe registers a new receiver channel and returns its index (used
// later to Unsubscribe) along with the channel itself.
func (b *Broker) Subscribe() (index uint32, ch <-chan Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.nextIndex
	b.nextIndex++

	c := make(chan Signal, subscriberQueueDepth)
	b.channels[idx] = c
	return idx, c
}

// Unsubscribe removes and closes the channel registered under index. Safe
// to call more than once.
func (b *Broker) Unsubscribe(index uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.channels[index]; ok {
		delete(b.channels, index)
		close(c)
	}
}

// Rendezvous resolves the multicast port published for id. If it is
// already known, found is true and the caller needs no further steps. If
// not, the caller is subscribed under one lock (so no concurrent Start for
// id can be missed between the publishes check and the subscribe) and
// must read from ch until a Start with the matching id arrives, then call
// Unsubscribe(index).
func (b *Broker) Rendezvous(id uint32) (port uint16, found bool, index uint32, ch <-chan Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if port, ok := b.publishes[id]; ok {
		return port, true, 0, nil
	}

	idx := b.nextIndex
	b.nextIndex++

	c := make(chan Signal, subscriberQueueDepth)
	b.channels[idx] = c
	return 0, false, idx, c
}
