package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

// LocalPubSub is an in-process fan-out pub/sub implementation.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[int64]chan *LocalMessage // channel → subID → ch
	nextID  int64
	bufSize int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string]map[int64]chan *LocalMessage),
		bufSize: bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
// Slow subscribers with a full buffer miss the message rather than block
// the publisher.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, ch := range ps.subs[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a merged stream for the given channels and a cancel
// function that detaches the subscriber and closes the stream.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.bufSize)

	ps.mu.Lock()
	ps.nextID++
	id := ps.nextID
	for _, c := range channels {
		if ps.subs[c] == nil {
			ps.subs[c] = make(map[int64]chan *LocalMessage)
		}
		ps.subs[c][id] = ch
	}
	ps.mu.Unlock()

	cancel := func() {
		ps.mu.Lock()
		defer ps.mu.Unlock()
		for _, c := range channels {
			delete(ps.subs[c], id)
			if len(ps.subs[c]) == 0 {
				delete(ps.subs, c)
			}
		}
		close(ch)
	}

	return ch, cancel, nil
}
