package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LocalBackend delivers messages in-process. It backs the memory store
// driver and tests. Messages published while no subscriber is attached
// are dropped, as are messages for a subscriber whose buffer is full.
type LocalBackend struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	closed bool
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{subs: map[string][]chan Message{}}
}

func (l *LocalBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("local channel is required")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return "", errors.New("local backend closed")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	msg := Message{ID: uuid.NewString(), Data: data, Attributes: attrs}
	for _, sub := range l.subs[channel] {
		select {
		case sub <- msg:
		default:
		}
	}
	return msg.ID, nil
}

// Subscribe blocks until ctx is done. Failed messages are not redelivered.
func (l *LocalBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("local channel is required")
	}
	sub := make(chan Message, 64)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("local backend closed")
	}
	l.subs[channel] = append(l.subs[channel], sub)
	l.mu.Unlock()

	defer l.unsubscribe(channel, sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-sub:
			_ = handler(ctx, msg)
		}
	}
}

// Subscribers reports how many subscribers are attached to channel.
func (l *LocalBackend) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[channel])
}

func (l *LocalBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *LocalBackend) unsubscribe(channel string, sub chan Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.subs[channel]
	for i, candidate := range subs {
		if candidate == sub {
			l.subs[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
