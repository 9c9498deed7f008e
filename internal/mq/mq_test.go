package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/messagestack/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestOpenWithoutDriver(t *testing.T) {
	m, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = Open(context.Background(), config.MQConfig{Driver: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Driver: config.MQDriverRabbitMQ})
	assert.Error(t, err)
}

func TestLocalBackendDeliversToSubscribers(t *testing.T) {
	backend := NewLocalBackend()
	m := New(backend)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.Subscribe(ctx, "consent.revoked", func(_ context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()
	require.Eventually(t, func() bool { return backend.Subscribers("consent.revoked") == 1 }, time.Second, 5*time.Millisecond)

	id, err := m.Publish(ctx, "consent.revoked", []byte(`{"user_id":"u1"}`), map[string]string{"k": "v"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, id, msg.ID)
		assert.JSONEq(t, `{"user_id":"u1"}`, string(msg.Data))
		assert.Equal(t, "v", msg.Attributes["k"])
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.Zero(t, backend.Subscribers("consent.revoked"))
	require.NoError(t, m.Close())
}

func TestLocalBackendRejectsAfterClose(t *testing.T) {
	backend := NewLocalBackend()
	require.NoError(t, backend.Close())

	_, err := backend.Publish(context.Background(), "x", nil, nil)
	assert.Error(t, err)
	assert.Error(t, backend.Subscribe(context.Background(), "x", func(context.Context, Message) error { return nil }))

	_, err = NewLocalBackend().Publish(context.Background(), " ", nil, nil)
	assert.Error(t, err)
}
