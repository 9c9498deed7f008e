package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/messagestack/apiserver/config"
	"github.com/messagestack/apiserver/internal/mq"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreDriver: config.StoreDriverMemory,
		Auth: config.AuthConfig{
			JWTSecret:  "server-test-signing-secret",
			BcryptCost: bcrypt.MinCost,
		},
		Crypto:    config.CryptoConfig{MasterSecret: "server-test-master-secret"},
		Retention: config.RetentionConfig{ResponseDays: 30, AuditDays: 30},
	}
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Crypto.MasterSecret = ""
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_SECRET")

	cfg = memoryConfig()
	cfg.MQ.Driver = "carrier-pigeon"
	_, err = Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuildMemoryDriverUsesLocalEvents(t *testing.T) {
	deps, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	assert.True(t, deps.LocalEvents)
	assert.NotNil(t, deps.Events)
	assert.Nil(t, deps.Storage)

	ts := httptest.NewServer(NewWithDependencies(deps).Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRevocationWorkerDeletesExport(t *testing.T) {
	deps, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	objects := &memObjects{objects: map[string][]byte{}}
	deps.Reports.WithStorage(objects)

	ctx := context.Background()
	key, err := deps.Reports.Export(ctx, "u1")
	require.NoError(t, err)
	require.True(t, objects.has(key))

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- deps.RunRevocationWorker(workerCtx) }()

	event, err := json.Marshal(services.RevocationEvent{UserID: "u1", RevokedAt: time.Now()})
	require.NoError(t, err)
	// The local backend drops messages until the subscriber is attached.
	require.Eventually(t, func() bool {
		if _, err := deps.Events.Publish(ctx, services.ChannelConsentRevoked, event, nil); err != nil {
			return false
		}
		return !objects.has(key)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHandleRevocationIgnoresMalformedEvents(t *testing.T) {
	deps, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	logger := zap.NewNop()
	assert.NoError(t, deps.handleRevocation(context.Background(), logger, mq.Message{ID: "m1", Data: []byte("not json")}))
	assert.NoError(t, deps.handleRevocation(context.Background(), logger, mq.Message{ID: "m2", Data: []byte(`{}`)}))
	// Storage is disabled, so there is nothing to delete.
	assert.NoError(t, deps.handleRevocation(context.Background(), logger, mq.Message{ID: "m3", Data: []byte(`{"user_id":"u1"}`)}))
}

func TestSweepIsIdempotent(t *testing.T) {
	deps, err := Build(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	first, err := deps.Sweep(context.Background(), SweepOptions{})
	require.NoError(t, err)
	second, err := deps.Sweep(context.Background(), SweepOptions{ResponseDays: 1})
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, first)
	assert.Equal(t, SweepResult{}, second)
}
