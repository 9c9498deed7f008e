package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/messagestack/apiserver/internal/cryptoutil"
	"github.com/messagestack/apiserver/internal/storage"
	"github.com/messagestack/apiserver/internal/store/memory"
	"github.com/messagestack/apiserver/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishedMessage struct {
	Channel string
	Data    []byte
	Attrs   map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{Channel: channel, Data: data, Attrs: attrs})
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

func (p *fakePublisher) On(channel string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, m := range p.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (s *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	return nil
}

func (s *fakeObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.object(key)
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, types.AuditEntry) error {
	return errors.New("disk full")
}

func (failingAuditRepo) List(context.Context, types.AuditFilter) ([]types.AuditEntry, error) {
	return nil, nil
}

func (failingAuditRepo) DeleteBefore(context.Context, time.Time) (int, error) {
	return 0, nil
}

// fixture wires every service against the memory store with a shared
// clock and deterministic ids.
type fixture struct {
	store     *memory.Store
	clock     *testClock
	publisher *fakePublisher
	keyring   *cryptoutil.Keyring

	audit    *AuditLog
	identity *IdentityService
	ledger   *ConsentLedger
	pipeline *SurveyPipeline
	ai       *AIProcessor
	reports  *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	keyring, err := cryptoutil.NewKeyring("test-master-secret", "test-signing-secret")
	require.NoError(t, err)
	answers, err := keyring.AnswerCipher()
	require.NoError(t, err)
	aiData, err := keyring.AIDataCipher()
	require.NoError(t, err)
	digester := keyring.Digester()

	f := &fixture{
		store:     memory.New(),
		clock:     &testClock{now: baseTime},
		publisher: &fakePublisher{},
		keyring:   keyring,
	}
	var seq atomic.Int64
	idGen := func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }

	f.audit = NewAuditLog(f.store.Audit, nil).WithPublisher(f.publisher)
	f.audit.now, f.audit.idGen = f.clock.Now, idGen

	f.identity, err = NewIdentityService(f.store.Users, IdentityConfig{
		SigningKey: keyring.SigningKey(),
		BcryptCost: bcrypt.MinCost,
	}, f.audit, nil)
	require.NoError(t, err)
	f.identity.now, f.identity.idGen = f.clock.Now, idGen

	f.ledger = NewConsentLedger(f.store.Consents, f.store.AIRecords, digester, f.audit, nil).WithPublisher(f.publisher)
	f.ledger.now, f.ledger.idGen = f.clock.Now, idGen

	f.pipeline = NewSurveyPipeline(f.store.Responses, f.ledger, answers, digester, f.audit, nil)
	f.pipeline.now, f.pipeline.idGen = f.clock.Now, idGen

	f.ai = NewAIProcessor(f.store.AIRecords, f.ledger, aiData, digester, f.audit, nil).WithPublisher(f.publisher)
	f.ai.now, f.ai.idGen = f.clock.Now, idGen

	f.reports = NewReportService(f.ledger, f.audit, f.store.AIRecords, digester, nil)
	f.reports.now = f.clock.Now

	return f
}

func (f *fixture) grant(t *testing.T, userID string, retentionDays int, purposes []types.Purpose, dataTypes []types.DataType) string {
	t.Helper()
	id, err := f.ledger.Grant(context.Background(), GrantRequest{
		UserID:        userID,
		Purposes:      purposes,
		DataTypes:     dataTypes,
		RetentionDays: retentionDays,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	entries, err := f.store.Audit.List(context.Background(), types.AuditFilter{})
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
