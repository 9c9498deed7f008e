// Package memory provides mutex-guarded in-memory repositories. They back
// the "memory" store driver and the service tests. Every write holds the
// repository's lock exclusively and every read returns copies, so readers
// never observe a half-written record.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/types"
)

// Store bundles one repository per entity.
type Store struct {
	Users     *UserRepository
	Consents  *ConsentRepository
	Responses *ResponseRepository
	AIRecords *AIRecordRepository
	Audit     *AuditRepository
}

func New() *Store {
	return &Store{
		Users:     NewUserRepository(),
		Consents:  NewConsentRepository(),
		Responses: NewResponseRepository(),
		AIRecords: NewAIRecordRepository(),
		Audit:     NewAuditRepository(),
	}
}

type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]types.User
	byEmail map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byID: map[string]types.User{}, byEmail: map[string]string{}}
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return copyUser(user), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return copyUser(r.byID[id]), nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = normalizeEmail(user.Email)
	if _, exists := r.byEmail[user.Email]; exists {
		return types.User{}, store.ErrConflict
	}
	if _, exists := r.byID[user.ID]; exists {
		return types.User{}, store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	r.byID[user.ID] = copyUser(user)
	r.byEmail[user.Email] = user.ID
	return copyUser(user), nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastLoginAt = &at
	r.byID[id] = user
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = at
	r.byID[id] = user
	return nil
}

type ConsentRepository struct {
	mu     sync.RWMutex
	byUser map[string]types.ConsentRecord
}

func NewConsentRepository() *ConsentRepository {
	return &ConsentRepository{byUser: map[string]types.ConsentRecord{}}
}

func (r *ConsentRepository) GetByUser(_ context.Context, userID string) (types.ConsentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.byUser[userID]
	if !ok {
		return types.ConsentRecord{}, store.ErrNotFound
	}
	return copyConsent(record), nil
}

func (r *ConsentRepository) Replace(_ context.Context, record types.ConsentRecord) (types.ConsentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUser[record.UserID] = copyConsent(record)
	return copyConsent(record), nil
}

func (r *ConsentRepository) SetGranted(_ context.Context, userID string, granted bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.byUser[userID]
	if !ok {
		return store.ErrNotFound
	}
	record.Granted = granted
	record.UpdatedAt = at
	r.byUser[userID] = record
	return nil
}

type ResponseRepository struct {
	mu        sync.RWMutex
	responses []types.SurveyResponse
}

func NewResponseRepository() *ResponseRepository {
	return &ResponseRepository{}
}

func (r *ResponseRepository) Create(_ context.Context, response types.SurveyResponse) (types.SurveyResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.responses {
		if existing.ID == response.ID {
			return types.SurveyResponse{}, store.ErrConflict
		}
	}
	r.responses = append(r.responses, copyResponse(response))
	return copyResponse(response), nil
}

func (r *ResponseRepository) ListBySurvey(_ context.Context, surveyID string) ([]types.SurveyResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SurveyResponse, 0, len(r.responses))
	for _, response := range r.responses {
		if surveyID == "" || response.SurveyID == surveyID {
			out = append(out, copyResponse(response))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (r *ResponseRepository) DeleteExpired(_ context.Context, now time.Time, sweepDays int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.responses)
	r.responses = slices.DeleteFunc(r.responses, func(response types.SurveyResponse) bool {
		return response.ExpiresAt(sweepDays).Before(now)
	})
	return before - len(r.responses), nil
}

type AIRecordRepository struct {
	mu      sync.RWMutex
	records map[string]types.AnonymizedRecord
}

func NewAIRecordRepository() *AIRecordRepository {
	return &AIRecordRepository{records: map[string]types.AnonymizedRecord{}}
}

func (r *AIRecordRepository) Create(_ context.Context, record types.AnonymizedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ID]; exists {
		return store.ErrConflict
	}
	record.Payload = nil
	r.records[record.ID] = record
	return nil
}

func (r *AIRecordRepository) Get(_ context.Context, id string) (types.AnonymizedRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[id]
	if !ok {
		return types.AnonymizedRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (r *AIRecordRepository) CountByOwner(_ context.Context, ownerDigest string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, record := range r.records {
		if record.OwnerDigest == ownerDigest {
			total++
		}
	}
	return total, nil
}

func (r *AIRecordRepository) DeleteByOwner(_ context.Context, ownerDigest string) (int, error) {
	return r.deleteWhere(func(record types.AnonymizedRecord) bool {
		return record.OwnerDigest == ownerDigest
	}), nil
}

func (r *AIRecordRepository) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	return r.deleteWhere(func(record types.AnonymizedRecord) bool {
		return record.CreatedAt.Before(cutoff)
	}), nil
}

func (r *AIRecordRepository) deleteWhere(match func(types.AnonymizedRecord) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, record := range r.records {
		if match(record) {
			delete(r.records, id)
			deleted++
		}
	}
	return deleted
}

type AuditRepository struct {
	mu      sync.RWMutex
	entries []types.AuditEntry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(_ context.Context, entry types.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *AuditRepository) List(_ context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AuditEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if !filter.Since.IsZero() && entry.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *AuditRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(entry types.AuditEntry) bool {
		return entry.Timestamp.Before(cutoff)
	})
	return before - len(r.entries), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(user types.User) types.User {
	if user.LastLoginAt != nil {
		t := *user.LastLoginAt
		user.LastLoginAt = &t
	}
	return user
}

func copyConsent(record types.ConsentRecord) types.ConsentRecord {
	record.Purposes = slices.Clone(record.Purposes)
	record.DataTypes = slices.Clone(record.DataTypes)
	return record
}

func copyResponse(response types.SurveyResponse) types.SurveyResponse {
	response.Answers = slices.Clone(response.Answers)
	return response
}
