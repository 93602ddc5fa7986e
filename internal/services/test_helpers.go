package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/pagebuilder-identity/internal/identifier"
	"github.com/BradenHooton/pagebuilder-identity/internal/models"
	"github.com/google/uuid"
)

// MockIdentityRepository implements IdentityRepository for testing
type MockIdentityRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.Identity, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.Identity, error)
	GetByMobileFunc    func(ctx context.Context, mobile string) (*models.Identity, error)
	GetBySubdomainFunc func(ctx context.Context, subdomain string) (*models.Identity, error)
	CreateFunc         func(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
}

func (m *MockIdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityRepository) GetByMobile(ctx context.Context, mobile string) (*models.Identity, error) {
	if m.GetByMobileFunc != nil {
		return m.GetByMobileFunc(ctx, mobile)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityRepository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Identity, error) {
	if m.GetBySubdomainFunc != nil {
		return m.GetBySubdomainFunc(ctx, subdomain)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, identity)
	}
	identity.ID = uuid.New().String()
	identity.CreatedAt = time.Now()
	identity.UpdatedAt = identity.CreatedAt
	return identity, nil
}

func (m *MockIdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// MockRateLimitCounter implements RateLimitCounter for testing
type MockRateLimitCounter struct {
	CompareAndIncrementFunc func(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error)
	DeleteStaleFunc         func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockRateLimitCounter) CompareAndIncrement(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error) {
	if m.CompareAndIncrementFunc != nil {
		return m.CompareAndIncrementFunc(ctx, key, ceiling, window)
	}
	return true, nil
}

func (m *MockRateLimitCounter) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, cutoff)
	}
	return 0, nil
}

// MemoryRateLimitCounter is a fixed-window counter guarded by a mutex
type MemoryRateLimitCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]memoryWindow
}

type memoryWindow struct {
	start time.Time
	count int
}

func NewMemoryRateLimitCounter(now func() time.Time) *MemoryRateLimitCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateLimitCounter{now: now, windows: make(map[string]memoryWindow)}
}

func (m *MemoryRateLimitCounter) CompareAndIncrement(ctx context.Context, key string, ceiling int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(window)) {
		w = memoryWindow{start: now}
	}
	if w.count >= ceiling {
		return false, nil
	}
	w.count++
	m.windows[key] = w
	return true, nil
}

func (m *MemoryRateLimitCounter) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, w := range m.windows {
		if !w.start.After(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Count returns the current window count for key
func (m *MemoryRateLimitCounter) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windows[key].count
}

// MemoryOTPRepository implements OTPRepository with the same atomic
// guarantees as the Postgres store
type MemoryOTPRepository struct {
	mu      sync.Mutex
	seq     int
	records map[string]*memoryOTP
	deletes int
}

type memoryOTP struct {
	record models.OTPRecord
	seq    int
}

func NewMemoryOTPRepository() *MemoryOTPRepository {
	return &MemoryOTPRepository{records: make(map[string]*memoryOTP)}
}

func (m *MemoryOTPRepository) Create(ctx context.Context, record *models.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	m.seq++
	m.records[record.ID] = &memoryOTP{record: *record, seq: m.seq}
	return nil
}

func (m *MemoryOTPRepository) GetLatest(ctx context.Context, identifier string, channel models.Channel) (*models.OTPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []*memoryOTP
	for _, r := range m.records {
		if r.record.Identifier == identifier && r.record.Channel == channel {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].record.CreatedAt.Equal(matches[j].record.CreatedAt) {
			return matches[i].record.CreatedAt.After(matches[j].record.CreatedAt)
		}
		return matches[i].seq > matches[j].seq
	})

	latest := matches[0].record
	return &latest, nil
}

func (m *MemoryOTPRepository) IncrementAttempts(ctx context.Context, id string, max int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[id]
	if !ok || r.record.Attempts >= max {
		return 0, models.ErrNotFound
	}
	r.record.Attempts++
	return r.record.Attempts, nil
}

func (m *MemoryOTPRepository) Delete(ctx context.Context, record *models.OTPRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed, ok := m.records[record.ID]
	if !ok {
		return false, nil
	}
	delete(m.records, record.ID)
	m.deletes++

	for id, r := range m.records {
		if r.record.Identifier != claimed.record.Identifier || r.record.Channel != claimed.record.Channel {
			continue
		}
		older := r.record.CreatedAt.Before(claimed.record.CreatedAt) ||
			(r.record.CreatedAt.Equal(claimed.record.CreatedAt) && r.seq < claimed.seq)
		if older {
			delete(m.records, id)
		}
	}
	return true, nil
}

func (m *MemoryOTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, r := range m.records {
		if !r.record.ExpiresAt.After(before) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored records
func (m *MemoryOTPRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Deletes returns how many records were claimed by Delete
func (m *MemoryOTPRepository) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// Get returns a copy of the record with id
func (m *MemoryOTPRepository) Get(id string) (models.OTPRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return models.OTPRecord{}, false
	}
	return r.record, true
}

// MockDispatcher implements Dispatcher and records every delivery
type MockDispatcher struct {
	DeliverFunc func(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) SendResult

	mu         sync.Mutex
	Deliveries []Delivery
}

type Delivery struct {
	Identifier identifier.Identifier
	Code       string
	Channel    models.Channel
}

func (m *MockDispatcher) Deliver(ctx context.Context, id identifier.Identifier, code string, channel models.Channel) SendResult {
	m.mu.Lock()
	m.Deliveries = append(m.Deliveries, Delivery{Identifier: id, Code: code, Channel: channel})
	m.mu.Unlock()

	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, id, code, channel)
	}
	return SendResult{OK: true, Provider: "mock"}
}

// LastCode returns the most recently delivered code
func (m *MockDispatcher) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Deliveries) == 0 {
		return ""
	}
	return m.Deliveries[len(m.Deliveries)-1].Code
}

// MockMessageSender implements MessageSender for testing
type MockMessageSender struct {
	SendFunc     func(ctx context.Context, msg OTPMessage) error
	ProviderName string

	mu   sync.Mutex
	Sent []OTPMessage
}

func (m *MockMessageSender) Send(ctx context.Context, msg OTPMessage) error {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return nil
}

func (m *MockMessageSender) Provider() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// NewTestIdentity builds an identity with an email and optional mobile
func NewTestIdentity(id, subdomain, email, mobile string) *models.Identity {
	now := time.Now()
	identity := &models.Identity{
		ID:        id,
		Subdomain: subdomain,
		Name:      "Test Owner",
		Roles:     []string{models.RoleUser},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if email != "" {
		identity.Email = &email
	}
	if mobile != "" {
		identity.Mobile = &mobile
	}
	return identity
}
