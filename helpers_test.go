package goIdentity

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Correct-Horse-9"

func testSigningKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningKey = testSigningKey()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	cfg.Notify.Workers = 1
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type testEngine struct {
	*Engine
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	store *mockStore
}

// newTestEngine builds an engine on miniredis and an in-test credential
// store. configure may adjust the builder before Build.
func newTestEngine(t *testing.T, configure ...func(*Builder)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := newMockStore()

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(store)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, mr: mr, rdb: rdb, store: store}
}

// registerUser creates a password account and returns it.
func (te *testEngine) registerUser(t *testing.T, email string) User {
	t.Helper()

	res, err := te.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res.User
}

type mockStore struct {
	mu     sync.Mutex
	nextID int
	users  map[string]User
	links  map[string]LinkedAccount

	getErr    error
	updateErr error
	linkErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		users: map[string]User{},
		links: map[string]LinkedAccount{},
	}
}

func linkKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func (s *mockStore) create(u NewUser) (User, error) {
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return User{}, ErrEmailTaken
		}
	}
	s.nextID++
	now := time.Now().UTC()
	user := User{
		ID:           "u" + strconv.Itoa(s.nextID),
		Email:        email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *mockStore) CreateUser(_ context.Context, u NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(u)
}

func (s *mockStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return User{}, s.getErr
	}
	for _, u := range s.users {
		if u.Email == strings.ToLower(email) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *mockStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return User{}, s.getErr
	}
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *mockStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return nil
}

func (s *mockStore) FindUserByLink(_ context.Context, provider, subject string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[linkKey(provider, subject)]
	if !ok {
		return User{}, ErrLinkNotFound
	}
	return s.users[link.UserID], nil
}

func (s *mockStore) LinkAccount(_ context.Context, link LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return s.linkErr
	}
	if _, ok := s.users[link.UserID]; !ok {
		return ErrUserNotFound
	}
	if existing, ok := s.links[linkKey(link.Provider, link.ProviderAccountID)]; ok && existing.UserID != link.UserID {
		return ErrLinkConflict
	}
	s.links[linkKey(link.Provider, link.ProviderAccountID)] = link
	return nil
}

func (s *mockStore) CreateUserWithLink(_ context.Context, u NewUser, link LinkedAccount) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linkErr != nil {
		return User{}, s.linkErr
	}
	if _, ok := s.links[linkKey(link.Provider, link.ProviderAccountID)]; ok {
		return User{}, ErrLinkConflict
	}
	user, err := s.create(u)
	if err != nil {
		return User{}, err
	}
	link.UserID = user.ID
	s.links[linkKey(link.Provider, link.ProviderAccountID)] = link
	return user, nil
}

func (s *mockStore) user(id string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *mockStore) linkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

func (s *mockStore) setUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// captureSink collects audit events synchronously for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) byType(eventType string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, ev := range s.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// withAudit enables audit with sink and returns the builder option.
func withAudit(sink AuditSink) func(*Builder) {
	return func(b *Builder) {
		cfg := b.config
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 256
		cfg.Audit.DropIfFull = false
		b.WithConfig(cfg).WithAuditSink(sink)
	}
}
