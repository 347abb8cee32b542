package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
)

type linkKey struct {
	provider string
	subject  string
}

// Store keeps users and linked accounts in maps guarded by one RWMutex, so
// CreateUserWithLink is atomic.
type Store struct {
	mu      sync.RWMutex
	users   map[string]goIdentity.User
	byEmail map[string]string
	links   map[linkKey]goIdentity.LinkedAccount
	now     func() time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]goIdentity.User),
		byEmail: make(map[string]string),
		links:   make(map[linkKey]goIdentity.LinkedAccount),
		now:     time.Now,
	}
}

// WithClock replaces time.Now for CreatedAt and UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateUser(ctx context.Context, nu goIdentity.NewUser) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(nu)
}

func (s *Store) createLocked(nu goIdentity.NewUser) (goIdentity.User, error) {
	email := strings.ToLower(nu.Email)
	if _, taken := s.byEmail[email]; taken {
		return goIdentity.User{}, goIdentity.ErrEmailTaken
	}

	now := s.now().UTC()
	u := goIdentity.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         nu.Name,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return goIdentity.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now().UTC()
	s.users[userID] = u
	return nil
}

func (s *Store) FindUserByLink(ctx context.Context, provider, providerAccountID string) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.links[linkKey{provider, providerAccountID}]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrLinkNotFound
	}
	u, ok := s.users[link.UserID]
	if !ok {
		return goIdentity.User{}, goIdentity.ErrLinkNotFound
	}
	return u, nil
}

// LinkAccount binds link to an existing user. Re-linking the same provider
// identity to the same user replaces the stored tokens; moving it to another
// user fails with ErrLinkConflict.
func (s *Store) LinkAccount(ctx context.Context, link goIdentity.LinkedAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[link.UserID]; !ok {
		return goIdentity.ErrUserNotFound
	}
	if err := s.checkLinkLocked(link); err != nil {
		return err
	}
	s.putLinkLocked(link)
	return nil
}

func (s *Store) CreateUserWithLink(ctx context.Context, nu goIdentity.NewUser, link goIdentity.LinkedAccount) (goIdentity.User, error) {
	if err := ctx.Err(); err != nil {
		return goIdentity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// A new user can never own an existing link.
	if _, ok := s.links[linkKey{link.Provider, link.ProviderAccountID}]; ok {
		return goIdentity.User{}, goIdentity.ErrLinkConflict
	}
	u, err := s.createLocked(nu)
	if err != nil {
		return goIdentity.User{}, err
	}
	link.UserID = u.ID
	s.putLinkLocked(link)
	return u, nil
}

func (s *Store) checkLinkLocked(link goIdentity.LinkedAccount) error {
	if existing, ok := s.links[linkKey{link.Provider, link.ProviderAccountID}]; ok && existing.UserID != link.UserID {
		return goIdentity.ErrLinkConflict
	}
	return nil
}

func (s *Store) putLinkLocked(link goIdentity.LinkedAccount) {
	key := linkKey{link.Provider, link.ProviderAccountID}
	if existing, ok := s.links[key]; ok {
		link.CreatedAt = existing.CreatedAt
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now().UTC()
	}
	s.links[linkKey{link.Provider, link.ProviderAccountID}] = link
}

// Links returns the accounts linked to userID.
func (s *Store) Links(userID string) []goIdentity.LinkedAccount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []goIdentity.LinkedAccount
	for _, l := range s.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

var _ goIdentity.CredentialStore = (*Store)(nil)
