package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements goIdentity.CredentialStore on PostgreSQL.
type Store struct {
	db     *sqlx.DB
	sealer *Sealer
	now    func() time.Time
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string, sealer *Sealer) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db error: %w", err)
	}
	return New(db, sealer), nil
}

// New wraps an existing handle. A nil sealer means provider tokens are
// dropped instead of stored.
func New(db *sqlx.DB, sealer *Sealer) *Store {
	return &Store{db: db, sealer: sealer, now: time.Now}
}

// WithClock replaces time.Now for CreatedAt and UpdatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// DB exposes the underlying handle, for migrations.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r userRow) user() goIdentity.User {
	return goIdentity.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type linkRow struct {
	Provider          string       `db:"provider"`
	ProviderAccountID string       `db:"provider_account_id"`
	UserID            string       `db:"user_id"`
	AccessToken       string       `db:"access_token"`
	RefreshToken      string       `db:"refresh_token"`
	Expiry            sql.NullTime `db:"expiry"`
	CreatedAt         time.Time    `db:"created_at"`
}

func (s *Store) CreateUser(ctx context.Context, nu goIdentity.NewUser) (goIdentity.User, error) {
	return s.insertUser(ctx, s.db, nu)
}

func (s *Store) insertUser(ctx context.Context, ex sqlx.ExecerContext, nu goIdentity.NewUser) (goIdentity.User, error) {
	now := s.now().UTC()
	u := goIdentity.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(nu.Email),
		Name:         nu.Name,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query :=
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `

	if _, err := ex.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt); err != nil {
		return goIdentity.User{}, classify(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (goIdentity.User, error) {
	query :=
		`SELECT id, email, name, password_hash, created_at, updated_at FROM users
		 WHERE email = $1
		 `

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, strings.ToLower(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.User{}, goIdentity.ErrUserNotFound
		}
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return row.user(), nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (goIdentity.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return goIdentity.User{}, goIdentity.ErrUserNotFound
	}

	query :=
		`SELECT id, email, name, password_hash, created_at, updated_at FROM users
		 WHERE id = $1
		 `

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.User{}, goIdentity.ErrUserNotFound
		}
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return row.user(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return goIdentity.ErrUserNotFound
	}

	query :=
		`UPDATE users SET password_hash = $2, updated_at = $3
		 WHERE id = $1
		 `

	res, err := s.db.ExecContext(ctx, query, userID, passwordHash, s.now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return goIdentity.ErrUserNotFound
	}
	return nil
}

func (s *Store) FindUserByLink(ctx context.Context, provider, providerAccountID string) (goIdentity.User, error) {
	query :=
		`SELECT u.id, u.email, u.name, u.password_hash, u.created_at, u.updated_at
		 FROM linked_accounts l JOIN users u ON u.id = l.user_id
		 WHERE l.provider = $1 AND l.provider_account_id = $2
		 `

	var row userRow
	if err := s.db.GetContext(ctx, &row, query, provider, providerAccountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goIdentity.User{}, goIdentity.ErrLinkNotFound
		}
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return row.user(), nil
}

// LinkAccount binds link to an existing user. Re-linking the same provider
// identity to the same user replaces the stored tokens; moving it to another
// user fails with ErrLinkConflict.
func (s *Store) LinkAccount(ctx context.Context, link goIdentity.LinkedAccount) error {
	if _, err := uuid.Parse(link.UserID); err != nil {
		return goIdentity.ErrUserNotFound
	}
	return s.upsertLink(ctx, s.db, link)
}

func (s *Store) upsertLink(ctx context.Context, ex sqlx.ExecerContext, link goIdentity.LinkedAccount) error {
	access, refresh, err := s.sealTokens(link)
	if err != nil {
		return err
	}
	created := link.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	var expiry sql.NullTime
	if !link.Expiry.IsZero() {
		expiry = sql.NullTime{Time: link.Expiry.UTC(), Valid: true}
	}

	query :=
		`INSERT INTO linked_accounts (provider, provider_account_id, user_id, access_token, refresh_token, expiry, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider, provider_account_id)
		 DO UPDATE SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token, expiry = EXCLUDED.expiry
		 WHERE linked_accounts.user_id = EXCLUDED.user_id
		 `

	res, err := ex.ExecContext(ctx, query,
		link.Provider, link.ProviderAccountID, link.UserID, access, refresh, expiry, created)
	if err != nil {
		return classify(err)
	}
	// The update is skipped when the row belongs to another user.
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return goIdentity.ErrLinkConflict
	}
	return nil
}

// CreateUserWithLink inserts both rows in one transaction.
func (s *Store) CreateUserWithLink(ctx context.Context, nu goIdentity.NewUser, link goIdentity.LinkedAccount) (goIdentity.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	u, err := s.insertUser(ctx, tx, nu)
	if err != nil {
		return goIdentity.User{}, err
	}
	link.UserID = u.ID
	if err := s.upsertLink(ctx, tx, link); err != nil {
		return goIdentity.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return goIdentity.User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// Links returns the accounts linked to userID with their tokens opened.
func (s *Store) Links(ctx context.Context, userID string) ([]goIdentity.LinkedAccount, error) {
	query :=
		`SELECT provider, provider_account_id, user_id, access_token, refresh_token, expiry, created_at
		 FROM linked_accounts
		 WHERE user_id = $1
		 ORDER BY created_at
		 `

	var rows []linkRow
	if err := s.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	out := make([]goIdentity.LinkedAccount, 0, len(rows))
	for _, r := range rows {
		l := goIdentity.LinkedAccount{
			Provider:          r.Provider,
			ProviderAccountID: r.ProviderAccountID,
			UserID:            r.UserID,
			CreatedAt:         r.CreatedAt.UTC(),
		}
		if r.Expiry.Valid {
			l.Expiry = r.Expiry.Time.UTC()
		}
		if s.sealer != nil {
			var err error
			if l.AccessToken, err = s.sealer.Open(r.AccessToken, r.Provider, r.ProviderAccountID); err != nil {
				return nil, err
			}
			if l.RefreshToken, err = s.sealer.Open(r.RefreshToken, r.Provider, r.ProviderAccountID); err != nil {
				return nil, err
			}
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) sealTokens(link goIdentity.LinkedAccount) (string, string, error) {
	if s.sealer == nil {
		return "", "", nil
	}
	access, err := s.sealer.Seal(link.AccessToken, link.Provider, link.ProviderAccountID)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.sealer.Seal(link.RefreshToken, link.Provider, link.ProviderAccountID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return goIdentity.ErrEmailTaken
		case pgForeignKeyViolation:
			return goIdentity.ErrUserNotFound
		}
	}
	return fmt.Errorf("db error: %w", err)
}

var (
	_ goIdentity.CredentialStore = (*Store)(nil)
	_ goIdentity.Pinger          = (*Store)(nil)
)
