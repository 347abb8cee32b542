package goIdentity

import (
	"context"
	"net/http"
	"time"
)

// User is a stored account. Email is unique and lower-cased. PasswordHash
// is empty for accounts created through OAuth only.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NewUser is the input to CredentialStore create methods. The store assigns
// the ID and timestamps.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// LinkedAccount binds a provider identity to a User. Stores are expected to
// seal AccessToken and RefreshToken at rest.
type LinkedAccount struct {
	Provider          string
	ProviderAccountID string
	UserID            string
	AccessToken       string
	RefreshToken      string
	Expiry            time.Time
	CreatedAt         time.Time
}

// CredentialStore is the single authoritative user and linked-account
// backend of a deployment.
//
// Lookups return ErrUserNotFound (or ErrLinkNotFound for FindUserByLink)
// when nothing matches. Create methods return ErrEmailTaken for a duplicate
// email and must be atomic: CreateUserWithLink creates both records or
// neither. A provider identity is bound to one user for good: linking it
// again to the same user refreshes its tokens, linking it to another user
// returns ErrLinkConflict. Any other error is treated as a backend failure.
type CredentialStore interface {
	CreateUser(ctx context.Context, user NewUser) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	FindUserByLink(ctx context.Context, provider, providerAccountID string) (User, error)
	LinkAccount(ctx context.Context, link LinkedAccount) error
	CreateUserWithLink(ctx context.Context, user NewUser, link LinkedAccount) (User, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ResetNotification is what the Notifier receives for a reset request.
type ResetNotification struct {
	UserID    string
	Email     string
	Name      string
	URL       string
	ExpiresAt time.Time
}

// Notifier delivers password-reset links. Calls happen on a background
// worker; returned errors are logged and never reach the requester.
type Notifier interface {
	SendPasswordReset(ctx context.Context, n ResetNotification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n ResetNotification) error

func (f NotifierFunc) SendPasswordReset(ctx context.Context, n ResetNotification) error {
	return f(ctx, n)
}

// Principal is the authenticated identity behind a request.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// IssuedSession is a freshly minted session and its signed cookie value.
type IssuedSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// LoginResult is returned by Login and Register.
type LoginResult struct {
	User    User
	Session IssuedSession
}

// RegisterRequest is the typed registration input.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// BeginResult starts an OAuth handshake: redirect the browser to AuthURL
// after setting Cookies. State is the nonce sent to the provider;
// StateCookie is its signed, expiring form stored in the browser.
type BeginResult struct {
	Provider    string
	AuthURL     string
	State       string
	StateCookie string
	Next        string
	Cookies     []*http.Cookie
}

// CallbackInput carries the provider callback query and the cookies set by
// BeginOAuth. CookieState is the state cookie value, i.e. StateCookie.
type CallbackInput struct {
	Code          string
	State         string
	ProviderError string
	CookieState   string
	CookieNext    string
}

// OAuthOutcome is the terminal result of an OAuth callback. Redirect is
// always set; FailureCode is empty on success. Cookies always clear the
// handshake cookies and, on success, set the session cookie.
type OAuthOutcome struct {
	Provider       string
	Phase          string
	Trace          []string
	FailureCode    string
	Redirect       string
	Session        *IssuedSession
	UserID         string
	AccountCreated bool
	AccountLinked  bool
	Cookies        []*http.Cookie
}

// Succeeded reports whether the callback resolved to a session.
func (o OAuthOutcome) Succeeded() bool {
	return o.FailureCode == "" && o.Session != nil
}
