package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/token"
)

// SessionMetrics carries metric IDs used by the session flows.
type SessionMetrics struct {
	SessionCreated  int
	ValidateSuccess int
	ValidateFailure int
}

// SessionErrors carries host-level sentinel errors used by the session flows.
type SessionErrors struct {
	EngineNotReady  error
	Unauthenticated error
}

// SessionDeps captures issuance and validation dependencies.
type SessionDeps struct {
	TTL        time.Duration
	Revocation bool
	Now        func() time.Time

	NewSessionID func() (string, error)
	SaveSession  func(context.Context, *session.Session, time.Duration) error
	GetSession   func(context.Context, string) (*session.Session, error)
	SignToken    func(token.Payload, time.Duration) (string, error)
	VerifyToken  func(string) (*token.Claims, error)

	Hooks
	Metrics SessionMetrics
	Errors  SessionErrors
}

// ValidatedSession is the identity recovered from a valid session token.
type ValidatedSession struct {
	UserID    string
	Email     string
	SessionID string
	ExpiresAt time.Time
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Hooks.normalize()
}

// RunIssueSession persists a session record and mints the matching token.
// The record is saved first so a token never exists without its record.
func RunIssueSession(ctx context.Context, userID, email string, deps SessionDeps) (IssuedSession, error) {
	normalizeSessionDeps(&deps)
	if deps.NewSessionID == nil || deps.SaveSession == nil || deps.SignToken == nil || deps.TTL <= 0 {
		return IssuedSession{}, deps.Errors.EngineNotReady
	}

	sid, err := deps.NewSessionID()
	if err != nil {
		return IssuedSession{}, err
	}

	now := deps.Now()
	expiresAt := now.Add(deps.TTL)
	sess := &session.Session{
		SessionID: sid,
		UserID:    userID,
		Email:     email,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := deps.SaveSession(ctx, sess, deps.TTL); err != nil {
		return IssuedSession{}, err
	}

	tok, err := deps.SignToken(token.Payload{UserID: userID, Email: email, SessionID: sid}, deps.TTL)
	if err != nil {
		return IssuedSession{}, err
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	return IssuedSession{SessionID: sid, Token: tok, ExpiresAt: expiresAt}, nil
}

// RunValidateSession verifies raw and, when revocation is enabled, confirms
// the embedded session still exists, is unexpired and belongs to the
// embedded user. Every failure is reported as Errors.Unauthenticated.
func RunValidateSession(ctx context.Context, raw string, deps SessionDeps) (*ValidatedSession, error) {
	normalizeSessionDeps(&deps)
	if deps.VerifyToken == nil || (deps.Revocation && deps.GetSession == nil) {
		return nil, deps.Errors.EngineNotReady
	}

	fail := func() (*ValidatedSession, error) {
		deps.MetricInc(deps.Metrics.ValidateFailure)
		return nil, deps.Errors.Unauthenticated
	}

	claims, err := deps.VerifyToken(raw)
	if err != nil {
		return fail()
	}

	out := &ValidatedSession{
		UserID:    claims.UserID,
		Email:     claims.Email,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	if deps.Revocation {
		sess, err := deps.GetSession(ctx, claims.SessionID)
		if err != nil {
			if !errors.Is(err, session.ErrSessionNotFound) {
				deps.Warn("goIdentity: session lookup failed", "error", err)
			}
			return fail()
		}
		if sess.UserID != claims.UserID || sess.Expired(deps.Now()) {
			return fail()
		}
		if recordExpiry := time.Unix(sess.ExpiresAt, 0); recordExpiry.Before(out.ExpiresAt) {
			out.ExpiresAt = recordExpiry
		}
	}

	deps.MetricInc(deps.Metrics.ValidateSuccess)
	return out, nil
}
