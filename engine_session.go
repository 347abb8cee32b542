package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/session"
)

// IssueSession persists a session for userID and returns its signed token.
func (e *Engine) IssueSession(ctx context.Context, userID, email string) (IssuedSession, error) {
	if !e.ready() {
		return IssuedSession{}, ErrEngineNotReady
	}
	issued, err := flows.RunIssueSession(ctx, userID, email, e.sessionFlowDeps())
	if err != nil {
		return IssuedSession{}, err
	}
	return IssuedSession(issued), nil
}

// ValidateSession resolves a session cookie value to a Principal. Every
// failure, including a Redis outage, is ErrUnauthenticated.
func (e *Engine) ValidateSession(ctx context.Context, cookieValue string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	v, err := flows.RunValidateSession(ctx, cookieValue, e.sessionFlowDeps())
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:    v.UserID,
		Email:     v.Email,
		SessionID: v.SessionID,
		ExpiresAt: v.ExpiresAt,
	}, nil
}

// Logout deletes the session named by cookieValue if it verifies. It never
// fails: the caller clears the cookie regardless.
func (e *Engine) Logout(ctx context.Context, cookieValue string) {
	if !e.ready() {
		return
	}
	flows.RunLogout(ctx, cookieValue, e.logoutFlowDeps())
}

// RevokeAllSessions deletes every session of userID and reports how many
// were removed.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	return flows.RunRevokeAllSessions(ctx, userID, e.logoutFlowDeps())
}

func (e *Engine) issueSession(ctx context.Context, userID, email string) (flows.IssuedSession, error) {
	return flows.RunIssueSession(ctx, userID, email, e.sessionFlowDeps())
}

func (e *Engine) sessionFlowDeps() flows.SessionDeps {
	return flows.SessionDeps{
		TTL:          e.config.Session.TTL,
		Revocation:   e.config.Session.Revocation,
		Now:          e.now,
		NewSessionID: internal.NewSessionID,
		SaveSession: func(ctx context.Context, s *session.Session, ttl time.Duration) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.sessions.Save(ctx, s, ttl)
		},
		GetSession: func(ctx context.Context, sessionID string) (*session.Session, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.sessions.Get(ctx, sessionID)
		},
		SignToken:   e.codec.Sign,
		VerifyToken: e.codec.Verify,
		Hooks:       e.hooks(),
		Metrics: flows.SessionMetrics{
			SessionCreated:  int(MetricSessionCreated),
			ValidateSuccess: int(MetricSessionValidateSuccess),
			ValidateFailure: int(MetricSessionValidateFailure),
		},
		Errors: flows.SessionErrors{
			EngineNotReady:  ErrEngineNotReady,
			Unauthenticated: ErrUnauthenticated,
		},
	}
}

func (e *Engine) logoutFlowDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		VerifyToken: e.codec.Verify,
		DeleteSession: func(ctx context.Context, sessionID string) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.sessions.Delete(ctx, sessionID)
		},
		DeleteAllForUser: func(ctx context.Context, userID string) (int, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.sessions.DeleteAllForUser(ctx, userID)
		},
		Hooks: e.hooks(),
		Metrics: flows.LogoutMetrics{
			Logout:    int(MetricLogout),
			LogoutAll: int(MetricLogoutAll),
		},
		Events: flows.LogoutEvents{
			Logout:    auditEventLogout,
			LogoutAll: auditEventLogoutAll,
		},
	}
}
