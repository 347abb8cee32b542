package flows

import (
	"context"

	"github.com/MrEthical07/goIdentity/token"
)

// LogoutMetrics carries metric IDs used by the logout flows.
type LogoutMetrics struct {
	Logout    int
	LogoutAll int
}

// LogoutEvents carries audit event names used by the logout flows.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	VerifyToken      func(string) (*token.Claims, error)
	DeleteSession    func(context.Context, string) error
	DeleteAllForUser func(context.Context, string) (int, error)

	Hooks
	Metrics LogoutMetrics
	Events  LogoutEvents
}

// LogoutResult reports what a logout did. It never carries an error: the
// transport clears the cookie whatever happened here.
type LogoutResult struct {
	UserID    string
	SessionID string
	Deleted   bool
}

// RunLogout deletes the session named by raw on a best-effort basis.
// Unverifiable tokens and store failures are logged, never returned.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) LogoutResult {
	deps.Hooks.normalize()
	deps.MetricInc(deps.Metrics.Logout)

	if raw == "" || deps.VerifyToken == nil || deps.DeleteSession == nil {
		return LogoutResult{}
	}
	claims, err := deps.VerifyToken(raw)
	if err != nil {
		return LogoutResult{}
	}

	res := LogoutResult{UserID: claims.UserID, SessionID: claims.SessionID}
	if err := deps.DeleteSession(ctx, claims.SessionID); err != nil {
		deps.Warn("goIdentity: logout session delete failed", "session_id", claims.SessionID, "error", err)
		deps.EmitAudit(ctx, deps.Events.Logout, false, claims.UserID, err, nil)
		return res
	}

	res.Deleted = true
	deps.EmitAudit(ctx, deps.Events.Logout, true, claims.UserID, nil, nil)
	return res
}

// RunRevokeAllSessions deletes every session of userID.
func RunRevokeAllSessions(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	deps.Hooks.normalize()
	n, err := deps.DeleteAllForUser(ctx, userID)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.LogoutAll, false, userID, err, nil)
		return 0, err
	}
	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"sessions": itoa(n)}
	})
	return n, nil
}
