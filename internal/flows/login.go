package flows

import (
	"context"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	LoginRateLimited   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	NewValidationError  func(field, message string) error

	CheckLoginRate     func(context.Context, string, string) error
	IncrementLoginRate func(context.Context, string, string) error
	ResetLoginRate     func(context.Context, string) error
	IsRateLimited      func(error) bool

	GetUserByEmail     func(context.Context, string) (UserRecord, error)
	IsUserNotFound     func(error) bool
	UpdatePasswordHash func(context.Context, string, string) error

	VerifyPassword       func(string, string) (bool, error)
	DummyVerify          func(string)
	PasswordNeedsUpgrade func(string) bool
	HashPassword         func(string) (string, error)

	IssueSession func(context.Context, string, string) (IssuedSession, error)

	Hooks
	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// LoginResult is the flow-local login response.
type LoginResult struct {
	User    UserRecord
	Session IssuedSession
}

// RunLogin authenticates email and password and issues a session. Unknown
// email, missing password credential and wrong password are all reported as
// Errors.InvalidCredentials after the same amount of hashing work.
func RunLogin(ctx context.Context, rawEmail, password string, deps LoginDeps) (*LoginResult, error) {
	deps.Hooks.normalize()
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.GetUserByEmail == nil ||
		deps.IsUserNotFound == nil ||
		deps.VerifyPassword == nil ||
		deps.DummyVerify == nil ||
		deps.NewValidationError == nil ||
		deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return nil, deps.NewValidationError("email", err.Error())
	}
	if password == "" {
		return nil, deps.NewValidationError("password", "password is required")
	}

	ip := deps.ClientIPFromContext(ctx)
	rateLimited := func(userID string) (*LoginResult, error) {
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, userID, deps.Errors.LoginRateLimited, func() map[string]string {
			return map[string]string{"email": email, "ip": ip}
		})
		return nil, deps.Errors.LoginRateLimited
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			if deps.IsRateLimited(err) {
				return rateLimited("")
			}
			// Throttle backend down: fail open, the credential check still runs.
			deps.Warn("goIdentity: login throttle check failed", "error", err)
		}
	}

	reject := func(userID, reason string) (*LoginResult, error) {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				deps.Warn("goIdentity: login throttle increment failed", "error", err)
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, userID, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"email": email, "reason": reason}
		})
		return nil, deps.Errors.InvalidCredentials
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if !deps.IsUserNotFound(err) {
			return nil, err
		}
		deps.DummyVerify(password)
		return reject("", "user_not_found")
	}
	if user.PasswordHash == "" {
		deps.DummyVerify(password)
		return reject(user.UserID, "no_password_credential")
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		deps.Warn("goIdentity: stored password hash unreadable", "user_id", user.UserID, "error", err)
	}
	if err != nil || !ok {
		return reject(user.UserID, "password_mismatch")
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.PasswordNeedsUpgrade(user.PasswordHash) {
		if upgraded, err := deps.HashPassword(password); err == nil {
			if err := deps.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
				deps.Warn("goIdentity: password hash upgrade update failed", "user_id", user.UserID, "error", err)
			} else {
				user.PasswordHash = upgraded
				deps.MetricInc(deps.Metrics.PasswordUpgraded)
			}
		} else {
			deps.Warn("goIdentity: password hash upgrade generation failed", "error", err)
		}
	}
	password = ""

	issued, err := deps.IssueSession(ctx, user.UserID, user.Email)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, err, func() map[string]string {
			return map[string]string{"email": email, "reason": "session_issue_failed"}
		})
		return nil, err
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email); err != nil {
			deps.Warn("goIdentity: login throttle reset failed", "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, nil, nil)
	return &LoginResult{User: user, Session: issued}, nil
}
