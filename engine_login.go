package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/rate"
)

// Login authenticates email and password and issues a session. Unknown
// email, password-less account and wrong password all return
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	var found User
	deps := e.loginFlowDeps(&found)
	res, err := flows.RunLogin(ctx, email, password, deps)
	if err != nil {
		return LoginResult{}, err
	}
	found.PasswordHash = res.User.PasswordHash
	return LoginResult{User: found, Session: IssuedSession(res.Session)}, nil
}

// Register creates a password account and signs it in.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	if !e.ready() {
		return LoginResult{}, ErrEngineNotReady
	}

	var created User
	deps := flows.RegisterDeps{
		NewValidationError: newValidationError,
		CheckPassword:      e.policy.Check,
		HashPassword:       e.hasher.Hash,
		CreateUser: func(ctx context.Context, nu flows.NewUser) (flows.UserRecord, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			u, err := e.store.CreateUser(ctx, NewUser(nu))
			if err != nil {
				return flows.UserRecord{}, err
			}
			created = u
			return toUserRecord(u), nil
		},
		IsEmailTaken: isEmailTaken,
		IssueSession: e.issueSession,
		Hooks:        e.hooks(),
		Metrics: flows.RegisterMetrics{
			RegisterSuccess: int(MetricRegisterSuccess),
			RegisterFailure: int(MetricRegisterFailure),
		},
		Events: flows.RegisterEvents{
			Register: auditEventRegister,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			EmailTaken:     ErrEmailTaken,
		},
	}

	res, err := flows.RunRegister(ctx, flows.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, deps)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: created, Session: IssuedSession(res.Session)}, nil
}

func (e *Engine) loginFlowDeps(found *User) flows.LoginDeps {
	return flows.LoginDeps{
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		ClientIPFromContext:    clientIPFromContext,
		NewValidationError:     newValidationError,
		CheckLoginRate: func(ctx context.Context, email, ip string) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.CheckLogin(ctx, email, ip)
		},
		IncrementLoginRate: func(ctx context.Context, email, ip string) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.IncrementLogin(ctx, email, ip)
		},
		ResetLoginRate: func(ctx context.Context, email string) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.limiter.ResetLogin(ctx, email)
		},
		IsRateLimited: func(err error) bool {
			return errors.Is(err, rate.ErrRateLimited)
		},
		GetUserByEmail: func(ctx context.Context, email string) (flows.UserRecord, error) {
			u, err := e.getUserByEmail(ctx, email)
			if err != nil {
				return flows.UserRecord{}, err
			}
			*found = u
			return toUserRecord(u), nil
		},
		IsUserNotFound:       isNotFound,
		UpdatePasswordHash:   e.updatePasswordHash,
		VerifyPassword:       e.hasher.Verify,
		DummyVerify:          e.hasher.DummyVerify,
		PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
		HashPassword:         e.hasher.Hash,
		IssueSession:         e.issueSession,
		Hooks:                e.hooks(),
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			PasswordUpgraded: int(MetricPasswordUpgraded),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
		},
	}
}
