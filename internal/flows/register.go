package flows

import (
	"context"
)

// RegisterMetrics carries metric IDs used by registration.
type RegisterMetrics struct {
	RegisterSuccess int
	RegisterFailure int
}

// RegisterEvents carries audit event names used by registration.
type RegisterEvents struct {
	Register string
}

// RegisterErrors carries host-level sentinel errors used by registration.
type RegisterErrors struct {
	EngineNotReady error
	EmailTaken     error
}

// RegisterInput is the typed registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// NewUser is what registration asks the store to create.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	NewValidationError func(field, message string) error
	CheckPassword      func(string) error
	HashPassword       func(string) (string, error)
	CreateUser         func(context.Context, NewUser) (UserRecord, error)
	IsEmailTaken       func(error) bool
	IssueSession       func(context.Context, string, string) (IssuedSession, error)

	Hooks
	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RegisterResult is the created user and its first session.
type RegisterResult struct {
	User    UserRecord
	Session IssuedSession
}

// RunRegister validates in, creates the user and signs them in. Duplicate
// emails are reported as Errors.EmailTaken.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (*RegisterResult, error) {
	deps.Hooks.normalize()
	if deps.NewValidationError == nil ||
		deps.CheckPassword == nil ||
		deps.HashPassword == nil ||
		deps.CreateUser == nil ||
		deps.IsEmailTaken == nil ||
		deps.IssueSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	invalid := func(field string, err error) (*RegisterResult, error) {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		return nil, deps.NewValidationError(field, err.Error())
	}

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return invalid("email", err)
	}
	name, err := NormalizeName(in.Name)
	if err != nil {
		return invalid("name", err)
	}
	if err := deps.CheckPassword(in.Password); err != nil {
		return invalid("password", err)
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		return nil, err
	}

	user, err := deps.CreateUser(ctx, NewUser{Email: email, Name: name, PasswordHash: hash})
	if err != nil {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		if deps.IsEmailTaken(err) {
			deps.EmitAudit(ctx, deps.Events.Register, false, "", deps.Errors.EmailTaken, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, deps.Errors.EmailTaken
		}
		return nil, err
	}

	issued, err := deps.IssueSession(ctx, user.UserID, user.Email)
	if err != nil {
		// The account exists; the caller can still sign in normally.
		deps.MetricInc(deps.Metrics.RegisterFailure)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.Register, true, user.UserID, nil, nil)
	return &RegisterResult{User: user, Session: issued}, nil
}
