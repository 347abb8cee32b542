package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/oauth"
)

// BeginOAuth starts the authorization-code handshake with provider. next is
// kept only if it is a local path. Unknown providers return
// ErrProviderUnknown; providers without credentials return ErrNotConfigured.
func (e *Engine) BeginOAuth(ctx context.Context, provider, next string) (BeginResult, error) {
	if !e.ready() {
		return BeginResult{}, ErrEngineNotReady
	}
	res, err := flows.RunBeginOAuth(ctx, provider, next, e.oauthFlowDeps())
	if err != nil {
		return BeginResult{}, err
	}
	return BeginResult{
		Provider:    res.Provider,
		AuthURL:     res.AuthURL,
		State:       res.State,
		StateCookie: res.StateCookie,
		Next:        res.Next,
		Cookies:     e.oauthBeginCookies(res.Provider, res.StateCookie, res.Next),
	}, nil
}

// CompleteOAuth handles the provider callback. It never fails: the outcome
// always carries a redirect, and failures carry one closed-set code.
func (e *Engine) CompleteOAuth(ctx context.Context, provider string, in CallbackInput) OAuthOutcome {
	if !e.ready() {
		return OAuthOutcome{
			Provider:    provider,
			Phase:       flows.PhaseFailed.String(),
			FailureCode: string(flows.FailureProviderError),
			Redirect:    e.loginPath() + "?error=" + string(flows.FailureProviderError),
		}
	}

	out := flows.RunCompleteOAuth(ctx, provider, flows.CallbackInput(in), e.oauthFlowDeps())

	res := OAuthOutcome{
		Provider:       out.Provider,
		Phase:          out.Phase.String(),
		Trace:          make([]string, len(out.Trace)),
		FailureCode:    string(out.Failure),
		Redirect:       out.Redirect,
		UserID:         out.UserID,
		AccountCreated: out.AccountCreated,
		AccountLinked:  out.AccountLinked,
		Cookies:        e.oauthClearCookies(out.Provider),
	}
	for i, p := range out.Trace {
		res.Trace[i] = p.String()
	}
	if out.Session != nil {
		issued := IssuedSession(*out.Session)
		res.Session = &issued
		res.Cookies = append(res.Cookies, e.SessionCookie(issued))
	}
	return res
}

func (e *Engine) loginPath() string {
	if e == nil || e.config.Routes.Login == "" {
		return "/auth/login"
	}
	return e.config.Routes.Login
}

func (e *Engine) lookupProvider(name string) (oauth.Client, error) {
	c, err := e.providers.Lookup(name)
	switch {
	case errors.Is(err, oauth.ErrProviderUnknown):
		return nil, ErrProviderUnknown
	case errors.Is(err, oauth.ErrNotConfigured):
		return nil, ErrNotConfigured
	case err != nil:
		return nil, err
	}
	return c, nil
}

func toLinkedAccount(userID string, link flows.AccountLink) LinkedAccount {
	return LinkedAccount{
		Provider:          link.Provider,
		ProviderAccountID: link.Subject,
		UserID:            userID,
		AccessToken:       link.AccessToken,
		RefreshToken:      link.RefreshToken,
		Expiry:            link.Expiry,
	}
}

func (e *Engine) oauthFlowDeps() flows.OAuthDeps {
	return flows.OAuthDeps{
		OutboundTimeout: e.config.OAuth.OutboundTimeout,
		LoginPath:       e.config.Routes.Login,
		HomePath:        e.config.Routes.Home,
		LookupClient:    e.lookupProvider,
		NewState:        internal.NewOAuthState,
		SignState: func(st flows.SignedState) (string, error) {
			return e.codec.SignState(st.Nonce, st.Provider, e.config.OAuth.StateTTL)
		},
		VerifyState: func(raw string) (flows.SignedState, error) {
			claims, err := e.codec.VerifyState(raw)
			if err != nil {
				return flows.SignedState{}, err
			}
			return flows.SignedState{Nonce: claims.Nonce, Provider: claims.Provider}, nil
		},
		ConsumeState: func(ctx context.Context, nonce string) (bool, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			// Outlive the cookie, including verification leeway.
			return e.states.Consume(ctx, nonce, e.config.OAuth.StateTTL+e.config.Token.Leeway)
		},
		FindLinkedUser: func(ctx context.Context, provider, subject string) (flows.UserRecord, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			u, err := e.store.FindUserByLink(ctx, provider, subject)
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toUserRecord(u), nil
		},
		FindUserByEmail: func(ctx context.Context, email string) (flows.UserRecord, error) {
			u, err := e.getUserByEmail(ctx, email)
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toUserRecord(u), nil
		},
		IsNotFound: isNotFound,
		LinkAccount: func(ctx context.Context, userID string, link flows.AccountLink) error {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.LinkAccount(ctx, toLinkedAccount(userID, link))
		},
		CreateLinkedUser: func(ctx context.Context, nu flows.NewUser, link flows.AccountLink) (flows.UserRecord, error) {
			ctx, cancel := e.storeCtx(ctx)
			defer cancel()
			u, err := e.store.CreateUserWithLink(ctx, NewUser(nu), toLinkedAccount("", link))
			if err != nil {
				return flows.UserRecord{}, err
			}
			return toUserRecord(u), nil
		},
		IsEmailTaken: isEmailTaken,
		IssueSession: e.issueSession,
		Hooks:        e.hooks(),
		Metrics: flows.OAuthMetrics{
			OAuthBegin:     int(MetricOAuthBegin),
			OAuthSuccess:   int(MetricOAuthSuccess),
			OAuthFailure:   int(MetricOAuthFailure),
			AccountCreated: int(MetricOAuthAccountCreated),
			AccountLinked:  int(MetricOAuthAccountLinked),
		},
		Events: flows.OAuthEvents{
			OAuthSuccess: auditEventOAuthSuccess,
			OAuthFailure: auditEventOAuthFailure,
		},
		Errors: flows.OAuthErrors{
			EngineNotReady: ErrEngineNotReady,
		},
	}
}
