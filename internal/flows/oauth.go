package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/oauth"
)

// OAuthPhase is a state of the two-request authorization-code handshake.
type OAuthPhase uint8

const (
	PhaseIdle OAuthPhase = iota
	PhaseAuthorizationRequested
	PhaseAwaitingCallback
	PhaseExchanging
	PhaseProfileFetch
	PhaseResolved
	PhaseFailed
)

var oauthPhaseNames = [...]string{
	PhaseIdle:                   "idle",
	PhaseAuthorizationRequested: "authorization_requested",
	PhaseAwaitingCallback:       "awaiting_callback",
	PhaseExchanging:             "exchanging",
	PhaseProfileFetch:           "profile_fetch",
	PhaseResolved:               "resolved",
	PhaseFailed:                 "failed",
}

func (p OAuthPhase) String() string {
	if int(p) < len(oauthPhaseNames) {
		return oauthPhaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Terminal reports whether no further transition is possible.
func (p OAuthPhase) Terminal() bool {
	return p == PhaseResolved || p == PhaseFailed
}

// oauthTransitions lists the legal forward moves. Failed is reachable from
// every non-terminal phase and is added by canAdvance.
var oauthTransitions = map[OAuthPhase]OAuthPhase{
	PhaseIdle:                   PhaseAuthorizationRequested,
	PhaseAuthorizationRequested: PhaseAwaitingCallback,
	PhaseAwaitingCallback:       PhaseExchanging,
	PhaseExchanging:             PhaseProfileFetch,
	PhaseProfileFetch:           PhaseResolved,
}

func canAdvance(from, to OAuthPhase) bool {
	if from.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	next, ok := oauthTransitions[from]
	return ok && next == to
}

var errStateReplayed = errors.New("oauth state already consumed")

// OAuthFailure is the closed set of codes placed in the login redirect.
type OAuthFailure string

const (
	FailureNone                OAuthFailure = ""
	FailureProviderError       OAuthFailure = "provider_error"
	FailureMissingCode         OAuthFailure = "missing_code"
	FailureMissingState        OAuthFailure = "missing_state"
	FailureInvalidState        OAuthFailure = "invalid_state"
	FailureTokenExchangeFailed OAuthFailure = "token_exchange_failed"
	FailureUserInfoFailed      OAuthFailure = "userinfo_failed"
	FailureAccountLinkFailed   OAuthFailure = "account_link_failed"
	FailureSessionFailed       OAuthFailure = "session_failed"
)

// oauthMachine records every phase it passes through.
type oauthMachine struct {
	phase   OAuthPhase
	trace   []OAuthPhase
	failure OAuthFailure
}

func newOAuthMachine(start OAuthPhase) *oauthMachine {
	return &oauthMachine{phase: start, trace: []OAuthPhase{start}}
}

func (m *oauthMachine) advance(to OAuthPhase) {
	if !canAdvance(m.phase, to) {
		panic(fmt.Sprintf("flows: illegal oauth transition %s -> %s", m.phase, to))
	}
	m.phase = to
	m.trace = append(m.trace, to)
}

func (m *oauthMachine) fail(code OAuthFailure) {
	m.advance(PhaseFailed)
	m.failure = code
}

// AccountLink is the provider identity bound to a user.
type AccountLink struct {
	Provider     string
	Subject      string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// OAuthMetrics carries metric IDs used by the OAuth flows.
type OAuthMetrics struct {
	OAuthBegin     int
	OAuthSuccess   int
	OAuthFailure   int
	AccountCreated int
	AccountLinked  int
}

// OAuthEvents carries audit event names used by the OAuth flows.
type OAuthEvents struct {
	OAuthSuccess string
	OAuthFailure string
}

// OAuthErrors carries host-level sentinel errors used by the OAuth flows.
type OAuthErrors struct {
	EngineNotReady error
}

// OAuthDeps captures federation dependencies.
type OAuthDeps struct {
	OutboundTimeout time.Duration
	LoginPath       string
	HomePath        string

	LookupClient func(string) (oauth.Client, error)
	NewState     func() (string, error)
	// SignState and VerifyState seal the nonce and provider into the
	// expiring state cookie. ConsumeState reports false for a nonce that
	// was already redeemed.
	SignState    func(SignedState) (string, error)
	VerifyState  func(string) (SignedState, error)
	ConsumeState func(ctx context.Context, nonce string) (bool, error)

	FindLinkedUser   func(ctx context.Context, provider, subject string) (UserRecord, error)
	FindUserByEmail  func(ctx context.Context, email string) (UserRecord, error)
	IsNotFound       func(error) bool
	LinkAccount      func(ctx context.Context, userID string, link AccountLink) error
	CreateLinkedUser func(ctx context.Context, user NewUser, link AccountLink) (UserRecord, error)
	IsEmailTaken     func(error) bool
	IssueSession     func(context.Context, string, string) (IssuedSession, error)

	Hooks
	Metrics OAuthMetrics
	Events  OAuthEvents
	Errors  OAuthErrors
}

func normalizeOAuthDeps(deps *OAuthDeps) {
	deps.Hooks.normalize()
	if deps.OutboundTimeout <= 0 {
		deps.OutboundTimeout = 10 * time.Second
	}
	if deps.LoginPath == "" {
		deps.LoginPath = "/auth/login"
	}
	if deps.HomePath == "" {
		deps.HomePath = "/"
	}
	if deps.IsEmailTaken == nil {
		deps.IsEmailTaken = func(error) bool { return false }
	}
}

// SignedState is what the state cookie carries.
type SignedState struct {
	Nonce    string
	Provider string
}

// OAuthBeginResult is what the transport needs to start the handshake.
// State goes to the provider; StateCookie goes to the browser.
type OAuthBeginResult struct {
	Provider    string
	State       string
	StateCookie string
	Next     string
	AuthURL  string
	Phase    OAuthPhase
	Trace    []OAuthPhase
}

// RunBeginOAuth mints a state nonce and builds the provider's authorization
// URL. Lookup errors (unknown or unconfigured provider) are returned as-is.
func RunBeginOAuth(ctx context.Context, provider, next string, deps OAuthDeps) (*OAuthBeginResult, error) {
	normalizeOAuthDeps(&deps)
	if deps.LookupClient == nil || deps.NewState == nil || deps.SignState == nil {
		return nil, deps.Errors.EngineNotReady
	}

	client, err := deps.LookupClient(provider)
	if err != nil {
		return nil, err
	}

	m := newOAuthMachine(PhaseIdle)
	state, err := deps.NewState()
	if err != nil {
		return nil, err
	}
	provider = strings.ToLower(provider)
	cookie, err := deps.SignState(SignedState{Nonce: state, Provider: provider})
	if err != nil {
		return nil, err
	}
	m.advance(PhaseAuthorizationRequested)
	authURL := client.AuthCodeURL(state)
	m.advance(PhaseAwaitingCallback)

	deps.MetricInc(deps.Metrics.OAuthBegin)
	return &OAuthBeginResult{
		Provider:    provider,
		State:       state,
		StateCookie: cookie,
		Next:        SanitizeNext(next),
		AuthURL:     authURL,
		Phase:       m.phase,
		Trace:       m.trace,
	}, nil
}

// CallbackInput carries the callback query and the cookies set at begin.
// CookieState is the signed state cookie, not the bare nonce.
type CallbackInput struct {
	Code          string
	State         string
	ProviderError string
	CookieState   string
	CookieNext    string
}

// OAuthOutcome is the terminal result of a callback. Redirect is always set.
type OAuthOutcome struct {
	Provider       string
	Phase          OAuthPhase
	Trace          []OAuthPhase
	Failure        OAuthFailure
	Redirect       string
	Session        *IssuedSession
	UserID         string
	AccountCreated bool
	AccountLinked  bool
}

// RunCompleteOAuth drives the callback half of the handshake to Resolved or
// Failed. It never returns an error: every failure becomes a redirect to the
// login page carrying one OAuthFailure code.
//
// A state is accepted once: the cookie must verify (it expires), be bound to
// provider and carry the query nonce, and the nonce must not have been
// consumed before. The nonce is consumed before the code exchange, so a
// failed exchange still burns it.
func RunCompleteOAuth(ctx context.Context, provider string, in CallbackInput, deps OAuthDeps) OAuthOutcome {
	normalizeOAuthDeps(&deps)
	provider = strings.ToLower(provider)
	m := newOAuthMachine(PhaseAwaitingCallback)
	out := OAuthOutcome{Provider: provider}

	failed := func(code OAuthFailure, cause error) OAuthOutcome {
		m.fail(code)
		deps.Warn("goIdentity: oauth callback failed", "provider", provider, "reason", string(code), "error", cause)
		deps.MetricInc(deps.Metrics.OAuthFailure)
		deps.EmitAudit(ctx, deps.Events.OAuthFailure, false, out.UserID, cause, func() map[string]string {
			return map[string]string{"provider": provider, "reason": string(code)}
		})
		out.Phase, out.Trace, out.Failure = m.phase, m.trace, code
		out.Redirect = deps.LoginPath + "?error=" + url.QueryEscape(string(code))
		return out
	}

	switch {
	case in.ProviderError != "":
		return failed(FailureProviderError, fmt.Errorf("provider reported %q", in.ProviderError))
	case in.Code == "":
		return failed(FailureMissingCode, nil)
	case in.State == "":
		return failed(FailureMissingState, nil)
	}
	if deps.VerifyState == nil || deps.ConsumeState == nil {
		return failed(FailureInvalidState, deps.Errors.EngineNotReady)
	}
	signed, err := deps.VerifyState(in.CookieState)
	if err != nil {
		return failed(FailureInvalidState, err)
	}
	if signed.Provider != provider || subtle.ConstantTimeCompare([]byte(in.State), []byte(signed.Nonce)) != 1 {
		return failed(FailureInvalidState, nil)
	}
	if deps.LookupClient == nil || deps.IssueSession == nil || deps.FindLinkedUser == nil ||
		deps.FindUserByEmail == nil || deps.IsNotFound == nil || deps.LinkAccount == nil || deps.CreateLinkedUser == nil {
		return failed(FailureProviderError, deps.Errors.EngineNotReady)
	}
	client, err := deps.LookupClient(provider)
	if err != nil {
		return failed(FailureProviderError, err)
	}
	fresh, err := deps.ConsumeState(ctx, signed.Nonce)
	if err != nil {
		return failed(FailureInvalidState, err)
	}
	if !fresh {
		return failed(FailureInvalidState, errStateReplayed)
	}

	m.advance(PhaseExchanging)
	exCtx, cancel := context.WithTimeout(ctx, deps.OutboundTimeout)
	tok := client.Exchange(exCtx, in.Code)
	cancel()
	if !tok.IsOk() {
		return failed(FailureTokenExchangeFailed, tok.Cause())
	}

	m.advance(PhaseProfileFetch)
	infoCtx, cancel := context.WithTimeout(ctx, deps.OutboundTimeout)
	prof := client.UserInfo(infoCtx, tok.Value())
	cancel()
	if !prof.IsOk() {
		return failed(FailureUserInfoFailed, prof.Cause())
	}
	profile := prof.Value()
	email, err := NormalizeEmail(profile.Email)
	if err != nil {
		return failed(FailureUserInfoFailed, err)
	}
	profile.Email = email

	link := AccountLink{
		Provider:     provider,
		Subject:      profile.Subject,
		AccessToken:  tok.Value().AccessToken,
		RefreshToken: tok.Value().RefreshToken,
		Expiry:       tok.Value().Expiry,
	}
	user, err := resolveFederatedUser(ctx, profile, link, &out, deps)
	if err != nil {
		return failed(FailureAccountLinkFailed, err)
	}
	out.UserID = user.UserID

	issued, err := deps.IssueSession(ctx, user.UserID, user.Email)
	if err != nil {
		return failed(FailureSessionFailed, err)
	}

	m.advance(PhaseResolved)
	if out.AccountCreated {
		deps.MetricInc(deps.Metrics.AccountCreated)
	}
	if out.AccountLinked {
		deps.MetricInc(deps.Metrics.AccountLinked)
	}
	deps.MetricInc(deps.Metrics.OAuthSuccess)
	deps.EmitAudit(ctx, deps.Events.OAuthSuccess, true, user.UserID, nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})

	out.Phase, out.Trace = m.phase, m.trace
	out.Session = &issued
	out.Redirect = SanitizeNext(in.CookieNext)
	if out.Redirect == "" {
		out.Redirect = deps.HomePath
	}
	return out
}

// resolveFederatedUser finds the user for profile: by linked account, then by
// verified email (linking it), else creates a user with the link.
func resolveFederatedUser(ctx context.Context, profile oauth.Profile, link AccountLink, out *OAuthOutcome, deps OAuthDeps) (UserRecord, error) {
	user, err := deps.FindLinkedUser(ctx, link.Provider, link.Subject)
	if err == nil {
		return user, nil
	}
	if !deps.IsNotFound(err) {
		return UserRecord{}, err
	}

	linkExisting := func() (UserRecord, bool, error) {
		existing, err := deps.FindUserByEmail(ctx, profile.Email)
		if err != nil {
			if deps.IsNotFound(err) {
				return UserRecord{}, false, nil
			}
			return UserRecord{}, false, err
		}
		// Only verified provider emails may attach to an existing account.
		if !profile.EmailVerified {
			return UserRecord{}, true, fmt.Errorf("refusing to link unverified email for provider %s", link.Provider)
		}
		if err := deps.LinkAccount(ctx, existing.UserID, link); err != nil {
			return UserRecord{}, true, err
		}
		out.AccountLinked = true
		return existing, true, nil
	}

	if existing, found, err := linkExisting(); found || err != nil {
		return existing, err
	}

	name, err := NormalizeName(profile.Name)
	if err != nil {
		name = profile.Email[:strings.IndexByte(profile.Email, '@')]
	}
	created, err := deps.CreateLinkedUser(ctx, NewUser{Email: profile.Email, Name: name}, link)
	if err != nil {
		if deps.IsEmailTaken(err) {
			// Lost a race with a concurrent registration of the same email.
			existing, found, lerr := linkExisting()
			if lerr != nil {
				return UserRecord{}, lerr
			}
			if found {
				return existing, nil
			}
		}
		return UserRecord{}, err
	}
	out.AccountCreated = true
	return created, nil
}
