package goIdentity

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/oauth"
	"github.com/MrEthical07/goIdentity/oauth/oauthtest"
)

func newOAuthEngine(t *testing.T, configure ...func(*Builder)) (*testEngine, *oauthtest.Provider) {
	t.Helper()
	p := oauthtest.NewProvider(t)
	opts := append([]func(*Builder){func(b *Builder) {
		b.WithOAuthClient(p.Generic("acme"))
	}}, configure...)
	return newTestEngine(t, opts...), p
}

func beginAndCallback(t *testing.T, te *testEngine, code, next string) OAuthOutcome {
	t.Helper()
	begin, err := te.BeginOAuth(context.Background(), "acme", next)
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	return te.CompleteOAuth(context.Background(), "acme", CallbackInput{
		Code:        code,
		State:       begin.State,
		CookieState: begin.StateCookie,
		CookieNext:  begin.Next,
	})
}

func TestBeginOAuth(t *testing.T) {
	te, _ := newOAuthEngine(t)

	res, err := te.BeginOAuth(context.Background(), "ACME", "/account/settings")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	if res.Provider != "acme" || res.State == "" || res.Next != "/account/settings" {
		t.Fatalf("unexpected begin result: %+v", res)
	}

	u, err := url.Parse(res.AuthURL)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	if u.Query().Get("state") != res.State || u.Query().Get("client_id") != "test-client" {
		t.Fatalf("auth url missing state or client id: %s", res.AuthURL)
	}

	cookies := map[string]*http.Cookie{}
	for _, c := range res.Cookies {
		cookies[c.Name] = c
	}
	state := cookies[te.OAuthStateCookieName("acme")]
	if state == nil || state.Value != res.StateCookie || !state.HttpOnly || state.MaxAge <= 0 {
		t.Fatalf("unexpected state cookie: %+v", state)
	}
	if state.Value == res.State {
		t.Fatal("state cookie must carry the signed state, not the bare nonce")
	}
	if next := cookies[te.OAuthNextCookieName()]; next == nil || next.Value != "/account/settings" {
		t.Fatalf("unexpected next cookie: %+v", next)
	}
}

func TestProvidersListsRegisteredNames(t *testing.T) {
	te, _ := newOAuthEngine(t, func(b *Builder) {
		b.WithOAuthClient(oauth.NewGeneric(oauth.GenericConfig{Name: "bare"}))
	})
	if got := te.Providers(); !reflect.DeepEqual(got, []string{"acme", "bare"}) {
		t.Fatalf("unexpected providers %v", got)
	}
}

func TestBeginOAuthDropsUnsafeNext(t *testing.T) {
	te, _ := newOAuthEngine(t)
	for _, next := range []string{"https://evil.example", "//evil.example", "/\\evil", "relative"} {
		res, err := te.BeginOAuth(context.Background(), "acme", next)
		if err != nil {
			t.Fatalf("BeginOAuth failed: %v", err)
		}
		if res.Next != "" {
			t.Fatalf("expected %q dropped, got %q", next, res.Next)
		}
	}
}

func TestBeginOAuthProviderErrors(t *testing.T) {
	te := newTestEngine(t, func(b *Builder) {
		b.WithOAuthClient(oauth.NewGeneric(oauth.GenericConfig{Name: "bare"}))
	})

	if _, err := te.BeginOAuth(context.Background(), "nope", ""); !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected ErrProviderUnknown, got %v", err)
	}
	_, err := te.BeginOAuth(context.Background(), "bare", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unconfigured provider, got %d", StatusCode(err))
	}
}

func TestCompleteOAuthCreatesAccount(t *testing.T) {
	te, p := newOAuthEngine(t)
	p.AddCode("code-1", oauthtest.Identity{Subject: "sub-1", Email: "Fed@Example.com", EmailVerified: true, Name: "Fed"})

	out := beginAndCallback(t, te, "code-1", "/account/settings")
	if !out.Succeeded() {
		t.Fatalf("expected success, got %+v", out)
	}
	if !out.AccountCreated || out.AccountLinked {
		t.Fatalf("expected created account, got %+v", out)
	}
	if out.Redirect != "/account/settings" {
		t.Fatalf("expected redirect to next, got %q", out.Redirect)
	}
	wantTrace := []string{"awaiting_callback", "exchanging", "profile_fetch", "resolved"}
	if !reflect.DeepEqual(out.Trace, wantTrace) || out.Phase != "resolved" {
		t.Fatalf("unexpected trace %v phase %s", out.Trace, out.Phase)
	}

	u := te.store.user(out.UserID)
	if u.Email != "fed@example.com" || u.HasPassword() {
		t.Fatalf("unexpected federated user: %+v", u)
	}
	if _, err := te.ValidateSession(context.Background(), out.Session.Token); err != nil {
		t.Fatalf("oauth session does not validate: %v", err)
	}

	var sawSession bool
	for _, c := range out.Cookies {
		if c.Name == te.SessionCookieName() && c.Value == out.Session.Token {
			sawSession = true
		}
	}
	if !sawSession {
		t.Fatalf("expected session cookie in outcome")
	}

	// Second sign-in resolves through the link without creating anything.
	p.AddCode("code-2", oauthtest.Identity{Subject: "sub-1", Email: "fed@example.com", EmailVerified: true, Name: "Fed"})
	again := beginAndCallback(t, te, "code-2", "")
	if !again.Succeeded() || again.AccountCreated || again.UserID != out.UserID {
		t.Fatalf("expected linked sign-in, got %+v", again)
	}
	if again.Redirect != "/dashboard" {
		t.Fatalf("expected home redirect, got %q", again.Redirect)
	}
}

func TestCompleteOAuthLinksVerifiedEmail(t *testing.T) {
	te, p := newOAuthEngine(t)
	existing := te.registerUser(t, "owner@example.com")
	p.AddCode("code", oauthtest.Identity{Subject: "sub-9", Email: "owner@example.com", EmailVerified: true})

	out := beginAndCallback(t, te, "code", "")
	if !out.Succeeded() || !out.AccountLinked || out.UserID != existing.ID {
		t.Fatalf("expected link to existing account, got %+v", out)
	}
	if te.store.linkCount() != 1 {
		t.Fatalf("expected one link, got %d", te.store.linkCount())
	}
}

func TestCompleteOAuthRefusesUnverifiedEmail(t *testing.T) {
	te, p := newOAuthEngine(t)
	te.registerUser(t, "victim@example.com")
	p.AddCode("code", oauthtest.Identity{Subject: "sub-x", Email: "victim@example.com", EmailVerified: false})

	out := beginAndCallback(t, te, "code", "")
	if out.Succeeded() || out.FailureCode != "account_link_failed" {
		t.Fatalf("expected account_link_failed, got %+v", out)
	}
	if out.Redirect != "/auth/login?error=account_link_failed" {
		t.Fatalf("unexpected redirect %q", out.Redirect)
	}
	if te.store.linkCount() != 0 {
		t.Fatalf("unverified email must not link")
	}
}

func TestCompleteOAuthFailures(t *testing.T) {
	te, p := newOAuthEngine(t)
	p.AddCode("good", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})

	begin, err := te.BeginOAuth(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	other, err := te.BeginOAuth(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	cookie := begin.StateCookie

	cases := []struct {
		name string
		in   CallbackInput
		want string
	}{
		{"provider error", CallbackInput{ProviderError: "access_denied", Code: "good", State: begin.State, CookieState: cookie}, "provider_error"},
		{"missing code", CallbackInput{State: begin.State, CookieState: cookie}, "missing_code"},
		{"missing state", CallbackInput{Code: "good", CookieState: cookie}, "missing_state"},
		{"no cookie", CallbackInput{Code: "good", State: begin.State}, "invalid_state"},
		{"unsigned cookie", CallbackInput{Code: "good", State: "st", CookieState: "st"}, "invalid_state"},
		{"state mismatch", CallbackInput{Code: "good", State: other.State, CookieState: cookie}, "invalid_state"},
		{"other provider", CallbackInput{Code: "good", State: begin.State, CookieState: cookie}, "invalid_state"},
		{"bad code", CallbackInput{Code: "bad", State: begin.State, CookieState: cookie}, "token_exchange_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := "acme"
			if tc.name == "other provider" {
				provider = "globex"
			}
			out := te.CompleteOAuth(context.Background(), provider, tc.in)
			if out.Succeeded() || out.FailureCode != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, out)
			}
			if out.Phase != "failed" || out.Session != nil {
				t.Fatalf("unexpected terminal state: %+v", out)
			}
			if out.Redirect != "/auth/login?error="+tc.want {
				t.Fatalf("unexpected redirect %q", out.Redirect)
			}
			for _, c := range out.Cookies {
				if c.MaxAge >= 0 {
					t.Fatalf("failure must only clear cookies, got %+v", c)
				}
			}
		})
	}
	if p.Exchanges() != 0 {
		t.Fatalf("no failing case may complete an exchange, got %d", p.Exchanges())
	}
}

func TestCompleteOAuthUserInfoFailure(t *testing.T) {
	te, p := newOAuthEngine(t)
	p.AddCode("code", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})
	p.FailUserInfo(http.StatusBadGateway)

	out := beginAndCallback(t, te, "code", "")
	if out.FailureCode != "userinfo_failed" {
		t.Fatalf("expected userinfo_failed, got %+v", out)
	}
}

func TestCompleteOAuthStateReuseFails(t *testing.T) {
	te, p := newOAuthEngine(t)
	p.AddCode("code", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})
	p.AddCode("code-2", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})

	begin, err := te.BeginOAuth(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	in := CallbackInput{Code: "code", State: begin.State, CookieState: begin.StateCookie}
	first := te.CompleteOAuth(context.Background(), "acme", in)
	if !first.Succeeded() {
		t.Fatalf("expected first callback to succeed: %+v", first)
	}

	// The browser dropped the state cookie as instructed by the first outcome.
	dropped := te.CompleteOAuth(context.Background(), "acme", CallbackInput{Code: "code-2", State: begin.State})
	if dropped.FailureCode != "invalid_state" {
		t.Fatalf("expected replay without cookie rejected, got %+v", dropped)
	}

	// A replayed request that still carries the cookie is refused server-side.
	in.Code = "code-2"
	replay := te.CompleteOAuth(context.Background(), "acme", in)
	if replay.FailureCode != "invalid_state" || replay.Session != nil {
		t.Fatalf("expected replay with cookie rejected, got %+v", replay)
	}
	if p.Exchanges() != 1 {
		t.Fatalf("replay must not reach the provider, got %d exchanges", p.Exchanges())
	}
}

func TestCompleteOAuthExpiredStateFails(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	te, p := newOAuthEngine(t, func(b *Builder) {
		b.WithClock(func() time.Time { return clock })
	})
	p.AddCode("code", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})

	begin, err := te.BeginOAuth(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	clock = clock.Add(2 * time.Hour)

	out := te.CompleteOAuth(context.Background(), "acme", CallbackInput{Code: "code", State: begin.State, CookieState: begin.StateCookie})
	if out.Succeeded() || out.FailureCode != "invalid_state" {
		t.Fatalf("expected expired state rejected, got %+v", out)
	}
	if p.Exchanges() != 0 {
		t.Fatalf("expired state must not reach the provider, got %d exchanges", p.Exchanges())
	}
}

func TestCompleteOAuthStateWithinTTL(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	te, p := newOAuthEngine(t, func(b *Builder) {
		b.WithClock(func() time.Time { return clock })
	})
	p.AddCode("code", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})

	begin, err := te.BeginOAuth(context.Background(), "acme", "")
	if err != nil {
		t.Fatalf("BeginOAuth failed: %v", err)
	}
	clock = clock.Add(te.Config().OAuth.StateTTL - time.Minute)

	out := te.CompleteOAuth(context.Background(), "acme", CallbackInput{Code: "code", State: begin.State, CookieState: begin.StateCookie})
	if !out.Succeeded() {
		t.Fatalf("expected callback inside the window to succeed, got %+v", out)
	}
	if !te.mr.Exists("gios:" + begin.State) {
		t.Fatal("expected consumed nonce to be recorded")
	}
}

func TestCompleteOAuthAudits(t *testing.T) {
	sink := &captureSink{}
	te, p := newOAuthEngine(t, withAudit(sink))
	p.AddCode("code", oauthtest.Identity{Subject: "s", Email: "s@example.com", EmailVerified: true})

	beginAndCallback(t, te, "code", "")
	te.CompleteOAuth(context.Background(), "acme", CallbackInput{Code: "code"})

	waitFor(t, func() bool {
		return len(sink.byType(auditEventOAuthSuccess)) == 1 && len(sink.byType(auditEventOAuthFailure)) == 1
	})
	fail := sink.byType(auditEventOAuthFailure)[0]
	if fail.Metadata["reason"] != "missing_state" || fail.Metadata["provider"] != "acme" {
		t.Fatalf("unexpected failure audit: %+v", fail)
	}
}
