package goIdentity

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const newTestPassword = "Brand-New-Pass-7"

type resetInbox struct {
	ch chan ResetNotification
}

func newResetInbox() *resetInbox {
	return &resetInbox{ch: make(chan ResetNotification, 16)}
}

func (i *resetInbox) notifier() Notifier {
	return NotifierFunc(func(_ context.Context, n ResetNotification) error {
		i.ch <- n
		return nil
	})
}

func (i *resetInbox) next(t *testing.T) ResetNotification {
	t.Helper()
	select {
	case n := <-i.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("no reset notification delivered")
		return ResetNotification{}
	}
}

func (i *resetInbox) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-i.ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func tokenFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse reset url: %v", err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("reset url has no token: %s", raw)
	}
	return tok
}

func newResetEngine(t *testing.T, configure ...func(*Builder)) (*testEngine, *resetInbox) {
	t.Helper()
	inbox := newResetInbox()
	opts := append([]func(*Builder){func(b *Builder) {
		b.WithNotifier(inbox.notifier())
	}}, configure...)
	return newTestEngine(t, opts...), inbox
}

func TestPasswordResetFullFlow(t *testing.T) {
	te, inbox := newResetEngine(t)
	u := te.registerUser(t, "reset@example.com")
	ctx := context.Background()

	login, err := te.Login(ctx, "reset@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := te.RequestPasswordReset(ctx, "Reset@Example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	n := inbox.next(t)
	if n.UserID != u.ID || n.Email != "reset@example.com" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if len(n.URL) < len("http://localhost:8080/reset-password?token=") ||
		n.URL[:len("http://localhost:8080/reset-password?token=")] != "http://localhost:8080/reset-password?token=" {
		t.Fatalf("unexpected reset url: %s", n.URL)
	}
	tok := tokenFromURL(t, n.URL)

	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	if _, err := te.ValidateSession(ctx, login.Session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected existing sessions revoked, got %v", err)
	}
	if _, err := te.Login(ctx, "reset@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := te.Login(ctx, "reset@example.com", newTestPassword); err != nil {
		t.Fatalf("new password must work: %v", err)
	}

	err = te.ConfirmPasswordReset(ctx, tok, "Another-Pass-8")
	if !errors.Is(err, ErrResetInvalidOrExpired) {
		t.Fatalf("expected replay rejected, got %v", err)
	}
	if got := te.metrics.Value(MetricPasswordResetReplay); got != 1 {
		t.Fatalf("expected replay metric 1, got %d", got)
	}
}

func TestPasswordResetRequestIsSilent(t *testing.T) {
	te, inbox := newResetEngine(t)
	ctx := context.Background()
	if _, err := te.store.CreateUser(ctx, NewUser{Email: "oauth@example.com", Name: "O"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	for _, email := range []string{"unknown@example.com", "not an email", "", "oauth@example.com"} {
		if err := te.RequestPasswordReset(ctx, email); err != nil {
			t.Fatalf("RequestPasswordReset(%q) returned %v", email, err)
		}
	}
	inbox.expectNone(t)
}

func TestPasswordResetRequestThrottled(t *testing.T) {
	te, inbox := newResetEngine(t, func(b *Builder) {
		cfg := b.config
		cfg.Reset.MaxRequests = 2
		b.WithConfig(cfg)
	})
	te.registerUser(t, "many@example.com")

	for i := 0; i < 4; i++ {
		if err := te.RequestPasswordReset(context.Background(), "many@example.com"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	inbox.next(t)
	inbox.next(t)
	inbox.expectNone(t)
}

func TestPasswordResetWeakPasswordKeepsToken(t *testing.T) {
	te, inbox := newResetEngine(t)
	te.registerUser(t, "weak@example.com")
	ctx := context.Background()

	if err := te.RequestPasswordReset(ctx, "weak@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := tokenFromURL(t, inbox.next(t).URL)

	err := te.ConfirmPasswordReset(ctx, tok, "short")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); err != nil {
		t.Fatalf("token must survive a rejected password: %v", err)
	}
}

func TestPasswordResetRejectsBadTokens(t *testing.T) {
	te, inbox := newResetEngine(t)
	te.registerUser(t, "bad@example.com")
	ctx := context.Background()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); !errors.Is(err, ErrResetInvalidOrExpired) {
			t.Fatalf("ConfirmPasswordReset(%q) expected ErrResetInvalidOrExpired, got %v", tok, err)
		}
	}

	if err := te.RequestPasswordReset(ctx, "bad@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := tokenFromURL(t, inbox.next(t).URL)
	flipped := []byte(tok)
	if flipped[len(flipped)-1] == 'A' {
		flipped[len(flipped)-1] = 'B'
	} else {
		flipped[len(flipped)-1] = 'A'
	}
	if err := te.ConfirmPasswordReset(ctx, string(flipped), newTestPassword); !errors.Is(err, ErrResetInvalidOrExpired) {
		t.Fatalf("expected mismatched secret rejected, got %v", err)
	}
	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); err != nil {
		t.Fatalf("genuine token must still work after one mismatch: %v", err)
	}
}

func TestPasswordResetExpiredToken(t *testing.T) {
	now := time.Now()
	var offset atomic.Int64
	te, inbox := newResetEngine(t, func(b *Builder) {
		b.WithClock(func() time.Time { return now.Add(time.Duration(offset.Load())) })
	})
	te.registerUser(t, "late@example.com")
	ctx := context.Background()

	if err := te.RequestPasswordReset(ctx, "late@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := tokenFromURL(t, inbox.next(t).URL)

	offset.Store(int64(2 * time.Hour))
	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); !errors.Is(err, ErrResetInvalidOrExpired) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestPasswordResetConcurrentRedeemExactlyOnce(t *testing.T) {
	te, inbox := newResetEngine(t)
	te.registerUser(t, "race@example.com")
	ctx := context.Background()

	if err := te.RequestPasswordReset(ctx, "race@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := tokenFromURL(t, inbox.next(t).URL)

	const workers = 8
	var (
		wg       sync.WaitGroup
		success  atomic.Int32
		rejected atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := te.ConfirmPasswordReset(ctx, tok, newTestPassword)
			switch {
			case err == nil:
				success.Add(1)
			case errors.Is(err, ErrResetInvalidOrExpired):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success.Load() != 1 || rejected.Load() != workers-1 {
		t.Fatalf("expected exactly one success, got success=%d rejected=%d", success.Load(), rejected.Load())
	}
}

func TestPasswordResetNotifierFailureIsInvisible(t *testing.T) {
	var calls atomic.Int32
	te := newTestEngine(t, func(b *Builder) {
		b.WithNotifier(NotifierFunc(func(context.Context, ResetNotification) error {
			calls.Add(1)
			return errors.New("smtp down")
		}))
	})
	te.registerUser(t, "smtp@example.com")

	if err := te.RequestPasswordReset(context.Background(), "smtp@example.com"); err != nil {
		t.Fatalf("notifier failure must not surface: %v", err)
	}
	waitFor(t, func() bool { return te.NotificationStats().Failed == 1 })
	if calls.Load() != 1 {
		t.Fatalf("expected one delivery attempt, got %d", calls.Load())
	}
}

func TestPasswordResetStoreUpdateFailure(t *testing.T) {
	te, inbox := newResetEngine(t)
	te.registerUser(t, "upd@example.com")
	ctx := context.Background()

	if err := te.RequestPasswordReset(ctx, "upd@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	tok := tokenFromURL(t, inbox.next(t).URL)

	te.store.updateErr = errors.New("disk full")
	err := te.ConfirmPasswordReset(ctx, tok, newTestPassword)
	if err == nil || errors.Is(err, ErrResetInvalidOrExpired) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if StatusCode(err) != 500 {
		t.Fatalf("expected 500, got %d", StatusCode(err))
	}

	// The failed write released the token, so the same link works once the
	// backend recovers.
	te.store.mu.Lock()
	te.store.updateErr = nil
	te.store.mu.Unlock()
	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); err != nil {
		t.Fatalf("token must survive a failed password write: %v", err)
	}
	if err := te.ConfirmPasswordReset(ctx, tok, newTestPassword); !errors.Is(err, ErrResetInvalidOrExpired) {
		t.Fatalf("expected token to be spent after success, got %v", err)
	}
}

func TestResetURL(t *testing.T) {
	te := newTestEngine(t, func(b *Builder) {
		cfg := b.config
		cfg.Routes.PublicURL = "https://id.example.com/"
		b.WithConfig(cfg)
	})
	got := te.ResetURL("a+b/c")
	if got != "https://id.example.com/reset-password?token=a%2Bb%2Fc" {
		t.Fatalf("unexpected reset url %q", got)
	}
}
