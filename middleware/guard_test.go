package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testPolicy() Policy {
	cfg := goIdentity.DefaultConfig()
	return NewPolicy(cfg)
}

func TestClassify(t *testing.T) {
	p := testPolicy()
	cases := map[string]PathClass{
		"/dashboard":          PathProtected,
		"/dashboard/":         PathProtected,
		"/dashboard/projects": PathProtected,
		"/account/settings":   PathProtected,
		"/dashboardx":         PathPublic,
		"/auth/login":         PathAuthOnly,
		"/auth/register":      PathAuthOnly,
		"/auth/loginx":        PathPublic,
		"/auth/logout":        PathPublic,
		"/":                   PathPublic,
		"/pricing":            PathPublic,
	}
	for path, want := range cases {
		if got := p.Classify(path); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestDecideTable(t *testing.T) {
	p := testPolicy()
	cases := []struct {
		class         PathClass
		authenticated bool
		wantAction    Action
		wantLocation  string
	}{
		{PathPublic, false, Allow, ""},
		{PathPublic, true, Allow, ""},
		{PathProtected, false, Redirect, "/auth/login?next=%2Fdashboard%2Fprojects%3Ftab%3D2"},
		{PathProtected, true, Allow, ""},
		{PathAuthOnly, true, Redirect, "/dashboard"},
		{PathAuthOnly, false, Allow, ""},
	}
	for _, tc := range cases {
		d := p.Decide(tc.class, tc.authenticated, "/dashboard/projects", "tab=2")
		if d.Action != tc.wantAction || d.Location != tc.wantLocation {
			t.Fatalf("Decide(%s, %v) = %+v, want %v %q", tc.class, tc.authenticated, d, tc.wantAction, tc.wantLocation)
		}
	}
}

func TestDecisionStatus(t *testing.T) {
	d := Decision{Action: Redirect}
	if d.Status(http.MethodGet) != http.StatusFound || d.Status(http.MethodHead) != http.StatusFound {
		t.Fatalf("expected 302 for GET and HEAD")
	}
	if d.Status(http.MethodPost) != http.StatusSeeOther {
		t.Fatalf("expected 303 for POST")
	}
}

type fakeValidator struct {
	valid string
	calls int
}

func (f *fakeValidator) SessionCookieName() string { return "session" }

func (f *fakeValidator) ValidateSession(_ context.Context, raw string) (*goIdentity.Principal, error) {
	f.calls++
	if raw != f.valid {
		return nil, goIdentity.ErrUnauthenticated
	}
	return &goIdentity.Principal{UserID: "u1", Email: "u1@example.com", SessionID: "s1"}, nil
}

func serve(h http.Handler, method, target, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardMiddleware(t *testing.T) {
	v := &fakeValidator{valid: "good"}
	var seen *goIdentity.Principal
	h := Guard(v, testPolicy())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := serve(h, http.MethodGet, "/dashboard?tab=1", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/auth/login?next=%2Fdashboard%3Ftab%3D1" {
		t.Fatalf("anonymous protected: got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = serve(h, http.MethodGet, "/dashboard", "expired")
	if rec.Code != http.StatusFound {
		t.Fatalf("invalid cookie must count as anonymous, got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/dashboard", "good")
	if rec.Code != http.StatusNoContent || seen == nil || seen.UserID != "u1" {
		t.Fatalf("authenticated protected: got %d principal %+v", rec.Code, seen)
	}

	rec = serve(h, http.MethodPost, "/auth/login", "good")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("authenticated auth-only POST: got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	seen = nil
	rec = serve(h, http.MethodGet, "/auth/login", "")
	if rec.Code != http.StatusNoContent || seen != nil {
		t.Fatalf("anonymous auth-only: got %d", rec.Code)
	}

	rec = serve(h, http.MethodGet, "/pricing", "good")
	if rec.Code != http.StatusNoContent || seen == nil {
		t.Fatalf("public path must pass through with principal, got %d", rec.Code)
	}

	calls := v.calls
	serve(h, http.MethodGet, "/pricing", "")
	if v.calls != calls {
		t.Fatalf("no cookie must not reach the validator")
	}
}

func TestGuardWithEngine(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := goIdentity.DefaultConfig()
	cfg.Token.SigningKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(memory.New()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	res, err := engine.Register(context.Background(), goIdentity.RegisterRequest{
		Email: "guard@example.com", Password: "Correct-Horse-9", Name: "G",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	h := Guard(engine, NewPolicy(engine.Config()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Errorf("expected principal on protected route")
		} else if p.Email != "guard@example.com" {
			t.Errorf("unexpected principal %+v", p)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serve(h, http.MethodGet, "/dashboard", res.Session.Token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	engine.Logout(context.Background(), res.Session.Token)
	if rec := serve(h, http.MethodGet, "/dashboard", res.Session.Token); rec.Code != http.StatusFound {
		t.Fatalf("logged out cookie must redirect, got %d", rec.Code)
	}
}

func TestPrincipalFromContextEmpty(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatalf("expected no principal")
	}
	if _, ok := PrincipalFromContext(WithPrincipal(context.Background(), nil)); ok {
		t.Fatalf("nil principal must not count")
	}
}
