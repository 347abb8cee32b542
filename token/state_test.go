package token

import (
	"strings"
	"testing"
	"time"
)

func TestStateRoundTripAndExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := now
	c := newTestCodec(t, Config{Issuer: "goidentity", Now: func() time.Time { return clock }})

	raw, err := c.SignState("nonce-1", "acme", 10*time.Minute)
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	claims, err := c.VerifyState(raw)
	if err != nil {
		t.Fatalf("verify state: %v", err)
	}
	if claims.Nonce != "nonce-1" || claims.Provider != "acme" {
		t.Fatalf("unexpected state claims: %+v", claims)
	}

	clock = now.Add(2 * time.Hour)
	if _, err := c.VerifyState(raw); err != ErrInvalidToken {
		t.Fatalf("expired state: expected ErrInvalidToken, got %v", err)
	}
}

func TestStateAndSessionTokensDoNotCross(t *testing.T) {
	c := newTestCodec(t, Config{})

	session, err := c.Sign(Payload{UserID: "u1", SessionID: "s1"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.VerifyState(session); err != ErrInvalidToken {
		t.Fatalf("session token accepted as state: %v", err)
	}

	state, err := c.SignState("n", "acme", time.Minute)
	if err != nil {
		t.Fatalf("sign state: %v", err)
	}
	if _, err := c.Verify(state); err != ErrInvalidToken {
		t.Fatalf("state token accepted as session: %v", err)
	}

	other := newTestCodec(t, Config{Key: []byte(strings.Repeat("z", 32))})
	forged, _ := other.SignState("n", "acme", time.Minute)
	if _, err := c.VerifyState(forged); err != ErrInvalidToken {
		t.Fatalf("forged state accepted: %v", err)
	}
}

func TestSignStateRejectsBadInput(t *testing.T) {
	c := newTestCodec(t, Config{})
	if _, err := c.SignState("n", "acme", 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
	if _, err := c.SignState("", "acme", time.Minute); err == nil {
		t.Fatal("expected empty nonce to be rejected")
	}
}
