package session

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := Encode(&Session{UserID: strings.Repeat("u", 256)}); err == nil {
		t.Fatal("expected oversized user id to be rejected")
	}
}

func TestDecodeRejectsUnknownVersionAndTrailingBytes(t *testing.T) {
	blob, err := Encode(&Session{UserID: "u", Email: "e", CreatedAt: 1, ExpiresAt: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	bad := append([]byte{}, blob...)
	bad[0] = 9
	if _, err := Decode(bad); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for unknown version, got %v", err)
	}
	if _, err := Decode(append(blob, 0)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for trailing bytes, got %v", err)
	}
}

func FuzzDecodeSession(f *testing.F) {
	seed, _ := Encode(&Session{UserID: "u-1", Email: "a@b.c", CreatedAt: 1, ExpiresAt: 2})
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{1, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(sess)
		if err != nil {
			t.Fatalf("re-encode decoded session: %v", err)
		}
		if string(again) != string(data) {
			t.Fatal("decode/encode is not stable")
		}
	})
}
