package flows

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailBytes = 254
	maxNameRunes  = 100
)

var (
	errEmailInvalid = errors.New("email address is invalid")
	errNameInvalid  = errors.New("name must be between 1 and 100 characters")
)

// NormalizeEmail trims and lower-cases raw and checks it is a single bare
// address. Display-name forms such as "Ada <a@x>" are rejected.
func NormalizeEmail(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxEmailBytes {
		return "", errEmailInvalid
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "", errEmailInvalid
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || !strings.Contains(s[at+1:], ".") {
		return "", errEmailInvalid
	}
	return strings.ToLower(s), nil
}

// NormalizeName trims raw and enforces 1..100 runes.
func NormalizeName(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(s)
	if n == 0 || n > maxNameRunes || !utf8.ValidString(s) {
		return "", errNameInvalid
	}
	return s, nil
}

// SanitizeNext returns next if it is a same-origin absolute path, otherwise
// "". Scheme-relative ("//evil"), backslash, and control-character forms are
// rejected.
func SanitizeNext(next string) string {
	if next == "" || len(next) > 2048 || next[0] != '/' {
		return ""
	}
	if len(next) > 1 && (next[1] == '/' || next[1] == '\\') {
		return ""
	}
	for _, r := range next {
		if r == '\\' || r < 0x20 || r == 0x7f {
			return ""
		}
	}
	return next
}
