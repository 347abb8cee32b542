package password

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

var (
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrPasswordTooLong    = errors.New("password is too long")
	ErrPasswordNoUpper    = errors.New("password must contain an uppercase letter")
	ErrPasswordNoLower    = errors.New("password must contain a lowercase letter")
	ErrPasswordNoDigit    = errors.New("password must contain a digit")
	ErrPasswordNoSymbol   = errors.New("password must contain a symbol")
	ErrPasswordInvalidUTF = errors.New("password must be valid UTF-8")
)

// Policy is the strength rule applied to new passwords. MinLength counts
// runes; MaxBytes bounds the input handed to the hasher.
type Policy struct {
	MinLength     int
	MaxBytes      int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires at least 8 characters with mixed case, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxBytes:      128,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check returns the first rule pw violates, or nil.
func (p Policy) Check(pw string) error {
	if !utf8.ValidString(pw) {
		return ErrPasswordInvalidUTF
	}
	if p.MaxBytes > 0 && len(pw) > p.MaxBytes {
		return ErrPasswordTooLong
	}
	if utf8.RuneCountInString(pw) < p.MinLength {
		return ErrPasswordTooShort
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return ErrPasswordNoUpper
	case p.RequireLower && !lower:
		return ErrPasswordNoLower
	case p.RequireDigit && !digit:
		return ErrPasswordNoDigit
	case p.RequireSymbol && !symbol:
		return ErrPasswordNoSymbol
	}
	return nil
}
