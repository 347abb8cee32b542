package flows

import (
	"context"
	"strconv"
	"time"
)

// UserRecord is the flow-local view of a stored user.
type UserRecord struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
}

// IssuedSession is the result of a successful session issuance.
type IssuedSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// AuditFunc emits one audit event. meta is evaluated lazily.
type AuditFunc func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)

// Hooks are the observability closures every flow accepts.
type Hooks struct {
	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)
}

func (h *Hooks) normalize() {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
