package oauth

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindExchangeFailed ErrorKind = "token_exchange_failed"
	KindUserInfoFailed ErrorKind = "userinfo_failed"
)

// Result is either Ok(value) or Err(kind). The underlying cause is kept for
// logging only and must never reach the browser.
type Result[T any] struct {
	value T
	kind  ErrorKind
	cause error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failure of the given kind.
func Fail[T any](kind ErrorKind, cause error) Result[T] {
	return Result[T]{kind: kind, cause: cause}
}

func (r Result[T]) IsOk() bool { return r.kind == KindNone }

// Value returns the wrapped value; it is the zero value for failures.
func (r Result[T]) Value() T { return r.value }

func (r Result[T]) Kind() ErrorKind { return r.kind }

func (r Result[T]) Cause() error { return r.cause }
