package samlspflow

import "net/http"

// Setting holds a configuration value that is either fixed at startup or
// computed per request. The assertion consumer resolves its attribute
// mapping and provisioning policy through this, so multi-tenant hosts can
// vary them by request without this package knowing how.
type Setting[T any] struct {
	value T
	fn    func(*http.Request) T
}

// Static creates a setting with a fixed value.
func Static[T any](v T) Setting[T] {
	return Setting[T]{value: v}
}

// PerRequest creates a setting computed from the incoming request.
func PerRequest[T any](fn func(*http.Request) T) Setting[T] {
	return Setting[T]{fn: fn}
}

// Resolve returns the value for this request.
func (s Setting[T]) Resolve(r *http.Request) T {
	if s.fn != nil {
		return s.fn(r)
	}
	return s.value
}
