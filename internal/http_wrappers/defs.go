package http_wrappers

import "github.com/eval-forge/eval-forge/internal/messages"

// RequestWrapper is the read-only view of an HTTP request the handlers are
// written against. Handlers never mutate a request, so everything they need
// arrives through these accessors and tests can feed canned values without
// net/http plumbing.
type RequestWrapper interface {
	Method() string
	// URI is the request path including the raw query. List handlers echo
	// it back in pagination links.
	URI() string
	Header(key string) string
	Path() string
	// Query returns every value of the parameter, never nil.
	Query(key string) []string
	// BodyAsBytes drains the request body. A missing body yields an empty
	// slice, not an error.
	BodyAsBytes() ([]byte, error)
	// PathValue returns the named segment from the matched route pattern.
	PathValue(name string) string
}

// ResponseWrapper is the write side handed to handlers. Failures go through
// the message catalogue so every error response carries a message code and
// the request id for tracing.
type ResponseWrapper interface {
	ErrorWithMessageCode(requestId string, messageCode *messages.MessageCode, messageParams ...any)
	SetHeader(key string, value string)
	SetStatusCode(code int)
	Write(buf []byte) (n int, err error)
	// WriteJSON encodes v with the given status code. A nil v writes the
	// headers and status only.
	WriteJSON(v any, code int)
}
