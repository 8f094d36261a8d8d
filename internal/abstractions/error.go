package abstractions

import "github.com/eval-forge/eval-forge/internal/messages"

// ServiceError is the error contract between the layers. Lower layers attach
// a message code and its parameters; the HTTP layer renders the caller-facing
// message from them, and the storage layer consults ShouldRollback before
// committing the transaction the error came out of.
type ServiceError interface {
	error
	MessageCode() *messages.MessageCode
	MessageParams() []any
	ShouldRollback() bool
}
