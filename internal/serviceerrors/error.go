// Package serviceerrors carries errors between the service layers together
// with the message code the caller should eventually see.
package serviceerrors

import (
	"github.com/eval-forge/eval-forge/internal/messages"
)

// ServiceError pairs a message code with its parameters so the HTTP layer
// can render the caller-facing message. The rollback flag tells the storage
// layer whether the transaction that produced the error may still commit.
type ServiceError struct {
	messageCode   *messages.MessageCode
	messageParams []any
	rollback      bool
}

// NewServiceError builds an error that lets its transaction commit. Use
// WithRollback for errors that must undo the work done so far.
func NewServiceError(messageCode *messages.MessageCode, messageParams ...any) *ServiceError {
	return &ServiceError{messageCode: messageCode, messageParams: messageParams}
}

func (e *ServiceError) Error() string {
	return messages.GetErrorMessage(e.messageCode, e.messageParams...)
}

func (e *ServiceError) MessageCode() *messages.MessageCode {
	return e.messageCode
}

func (e *ServiceError) MessageParams() []any {
	return e.messageParams
}

// Status is the HTTP status code the message code maps to.
func (e *ServiceError) Status() int {
	return e.messageCode.GetStatus()
}

func (e *ServiceError) ShouldRollback() bool {
	return e.rollback
}

// WithRollback returns a copy of the error that asks the storage layer to
// roll the enclosing transaction back.
func (e *ServiceError) WithRollback() *ServiceError {
	withRollback := *e
	withRollback.rollback = true
	return &withRollback
}
