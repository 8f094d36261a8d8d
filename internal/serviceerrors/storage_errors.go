package serviceerrors

import "fmt"

// StorageError represents an error in storage operations
type StorageError struct {
	Message string
	Code    int
}

func (e *StorageError) Error() string {
	return e.Message
}

func NewStorageErrorWithError(err error, format string, a ...any) *StorageError {
	msg := fmt.Sprintf(format, a...)
	e := fmt.Errorf("%s: %w", msg, err)
	return &StorageError{Message: e.Error(), Code: 500}
}

func NewStorageError(format string, a ...any) *StorageError {
	return &StorageError{Message: fmt.Sprintf(format, a...), Code: 500}
}

func NewStorageErrorWithCode(code int, format string, a ...any) *StorageError {
	return &StorageError{Message: fmt.Sprintf(format, a...), Code: code}
}

// NewNotFoundError builds the storage error every backend returns for a
// missing resource, so handlers can map it to a 404 uniformly.
func NewNotFoundError(format string, a ...any) *StorageError {
	return &StorageError{Message: fmt.Sprintf(format, a...), Code: 404}
}

// IsNotFound reports whether err is a storage error for a missing resource.
func IsNotFound(err error) bool {
	if se, ok := err.(*StorageError); ok {
		return se.Code == 404
	}
	return false
}
