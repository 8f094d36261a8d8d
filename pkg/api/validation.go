package api

import "fmt"

// ValidationResult is the verdict of a pre-execution job check: a validity
// flag and the accumulated human-readable problems. The error list is empty
// exactly when Valid is true; AddError maintains that invariant, so build
// results through it rather than by hand.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// AddError records a problem and marks the result invalid.
func (r *ValidationResult) AddError(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Merge folds another result's errors into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil || other.Valid {
		return
	}
	r.Valid = false
	r.Errors = append(r.Errors, other.Errors...)
}
