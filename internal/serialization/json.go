package serialization

import (
	"encoding/json"

	"github.com/eval-forge/eval-forge/internal/executioncontext"
	validator "github.com/go-playground/validator/v10"
)

// Unmarshal decodes jsonBytes into v and then runs struct tag validation, so
// request bodies arrive both syntactically and structurally checked. Field
// level violations are logged against the request before the error returns.
func Unmarshal(validate *validator.Validate, executionContext *executioncontext.ExecutionContext, jsonBytes []byte, v any) error {
	err := json.Unmarshal(jsonBytes, v)
	if err != nil {
		return err
	}
	// now validate the unmarshalled data
	err = validate.StructCtx(executionContext.Ctx, v)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, validationError := range validationErrors {
				executionContext.Logger.Info("Validation error", "field", validationError.Field(), "tag", validationError.Tag(), "value", validationError.Value())
			}
		}
		return err
	}
	return nil
}
