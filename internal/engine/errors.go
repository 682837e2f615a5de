package engine

import (
	"fmt"

	"erp-rules/internal/metadata"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(kind, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", kind, id),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

// ConfigValidationError turns rule definition problems into a 422 response.
func ConfigValidationError(errs metadata.ConfigErrors) *AppError {
	details := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = ErrorDetail{Field: e.Field, Rule: e.Rule, Message: e.Message}
	}
	return ValidationError(details)
}

func RuleNotExecutableError(id string) *AppError {
	return &AppError{
		Code:    "RULE_NOT_EXECUTABLE",
		Status:  409,
		Message: fmt.Sprintf("Rule %s is disabled or inactive", id),
	}
}

func HookTimeoutError(hookPoint string) *AppError {
	return &AppError{
		Code:    "HOOK_TIMEOUT",
		Status:  504,
		Message: fmt.Sprintf("Hook point %s did not finish in time", hookPoint),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func InternalError() *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Status: 500, Message: "Internal server error"}
}
