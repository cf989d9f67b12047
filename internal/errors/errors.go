// Package errors defines the typed error taxonomy used across the
// provisioning pipeline and its HTTP surface.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	CodeConfiguration      Code = "CONFIGURATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeIntegrationMissing Code = "INTEGRATION_MISSING"
	CodeDecryption         Code = "DECRYPTION_ERROR"
	CodeEngineAPI          Code = "ENGINE_API_ERROR"
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// ServiceError is the canonical error type. Handlers map it to an HTTP
// status; the orchestrator branches on its Code for fatal classification.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair for diagnostics.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Configuration reports a missing or invalid deployment setting.
func Configuration(message string) *ServiceError {
	return &ServiceError{Code: CodeConfiguration, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// IntegrationMissing reports declared providers with no connected credential.
func IntegrationMissing(providers []string) *ServiceError {
	return &ServiceError{
		Code:       CodeIntegrationMissing,
		Message:    fmt.Sprintf("required integrations not connected: %s", strings.Join(providers, ", ")),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]interface{}{"providers": providers},
	}
}

// Decryption reports an authentication-tag verification failure.
func Decryption(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeDecryption,
		Message:    "credential decryption failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// EngineAPI reports a non-success response from the workflow engine.
func EngineAPI(operation string, status int, body string) *ServiceError {
	return &ServiceError{
		Code:       CodeEngineAPI,
		Message:    fmt.Sprintf("engine %s failed with status %d", operation, status),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]interface{}{"operation": operation, "status": status, "body": body},
	}
}

// InvalidInput reports a malformed request.
func InvalidInput(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidInput, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports a missing or invalid caller identity.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "unauthorized"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether the error chain contains a ServiceError with code.
func IsCode(err error, code Code) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}
