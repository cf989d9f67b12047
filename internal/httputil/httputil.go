// Package httputil provides shared HTTP request and response helpers.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hatchflow/provisioning/internal/errors"
)

// ReadAllWithLimit reads up to limit bytes and reports whether the body was
// truncated.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads up to limit bytes and fails when the body exceeds it.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}

// DecodeJSON decodes the request body into dst, writing a 400 on failure.
// Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps a ServiceError (or any error) to a JSON error body.
func WriteServiceError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}
	WriteJSON(w, svcErr.HTTPStatus, map[string]interface{}{
		"error": svcErr.Message,
		"code":  string(svcErr.Code),
	})
}

// BadRequest writes a 400 with a message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.InvalidInput(message))
}

// Unauthorized writes a 401 with a message.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.Unauthorized(message))
}

// InternalError writes a 500 with a message.
func InternalError(w http.ResponseWriter, message string) {
	WriteServiceError(w, errors.Internal(message, nil))
}
