package apiframework

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is the wire-level error shape. It renders as an OpenAI-style
// error object so SDK clients can decode it uniformly.
type APIError struct {
	err       error
	message   string
	param     string
	errorType string
	errorCode string
}

func (e *APIError) Error() string {
	return e.message
}

func (e *APIError) Unwrap() error {
	return e.err
}

// Type returns the error classification, e.g. "invalid_request_error".
func (e *APIError) Type() string { return e.errorType }

// Code returns the machine-readable error code.
func (e *APIError) Code() string { return e.errorCode }

// Param names the request parameter the error relates to, if any.
func (e *APIError) Param() string { return e.param }

type errorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    string  `json:"code"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// Encode writes v as a JSON response with the given status.
func Encode[T any](w http.ResponseWriter, _ *http.Request, status int, v T) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Decode reads the request body into a value of type T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, ErrEmptyRequestBody
	}
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, ErrEmptyRequestBody
		}
		return v, fmt.Errorf("%w: decode json: %w", ErrUnprocessableEntity, err)
	}
	return v, nil
}

// Error maps err onto an HTTP status for the given operation and writes the
// error response. It returns the error it was given so handlers can
// `return serverops.Error(...)` or discard the result.
func Error(w http.ResponseWriter, r *http.Request, err error, op Operation) error {
	status := mapErrorToStatus(op, err)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = NewAPIError(err, "", "")
	}
	errorType, errorCode := apiErr.errorType, apiErr.errorCode
	if errorType == "" {
		errorType, errorCode = getErrorTypeAndCode(status)
	}

	var param *string
	if apiErr.param != "" {
		param = &apiErr.param
	}
	resp := errorResponse{Error: errorBody{
		Message: apiErr.message,
		Type:    errorType,
		Param:   param,
		Code:    errorCode,
	}}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
	return err
}

// GetQueryParam returns the named query parameter or defaultValue when it is
// absent. The description documents the parameter for API reference
// generation.
func GetQueryParam(r *http.Request, name, defaultValue, description string) string {
	_ = description
	if v := r.URL.Query().Get(name); v != "" {
		return v
	}
	return defaultValue
}

// GetPathParam returns the named path wildcard value. The description
// documents the parameter for API reference generation.
func GetPathParam(r *http.Request, name, description string) string {
	_ = description
	return r.PathValue(name)
}
