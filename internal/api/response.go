package api

import (
	"encoding/json"
	"net/http"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details,omitempty"`
}

// Meta represents list metadata
type Meta struct {
	Count int `json:"count"`
}

func writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func success(status int) bool { return status >= 200 && status < 300 }

// JSON writes data in the envelope; success follows the status class
func JSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, Response{Success: success(status), Data: data})
}

// JSONWithMeta is JSON for list results
func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	writeEnvelope(w, status, Response{Success: success(status), Data: data, Meta: meta})
}

// Error writes a failed envelope with a machine readable code
func Error(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// ValidationErrorResponse reports every invalid field at once
func ValidationErrorResponse(w http.ResponseWriter, errors ValidationErrors) {
	writeEnvelope(w, http.StatusBadRequest, Response{Error: &ErrorInfo{
		Code:    "VALIDATION_ERROR",
		Message: "Request validation failed",
		Details: errors,
	}})
}

// Common error responses
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, "NOT_FOUND", message)
}

func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, "CONFLICT", message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", message)
}

// OK sends a 200 OK response
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Accepted sends a 202 Accepted response
func Accepted(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusAccepted, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes a request body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
