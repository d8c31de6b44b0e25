package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "hello"}

	JSON(w, http.StatusOK, data)

	result := w.Result()
	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, result.StatusCode)
	}

	if result.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", result.Header.Get("Content-Type"))
	}

	var response Response
	if err := json.NewDecoder(result.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if !response.Success {
		t.Error("Response should be successful")
	}
}

func TestJSONWithMeta(t *testing.T) {
	w := httptest.NewRecorder()

	JSONWithMeta(w, http.StatusOK, []string{"a", "b"}, &Meta{Count: 2})

	var response Response
	if err := json.NewDecoder(w.Result().Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Meta == nil || response.Meta.Count != 2 {
		t.Errorf("Expected meta count 2, got %+v", response.Meta)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid input")

	result := w.Result()
	if result.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, result.StatusCode)
	}

	var response Response
	if err := json.NewDecoder(result.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Success {
		t.Error("Response should not be successful")
	}
	if response.Error == nil {
		t.Fatal("Response should have error")
	}
	if response.Error.Code != "BAD_REQUEST" {
		t.Errorf("Expected error code 'BAD_REQUEST', got '%s'", response.Error.Code)
	}
	if response.Error.Message != "Invalid input" {
		t.Errorf("Expected message 'Invalid input', got '%s'", response.Error.Message)
	}
}

func TestValidationErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	errors := ValidationErrors{
		{Field: "title", Message: "is required"},
		{Field: "min_confidence", Message: "is out of range"},
	}

	ValidationErrorResponse(w, errors)

	result := w.Result()
	if result.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, result.StatusCode)
	}

	var response Response
	if err := json.NewDecoder(result.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected error code 'VALIDATION_ERROR', got '%s'", response.Error.Code)
	}
	if len(response.Error.Details) != 2 {
		t.Errorf("Expected 2 error details, got %d", len(response.Error.Details))
	}
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "x") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "x") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "x") }, http.StatusInternalServerError},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "x") }, http.StatusConflict},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "x") }, http.StatusServiceUnavailable},
		{"ok", func(w http.ResponseWriter) { OK(w, "x") }, http.StatusOK},
		{"accepted", func(w http.ResponseWriter) { Accepted(w, nil) }, http.StatusAccepted},
		{"no content", NoContent, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	if err := decodeJSON(httptest.NewRecorder(), r, &v); err == nil {
		t.Error("Expected unknown field to be rejected")
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	if err := decodeJSON(httptest.NewRecorder(), r, &v); err != nil || v.Name != "a" {
		t.Errorf("Expected decode to succeed, got %v", err)
	}
}
