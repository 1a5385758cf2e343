package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kiptrack/internal/core"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/x").
		Data(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("Location") != "/x" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
	if strings.TrimSpace(w.Body.String()) != `{"n":1}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoPayload(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with body %q", w.Code, w.Body.String())
	}
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Data(map[string]any{"bad": make(chan int)}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestServiceUnavailableSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	ServiceUnavailableError("later").Write(w)
	if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") != "5" {
		t.Errorf("got %d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("submit: %w", core.ErrEmptyCategory), http.StatusBadRequest, "bad_request"},
		{"negative amount", fmt.Errorf("deny t1: %w", core.ErrInvalidAmount), http.StatusBadRequest, "bad_request"},
		{"not found", fmt.Errorf("student s9: %w", core.ErrNotFound), http.StatusNotFound, "not_found"},
		{"decided", fmt.Errorf("approve t1: %w", core.ErrAlreadyDecided), http.StatusConflict, "conflict"},
		{"unavailable", errors.Join(core.ErrUnavailable, errors.New("database is locked")), http.StatusServiceUnavailable, "unavailable"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			errorFor(context.Background(), tt.err).Write(w)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if !strings.Contains(w.Body.String(), `"code":"`+tt.code+`"`) {
				t.Errorf("body = %s, want code %s", w.Body.String(), tt.code)
			}
		})
	}

	// Internal details stay out of 500 responses.
	w := httptest.NewRecorder()
	errorFor(context.Background(), errors.New("secret dsn")).Write(w)
	if strings.Contains(w.Body.String(), "secret") {
		t.Errorf("500 body leaks error: %s", w.Body.String())
	}
}
