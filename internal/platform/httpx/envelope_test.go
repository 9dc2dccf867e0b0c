package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]any{"id": "ord_1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}

	var envelope Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !envelope.Success {
		t.Fatalf("expected success true")
	}
	if envelope.Error != nil {
		t.Fatalf("expected no error block, got %+v", envelope.Error)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewError("order_not_found", "order not found", http.StatusNotFound).
		WithDetails(map[string]any{"order_id": "ord_404"})
	WriteError(context.Background(), rec, err)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}

	var envelope Envelope
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &envelope); decodeErr != nil {
		t.Fatalf("decode body: %v", decodeErr)
	}
	if envelope.Success {
		t.Fatalf("expected success false")
	}
	if envelope.Error == nil {
		t.Fatalf("expected error block")
	}
	if envelope.Error.Code != "order_not_found" {
		t.Fatalf("unexpected code %q", envelope.Error.Code)
	}
	if envelope.Error.Status != http.StatusNotFound {
		t.Fatalf("unexpected status %d", envelope.Error.Status)
	}
	if envelope.Error.Details["order_id"] != "ord_404" {
		t.Fatalf("missing details, got %+v", envelope.Error.Details)
	}
}

func TestNewErrorSanitisesNewlines(t *testing.T) {
	err := NewError("bad_request", "line1\nline2", http.StatusBadRequest)
	if err.Message != "line1 line2" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}
