package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestEnvelope tests the wire form of a message
func TestEnvelope(t *testing.T) {
	env := Envelope{Source: 2, Tag: 5, Data: []float64{0.1, 1.0 / 3, math.MaxFloat64, 1e-300}}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal Envelope: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	for _, field := range []string{"source", "tag", "data"} {
		if _, ok := jsonMap[field]; !ok {
			t.Errorf("Missing %s field", field)
		}
	}

	// Payloads must survive the round trip bit for bit
	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal Envelope: %v", err)
	}
	for i, v := range env.Data {
		if math.Float64bits(decoded.Data[i]) != math.Float64bits(v) {
			t.Errorf("Value %d: expected %v, got %v", i, v, decoded.Data[i])
		}
	}
}

// TestPostJSON tests the PostJSON function with various scenarios
func TestPostJSON(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		requestBody    interface{}
		expectStatus   int
		expectError    bool
		contextTimeout bool
	}{
		{
			name:           "accepted without body",
			serverResponse: http.StatusNoContent,
			requestBody:    Envelope{Source: 0, Tag: 1, Data: []float64{1}},
		},
		{
			name:           "server unavailable",
			serverResponse: http.StatusServiceUnavailable,
			requestBody:    Envelope{Source: 0, Tag: 1},
			expectError:    true,
			expectStatus:   http.StatusServiceUnavailable,
		},
		{
			name:           "bad request",
			serverResponse: http.StatusBadRequest,
			requestBody:    Envelope{Source: 0, Tag: 1},
			expectError:    true,
			expectStatus:   http.StatusBadRequest,
		},
		{
			name:           "context timeout",
			serverResponse: http.StatusNoContent,
			requestBody:    Envelope{},
			expectError:    true,
			contextTimeout: true,
		},
		{
			name:           "unmarshalable request body",
			serverResponse: http.StatusNoContent,
			requestBody:    make(chan int),
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST method, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected Content-Type application/json, got %s", ct)
				}
				if tt.contextTimeout {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.serverResponse)
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.contextTimeout {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, 1*time.Millisecond)
				defer cancel()
			}

			err := PostJSON(ctx, server.URL, tt.requestBody, nil)

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if tt.expectStatus != 0 {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.expectStatus {
					t.Errorf("Expected StatusError %d, got %v", tt.expectStatus, err)
				}
			}
		})
	}
}

// TestGetJSON tests the GetJSON function
func TestGetJSON(t *testing.T) {
	t.Run("decodes health response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				t.Errorf("Expected GET method, got %s", r.Method)
			}
			w.Write([]byte(`{"status":"ok","rank":3,"size":4}`))
		}))
		defer server.Close()

		var h HealthResponse
		if err := GetJSON(context.Background(), server.URL, &h); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if h.Status != "ok" || h.Rank != 3 || h.Size != 4 {
			t.Errorf("Unexpected health response %+v", h)
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		var h HealthResponse
		if err := GetJSON(context.Background(), server.URL, &h); err == nil {
			t.Error("Expected error for 404, got none")
		}
	})

	t.Run("invalid JSON response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{invalid json}`))
		}))
		defer server.Close()

		var h HealthResponse
		if err := GetJSON(context.Background(), server.URL, &h); err == nil {
			t.Error("Expected decode error, got none")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		var h HealthResponse
		if err := GetJSON(context.Background(), "://invalid-url", &h); err == nil {
			t.Error("Expected error for invalid URL, got none")
		}
	})
}
