package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnaes/engine/draft"
	"github.com/lnaes/engine/operator"
)

func testRequest() Request {
	return Request{
		RunID:  "run-1",
		Source: "Alice stood on the bridge.",
		Signal: operator.StyleSignal{Tone: "warm", Intensity: 0.5, Fidelity: 0.8},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPGeneratorSuccess(t *testing.T) {
	var received Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(draft.New("Alice stood on the bridge at dusk."))
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, WithLogger(quietLogger()))
	d, err := gen.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "Alice stood on the bridge at dusk.", d.Text())
	assert.Equal(t, "run-1", received.RunID)
	assert.Equal(t, "warm", received.Signal.Tone)
}

func TestHTTPGeneratorAdapterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, WithLogger(quietLogger()))
	_, err := gen.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPGeneratorInvalidDraft(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "plain text"},
		{"duplicate span ids", `{"spans":[{"id":"s1","text":"a"},{"id":"s1","text":"b"}]}`},
		{"empty span id", `{"spans":[{"id":"","text":"a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			gen := NewHTTPGenerator(srv.URL, WithLogger(quietLogger()))
			_, err := gen.Generate(context.Background(), testRequest())
			assert.Error(t, err)
		})
	}
}

func TestHTTPGeneratorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	gen := NewHTTPGenerator(srv.URL, WithLogger(quietLogger()))
	_, err := gen.Generate(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestPassthrough(t *testing.T) {
	d, err := Passthrough{}.Generate(context.Background(), Request{
		Source: "First paragraph.\n\nSecond paragraph.",
	})
	require.NoError(t, err)
	require.Len(t, d.Spans, 2)
	assert.Equal(t, "s1", d.Spans[0].ID)
	assert.Equal(t, "First paragraph.", d.Spans[0].Text)
}
