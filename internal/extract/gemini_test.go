package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

func newTestGemini(t *testing.T, srv *httptest.Server) *Gemini {
	t.Helper()
	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		Model:      "test-model",
		Endpoint:   srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return g
}

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestGeminiExtract(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, geminiReply("```json\n{\"item\":\"Pizza\",\"amount\":250,\"paidBy\":\"John\",\"sharedWith\":[\"Alice\"]}\n```"))
	}))
	defer srv.Close()

	g := newTestGemini(t, srv)
	d, err := g.Extract(context.Background(), Audio{Data: []byte("RIFF"), MimeType: "audio/webm"}, ModeEqual)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if d.Label != "Pizza" || d.Amount != 250 || d.Payer != "John" || len(d.SharedWith) != 1 {
		t.Errorf("unexpected draft: %+v", d)
	}

	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	raw, _ := json.Marshal(gotBody)
	if !strings.Contains(string(raw), base64.StdEncoding.EncodeToString([]byte("RIFF"))) {
		t.Errorf("audio not sent inline: %s", raw)
	}
	if !strings.Contains(string(raw), "audio/webm") {
		t.Errorf("mime type not sent: %s", raw)
	}
}

func TestGeminiExtractErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"error":{"code":400,"message":"bad key"}}`, wantKind: KindAPI},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantKind: KindAPI},
		{name: "malformed envelope", status: http.StatusOK, body: "not json", wantKind: KindAPI},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, wantKind: KindAPI},
		{name: "unparseable text", status: http.StatusOK, body: geminiReply("I heard nothing"), wantKind: KindParse},
		{name: "incomplete draft", status: http.StatusOK, body: geminiReply(`{"item":"Pizza","amount":0,"paidBy":"John"}`), wantKind: KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestGemini(t, srv).Extract(context.Background(), Audio{Data: []byte("x")}, ModeEqual)
			kind, ok := KindOf(err)
			if !ok || kind != tt.wantKind {
				t.Fatalf("error = %v, want kind %s", err, tt.wantKind)
			}
		})
	}
}

func TestGeminiExtractNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	g := newTestGemini(t, srv)
	srv.Close()

	_, err := g.Extract(context.Background(), Audio{Data: []byte("x")}, ModeItemized)
	if kind, ok := KindOf(err); !ok || kind != KindNetwork {
		t.Fatalf("error = %v, want network kind", err)
	}
}
