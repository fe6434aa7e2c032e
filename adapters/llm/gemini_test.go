package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanooro/dagnerai/domain"
)

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

type fakeGemini struct {
	mu       sync.Mutex
	status   int
	body     string
	paths    []string
	requests []generateRequest
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.requests = append(f.requests, req)
	status, body := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, fake *fakeGemini) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client
}

func TestGenerate_Success(t *testing.T) {
	fake := &fakeGemini{
		status: http.StatusOK,
		body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello!"},{"text":"ignored"}]}},{"content":{"parts":[{"text":"second"}]}}]}`,
	}
	client := newTestClient(t, fake)

	text, err := client.Generate(context.Background(), "You are Ai Hoshino")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)

	require.Len(t, fake.requests, 1)
	require.Len(t, fake.requests[0].Contents, 1)
	require.Len(t, fake.requests[0].Contents[0].Parts, 1)
	assert.Equal(t, "You are Ai Hoshino", fake.requests[0].Contents[0].Parts[0].Text)
	assert.True(t, strings.HasSuffix(fake.paths[0], "models/gemini-1.5-flash:generateContent"), fake.paths[0])
	assert.Contains(t, fake.paths[0], "/v1beta/")
}

func TestGenerate_Malformed(t *testing.T) {
	bodies := map[string]string{
		"no candidates":    `{}`,
		"empty candidates": `{"candidates":[]}`,
		"no content":       `{"candidates":[{"finishReason":"SAFETY"}]}`,
		"no parts":         `{"candidates":[{"content":{"role":"model","parts":[]}}]}`,
		"no text":          `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"image/png","data":"AA=="}}]}}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, &fakeGemini{status: http.StatusOK, body: body})

			_, err := client.Generate(context.Background(), "prompt")
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestGenerate_HTTPError(t *testing.T) {
	client := newTestClient(t, &fakeGemini{
		status: http.StatusInternalServerError,
		body:   `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`,
	})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestGenerate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "test-key", BaseURL: url + "/"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}
