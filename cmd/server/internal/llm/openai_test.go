package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a fine story"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "test-model")
	out, err := c.Generate(context.Background(), []Message{
		{Role: "system", Content: "You are a novelist."},
		{Role: "user", Content: "Write something."},
	})
	require.NoError(t, err)
	assert.Equal(t, "a fine story", out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Len(t, gotBody["messages"], 2)
}

func TestOpenAIClientGenerate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "test-model")
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClientGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "test-model")
	_, err := c.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}
