package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(text string) chatResponseBody {
	var out chatResponseBody
	out.Model = "remote-1"
	out.Choices = make([]struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}, 1)
	out.Choices[0].Message.Content = text
	return out
}

func TestHTTPAdapter_SuccessOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse("generated text"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL,
		RequestTimeout:   time.Second,
		MaxRetries:       2,
		BaseBackoff:      time.Millisecond,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Second,
	})

	out, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "generated text", out.Text)
	assert.Equal(t, "remote-1", out.Model)
}

func TestHTTPAdapter_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatResponse("ok after retry"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL,
		RequestTimeout:   time.Second,
		MaxRetries:       3,
		BaseBackoff:      time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  time.Second,
	})

	out, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "ok after retry", out.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPAdapter_NonRetryableStatusFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL,
		RequestTimeout:   time.Second,
		MaxRetries:       3,
		BaseBackoff:      time.Millisecond,
		BreakerThreshold: 5,
		BreakerCooldown:  time.Second,
	})

	_, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPAdapter_ExhaustedRetriesTripsBreakerOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL,
		RequestTimeout:   time.Second,
		MaxRetries:       1,
		BaseBackoff:      time.Millisecond,
		BreakerThreshold: 1,
		BreakerCooldown:  time.Minute,
	})

	_, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, a.breaker.State())
	assert.False(t, a.Ready())
}

func TestHTTPAdapter_NoEndpointUnavailable(t *testing.T) {
	a := NewHTTPAdapter(HTTPAdapterConfig{})
	assert.False(t, a.Ready())

	_, err := a.Generate(context.Background(), "p", 10, 0.1)
	require.Error(t, err)
}

func TestHTTPAdapter_RawCompletionShapeAutoInferredFromPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rawRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "prompt", req.Prompt)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":          "llama-style output",
			"tokens_evaluated": 12,
			"tokens_predicted": 34,
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL + "/completion",
		RequestTimeout:   time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Second,
	})
	assert.Equal(t, formatRaw, a.format)

	out, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "llama-style output", out.Text)
	assert.True(t, out.TokensKnown)
	assert.Equal(t, 12, out.PromptTokens)
	assert.Equal(t, 34, out.CompletionTokens)
}

func TestHTTPAdapter_RawShapeSearchesNestedFieldsRecursively(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"meta": map[string]interface{}{
				"ok": true,
			},
			"result": map[string]interface{}{
				"generated_text": "nested output",
			},
		})
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPAdapterConfig{
		Endpoint:         srv.URL,
		Format:           "llama",
		RequestTimeout:   time.Second,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Second,
	})

	out, err := a.Generate(context.Background(), "prompt", 10, 0.1)
	require.NoError(t, err)
	assert.Equal(t, "nested output", out.Text)
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, formatChat, resolveFormat("openai", "http://x/anything"))
	assert.Equal(t, formatRaw, resolveFormat("llama", "http://x/anything"))
	assert.Equal(t, formatChat, resolveFormat("auto", "http://x/v1/chat/completions"))
	assert.Equal(t, formatChat, resolveFormat("auto", "http://x/v1/completions"))
	assert.Equal(t, formatRaw, resolveFormat("auto", "http://x/completion"))
	assert.Equal(t, formatRaw, resolveFormat("auto", "http://x/generate"))
	assert.Equal(t, formatChat, resolveFormat("auto", "http://x/unknown"))
}
