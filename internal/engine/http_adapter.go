// ============================================================================
// ruvltra-core Inference Engine - Remote HTTP Backend
// ============================================================================
//
// Package: internal/engine
// File: http_adapter.go
// Function: Calls a remote inference endpoint over HTTP, negotiating one of
// two wire shapes (chat-completions or raw completion), with exponential
// backoff retry and circuit breaker protection, per spec §4.2.1.
//
// Design origin:
//   net/http is used directly rather than a retry library: the only direct
//   dependency on an HTTP retry helper anywhere in the reference corpus is
//   hashicorp/go-retryablehttp, and it only ever appears as an *indirect*
//   dependency (nothing in the corpus imports it directly), and its generic
//   retry policy cannot express this spec's precise rule that only a
//   request that exhausts all of its own retries counts once against the
//   circuit breaker's failure streak. The breaker itself is
//   engine.CircuitBreaker (see circuitbreaker.go).
//
// ============================================================================

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ChuLiYu/ruvltra-core/pkg/types"
)

const maxBackoff = 15 * time.Second

// wireFormat is the negotiated request/response shape for the remote
// endpoint, spec §4.2.1 "Protocol negotiation".
type wireFormat int

const (
	formatChat wireFormat = iota
	formatRaw
)

// HTTPAdapterConfig configures the remote backend.
type HTTPAdapterConfig struct {
	Endpoint         string
	Model            string
	APIKey           string
	Format           string // "auto" | "openai" | "llama"; empty behaves as "auto"
	RequestTimeout   time.Duration
	MaxRetries       int
	BaseBackoff      time.Duration
	BreakerThreshold int64
	BreakerCooldown  time.Duration
}

// HTTPAdapter is the remote-HTTP generation backend.
type HTTPAdapter struct {
	cfg     HTTPAdapterConfig
	format  wireFormat
	client  *http.Client
	breaker *CircuitBreaker
}

// NewHTTPAdapter builds an HTTP adapter with its own circuit breaker. The
// wire format is resolved once at construction time from cfg.Format,
// falling back to endpoint-path sniffing when cfg.Format is "auto" or
// unset.
func NewHTTPAdapter(cfg HTTPAdapterConfig) *HTTPAdapter {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	return &HTTPAdapter{
		cfg:     cfg,
		format:  resolveFormat(cfg.Format, cfg.Endpoint),
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		breaker: NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// resolveFormat implements spec §4.2.1's negotiation table: an explicit
// "openai"/"llama" config value wins outright; "auto" (or empty) infers
// from endpoint path substrings, defaulting to chat when nothing matches.
func resolveFormat(configured, endpoint string) wireFormat {
	switch configured {
	case "openai":
		return formatChat
	case "llama":
		return formatRaw
	}
	if strings.Contains(endpoint, "/chat/completions") || strings.Contains(endpoint, "/v1/completions") {
		return formatChat
	}
	if strings.Contains(endpoint, "/completion") || strings.Contains(endpoint, "/generate") {
		return formatRaw
	}
	return formatChat
}

func (a *HTTPAdapter) Name() types.Backend { return types.BackendHTTP }

// Ready reports whether the breaker currently admits calls.
func (a *HTTPAdapter) Ready() bool {
	return a.cfg.Endpoint != "" && a.breaker.State() != CircuitOpen
}

// chatMessage is one entry of an OpenAI-style chat-completions message
// array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type rawRequestBody struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// rawResultFields lists, in search order, the keys a raw-completion server
// may use for its generated text, per spec §4.2.1. Field names seen in the
// wild (llama.cpp's /completion, text-generation-webui's /generate, and
// similar) disagree on naming, so the field is searched for recursively.
var rawResultFields = []string{"content", "text", "response", "completion", "generated_text", "output"}

// findRawResult walks a decoded JSON value depth-first looking for the
// first key in rawResultFields holding a non-empty string.
func findRawResult(v interface{}) (string, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		if arr, ok := v.([]interface{}); ok {
			for _, elem := range arr {
				if s, found := findRawResult(elem); found {
					return s, true
				}
			}
		}
		return "", false
	}

	for _, key := range rawResultFields {
		if s, ok := obj[key].(string); ok && s != "" {
			return s, true
		}
	}
	for _, nested := range obj {
		if s, found := findRawResult(nested); found {
			return s, true
		}
	}
	return "", false
}

// findRawInt searches a decoded JSON object for the first integer-valued
// field among candidates, used for llama.cpp-style optional token-usage
// fields (tokens_evaluated/tokens_predicted) that have no fixed position.
func findRawInt(v interface{}, candidates ...string) (int, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return 0, false
	}
	for _, key := range candidates {
		if n, ok := obj[key].(float64); ok {
			return int(n), true
		}
	}
	return 0, false
}

// Generate issues the remote call, retrying retryable failures with
// exponential backoff and jitter, and reports exactly one outcome to the
// circuit breaker for the whole attempt.
func (a *HTTPAdapter) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (Output, error) {
	if a.cfg.Endpoint == "" {
		return Output{}, types.ErrBackendUnavailable{Backend: types.BackendHTTP, Note: "no endpoint configured"}
	}
	if !a.breaker.Allow() {
		return Output{}, types.ErrBackendUnavailable{Backend: types.BackendHTTP, Note: "circuit breaker open"}
	}

	raw, err := a.marshalRequest(prompt, maxTokens, temperature)
	if err != nil {
		a.breaker.RecordFailure()
		return Output{}, fmt.Errorf("http adapter: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := a.sleepBackoff(ctx, attempt); err != nil {
				a.breaker.RecordFailure()
				return Output{}, err
			}
		}

		out, retryable, err := a.attempt(ctx, raw)
		if err == nil {
			a.breaker.RecordSuccess()
			return out, nil
		}
		lastErr = err
		if !retryable {
			a.breaker.RecordFailure()
			return Output{}, types.ErrBackendError{Cause: err}
		}
	}

	a.breaker.RecordFailure()
	return Output{}, types.ErrBackendError{Cause: lastErr}
}

func (a *HTTPAdapter) marshalRequest(prompt string, maxTokens int, temperature float64) ([]byte, error) {
	if a.format == formatRaw {
		return json.Marshal(rawRequestBody{
			Model:       a.cfg.Model,
			Prompt:      prompt,
			NPredict:    maxTokens,
			Temperature: temperature,
		})
	}
	return json.Marshal(chatRequestBody{
		Model:       a.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// sleepBackoff waits httpRetryBaseMs·2^(attempt-1), where attempt counts
// retries from 1 (so the first retry waits the base delay), clamped to
// maxBackoff, plus up to 50ms of jitter, per spec §4.2.1.
func (a *HTTPAdapter) sleepBackoff(ctx context.Context, attempt int) error {
	backoff := a.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	wait := backoff + time.Duration(rand.Int63n(51))*time.Millisecond

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// attempt performs one HTTP round trip and parses the response per the
// adapter's negotiated wire format. The bool return reports whether a
// failure is retryable.
func (a *HTTPAdapter) attempt(ctx context.Context, raw []byte) (Output, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return Output{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Output{}, false, err
		}
		return Output{}, true, err
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp.StatusCode) {
		io.Copy(io.Discard, resp.Body)
		return Output{}, true, fmt.Errorf("http adapter: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Output{}, false, fmt.Errorf("http adapter: status %d: %s", resp.StatusCode, string(body))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, false, fmt.Errorf("http adapter: read response: %w", err)
	}

	if a.format == formatRaw {
		return a.parseRaw(bodyBytes)
	}
	return a.parseChat(bodyBytes)
}

func (a *HTTPAdapter) parseChat(body []byte) (Output, bool, error) {
	var out chatResponseBody
	if err := json.Unmarshal(body, &out); err != nil {
		return Output{}, false, fmt.Errorf("http adapter: decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return Output{}, false, errors.New("http adapter: well-formed response lacks content")
	}
	return Output{
		Text:             out.Choices[0].Message.Content,
		Model:            out.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		TokensKnown:      out.Usage.PromptTokens > 0 || out.Usage.CompletionTokens > 0,
	}, false, nil
}

func (a *HTTPAdapter) parseRaw(body []byte) (Output, bool, error) {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Output{}, false, fmt.Errorf("http adapter: decode raw response: %w", err)
	}
	text, found := findRawResult(decoded)
	if !found {
		return Output{}, false, errors.New("http adapter: well-formed response lacks content")
	}

	promptTokens, havePrompt := findRawInt(decoded, "tokens_evaluated", "prompt_tokens")
	completionTokens, haveCompletion := findRawInt(decoded, "tokens_predicted", "completion_tokens")

	return Output{
		Text:             text,
		Model:            a.cfg.Model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TokensKnown:      havePrompt || haveCompletion,
	}, false, nil
}

func isRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}
