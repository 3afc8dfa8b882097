package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider is a Provider backed by an OpenAI-compatible chat
// completions REST API — the shape shared by OpenAI, GitHub Models, and
// most self-hosted gateways (Ollama's OpenAI-compatible endpoint
// included). One HTTPProvider instance serves one named backend; the
// RoutingPolicy decides which backends are tried and in what order.
//
// Grounded on
// _examples/original_source/shared/providers/openai_provider.py and
// github_models.py, which both wrap the same request/response shape
// against different base URLs.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds an HTTPProvider named name against baseURL
// (no trailing slash), authenticating with apiKey via a bearer token.
func NewHTTPProvider(name, baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

type chatCompletionRequest struct {
	Model          string                 `json:"model"`
	Messages       []ChatMessage          `json:"messages"`
	Temperature    float64                `json:"temperature,omitempty"`
	Seed           *int64                 `json:"seed,omitempty"`
	ResponseFormat map[string]interface{} `json:"response_format,omitempty"`
	Stream         bool                   `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
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

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *HTTPProvider) doRequest(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	var responseFormat map[string]interface{}
	if req.Schema != nil {
		responseFormat = map[string]interface{}{
			"type":        "json_schema",
			"json_schema": req.Schema,
		}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		Seed:           req.Seed,
		ResponseFormat: responseFormat,
		Stream:         stream,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Provider: p.name, Err: err}
	}
	return resp, nil
}

// classifyStatus maps an HTTP status to the gateway's typed provider
// errors so Gateway.callWithRetry's retry/no-retry branches apply.
func (p *HTTPProvider) classifyStatus(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var parsed apiErrorBody
	_ = json.Unmarshal(data, &parsed)
	msg := parsed.Error.Message
	if msg == "" {
		msg = string(data)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: p.name, Err: fmt.Errorf("%s", msg)}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 0.0
		if h := resp.Header.Get("Retry-After"); h != "" {
			fmt.Sscanf(h, "%f", &retryAfter)
		}
		return &RateLimitError{Provider: p.name, RetryAfter: retryAfter, Err: fmt.Errorf("%s", msg)}
	case resp.StatusCode >= 500:
		return &ConnectionError{Provider: p.name, Err: fmt.Errorf("server error %d: %s", resp.StatusCode, msg)}
	default:
		return fmt.Errorf("gateway: %s returned %d: %s", p.name, resp.StatusCode, msg)
	}
}

// Generate issues one non-streaming chat completion call.
func (p *HTTPProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	resp, err := p.doRequest(ctx, req, false)
	if err != nil {
		return ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, p.classifyStatus(resp)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, fmt.Errorf("gateway: decode response from %s: %w", p.name, err)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("gateway: %s returned no choices", p.name)
	}

	return ChatResponse{
		Content: parsed.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// GenerateStream issues a streaming chat completion call, emitting each
// SSE "data:" chunk's delta content onto the returned channel. The
// channel is closed when the stream ends or the context is cancelled.
// Token-level streaming UX is explicitly out of scope (spec.md §1); this
// exists only so HTTPProvider fully implements the Provider interface
// for callers (e.g. a future interactive tool) that want raw deltas.
func (p *HTTPProvider) GenerateStream(ctx context.Context, req ChatRequest) (<-chan string, error) {
	resp, err := p.doRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.classifyStatus(resp)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			for _, c := range chunk.Choices {
				if c.Delta.Content == "" {
					continue
				}
				select {
				case out <- c.Delta.Content:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type modelsListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels queries the provider's /models endpoint.
func (p *HTTPProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Provider: p.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.classifyStatus(resp)
	}

	var parsed modelsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: decode models list from %s: %w", p.name, err)
	}

	models := make([]ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, ModelInfo{ID: m.ID})
	}
	return models, nil
}

// HealthCheck does a lightweight GET against /models with a short
// timeout, independent of the shared client's longer generate timeout.
func (p *HTTPProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
