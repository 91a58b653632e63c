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
)

const anthropicAPIVersion = "2023-06-01"

// anthropicProvider speaks the Anthropic messages API.
type anthropicProvider struct {
	apiKey      string
	apiBase     string
	client      *http.Client
	retryConfig RetryConfig
}

func newAnthropicProvider(apiKey, apiBase string, client *http.Client, retry RetryConfig) *anthropicProvider {
	if apiBase == "" {
		apiBase = "https://api.anthropic.com/v1"
	}
	return &anthropicProvider{
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		client:      client,
		retryConfig: retry,
	}
}

func (p *anthropicProvider) name() string { return "anthropic" }

func (p *anthropicProvider) complete(ctx context.Context, req Request) (*Result, error) {
	body := p.buildRequestBody(req, false)

	return retryDo(ctx, p.retryConfig, func() (*Result, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp anthropicResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, &InvalidProviderResponse{Provider: "anthropic", Detail: fmt.Sprintf("decode response: %v", err)}
		}
		return p.parseResponse(&resp)
	})
}

func (p *anthropicProvider) stream(ctx context.Context, req Request, emit func(Fragment) bool) (*Result, error) {
	body := p.buildRequestBody(req, true)

	// Retry covers the connection phase only; once streaming starts, no retry.
	respBody, err := retryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
		return p.doRequest(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &Result{FinishReason: "stop"}
	var currentEvent string
	toolName := ""
	toolJSON := ""

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "content_block_start":
			var ev anthropicContentBlockStart
			if err := json.Unmarshal([]byte(data), &ev); err == nil && ev.ContentBlock.Type == "tool_use" {
				toolName = strings.TrimSpace(ev.ContentBlock.Name)
				toolJSON = ""
			}

		case "content_block_delta":
			var ev anthropicContentBlockDelta
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				switch ev.Delta.Type {
				case "text_delta":
					result.Content += ev.Delta.Text
					if !emit(Fragment{Content: ev.Delta.Text}) {
						return result, nil
					}
				case "input_json_delta":
					toolJSON += ev.Delta.PartialJSON
				}
			}

		case "content_block_stop":
			if toolName != "" {
				if !emit(Fragment{ToolName: toolName, ToolArgs: toolJSON}) {
					return result, nil
				}
				toolName = ""
			}

		case "message_delta":
			var ev anthropicMessageDelta
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				switch ev.Delta.StopReason {
				case "":
				case "max_tokens":
					result.FinishReason = "length"
				case "tool_use":
					result.FinishReason = "tool_calls"
				default:
					result.FinishReason = "stop"
				}
				if ev.Usage.OutputTokens > 0 {
					if result.Usage == nil {
						result.Usage = &Usage{}
					}
					result.Usage.CompletionTokens = ev.Usage.OutputTokens
					result.Usage.TotalTokens = result.Usage.PromptTokens + ev.Usage.OutputTokens
				}
			}

		case "error":
			var ev anthropicErrorEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				return nil, &InvalidProviderResponse{
					Provider: "anthropic",
					Detail:   fmt.Sprintf("stream error: %s: %s", ev.Error.Type, ev.Error.Message),
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &TransportError{Op: "read stream", Err: err}
	}

	return result, nil
}

// buildRequestBody converts to the messages API shape: the system turn rides
// a dedicated top-level field, and user/assistant turns must alternate.
func (p *anthropicProvider) buildRequestBody(req Request, stream bool) map[string]interface{} {
	var system string
	msgs := make([]map[string]interface{}, 0, len(req.Messages))

	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}

		if m.Role == RoleUser && len(m.Images) > 0 {
			var parts []map[string]interface{}
			for _, img := range m.Images {
				parts = append(parts, map[string]interface{}{
					"type": "image",
					"source": map[string]interface{}{
						"type":       "base64",
						"media_type": img.MimeType,
						"data":       img.Data,
					},
				})
			}
			if m.Content != "" {
				parts = append(parts, map[string]interface{}{"type": "text", "text": m.Content})
			}
			msgs = append(msgs, map[string]interface{}{"role": m.Role, "content": parts})
			continue
		}

		role := m.Role
		if role == RoleTool {
			// The messages API accepts only user and assistant turns.
			role = RoleUser
		}
		msgs = append(msgs, map[string]interface{}{"role": role, "content": m.Content})
	}

	body := map[string]interface{}{
		"model":       req.Model,
		"messages":    msgs,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"stream":      stream,
	}
	if system != "" {
		body["system"] = system
	}
	return body
}

func (p *anthropicProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "anthropic request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Provider:   "anthropic",
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

func (p *anthropicProvider) parseResponse(resp *anthropicResponse) (*Result, error) {
	if len(resp.Content) == 0 {
		return nil, &InvalidProviderResponse{Provider: "anthropic", Detail: "missing content blocks"}
	}

	result := &Result{FinishReason: "stop"}
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}
	switch resp.StopReason {
	case "max_tokens":
		result.FinishReason = "length"
	case "tool_use":
		result.FinishReason = "tool_calls"
	}
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		result.Usage = &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return result, nil
}

// Anthropic wire structures.

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContentBlockStart struct {
	ContentBlock struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"content_block"`
}

type anthropicContentBlockDelta struct {
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type anthropicMessageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
