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

// openAIProvider speaks the OpenAI chat-completions wire format, which also
// covers OpenRouter and OpenPipe deployments.
type openAIProvider struct {
	providerName string
	apiKey       string
	apiBase      string
	headers      map[string]string
	client       *http.Client
	retryConfig  RetryConfig
}

func newOpenAIProvider(name, apiKey, apiBase string, headers map[string]string, client *http.Client, retry RetryConfig) *openAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &openAIProvider{
		providerName: name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		headers:      headers,
		client:       client,
		retryConfig:  retry,
	}
}

func (p *openAIProvider) name() string { return p.providerName }

func (p *openAIProvider) complete(ctx context.Context, req Request) (*Result, error) {
	body := p.buildRequestBody(req, false)

	return retryDo(ctx, p.retryConfig, func() (*Result, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, &InvalidProviderResponse{Provider: p.providerName, Detail: fmt.Sprintf("decode response: %v", err)}
		}
		return p.parseResponse(&resp)
	})
}

func (p *openAIProvider) stream(ctx context.Context, req Request, emit func(Fragment) bool) (*Result, error) {
	body := p.buildRequestBody(req, true)

	// Retry covers the connection phase only; once bytes flow, no retry.
	respBody, err := retryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
		return p.doRequest(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &Result{FinishReason: "stop"}

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if len(chunk.Citations) > 0 {
			result.Citations = chunk.Citations
		}
		if chunk.Usage != nil {
			result.Usage = &Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			result.Content += choice.Delta.Content
			if !emit(Fragment{Content: choice.Delta.Content}) {
				return result, nil
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			frag := Fragment{
				ToolName: strings.TrimSpace(tc.Function.Name),
				ToolArgs: tc.Function.Arguments,
			}
			if !emit(frag) {
				return result, nil
			}
		}
		if choice.FinishReason != "" {
			result.FinishReason = choice.FinishReason
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &TransportError{Op: "read stream", Err: err}
	}

	return result, nil
}

func (p *openAIProvider) buildRequestBody(req Request, stream bool) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := map[string]interface{}{"role": m.Role}

		if m.Role == RoleUser && len(m.Images) > 0 {
			var parts []map[string]interface{}
			for _, img := range m.Images {
				parts = append(parts, map[string]interface{}{
					"type": "image_url",
					"image_url": map[string]interface{}{
						"url": fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data),
					},
				})
			}
			if m.Content != "" {
				parts = append(parts, map[string]interface{}{"type": "text", "text": m.Content})
			}
			msg["content"] = parts
		} else {
			msg["content"] = m.Content
		}
		msgs = append(msgs, msg)
	}

	body := map[string]interface{}{
		"model":       req.Model,
		"messages":    msgs,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"stream":      stream,
	}
	if stream {
		body["stream_options"] = map[string]interface{}{"include_usage": true}
	}
	return body
}

func (p *openAIProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.providerName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.providerName, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: p.providerName + " request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Provider:   p.providerName,
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

func (p *openAIProvider) parseResponse(resp *openAIResponse) (*Result, error) {
	if len(resp.Choices) == 0 {
		return nil, &InvalidProviderResponse{Provider: p.providerName, Detail: "missing choices"}
	}

	result := &Result{
		Content:      resp.Choices[0].Message.Content,
		Citations:    resp.Citations,
		FinishReason: resp.Choices[0].FinishReason,
	}
	if result.FinishReason == "" {
		result.FinishReason = "stop"
	}
	if resp.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// OpenAI wire structures.

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Citations []string     `json:"citations,omitempty"`
	Usage     *openAIUsage `json:"usage,omitempty"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int `json:"index"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Citations []string     `json:"citations,omitempty"`
	Usage     *openAIUsage `json:"usage,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
