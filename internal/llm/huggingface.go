package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	huggingFaceBaseURL      = "https://api-inference.huggingface.co/models"
	huggingFaceDefaultModel = "mistralai/Mistral-7B-Instruct-v0.2"
)

// HuggingFaceProvider calls the Hugging Face inference API.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHuggingFaceProvider creates a provider. An empty baseURL selects the
// public inference endpoint.
func NewHuggingFaceProvider(apiKey, baseURL string) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = huggingFaceBaseURL
	}
	return &HuggingFaceProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the provider name.
func (p *HuggingFaceProvider) Name() string { return ProviderHuggingFace }

// Complete runs text generation on the requested model.
func (p *HuggingFaceProvider) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = huggingFaceDefaultModel
	}

	inputs := req.Prompt
	if req.System != "" {
		inputs = req.System + "\n\n" + req.Prompt
	}
	payload := map[string]any{"inputs": inputs}
	if req.MaxTokens > 0 {
		payload["parameters"] = map[string]any{"max_new_tokens": req.MaxTokens, "return_full_text": false}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal huggingface request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create huggingface request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read huggingface response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("huggingface %s: status %d: %s", model, resp.StatusCode, string(respBody))
	}

	return Response{
		Content:  parseHuggingFaceOutput(respBody),
		Provider: ProviderHuggingFace,
		Model:    model,
	}, nil
}

// parseHuggingFaceOutput extracts generated text. Task types other than text
// generation return arbitrary JSON, which is passed through verbatim.
func parseHuggingFaceOutput(body []byte) string {
	var generations []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &generations); err == nil && len(generations) > 0 && generations[0].GeneratedText != "" {
		return generations[0].GeneratedText
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return single.GeneratedText
	}
	return string(body)
}

var _ Provider = (*HuggingFaceProvider)(nil)
