package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/types"
)

// DocumentGenerator produces a document from a prompt and reports the token
// cost of the generation. The billing core charges whatever count the
// generator reports.
type DocumentGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*types.GenerationResult, error)
}

// GenerateRequest is the payload sent to the generation service.
type GenerateRequest struct {
	AccountID  string `json:"account_id"`
	Prompt     string `json:"prompt"`
	TemplateID string `json:"template_id,omitempty"`
	MaxTokens  int64  `json:"max_tokens,omitempty"`
}

// GeneratorClient calls the document-generation service over HTTP through
// the shared BaseClient resilience stack.
type GeneratorClient struct {
	base    *BaseClient
	baseURL string
	apiKey  config.SecretString
}

var _ DocumentGenerator = (*GeneratorClient)(nil)

// NewGeneratorClient builds a client from configuration. The HTTP timeout
// bounds a single attempt; retries are on top of it.
func NewGeneratorClient(cfg config.GeneratorConfig, opts ...BaseClientOption) *GeneratorClient {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 60 * time.Second
	}
	return &GeneratorClient{
		base:    NewBaseClient(httpClient, "document-generator", DefaultRetryPolicy(), opts...),
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// generateResponse mirrors the generation service's wire format.
type generateResponse struct {
	DocumentID     string `json:"document_id"`
	TokensConsumed int64  `json:"tokens_consumed"`
	ContentURL     string `json:"content_url"`
}

// Generate submits the prompt and returns the produced document reference.
// A reported token count of zero or less is treated as an upstream fault:
// charging nothing for a produced document would silently leak quota.
func (c *GeneratorClient) Generate(ctx context.Context, req GenerateRequest) (*types.GenerationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode generation request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build generation request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGenerator,
			fmt.Sprintf("generation service returned %d", resp.StatusCode),
			nil,
		)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGenerator, "failed to decode generation response", err)
	}
	if gen.DocumentID == "" || gen.TokensConsumed <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGenerator,
			"generation service returned an incomplete result",
			nil,
		)
	}

	return &types.GenerationResult{
		DocumentID:     gen.DocumentID,
		TokensConsumed: gen.TokensConsumed,
		ContentURL:     gen.ContentURL,
	}, nil
}
