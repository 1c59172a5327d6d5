package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient sends the prompt as a single user message to an
// OpenAI-compatible chat completion endpoint.
type OpenRouterClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	costCalc   *CostCalculator

	mu        sync.Mutex
	lastUsage *UsageStats
	total     UsageStats
}

// newOpenRouterClient creates a new OpenRouter client
func newOpenRouterClient(apiKey string, options map[string]interface{}) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}

	return &OpenRouterClient{
		apiKey:     apiKey,
		model:      stringOption(options, "model", "anthropic/claude-3.5-sonnet"),
		baseURL:    strings.TrimRight(stringOption(options, "base_url", openRouterBaseURL), "/"),
		httpClient: &http.Client{Timeout: durationOption(options, "timeout", 2*time.Minute)},
		costCalc:   NewCostCalculator(),
	}, nil
}

// Complete implements the Client interface
func (c *OpenRouterClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"temperature": 0.2,
		"max_tokens":  1024,
	}

	respBody, err := c.makeAPIRequest(ctx, "/chat/completions", payload)
	if err != nil {
		return "", err
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	usage := c.costCalc.CalculateCost("openrouter", c.model, response.Usage.PromptTokens, response.Usage.CompletionTokens)
	c.mu.Lock()
	c.lastUsage = usage
	c.total.Add(usage)
	c.mu.Unlock()
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// GetLastUsage returns token usage of the last completed call
func (c *OpenRouterClient) GetLastUsage() *UsageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsage
}

// TotalUsage sums every call made through this client
func (c *OpenRouterClient) TotalUsage() UsageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// makeAPIRequest performs an API request to OpenRouter
func (c *OpenRouterClient) makeAPIRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/lance13c/qarun")
	req.Header.Set("X-Title", "qarun")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
