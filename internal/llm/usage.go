package llm

import (
	"fmt"
	"time"
)

// ModelPricing is the price of a model per 1M tokens in USD
type ModelPricing struct {
	InputCost  float64
	OutputCost float64
}

// UsageStats represents the token usage of a single request
type UsageStats struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	TotalCost    float64   `json:"total_cost"`
	RequestTime  time.Time `json:"request_time"`
}

// CostCalculator handles model pricing and cost calculations
type CostCalculator struct {
	pricing map[string]ModelPricing
}

// NewCostCalculator creates a calculator with the prices of the models the
// planner is usually pointed at. Unknown models cost zero.
func NewCostCalculator() *CostCalculator {
	return &CostCalculator{
		pricing: map[string]ModelPricing{
			"anthropic/claude-3.5-sonnet": {InputCost: 3.00, OutputCost: 15.00},
			"anthropic/claude-3-haiku":    {InputCost: 0.25, OutputCost: 1.25},
			"openai/gpt-4o":               {InputCost: 2.50, OutputCost: 10.00},
			"openai/gpt-4o-mini":          {InputCost: 0.15, OutputCost: 0.60},
		},
	}
}

// CalculateCost computes the usage record of one request
func (c *CostCalculator) CalculateCost(provider, model string, inputTokens, outputTokens int64) *UsageStats {
	p := c.pricing[model]
	cost := (float64(inputTokens)/1000000.0)*p.InputCost + (float64(outputTokens)/1000000.0)*p.OutputCost

	return &UsageStats{
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		TotalCost:    cost,
		RequestTime:  time.Now(),
	}
}

// Add folds u into s. Provider and model are kept from the first record.
func (s *UsageStats) Add(u *UsageStats) {
	if u == nil {
		return
	}
	if s.Provider == "" {
		s.Provider, s.Model = u.Provider, u.Model
	}
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.TotalTokens += u.TotalTokens
	s.TotalCost += u.TotalCost
	s.RequestTime = u.RequestTime
}

// FormatCost formats a cost value for display
func FormatCost(cost float64) string {
	if cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}
