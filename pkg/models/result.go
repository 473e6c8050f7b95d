package models

// FinishReason explains why a backend stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// Usage represents token usage for a single generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CalculateUsage builds a Usage record whose total is the sum of both sides.
func CalculateUsage(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// Add adds another usage record to this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// WarningType classifies a non-fatal generation warning.
type WarningType string

const (
	WarningUnsupportedSetting WarningType = "unsupported-setting"
	WarningUnsupportedTool    WarningType = "unsupported-tool"
	WarningOther              WarningType = "other"
)

// Warning describes something the backend ignored or adjusted.
type Warning struct {
	Type    WarningType `json:"type"`
	Setting string      `json:"setting,omitempty"`
	Message string      `json:"message,omitempty"`
}

// LogProb is the log probability of one generated token.
type LogProb struct {
	Token       string       `json:"token"`
	LogProb     float64      `json:"logprob"`
	TopLogProbs []TopLogProb `json:"top_logprobs,omitempty"`
}

// TopLogProb is one alternative considered for a generated token.
type TopLogProb struct {
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}
