package api

import (
	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
)

// GenerationFields are the sampling settings shared by both endpoints.
type GenerationFields struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxGenLen   *int     `json:"max_gen_len,omitempty"`
	LogProbs    *bool    `json:"logprobs,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
}

func (g GenerationFields) options(echo *bool) inference.ParamOptions {
	return inference.ParamOptions{
		Temperature: g.Temperature,
		TopP:        g.TopP,
		MaxGenLen:   g.MaxGenLen,
		LogProbs:    g.LogProbs,
		Echo:        echo,
		Seed:        g.Seed,
	}
}

// CompletionRequest asks for text completions. Exactly one of Prompt and
// Prompts is set.
type CompletionRequest struct {
	Prompt  *string  `json:"prompt,omitempty"`
	Prompts []string `json:"prompts,omitempty"`
	Echo    *bool    `json:"echo,omitempty"`
	GenerationFields
}

// CompletionResponse wraps text completion results.
type CompletionResponse struct {
	ID      string                            `json:"id"`
	Object  string                            `json:"object"`
	Created int64                             `json:"created"`
	Results []completion.CompletionPrediction `json:"results"`
}

// ChatRequest asks for chat completions. Dialogs carries a batch; Messages is
// shorthand for a batch of one.
type ChatRequest struct {
	Dialogs  []dialog.Dialog `json:"dialogs,omitempty"`
	Messages dialog.Dialog   `json:"messages,omitempty"`
	GenerationFields
}

// ChatResponse wraps chat completion results.
type ChatResponse struct {
	ID      string                      `json:"id"`
	Object  string                      `json:"object"`
	Created int64                       `json:"created"`
	Results []completion.ChatPrediction `json:"results"`
}

type healthResponse struct {
	Status string `json:"status"`
}
