package inference

import "time"

// Config fixes the limits of an Engine for its whole lifetime.
type Config struct {
	// MaxSeqLen bounds prompt plus generated tokens per sequence.
	MaxSeqLen int
	// MaxBatchSize bounds the number of prompts per Generate call.
	MaxBatchSize int
	// PadID fills unused positions of the token matrix.
	PadID int
	// EndID stops a sequence once generated.
	EndID int
}

// Params is the per-call generation configuration.
type Params struct {
	// Temperature 0 selects greedy decoding.
	Temperature float64
	TopP        float64
	MaxGenLen   int
	LogProbs    bool
	// Echo returns the prompt tokens in front of the generated ones.
	Echo bool
	// Seed for the call's sampler. Negative picks one at random.
	Seed int64
}

// Output holds one token list per prompt, in input order.
type Output struct {
	Tokens [][]int
	// LogProbs is nil unless Params.LogProbs was set. LogProbs[i] has the
	// same length as Tokens[i].
	LogProbs [][]float64
	Stats    Stats
}

type Stats struct {
	TokensGenerated int
	ForwardCalls    int
	Seed            int64
	Duration        time.Duration
	TPS             float64
}
