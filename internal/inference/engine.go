package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samcharles93/steve/internal/logger"
	"github.com/samcharles93/steve/internal/logits"
	"github.com/samcharles93/steve/internal/metrics"
	"github.com/samcharles93/steve/internal/model"
)

// Engine runs batched autoregressive generation against a Model. All decoding
// state lives inside a single Generate call, so an Engine may be shared;
// whether the Model tolerates concurrent Forward calls is up to the Model.
type Engine struct {
	model model.Model
	cfg   Config
}

// New validates cfg and returns an Engine over m.
func New(m model.Model, cfg Config) (*Engine, error) {
	if m == nil {
		return nil, errors.New("model is required")
	}
	if cfg.MaxSeqLen <= 0 {
		return nil, fmt.Errorf("max sequence length must be positive, got %d", cfg.MaxSeqLen)
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", cfg.MaxBatchSize)
	}
	return &Engine{model: m, cfg: cfg}, nil
}

// Config returns the engine limits.
func (e *Engine) Config() Config { return e.cfg }

// Generate extends every prompt until it emits EndID, reaches
// Params.MaxGenLen new tokens, or the batch fills Config.MaxSeqLen.
//
// Generation advances all rows in lockstep starting at the shortest prompt.
// Rows whose prompt is longer keep their prompt tokens at those positions and
// only start sampling once their prompt is exhausted. The loop stops early
// when every row has produced EndID.
func (e *Engine) Generate(ctx context.Context, prompts [][]int, params Params) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.validate(prompts, params); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	start := time.Now()
	bsz := len(prompts)

	minPrompt, maxPrompt := len(prompts[0]), len(prompts[0])
	for _, p := range prompts[1:] {
		minPrompt = min(minPrompt, len(p))
		maxPrompt = max(maxPrompt, len(p))
	}
	total := min(e.cfg.MaxSeqLen, params.MaxGenLen+maxPrompt)

	tokens := make([][]int, bsz)
	for b, p := range prompts {
		row := make([]int, total)
		for i := range row {
			row[i] = e.cfg.PadID
		}
		copy(row, p)
		tokens[b] = row
	}
	var logProbs [][]float64
	if params.LogProbs {
		logProbs = make([][]float64, bsz)
		for b := range logProbs {
			logProbs[b] = make([]float64, total)
		}
	}

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        params.Seed,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})

	logger.Action(log, "generate_start", "generation started",
		"batch", bsz,
		"min_prompt_len", minPrompt,
		"max_prompt_len", maxPrompt,
		"total_len", total,
		"temperature", params.Temperature,
		"top_p", params.TopP,
		"max_gen_len", params.MaxGenLen,
		"seed", sampler.Seed(),
	)

	forwardCalls := 0
	if minPrompt == total {
		// Every row is already full: nothing to generate, but the caller may
		// still want the likelihood of the prompt itself.
		out, err := e.forward(ctx, tokens, 0, total)
		forwardCalls++
		if err != nil {
			return nil, err
		}
		if params.LogProbs {
			for b := range tokens {
				e.scoreTargets(logProbs[b], tokens[b], out[b], 0, total-1)
			}
		}
	}

	eos := make([]bool, bsz)
	prev := 0
	for cur := minPrompt; cur < total; cur++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window := make([][]int, bsz)
		for b := range tokens {
			window[b] = tokens[b][prev:cur]
		}
		out, err := e.forward(ctx, window, prev, cur-prev)
		forwardCalls++
		if err != nil {
			return nil, fmt.Errorf("forward at position %d: %w", cur, err)
		}

		for b := range tokens {
			next := sampler.Sample(out[b][cur-prev-1])
			isPrompt := cur < len(prompts[b])
			if isPrompt {
				next = prompts[b][cur]
			}
			tokens[b][cur] = next
			if !isPrompt && next == e.cfg.EndID {
				eos[b] = true
			}
		}
		if params.LogProbs {
			for b := range tokens {
				e.scoreTargets(logProbs[b], tokens[b], out[b], prev, cur)
			}
		}
		prev = cur
		if !slices.Contains(eos, false) {
			break
		}
	}

	res := &Output{Tokens: make([][]int, bsz)}
	if params.LogProbs {
		res.LogProbs = make([][]float64, bsz)
	}
	generated := 0
	for b, p := range prompts {
		from := len(p)
		if params.Echo {
			from = 0
		}
		to := min(len(p)+params.MaxGenLen, total)
		toks := slices.Clone(tokens[b][from:to])
		var probs []float64
		if params.LogProbs {
			probs = slices.Clone(logProbs[b][from:to])
		}
		if i := slices.Index(toks, e.cfg.EndID); i >= 0 {
			toks = toks[:i]
			if probs != nil {
				probs = probs[:i]
			}
		}
		res.Tokens[b] = toks
		if params.LogProbs {
			res.LogProbs[b] = probs
		}
		echoed := 0
		if params.Echo {
			echoed = min(len(p), len(toks))
		}
		generated += len(toks) - echoed
	}

	res.Stats = Stats{
		TokensGenerated: generated,
		ForwardCalls:    forwardCalls,
		Seed:            sampler.Seed(),
		Duration:        time.Since(start),
	}
	if secs := res.Stats.Duration.Seconds(); secs > 0 {
		res.Stats.TPS = float64(generated) / secs
	}
	metrics.RecordGenerate(res.Stats.Duration, generated, forwardCalls)
	logger.Action(log, "generate_end", "generation finished",
		"tokens", generated,
		"forward_calls", forwardCalls,
		"duration", res.Stats.Duration,
		"tps", res.Stats.TPS,
	)
	return res, nil
}

// scoreTargets writes the log-likelihood of row[j+1] under the logits at j
// into dst[j+1] for every j in [from, to). Pad targets score 0.
func (e *Engine) scoreTargets(dst []float64, row []int, out [][]float32, from, to int) {
	for j := from; j < to; j++ {
		target := row[j+1]
		if target == e.cfg.PadID {
			dst[j+1] = 0
			continue
		}
		dst[j+1] = logits.TokenLogProb(out[j-from], target)
	}
}

// CheckPrompts rejects empty prompts and prompts longer than maxSeqLen.
// Callers that split a batch run it over the whole batch first so no part
// of it is generated when a later prompt is invalid.
func CheckPrompts(prompts [][]int, maxSeqLen int) error {
	for i, p := range prompts {
		if len(p) == 0 {
			metrics.RecordRejection(metrics.ReasonEmptyPrompt)
			return fmt.Errorf("prompt %d: %w", i, ErrEmptyPrompt)
		}
		if len(p) > maxSeqLen {
			metrics.RecordRejection(metrics.ReasonPromptTooLong)
			return &PromptTooLongError{Index: i, Length: len(p), Max: maxSeqLen}
		}
	}
	return nil
}

func (e *Engine) validate(prompts [][]int, params Params) error {
	reject := func(reason string, err error) error {
		metrics.RecordRejection(reason)
		return err
	}
	if len(prompts) == 0 {
		return reject(metrics.ReasonEmptyBatch, ErrEmptyBatch)
	}
	if len(prompts) > e.cfg.MaxBatchSize {
		return reject(metrics.ReasonBatchTooLarge, &BatchTooLargeError{Size: len(prompts), Max: e.cfg.MaxBatchSize})
	}
	if err := CheckPrompts(prompts, e.cfg.MaxSeqLen); err != nil {
		return err
	}
	switch {
	case params.Temperature < 0 || math.IsNaN(params.Temperature):
		return reject(metrics.ReasonInvalidParams, fmt.Errorf("%w: temperature %v must be >= 0", ErrInvalidParams, params.Temperature))
	case !(params.TopP > 0 && params.TopP <= 1):
		return reject(metrics.ReasonInvalidParams, fmt.Errorf("%w: top_p %v must be in (0, 1]", ErrInvalidParams, params.TopP))
	case params.MaxGenLen <= 0:
		return reject(metrics.ReasonInvalidParams, fmt.Errorf("%w: max_gen_len %d must be positive", ErrInvalidParams, params.MaxGenLen))
	}
	return nil
}

// forward calls the model and checks the result has one logits vector per
// window position. A panic inside the model is returned as an error.
func (e *Engine) forward(ctx context.Context, window [][]int, startPos, width int) (out [][][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic in Forward: %v", r)
		}
	}()
	out, err = e.model.Forward(ctx, window, startPos)
	if err != nil {
		return nil, err
	}
	if len(out) != len(window) {
		return nil, fmt.Errorf("%w: %d rows for batch of %d", errMalformedModel, len(out), len(window))
	}
	vocab := e.model.VocabSize()
	for b, row := range out {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d positions, want %d", errMalformedModel, b, len(row), width)
		}
		for _, vec := range row {
			if len(vec) == 0 || (vocab > 0 && len(vec) != vocab) {
				return nil, fmt.Errorf("%w: logits of size %d, vocab %d", errMalformedModel, len(vec), vocab)
			}
		}
	}
	return out, nil
}
