// Package completion assembles text and chat completions from a tokenizer,
// the dialog encoder and the decoding engine.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/samcharles93/steve/internal/dialog"
	"github.com/samcharles93/steve/internal/inference"
	"github.com/samcharles93/steve/internal/logger"
	"github.com/samcharles93/steve/internal/metrics"
	"github.com/samcharles93/steve/internal/tokenizer"
)

// Options are the caller-facing generation settings.
type Options struct {
	Temperature float64
	TopP        float64
	// MaxGenLen nil means MaxSeqLen-1.
	MaxGenLen *int
	LogProbs  bool
	Echo      bool
	Seed      int64
}

// DefaultOptions mirrors the reference sampling settings.
func DefaultOptions() Options {
	return Options{
		Temperature: inference.DefaultTemperature,
		TopP:        inference.DefaultTopP,
		Seed:        -1,
	}
}

// CompletionPrediction is the result for one text prompt.
type CompletionPrediction struct {
	Generation   string    `json:"generation"`
	Tokens       []string  `json:"tokens,omitempty"`
	LogProbs     []float64 `json:"logprobs,omitempty"`
	CompletionID string    `json:"completion_id"`
}

// ChatPrediction is the assistant reply for one dialog.
type ChatPrediction struct {
	Generation   dialog.Message `json:"generation"`
	Tokens       []string       `json:"tokens,omitempty"`
	LogProbs     []float64      `json:"logprobs,omitempty"`
	CompletionID string         `json:"completion_id"`
}

// Generator is the decoding engine surface the service needs.
type Generator interface {
	Generate(ctx context.Context, prompts [][]int, params inference.Params) (*inference.Output, error)
	Config() inference.Config
}

// Service runs completions. It holds no per-call state.
type Service struct {
	tok     tokenizer.Tokenizer
	encoder *dialog.Encoder
	gen     Generator
	newID   func() string
}

// NewService wires a tokenizer to a generator.
func NewService(tok tokenizer.Tokenizer, gen Generator) (*Service, error) {
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	return &Service{
		tok:     tok,
		encoder: dialog.NewEncoder(tok),
		gen:     gen,
		newID:   uuid.NewString,
	}, nil
}

// MaxSeqLen is the sequence limit of the underlying engine.
func (s *Service) MaxSeqLen() int { return s.gen.Config().MaxSeqLen }

func (s *Service) params(opts Options) inference.Params {
	maxGen := s.gen.Config().MaxSeqLen - 1
	if opts.MaxGenLen != nil {
		maxGen = *opts.MaxGenLen
	}
	return inference.Params{
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxGenLen:   maxGen,
		LogProbs:    opts.LogProbs,
		Echo:        opts.Echo,
		Seed:        opts.Seed,
	}
}

// begin tags ctx with a fresh completion id and returns the tagged logger.
func (s *Service) begin(ctx context.Context) (context.Context, logger.Logger, string) {
	id := s.newID()
	log := logger.FromContext(ctx).With("completion_id", id)
	return logger.WithContext(ctx, log), log, id
}

// TextCompletion completes every prompt. Prompts are encoded with the begin
// marker only.
func (s *Service) TextCompletion(ctx context.Context, prompts []string, opts Options) ([]CompletionPrediction, error) {
	metrics.RecordCompletion("text")
	ctx, log, id := s.begin(ctx)
	params := s.params(opts)
	logger.Action(log, "text_completion_start", "text completion started",
		"prompts", len(prompts),
		"temperature", params.Temperature,
		"top_p", params.TopP,
		"max_gen_len", params.MaxGenLen,
		"logprobs", params.LogProbs,
		"echo", params.Echo,
	)
	if len(prompts) == 0 {
		metrics.RecordRejection(metrics.ReasonEmptyBatch)
		return nil, inference.ErrEmptyBatch
	}

	encoded := make([][]int, len(prompts))
	for i, p := range prompts {
		ids, err := tokenizer.SafeEncode(s.tok, p, true, false)
		if err != nil {
			return nil, fmt.Errorf("encode prompt %d: %w", i, err)
		}
		encoded[i] = ids
	}

	out, err := s.generate(ctx, encoded, params)
	if err != nil {
		return nil, err
	}

	preds := make([]CompletionPrediction, len(prompts))
	for i, toks := range out.Tokens {
		text, pieces, err := s.decode(toks, params.LogProbs)
		if err != nil {
			return nil, err
		}
		preds[i] = CompletionPrediction{Generation: text, CompletionID: id}
		if params.LogProbs {
			preds[i].Tokens = pieces
			preds[i].LogProbs = out.LogProbs[i]
		}
	}
	logger.Action(log, "text_completion_end", "text completion finished",
		"results", len(preds),
		"tokens", out.Stats.TokensGenerated,
	)
	return preds, nil
}

// ChatCompletion answers every dialog. The first dialog that fails order
// validation aborts the whole call. Dialogs containing reserved tags are
// still generated but answered with dialog.UnsafeContentMessage.
func (s *Service) ChatCompletion(ctx context.Context, dialogs []dialog.Dialog, opts Options) ([]ChatPrediction, error) {
	metrics.RecordCompletion("chat")
	ctx, log, id := s.begin(ctx)
	params := s.params(opts)
	params.Echo = false
	logger.Action(log, "chat_completion_start", "chat completion started",
		"dialogs", len(dialogs),
		"temperature", params.Temperature,
		"top_p", params.TopP,
		"max_gen_len", params.MaxGenLen,
		"logprobs", params.LogProbs,
	)
	if len(dialogs) == 0 {
		metrics.RecordRejection(metrics.ReasonEmptyBatch)
		return nil, inference.ErrEmptyBatch
	}

	prompts := make([][]int, len(dialogs))
	unsafe := make([]bool, len(dialogs))
	dialogIDs := make([]string, len(dialogs))
	unsafeCount := 0
	for i, d := range dialogs {
		enc, err := s.encoder.Encode(d)
		if err != nil {
			if errors.Is(err, dialog.ErrDialogOrder) {
				metrics.RecordRejection(metrics.ReasonDialogOrder)
			}
			return nil, fmt.Errorf("dialog %d: %w", i, err)
		}
		prompts[i] = enc.Tokens
		unsafe[i] = enc.Unsafe
		dialogIDs[i] = enc.DialogID
		if enc.Unsafe {
			unsafeCount++
		}
		logger.Action(log, "dialog_input_set", "dialog encoded",
			"dialog_id", enc.DialogID,
			"messages", len(enc.Messages),
			"prompt_tokens", len(enc.Tokens),
			"unsafe", enc.Unsafe,
			"dialog", enc.Messages.String(),
		)
	}
	metrics.RecordUnsafe(unsafeCount)

	out, err := s.generate(ctx, prompts, params)
	if err != nil {
		return nil, err
	}

	preds := make([]ChatPrediction, len(dialogs))
	for i, toks := range out.Tokens {
		text, pieces, err := s.decode(toks, params.LogProbs)
		if err != nil {
			return nil, err
		}
		if unsafe[i] {
			text = dialog.UnsafeContentMessage
		}
		preds[i] = ChatPrediction{
			Generation:   dialog.Message{Role: dialog.RoleAssistant, Content: text, DialogID: dialogIDs[i]},
			CompletionID: id,
		}
		if params.LogProbs {
			preds[i].Tokens = pieces
			preds[i].LogProbs = out.LogProbs[i]
		}
	}
	logger.Action(log, "chat_completion_end", "chat completion finished",
		"results", len(preds),
		"tokens", out.Stats.TokensGenerated,
	)
	return preds, nil
}

// generate splits prompts into engine-sized batches and joins the outputs in
// input order. Every prompt is checked before the first batch runs. With an
// explicit seed, batch k samples with Seed+k.
func (s *Service) generate(ctx context.Context, prompts [][]int, params inference.Params) (*inference.Output, error) {
	cfg := s.gen.Config()
	if err := inference.CheckPrompts(prompts, cfg.MaxSeqLen); err != nil {
		return nil, err
	}
	size := cfg.MaxBatchSize
	if size <= 0 {
		size = len(prompts)
	}
	merged := &inference.Output{Tokens: make([][]int, 0, len(prompts))}
	if params.LogProbs {
		merged.LogProbs = make([][]float64, 0, len(prompts))
	}
	for chunk, start := 0, 0; start < len(prompts); chunk, start = chunk+1, start+size {
		end := min(start+size, len(prompts))
		chunkParams := params
		if params.Seed >= 0 {
			chunkParams.Seed = params.Seed + int64(chunk)
		}
		out, err := s.gen.Generate(ctx, prompts[start:end], chunkParams)
		if err != nil {
			return nil, err
		}
		merged.Tokens = append(merged.Tokens, out.Tokens...)
		if params.LogProbs {
			merged.LogProbs = append(merged.LogProbs, out.LogProbs...)
		}
		merged.Stats.TokensGenerated += out.Stats.TokensGenerated
		merged.Stats.ForwardCalls += out.Stats.ForwardCalls
		merged.Stats.Duration += out.Stats.Duration
	}
	return merged, nil
}

func (s *Service) decode(toks []int, withPieces bool) (string, []string, error) {
	text, err := s.tok.Decode(toks)
	if err != nil {
		return "", nil, fmt.Errorf("decode: %w", err)
	}
	if !withPieces {
		return text, nil, nil
	}
	pieces, err := tokenizer.Pieces(s.tok, toks)
	if err != nil {
		return "", nil, err
	}
	return text, pieces, nil
}
