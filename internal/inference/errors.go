package inference

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBatch     = errors.New("empty batch")
	ErrBatchTooLarge  = errors.New("batch too large")
	ErrEmptyPrompt    = errors.New("empty prompt")
	ErrPromptTooLong  = errors.New("prompt too long")
	ErrInvalidParams  = errors.New("invalid generation parameters")
	errMalformedModel = errors.New("model returned malformed logits")
)

// BatchTooLargeError reports a batch above Config.MaxBatchSize.
type BatchTooLargeError struct {
	Size int
	Max  int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d prompts exceeds max batch size %d", e.Size, e.Max)
}

func (e *BatchTooLargeError) Unwrap() error { return ErrBatchTooLarge }

// PromptTooLongError reports a prompt longer than Config.MaxSeqLen.
type PromptTooLongError struct {
	Index  int
	Length int
	Max    int
}

func (e *PromptTooLongError) Error() string {
	return fmt.Sprintf("prompt %d has %d tokens, max sequence length is %d", e.Index, e.Length, e.Max)
}

func (e *PromptTooLongError) Unwrap() error { return ErrPromptTooLong }

// IsValidation reports whether err is a rejected request rather than a model
// or runtime failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrBatchTooLarge) ||
		errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrPromptTooLong) ||
		errors.Is(err, ErrInvalidParams)
}
