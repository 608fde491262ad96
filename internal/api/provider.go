package api

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/steve/internal/completion"
	"github.com/samcharles93/steve/internal/dialog"
)

// Completer is the completion surface served over HTTP.
type Completer interface {
	TextCompletion(ctx context.Context, prompts []string, opts completion.Options) ([]completion.CompletionPrediction, error)
	ChatCompletion(ctx context.Context, dialogs []dialog.Dialog, opts completion.Options) ([]completion.ChatPrediction, error)
	MaxSeqLen() int
}

// ServiceProvider hands out the completer for the duration of fn.
type ServiceProvider interface {
	WithService(ctx context.Context, fn func(svc Completer) error) error
}

// SerialProvider runs one request at a time against a single completer. The
// model behind it is not assumed to tolerate concurrent forward passes.
// Waiting requests give up when their context ends.
type SerialProvider struct {
	sem *semaphore.Weighted
	svc Completer
}

func NewSerialProvider(svc Completer) *SerialProvider {
	return &SerialProvider{sem: semaphore.NewWeighted(1), svc: svc}
}

func (p *SerialProvider) WithService(ctx context.Context, fn func(svc Completer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(p.svc)
}
