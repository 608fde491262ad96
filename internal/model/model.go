package model

import "context"

// Model is the numerical network behind generation. The engine treats it as
// a black box: given a batch of token windows it returns next-token logits.
type Model interface {
	// Forward evaluates window (batch x width token ids) whose first column
	// sits at absolute position startPos. The result is batch x width x vocab
	// logits; entry [b][j] scores the token following window[b][j].
	//
	// Width varies between calls: the engine passes the shared prompt prefix
	// first and one new column per step afterwards. Implementations may cache
	// internally but must not rely on the caller to manage that cache.
	Forward(ctx context.Context, window [][]int, startPos int) ([][][]float32, error)
	// VocabSize is the length of every logits vector.
	VocabSize() int
}
