package inference

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/steve/internal/logger"
	"github.com/samcharles93/steve/internal/logits"
	"github.com/samcharles93/steve/internal/toy"
)

const (
	testVocab = 8
	testEnd   = 7
	testPad   = -1
)

// scriptModel favours pick(row, pos) for the logits at absolute position pos.
type scriptModel struct {
	calls atomic.Int32
	pick  func(row, pos int) int
}

func (m *scriptModel) VocabSize() int { return testVocab }

func (m *scriptModel) Forward(_ context.Context, window [][]int, startPos int) ([][][]float32, error) {
	m.calls.Add(1)
	out := make([][][]float32, len(window))
	for b, row := range window {
		out[b] = make([][]float32, len(row))
		for j := range row {
			out[b][j] = peaked(m.pick(b, startPos+j))
		}
	}
	return out, nil
}

func peaked(tok int) []float32 {
	vec := make([]float32, testVocab)
	for i := range vec {
		vec[i] = float32(i) * 0.1
	}
	vec[tok] = 10
	return vec
}

func always(tok int) func(int, int) int {
	return func(int, int) int { return tok }
}

type errModel struct{ err error }

func (errModel) VocabSize() int { return testVocab }
func (m errModel) Forward(context.Context, [][]int, int) ([][][]float32, error) {
	return nil, m.err
}

type panicModel struct{}

func (panicModel) VocabSize() int { return testVocab }
func (panicModel) Forward(context.Context, [][]int, int) ([][][]float32, error) {
	panic("boom")
}

type shortModel struct{}

func (shortModel) VocabSize() int { return testVocab }
func (shortModel) Forward(_ context.Context, window [][]int, _ int) ([][][]float32, error) {
	return make([][][]float32, len(window)), nil
}

func quietCtx() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func newTestEngine(t *testing.T, m *scriptModel, maxSeq, maxBatch int) *Engine {
	t.Helper()
	e, err := New(m, Config{MaxSeqLen: maxSeq, MaxBatchSize: maxBatch, PadID: testPad, EndID: testEnd})
	require.NoError(t, err)
	return e
}

func greedy(maxGen int) Params {
	return Params{Temperature: 0, TopP: 0.9, MaxGenLen: maxGen, Seed: 1}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Config{MaxSeqLen: 8, MaxBatchSize: 1})
	require.Error(t, err)
	_, err = New(&scriptModel{}, Config{MaxSeqLen: 0, MaxBatchSize: 1})
	require.Error(t, err)
	_, err = New(&scriptModel{}, Config{MaxSeqLen: 8, MaxBatchSize: 0})
	require.Error(t, err)
}

func TestGenerateRejectsBeforeCallingModel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		prompts [][]int
		params  Params
		want    error
	}{
		{"empty batch", nil, greedy(4), ErrEmptyBatch},
		{"batch too large", [][]int{{1}, {1}, {1}}, greedy(4), ErrBatchTooLarge},
		{"empty prompt", [][]int{{1}, {}}, greedy(4), ErrEmptyPrompt},
		{"prompt too long", [][]int{{1, 2, 3, 4, 5, 6, 7, 1, 2}}, greedy(4), ErrPromptTooLong},
		{"negative temperature", [][]int{{1}}, Params{Temperature: -1, TopP: 0.9, MaxGenLen: 4}, ErrInvalidParams},
		{"zero top p", [][]int{{1}}, Params{Temperature: 1, TopP: 0, MaxGenLen: 4}, ErrInvalidParams},
		{"top p above one", [][]int{{1}}, Params{Temperature: 1, TopP: 1.5, MaxGenLen: 4}, ErrInvalidParams},
		{"zero max gen len", [][]int{{1}}, Params{Temperature: 1, TopP: 0.9, MaxGenLen: 0}, ErrInvalidParams},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := &scriptModel{pick: always(4)}
			e := newTestEngine(t, m, 8, 2)
			_, err := e.Generate(quietCtx(), tc.prompts, tc.params)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidation(err))
			assert.Zero(t, m.calls.Load(), "model must not be called")
		})
	}
}

func TestPromptTooLongCarriesLengths(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptModel{pick: always(4)}, 3, 2)
	_, err := e.Generate(quietCtx(), [][]int{{1}, {1, 2, 3, 4}}, greedy(2))
	var tooLong *PromptTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 1, tooLong.Index)
	assert.Equal(t, 4, tooLong.Length)
	assert.Equal(t, 3, tooLong.Max)
}

func TestCheckPrompts(t *testing.T) {
	t.Parallel()
	require.NoError(t, CheckPrompts([][]int{{1}, {1, 2, 3}}, 3))

	err := CheckPrompts([][]int{{1}, {}, {1, 2, 3, 4}}, 3)
	require.ErrorIs(t, err, ErrEmptyPrompt)

	err = CheckPrompts([][]int{{1}, {1, 2}, {1, 2, 3, 4}}, 3)
	var tooLong *PromptTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 2, tooLong.Index)
	assert.True(t, IsValidation(err))
}

func TestGenerateGreedyMixedLengths(t *testing.T) {
	t.Parallel()
	m := &scriptModel{pick: always(4)}
	e := newTestEngine(t, m, 16, 4)

	out, err := e.Generate(quietCtx(), [][]int{{1, 2}, {3}}, greedy(3))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{4, 4, 4}, {4, 4, 4}}, out.Tokens)
	assert.Nil(t, out.LogProbs)
	assert.Equal(t, int32(4), m.calls.Load())
	assert.Equal(t, 4, out.Stats.ForwardCalls)
	assert.Equal(t, 6, out.Stats.TokensGenerated)
}

func TestGenerateEchoKeepsPrompt(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptModel{pick: always(5)}, 16, 4)
	p := greedy(3)
	p.Echo = true

	out, err := e.Generate(quietCtx(), [][]int{{1, 2}, {3}}, p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 5, 5, 5}, out.Tokens[0])
	assert.Equal(t, []int{3, 5, 5, 5}, out.Tokens[1])
	assert.Equal(t, 6, out.Stats.TokensGenerated)
}

func TestGenerateStopsWhenAllRowsEnded(t *testing.T) {
	t.Parallel()
	m := &scriptModel{pick: always(testEnd)}
	e := newTestEngine(t, m, 32, 4)

	out, err := e.Generate(quietCtx(), [][]int{{1, 2}, {3}}, greedy(20))
	require.NoError(t, err)
	// Row 1 ends at position 1, row 0 at position 2.
	assert.Equal(t, int32(2), m.calls.Load())
	assert.Equal(t, [][]int{{}, {}}, out.Tokens)
}

func TestGenerateTruncatesAtFirstEnd(t *testing.T) {
	t.Parallel()
	pick := func(_, pos int) int {
		if pos == 2 {
			return testEnd
		}
		return 3
	}
	e := newTestEngine(t, &scriptModel{pick: pick}, 32, 1)
	p := greedy(5)
	p.LogProbs = true

	out, err := e.Generate(quietCtx(), [][]int{{1}}, p)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, out.Tokens[0])
	require.Len(t, out.LogProbs[0], 2)
}

func TestGenerateRespectsLengthBounds(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptModel{pick: always(2)}, 4, 2)

	out, err := e.Generate(quietCtx(), [][]int{{1, 1, 1}, {1}}, greedy(10))
	require.NoError(t, err)
	assert.Len(t, out.Tokens[0], 1, "bounded by max sequence length")
	assert.Len(t, out.Tokens[1], 3)

	out, err = e.Generate(quietCtx(), [][]int{{1}}, greedy(2))
	require.NoError(t, err)
	assert.Len(t, out.Tokens[0], 2, "bounded by max gen len")
}

func TestGenerateLogProbsOfRealizedTokens(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptModel{pick: always(4)}, 16, 2)
	p := greedy(3)
	p.LogProbs = true
	p.Echo = true

	out, err := e.Generate(quietCtx(), [][]int{{1, 2}}, p)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 4, 4, 4}, out.Tokens[0])
	lp := out.LogProbs[0]
	require.Len(t, lp, 5)

	assert.Zero(t, lp[0])
	assert.InDelta(t, logits.TokenLogProb(peaked(4), 2), lp[1], 1e-9)
	for _, v := range lp[2:] {
		assert.InDelta(t, logits.TokenLogProb(peaked(4), 4), v, 1e-9)
	}
}

func TestGenerateFullPromptsScoresOnly(t *testing.T) {
	t.Parallel()
	m := &scriptModel{pick: always(4)}
	e := newTestEngine(t, m, 3, 2)
	p := greedy(5)
	p.LogProbs = true
	p.Echo = true

	out, err := e.Generate(quietCtx(), [][]int{{1, 2, 3}, {4, 4, 4}}, p)
	require.NoError(t, err)
	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 4, 4}}, out.Tokens)
	assert.Zero(t, out.Stats.TokensGenerated)
	for _, row := range out.LogProbs {
		require.Len(t, row, 3)
		assert.Zero(t, row[0])
		for _, v := range row[1:] {
			assert.Less(t, v, 0.0)
			assert.False(t, math.IsInf(v, 0))
		}
	}
	assert.InDelta(t, logits.TokenLogProb(peaked(4), 4), out.LogProbs[1][1], 1e-9)

	p.Echo = false
	out, err = e.Generate(quietCtx(), [][]int{{1, 2, 3}}, p)
	require.NoError(t, err)
	assert.Empty(t, out.Tokens[0])
	assert.Empty(t, out.LogProbs[0])
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	t.Parallel()
	lm, err := toy.New(64, 16, 3)
	require.NoError(t, err)
	e, err := New(lm, Config{MaxSeqLen: 32, MaxBatchSize: 4, PadID: testPad, EndID: 63})
	require.NoError(t, err)

	prompts := [][]int{{1, 2, 3}, {4}, {5, 6}}
	p := Params{Temperature: 1.0, TopP: 0.9, MaxGenLen: 12, Seed: 42}
	a, err := e.Generate(quietCtx(), prompts, p)
	require.NoError(t, err)
	b, err := e.Generate(quietCtx(), prompts, p)
	require.NoError(t, err)
	assert.Equal(t, a.Tokens, b.Tokens)
	assert.Equal(t, int64(42), a.Stats.Seed)

	g := p
	g.Temperature = 0
	g.Seed = 1
	c, err := e.Generate(quietCtx(), prompts, g)
	require.NoError(t, err)
	g.Seed = 2
	d, err := e.Generate(quietCtx(), prompts, g)
	require.NoError(t, err)
	assert.Equal(t, c.Tokens, d.Tokens, "greedy decoding ignores the seed")
}

func TestGenerateDoesNotMutatePrompts(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &scriptModel{pick: always(6)}, 16, 2)
	prompts := [][]int{{1, 2, 3}, {3}}
	_, err := e.Generate(quietCtx(), prompts, greedy(4))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {3}}, prompts)
}

func TestGenerateModelFailures(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxSeqLen: 8, MaxBatchSize: 1, PadID: testPad, EndID: testEnd}

	sentinel := errors.New("forced forward failure")
	e, err := New(errModel{err: sentinel}, cfg)
	require.NoError(t, err)
	_, err = e.Generate(quietCtx(), [][]int{{1}}, greedy(2))
	require.ErrorIs(t, err, sentinel)
	assert.False(t, IsValidation(err))

	e, err = New(panicModel{}, cfg)
	require.NoError(t, err)
	_, err = e.Generate(quietCtx(), [][]int{{1}}, greedy(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in Forward")

	e, err = New(shortModel{}, cfg)
	require.NoError(t, err)
	_, err = e.Generate(quietCtx(), [][]int{{1}}, greedy(2))
	require.ErrorIs(t, err, errMalformedModel)
}

func TestGenerateHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	m := &scriptModel{pick: always(4)}
	e := newTestEngine(t, m, 8, 1)
	ctx, cancel := context.WithCancel(quietCtx())
	cancel()
	_, err := e.Generate(ctx, [][]int{{1}}, greedy(2))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.calls.Load())
}
