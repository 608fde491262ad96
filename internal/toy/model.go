package toy

import (
	"context"
	"fmt"

	"github.com/samcharles93/steve/internal/tensor"
)

// maxPositions bounds the learned position table; positions wrap past it.
const maxPositions = 4096

// LM is a minimal language model used for smoke tests and demos. It has an
// embedding table, a position table and an output projection, all filled
// from a seed. Each position is scored independently of its neighbours, so
// any window width gives the same logits for the same (token, position).
type LM struct {
	vocab  int
	hidden int

	emb  tensor.Mat // vocab x hidden
	pos  tensor.Mat // maxPositions x hidden
	proj tensor.Mat // vocab x hidden, row j scores token j
	bias []float32
}

// New constructs a model with the given vocabulary and hidden size. Weights
// are deterministic for a given seed.
func New(vocab, hidden int, seed int64) (*LM, error) {
	if vocab <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("toy model: vocab and hidden must be positive (got %d, %d)", vocab, hidden)
	}
	m := &LM{
		vocab:  vocab,
		hidden: hidden,
		emb:    tensor.NewMat(vocab, hidden),
		pos:    tensor.NewMat(maxPositions, hidden),
		proj:   tensor.NewMat(vocab, hidden),
		bias:   make([]float32, vocab),
	}
	tensor.FillRand(&m.emb, seed+11, 2)
	tensor.FillRand(&m.pos, seed+17, 0.5)
	tensor.FillRand(&m.proj, seed+23, 2)
	return m, nil
}

// VocabSize implements model.Model.
func (m *LM) VocabSize() int {
	return m.vocab
}

// SetBias overrides the output bias of one token. Tests use it to make the
// model prefer a given token, e.g. the end-of-sequence id.
func (m *LM) SetBias(tok int, v float32) {
	m.bias[m.wrap(tok)] = v
}

// Forward implements model.Model.
func (m *LM) Forward(ctx context.Context, window [][]int, startPos int) ([][][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if startPos < 0 {
		return nil, fmt.Errorf("toy model: negative start position %d", startPos)
	}
	h := make([]float32, m.hidden)
	out := make([][][]float32, len(window))
	for b, row := range window {
		out[b] = make([][]float32, len(row))
		for j, tok := range row {
			m.hiddenState(h, tok, startPos+j)
			out[b][j] = m.project(h)
		}
	}
	return out, nil
}

func (m *LM) hiddenState(h []float32, tok, position int) {
	e := m.emb.Row(m.wrap(tok))
	p := m.pos.Row(position % maxPositions)
	for i := range h {
		h[i] = e[i] + p[i]
	}
}

func (m *LM) project(h []float32) []float32 {
	logits := make([]float32, m.vocab)
	tensor.MatVec(logits, &m.proj, h)
	for j, b := range m.bias {
		logits[j] += b
	}
	return logits
}

// wrap reduces out-of-range ids (including pad) into [0, vocab).
func (m *LM) wrap(tok int) int {
	tok %= m.vocab
	if tok < 0 {
		tok += m.vocab
	}
	return tok
}
