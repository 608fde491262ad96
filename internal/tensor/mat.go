// Package tensor holds the dense float32 matrix used by the toy model.
package tensor

import "math/rand"

// Mat is a dense row-major float32 matrix. Stride is the distance between
// the starts of consecutive rows; it equals C for matrices built here.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Stride: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data, which must hold exactly r*c values.
func NewMatFromData(r, c int, data []float32) Mat {
	if r < 0 || c < 0 || r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{R: r, C: c, Stride: c, Data: data}
}

// Row returns a view of row i. Writes go through to the matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills m with values uniform in (-scale/2, scale/2). The same seed
// always yields the same matrix.
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}
