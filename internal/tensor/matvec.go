package tensor

import (
	"runtime"
	"sync"
)

// Below this many multiply-adds MatVec stays on the calling goroutine.
const parallelThreshold = 1 << 16

type matVecTask struct {
	dst    []float32
	w      *Mat
	x      []float32
	rs, re int
	done   chan struct{}
}

type matVecPool struct {
	size      int
	tasks     chan matVecTask
	doneSlots chan chan struct{}
}

var (
	matVecWorkPool *matVecPool
	matVecPoolOnce sync.Once
)

func getMatVecPool() *matVecPool {
	matVecPoolOnce.Do(func() {
		matVecWorkPool = newMatVecPool(runtime.GOMAXPROCS(0))
	})
	return matVecWorkPool
}

func newMatVecPool(size int) *matVecPool {
	size = max(size, 1)
	p := &matVecPool{
		size:      size,
		tasks:     make(chan matVecTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				matVecRange(task.dst, task.w, task.x, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatVec computes dst = w * x. Large products are split by rows across a
// shared worker pool.
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	if w.R*w.C < parallelThreshold {
		matVecRange(dst, w, x, 0, w.R)
		return
	}
	getMatVecPool().run(dst, w, x)
}

func (p *matVecPool) run(dst []float32, w *Mat, x []float32) {
	workers := min(p.size, w.R)
	if workers <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	done := <-p.doneSlots
	active := 0
	for i := range workers {
		rs := i * chunk
		re := min(rs+chunk, w.R)
		if rs >= re {
			break
		}
		active++
		p.tasks <- matVecTask{dst: dst, w: w, x: x, rs: rs, re: re, done: done}
	}
	for range active {
		<-done
	}
	p.doneSlots <- done
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		row := w.Data[i*w.Stride : i*w.Stride+w.C]
		var sum float32
		j := 0
		for ; j+3 < w.C; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}
