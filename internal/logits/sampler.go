package logits

import (
	"math"
	"math/rand"
	"slices"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	// Seed for the sampler's private RNG. Negative means pick one at random.
	Seed        int64
	Temperature float64
	TopP        float64
}

// Sampler turns a logits vector into a token id. Each Sampler owns its RNG;
// nothing here touches process-wide random state.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Seed < 0 {
		cfg.Seed = rand.Int63()
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: cfg.Temperature <= 0,
	}
}

// Seed reports the seed actually used, which differs from the configured one
// when a random seed was requested.
func (s *Sampler) Seed() int64 {
	return s.cfg.Seed
}

// Greedy reports whether the sampler always returns the arg-max.
func (s *Sampler) Greedy() bool {
	return s.greedy
}

// Sample draws a single index from the provided logits vector. With a zero
// temperature the arg-max is returned and no randomness is consumed;
// otherwise the logits are scaled by 1/temperature, soft-maxed and passed
// through nucleus sampling.
func (s *Sampler) Sample(logits []float32) int {
	if s.greedy {
		return Argmax(logits)
	}
	return SampleTopP(Softmax(logits, s.cfg.Temperature), s.cfg.TopP, s.rng)
}

// SampleTopP performs nucleus sampling on a probability distribution.
//
// The distribution is sorted in descending order and every entry whose
// cumulative mass, not counting itself, already exceeds p is dropped. What is
// left is the smallest prefix reaching p plus the entry that crosses it. The
// survivors are renormalised and one of them is drawn. For p >= 1 nothing is
// dropped.
func SampleTopP(probs []float64, p float64, rng *rand.Rand) int {
	if len(probs) == 0 {
		panic("SampleTopP: empty distribution")
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case probs[a] > probs[b]:
			return -1
		case probs[a] < probs[b]:
			return 1
		default:
			return 0
		}
	})

	cut := len(order)
	var mass float64
	if p < 1 {
		var cum float64
		for i, id := range order {
			if cum > p {
				cut = i
				break
			}
			cum += probs[id]
		}
	}
	for _, id := range order[:cut] {
		mass += probs[id]
	}
	if mass <= 0 {
		return order[0]
	}

	r := rng.Float64() * mass
	var c float64
	for _, id := range order[:cut] {
		c += probs[id]
		if r < c {
			return id
		}
	}
	return order[cut-1]
}

// NucleusSize returns how many of the highest-probability entries survive the
// top-p cut for the given distribution.
func NucleusSize(probs []float64, p float64) int {
	if p >= 1 {
		return len(probs)
	}
	sorted := slices.Clone(probs)
	slices.SortFunc(sorted, func(a, b float64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})
	var cum float64
	for i, v := range sorted {
		if cum > p {
			return i
		}
		cum += v
	}
	return len(sorted)
}

// Softmax converts logits into probabilities after dividing by temperature.
// A non-positive temperature is treated as 1.
func Softmax(logits []float32, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1
	}
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := math.Inf(-1)
	for i, l := range logits {
		out[i] = float64(l) / temperature
		if out[i] > maxv {
			maxv = out[i]
		}
	}
	var sum float64
	for i := range out {
		out[i] = math.Exp(out[i] - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// LogSoftmax returns log(softmax(logits)) computed with the log-sum-exp trick.
func LogSoftmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := math.Inf(-1)
	for _, l := range logits {
		if float64(l) > maxv {
			maxv = float64(l)
		}
	}
	var sum float64
	for _, l := range logits {
		sum += math.Exp(float64(l) - maxv)
	}
	lse := maxv + math.Log(sum)
	for i, l := range logits {
		out[i] = float64(l) - lse
	}
	return out
}

// TokenLogProb is the log-likelihood the logits assign to target, i.e. the
// negated cross-entropy for a single position.
func TokenLogProb(logits []float32, target int) float64 {
	if target < 0 || target >= len(logits) {
		return math.Inf(-1)
	}
	return LogSoftmax(logits)[target]
}

// Argmax returns the index of the maximum value in the slice. Ties resolve to
// the lowest index. If the slice is empty it panics.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
