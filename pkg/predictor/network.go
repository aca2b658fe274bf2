package predictor

import (
	"math"
	"math/rand"
)

// network is a small per-timestep encoder with learned attention pooling over
// the sequence window, followed by a two-layer classification head:
//
//	h_t     = relu(W1 x_t + b1)          per time step
//	alpha   = softmax(attn . h_t + b_a)  attention over time steps
//	context = sum_t alpha_t * h_t
//	u       = relu(W2 context + b2)
//	probs   = softmax(W3 u + b3)
//
// All parameters live in one flat vector so the optimizer, gradient clipping
// and snapshot serialization operate on plain []float64.
type network struct {
	in, hidden, hidden2, out int
	params                   []float64
}

// Flat parameter layout offsets.
func (n *network) offW1() int   { return 0 }
func (n *network) offB1() int   { return n.hidden * n.in }
func (n *network) offAttn() int { return n.offB1() + n.hidden }
func (n *network) offAttnB() int {
	return n.offAttn() + n.hidden
}
func (n *network) offW2() int { return n.offAttnB() + 1 }
func (n *network) offB2() int { return n.offW2() + n.hidden2*n.hidden }
func (n *network) offW3() int { return n.offB2() + n.hidden2 }
func (n *network) offB3() int { return n.offW3() + n.out*n.hidden2 }
func (n *network) size() int  { return n.offB3() + n.out }

func newNetwork(in, hidden, hidden2, out int, rng *rand.Rand) *network {
	n := &network{in: in, hidden: hidden, hidden2: hidden2, out: out}
	n.params = make([]float64, n.size())

	// He initialization for the ReLU layers, small uniform for attention.
	heInit(n.params[n.offW1():n.offW1()+hidden*in], in, rng)
	heInit(n.params[n.offW2():n.offW2()+hidden2*hidden], hidden, rng)
	heInit(n.params[n.offW3():n.offW3()+out*hidden2], hidden2, rng)
	attn := n.params[n.offAttn() : n.offAttn()+hidden]
	for i := range attn {
		attn[i] = (rng.Float64()*2 - 1) * 0.1
	}
	return n
}

func heInit(w []float64, fanIn int, rng *rand.Rand) {
	scale := math.Sqrt(2 / float64(fanIn))
	for i := range w {
		w[i] = rng.NormFloat64() * scale
	}
}

// forwardCache retains intermediate activations for backpropagation.
type forwardCache struct {
	window  [][]float64 // inputs per time step
	hidden  [][]float64 // post-ReLU h_t
	scores  []float64   // attention logits
	alpha   []float64   // attention weights
	context []float64
	u       []float64 // post-ReLU head activation
	probs   []float64
}

func (n *network) forward(window [][]float64) *forwardCache {
	p := n.params
	steps := len(window)
	c := &forwardCache{
		window:  window,
		hidden:  make([][]float64, steps),
		scores:  make([]float64, steps),
		context: make([]float64, n.hidden),
	}

	attn := p[n.offAttn() : n.offAttn()+n.hidden]
	attnBias := p[n.offAttnB()]
	for t, x := range window {
		h := make([]float64, n.hidden)
		for i := 0; i < n.hidden; i++ {
			row := p[n.offW1()+i*n.in : n.offW1()+(i+1)*n.in]
			sum := p[n.offB1()+i]
			for j, xj := range x {
				sum += row[j] * xj
			}
			if sum < 0 {
				sum = 0
			}
			h[i] = sum
		}
		c.hidden[t] = h

		score := attnBias
		for i, hi := range h {
			score += attn[i] * hi
		}
		c.scores[t] = score
	}

	c.alpha = softmax(c.scores)
	for t, h := range c.hidden {
		for i, hi := range h {
			c.context[i] += c.alpha[t] * hi
		}
	}

	c.u = make([]float64, n.hidden2)
	for i := 0; i < n.hidden2; i++ {
		row := p[n.offW2()+i*n.hidden : n.offW2()+(i+1)*n.hidden]
		sum := p[n.offB2()+i]
		for j, cj := range c.context {
			sum += row[j] * cj
		}
		if sum < 0 {
			sum = 0
		}
		c.u[i] = sum
	}

	logits := make([]float64, n.out)
	for i := 0; i < n.out; i++ {
		row := p[n.offW3()+i*n.hidden2 : n.offW3()+(i+1)*n.hidden2]
		sum := p[n.offB3()+i]
		for j, uj := range c.u {
			sum += row[j] * uj
		}
		logits[i] = sum
	}
	c.probs = softmax(logits)
	return c
}

// backward accumulates the cross-entropy gradient for one example into g.
// dLogits for softmax + cross-entropy is probs - onehot(target).
func (n *network) backward(c *forwardCache, target int, g []float64) {
	p := n.params

	dLogits := make([]float64, n.out)
	copy(dLogits, c.probs)
	dLogits[target] -= 1

	// Head layer 3.
	dU := make([]float64, n.hidden2)
	for i := 0; i < n.out; i++ {
		base := n.offW3() + i*n.hidden2
		for j := 0; j < n.hidden2; j++ {
			g[base+j] += dLogits[i] * c.u[j]
			dU[j] += p[base+j] * dLogits[i]
		}
		g[n.offB3()+i] += dLogits[i]
	}
	for j := range dU {
		if c.u[j] <= 0 { // ReLU gate
			dU[j] = 0
		}
	}

	// Head layer 2.
	dContext := make([]float64, n.hidden)
	for i := 0; i < n.hidden2; i++ {
		base := n.offW2() + i*n.hidden
		for j := 0; j < n.hidden; j++ {
			g[base+j] += dU[i] * c.context[j]
			dContext[j] += p[base+j] * dU[i]
		}
		g[n.offB2()+i] += dU[i]
	}

	// Attention pooling: context = sum_t alpha_t h_t.
	steps := len(c.hidden)
	dAlpha := make([]float64, steps)
	dHidden := make([][]float64, steps)
	for t, h := range c.hidden {
		dh := make([]float64, n.hidden)
		for i := range h {
			dAlpha[t] += dContext[i] * h[i]
			dh[i] = c.alpha[t] * dContext[i]
		}
		dHidden[t] = dh
	}

	// Softmax over attention scores.
	dot := 0.0
	for t := range dAlpha {
		dot += c.alpha[t] * dAlpha[t]
	}
	attn := p[n.offAttn() : n.offAttn()+n.hidden]
	for t := 0; t < steps; t++ {
		dScore := c.alpha[t] * (dAlpha[t] - dot)
		g[n.offAttnB()] += dScore
		for i := 0; i < n.hidden; i++ {
			g[n.offAttn()+i] += dScore * c.hidden[t][i]
			dHidden[t][i] += dScore * attn[i]
		}
	}

	// Per-timestep encoder.
	for t, x := range c.window {
		for i := 0; i < n.hidden; i++ {
			if c.hidden[t][i] <= 0 { // ReLU gate
				continue
			}
			d := dHidden[t][i]
			base := n.offW1() + i*n.in
			for j, xj := range x {
				g[base+j] += d * xj
			}
			g[n.offB1()+i] += d
		}
	}
}

func softmax(xs []float64) []float64 {
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(xs))
	sum := 0.0
	for i, x := range xs {
		e := math.Exp(x - max)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// clipGradients scales the gradient vector so its global L2 norm does not
// exceed maxNorm. A single shocking result should nudge the model, not
// destabilize it.
func clipGradients(g []float64, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	norm := 0.0
	for _, v := range g {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for i := range g {
		g[i] *= scale
	}
}

// adam is the Adam optimizer with decoupled-by-addition L2 weight decay,
// operating on the flat parameter vector.
type adam struct {
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64

	m, v []float64
	step int64
}

func newAdam(size int, lr, weightDecay float64) *adam {
	return &adam{
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make([]float64, size),
		v:           make([]float64, size),
	}
}

func (a *adam) update(params, grads []float64) {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i := range params {
		g := grads[i] + a.weightDecay*params[i]
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}
