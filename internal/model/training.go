package model

import (
	"fmt"
	"math/rand"

	"github.com/lumen-ml/lumen/internal/nn"
	"github.com/lumen-ml/lumen/internal/tensor"
)

// Tape records a training-mode forward pass for Backward.
type Tape struct {
	ids       []int32
	batch     int
	seq       int
	embedMask []float32
	blocks    []*nn.BlockTape
	final     *nn.LayerNormTape
	normed    *tensor.Tensor
}

// ForwardTrain runs a forward pass that keeps the activations needed for
// Backward. When training is set, dropout is active and drawn from rng.
// Returns logits [batch, seq, vocab].
func (m *Model) ForwardTrain(ids, mask [][]int32, training bool, rng *rand.Rand) (*tensor.Tensor, *Tape, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flat, batch, seq, err := m.flatten(ids)
	if err != nil {
		return nil, nil, err
	}
	keyMask, err := m.keyMask(mask, batch, seq)
	if err != nil {
		return nil, nil, err
	}
	if training && rng == nil && m.cfg.Dropout > 0 {
		return nil, nil, fmt.Errorf("training pass requires a random source for dropout")
	}

	pass := &nn.Pass{Training: training, Rng: rng, Record: true, Parallel: m.parallel}
	out, tape, err := m.run(flat, batch, seq, keyMask, nil, pass, ForwardOptions{})
	if err != nil {
		return nil, nil, err
	}
	return out.Logits, tape, nil
}

// Backward propagates dlogits [batch, seq, vocab] through the whole stack
// and accumulates every parameter gradient. The tied embedding receives both
// its output-projection and its lookup gradient.
func (m *Model) Backward(tape *Tape, dlogits *tensor.Tensor) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dh := m.embedding.ProjectBackward(tape.normed, dlogits)
	dx := m.finalNorm.Backward(tape.final, dh)
	for i := len(m.blocks) - 1; i >= 0; i-- {
		dx = m.blocks[i].Backward(tape.blocks[i], dx)
	}
	m.dropout.Backward(dx, tape.embedMask)
	m.embedding.LookupBackward(tape.ids, dx)
}

// ZeroGrad clears every accumulated gradient.
func (m *Model) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}

// Update runs fn with exclusive access to the parameters. Optimisers apply
// their step inside fn.
func (m *Model) Update(fn func(params []*nn.Parameter)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.Parameters())
}

// StateDict returns a copy of every parameter keyed by name.
func (m *Model) StateDict() map[string]*tensor.Tensor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*tensor.Tensor)
	for _, p := range m.Parameters() {
		out[p.Name()] = p.Tensor().Clone()
	}
	return out
}

// LoadStateDict copies the given tensors into the parameters. Every
// parameter must be present with a matching shape and no unknown names are
// accepted; on error nothing is modified.
func (m *Model) LoadStateDict(state map[string]*tensor.Tensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	params := m.Parameters()
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return &ShapeMismatchError{What: p.Name(), Details: "missing from state dict"}
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return &ShapeMismatchError{
				What:    p.Name(),
				Details: fmt.Sprintf("expected shape %v, got %v", p.Tensor().Shape(), t.Shape()),
			}
		}
	}
	if len(state) != len(params) {
		known := make(map[string]bool, len(params))
		for _, p := range params {
			known[p.Name()] = true
		}
		for name := range state {
			if !known[name] {
				return &ShapeMismatchError{What: name, Details: "unexpected tensor in state dict"}
			}
		}
	}

	for _, p := range params {
		copy(p.Data(), state[p.Name()].Data())
	}
	return nil
}
