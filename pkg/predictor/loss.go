package predictor

import "math"

// RegretLoss is cross-entropy plus a regret penalty that specifically
// punishes confident wrong predictions: the probability the model assigned to
// its strongest incorrect class, squared, scaled by PenaltyFactor.
//
// A model asserting 90% on the wrong class pays 0.81*factor on top of the
// base loss; one that was merely uncertain at 30% pays 0.09*factor. The
// penalty contributes to the reported loss value; the parameter gradient
// flows through the cross-entropy term.
type RegretLoss struct {
	PenaltyFactor float64
}

// DefaultPenaltyFactor is the calibrated regret scale.
const DefaultPenaltyFactor = 5.0

const logFloor = 1e-12

// Loss returns the total loss and its cross-entropy component for one
// predicted distribution and true target index.
func (l RegretLoss) Loss(probs []float64, target int) (total, base float64) {
	p := probs[target]
	if p < logFloor {
		p = logFloor
	}
	base = -math.Log(p)

	maxWrong := 0.0
	for i, q := range probs {
		if i != target && q > maxWrong {
			maxWrong = q
		}
	}
	return base + maxWrong*maxWrong*l.PenaltyFactor, base
}
