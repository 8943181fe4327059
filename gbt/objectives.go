package gbt

import (
	"math"
	"sort"

	"github.com/skiffml/skiff/pkg/errors"
)

// ObjectiveFunction computes per-sample gradients and hessians of a loss with
// respect to the raw prediction, plus the optimal constant baseline.
type ObjectiveFunction interface {
	// Name returns the canonical objective name.
	Name() ObjectiveType

	// Gradient returns dL/dpred for one sample.
	Gradient(prediction, target float64) float64

	// Hessian returns d²L/dpred² for one sample.
	Hessian(prediction, target float64) float64

	// InitScore returns the best constant prediction for the targets.
	InitScore(targets []float64) float64
}

// squaredErrorObjective implements L2 loss: L = 0.5 * (pred - y)².
type squaredErrorObjective struct{}

func (squaredErrorObjective) Name() ObjectiveType { return SquaredError }

func (squaredErrorObjective) Gradient(prediction, target float64) float64 {
	return prediction - target
}

func (squaredErrorObjective) Hessian(_, _ float64) float64 {
	return 1.0
}

func (squaredErrorObjective) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	var sum float64
	for _, t := range targets {
		sum += t
	}
	return sum / float64(len(targets))
}

// absoluteErrorObjective implements L1 loss: L = |pred - y|.
// The hessian is constant since the true second derivative is zero.
type absoluteErrorObjective struct{}

func (absoluteErrorObjective) Name() ObjectiveType { return AbsoluteError }

func (absoluteErrorObjective) Gradient(prediction, target float64) float64 {
	if prediction > target {
		return 1.0
	}
	if prediction < target {
		return -1.0
	}
	return 0.0
}

func (absoluteErrorObjective) Hessian(_, _ float64) float64 {
	return 1.0
}

func (absoluteErrorObjective) InitScore(targets []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	sorted := make([]float64, len(targets))
	copy(sorted, targets)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// huberObjective implements pseudo-Huber loss with slope delta.
type huberObjective struct {
	delta float64
}

func (huberObjective) Name() ObjectiveType { return Huber }

func (o huberObjective) Gradient(prediction, target float64) float64 {
	diff := prediction - target
	return diff / math.Sqrt(1+(diff/o.delta)*(diff/o.delta))
}

func (o huberObjective) Hessian(prediction, target float64) float64 {
	diff := prediction - target
	scaled := 1 + (diff/o.delta)*(diff/o.delta)
	return 1 / (scaled * math.Sqrt(scaled))
}

func (o huberObjective) InitScore(targets []float64) float64 {
	return absoluteErrorObjective{}.InitScore(targets)
}

// NewObjective resolves an objective name as it appears in the hyperparameter
// contract. "reg:linear" is accepted as the legacy alias of squared error.
func NewObjective(name string, huberDelta float64) (ObjectiveFunction, error) {
	if huberDelta <= 0 {
		huberDelta = 1.0
	}
	switch ObjectiveType(name) {
	case SquaredError, "reg:linear", "":
		return squaredErrorObjective{}, nil
	case AbsoluteError:
		return absoluteErrorObjective{}, nil
	case Huber:
		return huberObjective{delta: huberDelta}, nil
	default:
		return nil, errors.NewValidationError("objective", "unknown objective", name)
	}
}
