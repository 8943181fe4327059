package dataset

import (
	"math"
	"math/rand"

	"github.com/skiffml/skiff/pkg/errors"
)

// SplitFractions describes a three-way partition of a table.
type SplitFractions struct {
	Train      float64
	Validation float64
	Test       float64
}

// DefaultSplit is the walkthrough partition: 70% train, 20% validation,
// 10% test.
var DefaultSplit = SplitFractions{Train: 0.7, Validation: 0.2, Test: 0.1}

// Split shuffles the table with the given seed and partitions it into
// train, validation and test tables. Fractions must be positive and sum
// to 1.
func Split(t *Table, fractions SplitFractions, seed int64) (train, validation, test *Table, err error) {
	if fractions.Train <= 0 || fractions.Validation <= 0 || fractions.Test <= 0 {
		return nil, nil, nil, errors.NewValidationError("fractions", "all fractions must be positive", fractions)
	}
	sum := fractions.Train + fractions.Validation + fractions.Test
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, nil, nil, errors.NewValidationError("fractions", "fractions must sum to 1", sum)
	}

	n := t.NumRows()
	if n < 3 {
		return nil, nil, nil, errors.NewValueError("Split", "need at least 3 rows to split three ways")
	}

	indices := rand.New(rand.NewSource(seed)).Perm(n)

	// Size each partition up front so rounding can never leave one empty:
	// validation and test are floored at one row, train takes the rest.
	valSize := int(math.Round(fractions.Validation * float64(n)))
	testSize := int(math.Round(fractions.Test * float64(n)))
	if valSize < 1 {
		valSize = 1
	}
	if testSize < 1 {
		testSize = 1
	}
	for n-valSize-testSize < 1 {
		if valSize >= testSize && valSize > 1 {
			valSize--
		} else {
			testSize--
		}
	}
	trainEnd := n - valSize - testSize
	valEnd := trainEnd + valSize

	train, err = t.Select(indices[:trainEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	validation, err = t.Select(indices[trainEnd:valEnd])
	if err != nil {
		return nil, nil, nil, err
	}
	test, err = t.Select(indices[valEnd:])
	if err != nil {
		return nil, nil, nil, err
	}
	return train, validation, test, nil
}
