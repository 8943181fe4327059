// Package dataset provides the housing walkthrough data, train/validation/
// test splitting, and the CSV wire format of the built-in algorithm
// containers (target first column, no header).
package dataset

import (
	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

// Table is a labeled tabular dataset: an n×d feature matrix with a target
// vector and feature names.
type Table struct {
	FeatureNames []string
	X            *mat.Dense
	Y            *mat.VecDense
}

// NumRows returns the number of samples.
func (t *Table) NumRows() int {
	if t.X == nil {
		return 0
	}
	r, _ := t.X.Dims()
	return r
}

// NumFeatures returns the number of feature columns.
func (t *Table) NumFeatures() int {
	if t.X == nil {
		return 0
	}
	_, c := t.X.Dims()
	return c
}

// YMatrix returns the targets as an n×1 matrix for estimator APIs.
func (t *Table) YMatrix() *mat.Dense {
	n := t.Y.Len()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, t.Y.AtVec(i))
	}
	return out
}

// Select returns a new table containing the given row indices.
func (t *Table) Select(indices []int) (*Table, error) {
	rows := t.NumRows()
	cols := t.NumFeatures()
	if len(indices) == 0 {
		return nil, errors.NewValueError("Table.Select", "empty index set")
	}

	X := mat.NewDense(len(indices), cols, nil)
	Y := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		if idx < 0 || idx >= rows {
			return nil, errors.NewValueError("Table.Select", "row index out of range")
		}
		for j := 0; j < cols; j++ {
			X.Set(i, j, t.X.At(idx, j))
		}
		Y.SetVec(i, t.Y.AtVec(idx))
	}

	names := append([]string(nil), t.FeatureNames...)
	return &Table{FeatureNames: names, X: X, Y: Y}, nil
}
