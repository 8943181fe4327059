package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/skiffml/skiff/pkg/errors"
)

// The built-in algorithm containers consume headerless CSV with the target
// in the first column. Inference payloads are the same format without the
// target column, and prediction responses are one float per line.

// WriteCSV writes a labeled table in the training-channel format.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	rows := t.NumRows()
	cols := t.NumFeatures()

	record := make([]string, cols+1)
	for i := 0; i < rows; i++ {
		record[0] = formatFloat(t.Y.AtVec(i))
		for j := 0; j < cols; j++ {
			record[j+1] = formatFloat(t.X.At(i, j))
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing CSV record")
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// ReadCSV reads a labeled table from the training-channel format. Every row
// must have the same width: one target plus nFeatures values.
func ReadCSV(r io.Reader) (*Table, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("ReadCSV", "empty channel", errors.ErrEmptyData)
	}

	cols := len(records[0]) - 1
	if cols < 1 {
		return nil, errors.NewValueError("ReadCSV", "rows need a target and at least one feature")
	}

	X := mat.NewDense(len(records), cols, nil)
	Y := mat.NewVecDense(len(records), nil)
	for i, record := range records {
		if len(record) != cols+1 {
			return nil, errors.NewDimensionError("ReadCSV", cols+1, len(record), 1)
		}
		values, err := parseRecord(record)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		Y.SetVec(i, values[0])
		for j := 0; j < cols; j++ {
			X.Set(i, j, values[j+1])
		}
	}

	return &Table{X: X, Y: Y}, nil
}

// WriteFeaturesCSV writes an unlabeled feature matrix in the inference
// payload format.
func WriteFeaturesCSV(w io.Writer, X mat.Matrix) error {
	cw := csv.NewWriter(w)
	rows, cols := X.Dims()

	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = formatFloat(X.At(i, j))
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing CSV record")
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// ReadFeaturesCSV reads an unlabeled feature matrix from the inference
// payload format.
func ReadFeaturesCSV(r io.Reader) (*mat.Dense, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("ReadFeaturesCSV", "empty payload", errors.ErrEmptyData)
	}

	cols := len(records[0])
	X := mat.NewDense(len(records), cols, nil)
	for i, record := range records {
		if len(record) != cols {
			return nil, errors.NewDimensionError("ReadFeaturesCSV", cols, len(record), 1)
		}
		values, err := parseRecord(record)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		for j := 0; j < cols; j++ {
			X.Set(i, j, values[j])
		}
	}
	return X, nil
}

// WritePredictions writes a prediction response, one value per line.
func WritePredictions(w io.Writer, predictions mat.Matrix) error {
	bw := bufio.NewWriter(w)
	rows, _ := predictions.Dims()
	for i := 0; i < rows; i++ {
		if _, err := fmt.Fprintln(bw, formatFloat(predictions.At(i, 0))); err != nil {
			return errors.Wrap(err, "writing predictions")
		}
	}
	return errors.WithStack(bw.Flush())
}

// ReadPredictions parses a prediction response into a vector.
func ReadPredictions(r io.Reader) (*mat.VecDense, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "prediction line %d", len(values))
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading predictions")
	}
	if len(values) == 0 {
		return nil, errors.NewModelError("ReadPredictions", "empty response", errors.ErrEmptyData)
	}
	return mat.NewVecDense(len(values), values), nil
}

func readRecords(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // width validated per caller for better errors
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parsing CSV")
	}
	return records, nil
}

func parseRecord(record []string) ([]float64, error) {
	values := make([]float64, len(record))
	for i, field := range record {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Newf("bad numeric field %q", field)
		}
		values[i] = v
	}
	return values, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
