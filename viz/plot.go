// Package viz renders evaluation plots for trained models.
package viz

import (
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/skiffml/skiff/pkg/errors"
)

// PredictedVsActual builds a scatter of predicted against actual values
// with the identity line for reference. A perfect model puts every point on
// the line.
func PredictedVsActual(actual, predicted *mat.VecDense, title string) (*plot.Plot, error) {
	if actual.Len() == 0 {
		return nil, errors.NewModelError("viz.PredictedVsActual", "empty data", errors.ErrEmptyData)
	}
	if actual.Len() != predicted.Len() {
		return nil, errors.NewDimensionError("viz.PredictedVsActual", actual.Len(), predicted.Len(), 0)
	}

	points := make(plotter.XYs, actual.Len())
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < actual.Len(); i++ {
		a, p := actual.AtVec(i), predicted.AtVec(i)
		points[i].X = a
		points[i].Y = p
		lo = math.Min(lo, math.Min(a, p))
		hi = math.Max(hi, math.Max(a, p))
	}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "actual"
	pl.Y.Label.Text = "predicted"

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return nil, errors.Wrap(err, "building scatter")
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

	identity, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, errors.Wrap(err, "building identity line")
	}
	identity.LineStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	identity.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	pl.Add(plotter.NewGrid(), scatter, identity)
	pl.Legend.Add("predictions", scatter)
	pl.Legend.Add("identity", identity)
	return pl, nil
}

// SavePredictedVsActual renders the plot to a file; the extension picks the
// image format (".png" for the walkthrough).
func SavePredictedVsActual(actual, predicted *mat.VecDense, title, path string) error {
	pl, err := PredictedVsActual(actual, predicted, title)
	if err != nil {
		return err
	}
	if err := pl.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "saving plot %q", path)
	}
	return nil
}

// WritePredictedVsActualPNG renders the plot as PNG to w.
func WritePredictedVsActualPNG(w io.Writer, actual, predicted *mat.VecDense, title string) error {
	pl, err := PredictedVsActual(actual, predicted, title)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "rendering plot")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing plot")
	}
	return nil
}
