package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"cogtrial/domain/trial"
)

// nudge offsets the two model series around each outcome tick so their
// intervals do not overlap.
const nudge = 0.15

var (
	colorSingleLevel  = color.RGBA{R: 0x35, G: 0x6d, B: 0xb0, A: 0xff}
	colorHierarchical = color.RGBA{R: 0xc9, G: 0x4c, B: 0x2a, A: 0xff}
	colorReference    = color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}
)

// valuesWithErrors feeds both the point glyphs and the interval bars.
type valuesWithErrors struct {
	plotter.XYs
	plotter.YErrors
}

// SaveComparisonFigure renders one contrast's point+interval comparison:
// outcomes on a nominal X axis, single-level and hierarchical estimates
// offset around each tick, a dashed horizontal line at the population-average
// hierarchical estimate, and a solid zero line for the variant contrast.
func SaveComparisonFigure(path string, contrast trial.Contrast, merged []trial.ContrastEstimate, pooled trial.ContrastEstimate) error {
	rows := FilterContrast(merged, contrast)
	single := FilterModel(rows, trial.ModelSingleLevel)
	hier := FilterModel(rows, trial.ModelHierarchical)
	if len(single) != len(trial.Outcomes()) || len(hier) != len(trial.Outcomes()) {
		return fmt.Errorf("contrast %s: expected %d estimates per model, have %d single-level and %d hierarchical",
			contrast, len(trial.Outcomes()), len(single), len(hier))
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Contrast %s: no pooling vs partial pooling", contrast)
	p.Y.Label.Text = "standardized effect (95% interval)"

	names := make([]string, len(trial.Outcomes()))
	for i, o := range trial.Outcomes() {
		names[i] = string(o)
	}
	p.NominalX(names...)

	if err := addSeries(p, single, -nudge, colorSingleLevel, "single-level"); err != nil {
		return err
	}
	if err := addSeries(p, hier, nudge, colorHierarchical, "hierarchical"); err != nil {
		return err
	}

	if err := addReferenceLine(p, pooled.Estimate, colorReference, true); err != nil {
		return err
	}
	if contrast == trial.ContrastStableVariantAVsB {
		if err := addReferenceLine(p, 0, color.Black, false); err != nil {
			return err
		}
	}

	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save figure %s: %w", path, err)
	}
	return nil
}

// addSeries plots one model's estimates with interval bars, offset from the
// outcome ticks. The estimates must be in canonical outcome order.
func addSeries(p *plot.Plot, rows []trial.ContrastEstimate, offset float64, c color.Color, label string) error {
	data := valuesWithErrors{
		XYs:     make(plotter.XYs, len(rows)),
		YErrors: make(plotter.YErrors, len(rows)),
	}
	for i, r := range rows {
		data.XYs[i].X = float64(i) + offset
		data.XYs[i].Y = r.Estimate
		data.YErrors[i].Low = r.Estimate - r.Lower
		data.YErrors[i].High = r.Upper - r.Estimate
	}

	points, err := plotter.NewScatter(data)
	if err != nil {
		return err
	}
	points.GlyphStyle.Color = c
	points.GlyphStyle.Radius = vg.Points(3)
	points.GlyphStyle.Shape = draw.CircleGlyph{}

	bars, err := plotter.NewYErrorBars(data)
	if err != nil {
		return err
	}
	bars.LineStyle.Color = c
	bars.LineStyle.Width = vg.Points(1.2)
	bars.CapWidth = vg.Points(4)

	p.Add(points, bars)
	p.Legend.Add(label, points)
	return nil
}

func addReferenceLine(p *plot.Plot, y float64, c color.Color, dashed bool) error {
	span := float64(len(trial.Outcomes()))
	line, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: y},
		{X: span - 0.5, Y: y},
	})
	if err != nil {
		return err
	}
	line.LineStyle.Color = c
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	}
	p.Add(line)
	return nil
}
