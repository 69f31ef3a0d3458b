/*-------------------------------------------------------------------------
 *
 * render.go
 *    Profile output rendering for NeuronHive
 *
 * Renders a Profile either as a tab-separated table or as a stacked-area
 * chart of the top analyses plus an OTHER band, with a NOTHING marker on
 * buckets where the whole hive was idle.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronHive/internal/profiler/render.go
 *
 *-------------------------------------------------------------------------
 */

package profiler

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

/* the fixed 20-colour palette; analysis i gets palette[i % 20] */
var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
	{R: 0xae, G: 0xc7, B: 0xe8, A: 0xff},
	{R: 0xff, G: 0xbb, B: 0x78, A: 0xff},
	{R: 0x98, G: 0xdf, B: 0x8a, A: 0xff},
	{R: 0xff, G: 0x98, B: 0x96, A: 0xff},
	{R: 0xc5, G: 0xb0, B: 0xd5, A: 0xff},
	{R: 0xc4, G: 0x9c, B: 0x94, A: 0xff},
	{R: 0xf7, G: 0xb6, B: 0xd2, A: 0xff},
	{R: 0xc7, G: 0xc7, B: 0xc7, A: 0xff},
	{R: 0xdb, G: 0xdb, B: 0x8d, A: 0xff},
	{R: 0x9e, G: 0xda, B: 0xe5, A: 0xff},
}

/* WriteTSV writes the profile as a tab-separated table, analyses ranked
 * by total worker-time. */
func (p *Profile) WriteTSV(w io.Writer) error {
	header := make([]string, 0, len(p.Analyses)+1)
	header = append(header, "when")
	for _, a := range p.Analyses {
		header = append(header, a.LogicName)
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}

	for i, bucket := range p.Buckets {
		row := make([]string, 0, len(p.Analyses)+1)
		row = append(row, bucket.Format("2006-01-02 15:04:05"))
		for _, a := range p.Analyses {
			row = append(row, fmt.Sprintf("%.2f", a.Counts[i]))
		}
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

/* supported maps output extensions to renderability: the chart backend
 * handles png/svg/jpg/pdf; emf, gif and ps are recognized but cannot be
 * produced. */
var supported = map[string]bool{
	".png": true, ".svg": true, ".jpg": true, ".pdf": true,
	".emf": false, ".gif": false, ".ps": false,
}

/* RenderChart writes a stacked-area chart of the top analyses to the
 * file named by path; the extension selects the format. */
func (p *Profile) RenderChart(path string, top float64) error {
	ext := strings.ToLower(filepath.Ext(path))
	renderable, known := supported[ext]
	if !known {
		return fmt.Errorf("unrecognized output format %q (expected one of emf, png, svg, jpg, gif, ps, pdf)", ext)
	}
	if !renderable {
		return fmt.Errorf("output format %q is not supported by this build (use png, svg, jpg or pdf)", ext)
	}
	if len(p.Buckets) == 0 {
		return fmt.Errorf("nothing to plot: the profile has no buckets")
	}

	n := p.TopN(top)
	shown := p.Analyses[:n]
	other := p.otherBand(n)

	pl := plot.New()
	pl.Title.Text = "Worker activity"
	pl.X.Label.Text = "time"
	pl.Y.Label.Text = "workers"
	pl.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	pl.Legend.Top = true

	/* cumulative series, drawn widest first so each band stays visible */
	cumulative := make([]float64, len(p.Buckets))
	type band struct {
		name   string
		colour color.RGBA
		tops   []float64
	}
	bands := make([]band, 0, n+1)

	addBand := func(name string, colour color.RGBA, counts []float64) {
		tops := make([]float64, len(cumulative))
		for i := range cumulative {
			cumulative[i] += counts[i]
			tops[i] = cumulative[i]
		}
		bands = append(bands, band{name: name, colour: colour, tops: tops})
	}

	for i, a := range shown {
		addBand(a.LogicName, palette[i%len(palette)], a.Counts)
	}
	if other != nil {
		addBand("OTHER", palette[n%len(palette)], other)
	}

	for i := len(bands) - 1; i >= 0; i-- {
		b := bands[i]
		pts := make(plotter.XYs, len(p.Buckets))
		for j, bucket := range p.Buckets {
			pts[j].X = float64(bucket.Unix())
			pts[j].Y = b.tops[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build the %q band: %w", b.name, err)
		}
		line.FillColor = b.colour
		line.Color = b.colour
		pl.Add(line)
		pl.Legend.Add(b.name, line)
	}

	if nothing := p.nothingMarkers(); len(nothing) > 0 {
		scatter, err := plotter.NewScatter(nothing)
		if err != nil {
			return fmt.Errorf("failed to build the NOTHING marker: %w", err)
		}
		scatter.GlyphStyle.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Color = color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}
		pl.Add(scatter)
		pl.Legend.Add("NOTHING", scatter)
	}

	if err := pl.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to render %q: %w", path, err)
	}
	return nil
}

/* otherBand sums the analyses below the cut into one series */
func (p *Profile) otherBand(n int) []float64 {
	if n >= len(p.Analyses) {
		return nil
	}
	other := make([]float64, len(p.Buckets))
	for _, a := range p.Analyses[n:] {
		for i, c := range a.Counts {
			other[i] += c
		}
	}
	return other
}

/* nothingMarkers marks buckets where every analysis was idle */
func (p *Profile) nothingMarkers() plotter.XYs {
	var pts plotter.XYs
	for i, bucket := range p.Buckets {
		idle := true
		for _, a := range p.Analyses {
			if a.Counts[i] > 0 {
				idle = false
				break
			}
		}
		if idle {
			pts = append(pts, plotter.XY{X: float64(bucket.Unix()), Y: 0})
		}
	}
	return pts
}
