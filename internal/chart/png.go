package chart

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/scenario.board/internal/palette"
	"github.com/banshee-data/scenario.board/internal/render"
)

// glyphs maps markers onto the closest gonum glyph shapes.
var glyphs = map[palette.Marker]draw.GlyphDrawer{
	palette.MarkerCircle:    draw.CircleGlyph{},
	palette.MarkerSquare:    draw.SquareGlyph{},
	palette.MarkerTriangle:  draw.TriangleGlyph{},
	palette.MarkerDiamond:   draw.PlusGlyph{},
	palette.MarkerPin:       draw.RingGlyph{},
	palette.MarkerArrow:     draw.PyramidGlyph{},
	palette.MarkerRoundRect: draw.BoxGlyph{},
}

// Glyph returns the gonum glyph drawn for m.
func Glyph(m palette.Marker) draw.GlyphDrawer {
	if g, ok := glyphs[m]; ok {
		return g
	}
	return draw.CircleGlyph{}
}

// pixels converts a pixel size to a vg length at the PNG default of 96 dpi.
func pixels(n int) vg.Length {
	return vg.Length(n) * vg.Inch / 96
}

// Plot builds a gonum plot of f.
func Plot(f render.Figure) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel
	p.Legend.Top = true

	for _, s := range f.Series {
		c, err := palette.ParseHex(s.Color)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Legend, err)
		}
		xys := make(plotter.XYs, len(s.Points))
		for i, pt := range s.Points {
			xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		if s.Line {
			line, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", s.Legend, err)
			}
			line.Color = c
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(s.Legend, line)
			continue
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Legend, err)
		}
		sc.GlyphStyle.Color = c
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = Glyph(s.Marker)
		p.Add(sc)
		p.Legend.Add(s.Legend, sc)
	}
	if len(f.Categories) > 0 {
		p.NominalX(f.Categories...)
		p.X.Min = -0.5
		p.X.Max = float64(len(f.Categories)) - 0.5
	}
	return p, nil
}

// PNG renders f at its own pixel size.
func PNG(f render.Figure) (io.WriterTo, error) {
	p, err := Plot(f)
	if err != nil {
		return nil, err
	}
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		w, h = 800, 400
	}
	return p.WriterTo(pixels(w), pixels(h), "png")
}
