package aqmap

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Legend returns a PNG image of a color bar for scheme covering data
// values from min to max.
func Legend(scheme ColorScheme, min, max float64, units string) ([]byte, error) {
	if max <= min {
		max = min + 1
	}
	p, err := plot.New()
	if err != nil {
		return nil, fmt.Errorf("aqmap: creating legend: %w", err)
	}
	l := &plotter.ColorBar{
		ColorMap: newSchemeColorMap(scheme, min, max),
	}
	p.Add(l)
	p.HideY()
	p.X.Padding = 0
	p.X.Label.Text = units

	img := vgimg.New(300, 50)
	dc := draw.New(img)
	p.Draw(dc)
	b := new(bytes.Buffer)
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(b); err != nil {
		return nil, fmt.Errorf("aqmap: encoding legend: %w", err)
	}
	return b.Bytes(), nil
}
