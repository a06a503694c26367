package aqmap

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// A ColorScheme is an ordered list of at least two anchor colors that
// normalized values are interpolated across.
type ColorScheme interface {
	Colors() []color.NRGBA
}

// Gradient is a ColorScheme made of a fixed list of anchors.
type Gradient []color.NRGBA

// Colors returns the anchors of g.
func (g Gradient) Colors() []color.NRGBA { return g }

// At returns the color of normalized value v.
func (g Gradient) At(v float64) color.NRGBA { return SchemeColor(g, v) }

// SchemeColor returns the color of normalized value v, interpolating
// linearly between the two anchors on either side of it. Values that do
// not fall within a segment get the last anchor.
func SchemeColor(s ColorScheme, v float64) color.NRGBA {
	colors := s.Colors()
	switch len(colors) {
	case 0:
		return color.NRGBA{}
	case 1:
		return colors[0]
	}
	segments := float64(len(colors) - 1)
	for i := 0; i < len(colors)-1; i++ {
		lo, hi := float64(i)/segments, float64(i+1)/segments
		if v >= lo && v <= hi {
			return lerpColor(colors[i], colors[i+1], (v-lo)*segments)
		}
	}
	return colors[len(colors)-1]
}

func lerpColor(a, b color.NRGBA, f float64) color.NRGBA {
	l := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return color.NRGBA{R: l(a.R, b.R), G: l(a.G, b.G), B: l(a.B, b.B), A: l(a.A, b.A)}
}

var (
	// DefaultScheme runs from green through yellow to red.
	DefaultScheme = Gradient{
		{R: 0x1a, G: 0x98, B: 0x50, A: 255},
		{R: 0xa6, G: 0xd9, B: 0x6a, A: 255},
		{R: 0xff, G: 0xff, B: 0xbf, A: 255},
		{R: 0xfd, G: 0xae, B: 0x61, A: 255},
		{R: 0xd7, G: 0x30, B: 0x27, A: 255},
	}

	// ColorblindScheme is distinguishable with the common forms of
	// color blindness.
	ColorblindScheme = Gradient{
		{R: 0x44, G: 0x01, B: 0x54, A: 255},
		{R: 0x3b, G: 0x52, B: 0x8b, A: 255},
		{R: 0x21, G: 0x90, B: 0x8c, A: 255},
		{R: 0x5d, G: 0xc8, B: 0x63, A: 255},
		{R: 0xfd, G: 0xe7, B: 0x25, A: 255},
	}
)

// BlackBodyScheme returns n anchors sampled from the extended black body
// color map.
func BlackBodyScheme(n int) Gradient {
	if n < 2 {
		n = 2
	}
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(1)
	g := make(Gradient, n)
	for i, c := range cm.Palette(n).Colors() {
		g[i] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	return g
}

// SchemeByName returns the scheme with the given name.
func SchemeByName(name string) (ColorScheme, error) {
	switch name {
	case "", "default":
		return DefaultScheme, nil
	case "colorblind":
		return ColorblindScheme, nil
	case "blackbody":
		return BlackBodyScheme(9), nil
	default:
		return nil, fmt.Errorf("aqmap: unknown color scheme %q", name)
	}
}

// hexColor formats c as #rrggbb.
func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// schemeColorMap presents a ColorScheme as a palette.ColorMap over
// data values in [min, max].
type schemeColorMap struct {
	scheme   ColorScheme
	min, max float64
	alpha    float64
}

var _ palette.ColorMap = (*schemeColorMap)(nil)

func newSchemeColorMap(s ColorScheme, min, max float64) *schemeColorMap {
	return &schemeColorMap{scheme: s, min: min, max: max, alpha: 1}
}

func (cm *schemeColorMap) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < cm.min:
		return nil, palette.ErrUnderflow
	case v > cm.max:
		return nil, palette.ErrOverflow
	}
	var n float64
	if cm.max > cm.min {
		n = (v - cm.min) / (cm.max - cm.min)
	}
	c := SchemeColor(cm.scheme, n)
	c.A = uint8(float64(c.A)*cm.alpha + 0.5)
	return c, nil
}

func (cm *schemeColorMap) Max() float64 { return cm.max }
func (cm *schemeColorMap) SetMax(v float64) { cm.max = v }
func (cm *schemeColorMap) Min() float64 { return cm.min }
func (cm *schemeColorMap) SetMin(v float64) { cm.min = v }
func (cm *schemeColorMap) Alpha() float64 { return cm.alpha }
func (cm *schemeColorMap) SetAlpha(alpha float64) { cm.alpha = alpha }

func (cm *schemeColorMap) Palette(n int) palette.Palette {
	if n < 2 {
		n = 2
	}
	colors := make([]color.Color, n)
	for i := range colors {
		v := cm.min + (cm.max-cm.min)*float64(i)/float64(n-1)
		c, err := cm.At(v)
		if err != nil {
			c = SchemeColor(cm.scheme, 1)
		}
		colors[i] = c
	}
	return plainPalette(colors)
}

type plainPalette []color.Color

func (p plainPalette) Colors() []color.Color { return p }
