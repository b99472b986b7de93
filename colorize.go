package mandel

import (
	"image"
	"image/color"
)

// Image is a row-major buffer of RGB triples, the output of the colour mapper.
type Image struct {
	Width, Height int
	Pix           []RGB
}

// NewImage allocates a black image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]RGB, width*height)}
}

// At returns the colour at (col, row).
func (m *Image) At(col, row int) RGB {
	return m.Pix[row*m.Width+col]
}

// Set stores the colour at (col, row).
func (m *Image) Set(col, row int, c RGB) {
	m.Pix[row*m.Width+col] = c
}

// Rows returns the image as height rows of width triples. The rows alias Pix.
func (m *Image) Rows() [][]RGB {
	rows := make([][]RGB, m.Height)
	for row := range rows {
		rows[row] = m.Pix[row*m.Width : (row+1)*m.Width]
	}
	return rows
}

// ToRGBA converts the buffer to an opaque *image.RGBA with its origin at 0,0.
func (m *Image) ToRGBA() *image.RGBA {
	return m.ToRGBAAt(image.Point{})
}

// ToRGBAAt converts the buffer to an *image.RGBA whose bounds start at min,
// for tiles placed inside a larger picture.
func (m *Image) ToRGBAAt(min image.Point) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Min: min, Max: min.Add(image.Pt(m.Width, m.Height))})
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			c := m.At(col, row)
			img.SetRGBA(min.X+col, min.Y+row, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return img
}

// FromRGBA copies an image.RGBA into a buffer, dropping alpha.
func FromRGBA(src *image.RGBA) *Image {
	b := src.Bounds()
	m := NewImage(b.Dx(), b.Dy())
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			c := src.RGBAAt(b.Min.X+col, b.Min.Y+row)
			m.Set(col, row, RGB{R: c.R, G: c.G, B: c.B})
		}
	}
	return m
}

// Colorize applies the palette to every cell of f. Sentinel cells are black
// and never reach the colour rule.
func Colorize(f *Field, p Palette) (*Image, error) {
	rule, err := p.resolve()
	if err != nil {
		return nil, err
	}
	return colorize(f, rule, p), nil
}

func colorize(f *Field, rule ColorRule, p Palette) *Image {
	m := NewImage(f.Width, f.Height)
	for i, v := range f.Values {
		if v == Sentinel {
			m.Pix[i] = Black
			continue
		}
		m.Pix[i] = rule(v, p.Shape, p.HueOffset, p.HueScale)
	}
	return m
}
