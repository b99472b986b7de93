package mandel

import (
	"fmt"
	"math"
)

// Defaults of the full-set view.
const (
	DefaultBaseExtent  = 3.4
	DefaultAspectRatio = 4.0 / 3.0
	DefaultOffset      = 0.65
)

// Viewport is a window of the complex plane given by its centre, a zoom
// factor, the horizontal extent at zoom 1 and the width/height ratio.
type Viewport struct {
	CenterX, CenterY float64
	Zoom             float64
	BaseExtent       float64
	AspectRatio      float64
}

// DefaultViewport centres the view at (-offset, 0) with the default extent
// and a 4:3 aspect ratio.
func DefaultViewport(zoom, offset float64) Viewport {
	return Viewport{
		CenterX:     -offset,
		CenterY:     0,
		Zoom:        zoom,
		BaseExtent:  DefaultBaseExtent,
		AspectRatio: DefaultAspectRatio,
	}
}

// Validate reports ErrInvalidViewport unless zoom, extent and aspect ratio
// are finite and positive and the centre is finite.
func (v Viewport) Validate() error {
	for name, f := range map[string]float64{
		"center x":     v.CenterX,
		"center y":     v.CenterY,
		"zoom":         v.Zoom,
		"base extent":  v.BaseExtent,
		"aspect ratio": v.AspectRatio,
	} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s is %g", ErrInvalidViewport, name, f)
		}
	}
	if v.Zoom <= 0 {
		return fmt.Errorf("%w: zoom must be > 0, got %g", ErrInvalidViewport, v.Zoom)
	}
	if v.BaseExtent <= 0 {
		return fmt.Errorf("%w: base extent must be > 0, got %g", ErrInvalidViewport, v.BaseExtent)
	}
	if v.AspectRatio <= 0 {
		return fmt.Errorf("%w: aspect ratio must be > 0, got %g", ErrInvalidViewport, v.AspectRatio)
	}
	return nil
}

// XRange is the horizontal extent of the view.
func (v Viewport) XRange() float64 { return v.BaseExtent / v.Zoom }

// YRange is the vertical extent of the view.
func (v Viewport) YRange() float64 { return v.XRange() / v.AspectRatio }

// Bounds returns the region covered by the viewport.
func (v Viewport) Bounds() Region {
	xr, yr := v.XRange(), v.YRange()
	return Region{
		Xmin: v.CenterX - xr/2,
		Xmax: v.CenterX + xr/2,
		Ymin: v.CenterY - yr/2,
		Ymax: v.CenterY + yr/2,
	}
}

// Resolution is the pixel size of a rendered image.
type Resolution struct {
	Width, Height int
}

// maxPixels bounds Width*Height so the RGBA buffer of a resolution, four
// bytes per pixel, is addressable by an int.
const maxPixels = math.MaxInt / 4

// Validate reports ErrInvalidResolution for a width or height below 1 or a
// pixel count too large to allocate.
func (r Resolution) Validate() error {
	if r.Width < 1 || r.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidResolution, r.Width, r.Height)
	}
	if r.Width > maxPixels/r.Height {
		return fmt.Errorf("%w: %dx%d has too many pixels", ErrInvalidResolution, r.Width, r.Height)
	}
	return nil
}

// Pixels is the number of cells in the resolution. It saturates at
// math.MaxInt instead of overflowing and is 0 for an empty resolution.
func (r Resolution) Pixels() int {
	if r.Width < 1 || r.Height < 1 {
		return 0
	}
	if r.Width > math.MaxInt/r.Height {
		return math.MaxInt
	}
	return r.Width * r.Height
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Resolution derives the image size for width pixels: height is width divided
// by the aspect ratio, rounded half to even.
func (v Viewport) Resolution(width int) (Resolution, error) {
	if err := v.Validate(); err != nil {
		return Resolution{}, err
	}
	h := math.RoundToEven(float64(width) / v.AspectRatio)
	if h > maxPixels {
		return Resolution{}, fmt.Errorf("%w: width %d gives height %g", ErrInvalidResolution, width, h)
	}
	res := Resolution{Width: width, Height: int(h)}
	if err := res.Validate(); err != nil {
		return Resolution{}, err
	}
	return res, nil
}
