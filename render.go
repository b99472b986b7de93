package mandel

import (
	"context"
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// MaxSupersample bounds the supersampling factor.
const MaxSupersample = 8

// Params is the full inbound parameter set of one render.
type Params struct {
	Width     int
	Precision int
	Zoom      float64
	// Offset moves the centre along the real axis: centre x = -Offset.
	Offset  float64
	CenterY float64
	Palette Palette
	// Supersample renders at Supersample times the resolution and scales the
	// image down. 1 disables it.
	Supersample int
	// Workers is the number of goroutines computing rows, 0 for GOMAXPROCS.
	Workers int
}

// DefaultParams returns width 1000, precision 500, the powerColor rule, zoom 1
// and offset 0.65.
func DefaultParams() Params {
	return Params{
		Width:       1000,
		Precision:   500,
		Zoom:        1,
		Offset:      DefaultOffset,
		Palette:     DefaultPalette(RulePower.String()),
		Supersample: 1,
	}
}

// Viewport returns the viewport described by the parameters.
func (p Params) Viewport() Viewport {
	v := DefaultViewport(p.Zoom, p.Offset)
	v.CenterY = p.CenterY
	return v
}

// Validate checks every parameter. The colour rule is checked first.
func (p Params) Validate() error {
	_, _, err := p.resolve()
	return err
}

func (p Params) resolve() (ColorRule, Resolution, error) {
	rule, err := p.Palette.resolve()
	if err != nil {
		return nil, Resolution{}, err
	}
	res, err := p.Viewport().Resolution(p.Width)
	if err != nil {
		return nil, Resolution{}, err
	}
	if p.Precision < 1 {
		return nil, Resolution{}, fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidPrecision, p.Precision)
	}
	if p.Supersample < 1 || p.Supersample > MaxSupersample {
		return nil, Resolution{}, fmt.Errorf("%w: must be in [1,%d], got %d", ErrInvalidSupersample, MaxSupersample, p.Supersample)
	}
	return rule, res, nil
}

// Result is the output of Render.
type Result struct {
	Params     Params
	Viewport   Viewport
	Region     Region
	Resolution Resolution
	// Field is sampled at Resolution times Params.Supersample on both axes.
	Field *Field
	Image *Image
}

// Render validates p, computes the divergence field and colours it.
func Render(ctx context.Context, p Params, opts ...FieldOption) (*Result, error) {
	rule, res, err := p.resolve()
	if err != nil {
		return nil, err
	}
	vp := p.Viewport()
	region := vp.Bounds()
	sampleRes := Resolution{Width: res.Width * p.Supersample, Height: res.Height * p.Supersample}

	Logger().Info("rendering",
		"resolution", res.String(),
		"precision", p.Precision,
		"rule", p.Palette.Rule,
		"zoom", p.Zoom,
		"region", region.String(),
	)

	opts = append([]FieldOption{WithWorkers(p.Workers)}, opts...)
	field, err := ComputeFieldContext(ctx, sampleRes, region, p.Precision, opts...)
	if err != nil {
		return nil, fmt.Errorf("compute field: %w", err)
	}

	img := colorize(field, rule, p.Palette)
	if p.Supersample > 1 {
		img = downscale(img, res)
	}

	return &Result{
		Params:     p,
		Viewport:   vp,
		Region:     region,
		Resolution: res,
		Field:      field,
		Image:      img,
	}, nil
}

// downscale resamples m to res with a Catmull-Rom filter.
func downscale(m *Image, res Resolution) *Image {
	src := m.ToRGBA()
	dst := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return FromRGBA(dst)
}

// Job describes a render split into tiles: every tile is computed against the
// same region, resolution, precision and palette.
type Job struct {
	Region     Region
	Resolution Resolution
	Precision  int
	Palette    Palette
}

// NewJob builds the tile job for a set of parameters. Supersampling does not
// apply to tiled renders and is ignored.
func NewJob(p Params) (Job, error) {
	p.Supersample = 1
	_, res, err := p.resolve()
	if err != nil {
		return Job{}, err
	}
	return Job{
		Region:     p.Viewport().Bounds(),
		Resolution: res,
		Precision:  p.Precision,
		Palette:    p.Palette,
	}, nil
}

// RegionJob builds a job for a fixed region at the given width. The height
// follows the region's own aspect ratio.
func RegionJob(r Region, width, precision int, palette Palette) (Job, error) {
	if err := r.Validate(); err != nil {
		return Job{}, err
	}
	job := Job{
		Region:     r,
		Resolution: Resolution{Width: width, Height: int(math.RoundToEven(float64(width) * r.Dy() / r.Dx()))},
		Precision:  precision,
		Palette:    palette,
	}
	return job, job.Validate()
}

// Validate checks the job the same way Render checks Params.
func (j Job) Validate() error {
	if _, err := j.Palette.resolve(); err != nil {
		return err
	}
	return validateField(j.Resolution, j.Region, j.Precision)
}

// Bounds is the pixel rectangle of the whole picture.
func (j Job) Bounds() image.Rectangle {
	return image.Rect(0, 0, j.Resolution.Width, j.Resolution.Height)
}

// RenderTile computes and colours one tile of job. Tiles stitched together
// are identical to the whole picture rendered at once.
func RenderTile(ctx context.Context, job Job, tile image.Rectangle) (*image.RGBA, error) {
	rule, err := job.Palette.resolve()
	if err != nil {
		return nil, err
	}
	f, err := ComputeTile(ctx, job.Resolution, job.Region, job.Precision, tile, WithWorkers(1))
	if err != nil {
		return nil, err
	}
	return colorize(f, rule, job.Palette).ToRGBAAt(tile.Min), nil
}
