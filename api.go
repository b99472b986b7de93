package mandel

import (
	"context"
	"image"
)

//go:generate go run github.com/marben/irpc/cmd/irpc@v0.0.0-20260109104542-2d3fde99869b

// ImgProvider hands out the fully rendered image of a job.
type ImgProvider interface {
	GetImage(ctx context.Context) (*image.RGBA, error)
}

// Renderer renders one tile of a job. The returned image has bounds equal to
// tile, in the coordinates of the full picture.
type Renderer interface {
	RenderTile(ctx context.Context, job Job, tile image.Rectangle) (*image.RGBA, error)
}
