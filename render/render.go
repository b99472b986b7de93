// Package render provides the local mandel.Renderer used by the tile
// scheduler.
package render

import (
	"context"
	"image"

	"github.com/marben/mandel"
)

// RendererImpl renders tiles on the local CPU.
type RendererImpl struct {
	// OnTileRender, if set, is called before each tile is rendered.
	OnTileRender func(tile image.Rectangle)
}

func (imp RendererImpl) RenderTile(ctx context.Context, job mandel.Job, tile image.Rectangle) (*image.RGBA, error) {
	if imp.OnTileRender != nil {
		imp.OnTileRender(tile)
	}
	mandel.Logger().Debug("rendering tile", "tile", tile.String())
	return mandel.RenderTile(ctx, job, tile)
}

var _ mandel.Renderer = RendererImpl{}
