package mandel

// SampleGrid holds the complex-plane coordinate of every column and row of a
// render. Xs runs from Xmin to Xmax, Ys from Ymax down to Ymin because image
// row 0 is the top of the picture.
type SampleGrid struct {
	Xs []float64
	Ys []float64
}

// NewSampleGrid builds the grid for region r at resolution res.
func NewSampleGrid(r Region, res Resolution) SampleGrid {
	g := SampleGrid{
		Xs: make([]float64, res.Width),
		Ys: make([]float64, res.Height),
	}
	for col := range g.Xs {
		g.Xs[col] = sampleX(r, res, col)
	}
	for row := range g.Ys {
		g.Ys[row] = sampleY(r, res, row)
	}
	return g
}

// Bounds is the region spanned by the outermost samples.
func (g SampleGrid) Bounds() Region {
	if len(g.Xs) == 0 || len(g.Ys) == 0 {
		return Region{}
	}
	return Region{
		Xmin: g.Xs[0],
		Xmax: g.Xs[len(g.Xs)-1],
		Ymin: g.Ys[len(g.Ys)-1],
		Ymax: g.Ys[0],
	}
}

func sampleX(r Region, res Resolution, col int) float64 {
	return linspace(r.Xmin, r.Xmax, res.Width, col)
}

func sampleY(r Region, res Resolution, row int) float64 {
	return linspace(r.Ymax, r.Ymin, res.Height, row)
}

// linspace returns the i-th of n evenly spaced values from start to stop
// inclusive. Each value is interpolated from the endpoints and the last one is
// stop exactly, so no error accumulates across the row.
func linspace(start, stop float64, n, i int) float64 {
	if n == 1 {
		return start
	}
	if i == n-1 {
		return stop
	}
	step := (stop - start) / float64(n-1)
	return start + float64(i)*step
}
