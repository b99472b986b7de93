package mandel

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"
	"sync/atomic"
)

// Sentinel marks a point that did not escape within the iteration budget.
const Sentinel = 1.0

// escapeRadiusSq is the squared escape radius: once |z| reaches 2 the orbit
// diverges.
const escapeRadiusSq = 4.0

// Escape iterates z <- z² + c from z = 0 and returns the normalized escape
// time i/precision, where i is the number of iterations completed when
// |z|² first reached 4. Points that survive precision iterations return
// Sentinel. For precision >= 1 the escaped value is always in (0, 1).
func Escape(cx, cy float64, precision int) float64 {
	var x, y float64
	i := 0
	for x*x+y*y < escapeRadiusSq && i < precision {
		x, y = x*x-y*y+cx, 2*x*y+cy
		i++
	}
	if i >= precision {
		return Sentinel
	}
	return float64(i) / float64(precision)
}

// Field is a row-major grid of normalized divergence values.
type Field struct {
	Width, Height int
	Values        []float64
}

// NewField allocates a zeroed field. The size is checked like a Resolution.
func NewField(width, height int) (*Field, error) {
	if err := (Resolution{Width: width, Height: height}).Validate(); err != nil {
		return nil, err
	}
	return &Field{
		Width:  width,
		Height: height,
		Values: make([]float64, width*height),
	}, nil
}

// At returns the value at (col, row).
func (f *Field) At(col, row int) float64 {
	return f.Values[row*f.Width+col]
}

// Row returns row as a slice aliasing the field.
func (f *Field) Row(row int) []float64 {
	return f.Values[row*f.Width : (row+1)*f.Width]
}

// fieldComputations counts field computations that passed validation.
var fieldComputations atomic.Int64

// FieldOption configures a field computation.
type FieldOption func(*fieldOptions)

type fieldOptions struct {
	workers  int
	progress func(rowsDone, rowsTotal int)
}

func defaultFieldOptions() fieldOptions {
	return fieldOptions{workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers sets the number of goroutines evaluating rows. Values below 1
// select GOMAXPROCS; 1 evaluates sequentially.
func WithWorkers(n int) FieldOption {
	return func(o *fieldOptions) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.workers = n
	}
}

// WithProgress installs a callback invoked after each completed row. It may
// be called from several goroutines, but never concurrently.
func WithProgress(fn func(rowsDone, rowsTotal int)) FieldOption {
	return func(o *fieldOptions) {
		o.progress = fn
	}
}

// ComputeField computes the divergence field of region r at resolution res.
func ComputeField(res Resolution, r Region, precision int, opts ...FieldOption) (*Field, error) {
	return ComputeFieldContext(context.Background(), res, r, precision, opts...)
}

// ComputeFieldContext is ComputeField with cancellation checked between rows.
// A cancelled computation returns ctx.Err() and no field.
func ComputeFieldContext(ctx context.Context, res Resolution, r Region, precision int, opts ...FieldOption) (*Field, error) {
	if err := validateField(res, r, precision); err != nil {
		return nil, err
	}
	o := defaultFieldOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := NewField(res.Width, res.Height)
	if err != nil {
		return nil, err
	}
	fieldComputations.Add(1)
	if err := computeRows(ctx, f, res, r, precision, image.Rect(0, 0, res.Width, res.Height), o); err != nil {
		return nil, err
	}
	Logger().Debug("field computed", "resolution", res.String(), "region", r.String(), "precision", precision)
	return f, nil
}

// ComputeTile computes the part of the field of (res, r) covered by rect.
// The returned field is rect.Dx() x rect.Dy(); every cell equals the cell at
// the same global position of the full ComputeField result.
func ComputeTile(ctx context.Context, res Resolution, r Region, precision int, rect image.Rectangle, opts ...FieldOption) (*Field, error) {
	if err := validateField(res, r, precision); err != nil {
		return nil, err
	}
	full := image.Rect(0, 0, res.Width, res.Height)
	if rect.Empty() || !rect.In(full) {
		return nil, fmt.Errorf("%w: tile %v outside %v", ErrInvalidResolution, rect, full)
	}
	o := defaultFieldOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := NewField(rect.Dx(), rect.Dy())
	if err != nil {
		return nil, err
	}
	fieldComputations.Add(1)
	if err := computeRows(ctx, f, res, r, precision, rect, o); err != nil {
		return nil, err
	}
	return f, nil
}

func validateField(res Resolution, r Region, precision int) error {
	if err := res.Validate(); err != nil {
		return err
	}
	if precision < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidPrecision, precision)
	}
	return r.Validate()
}

// computeRows fills f with the cells of rect. Rows are handed out to
// o.workers goroutines; every cell depends only on its own coordinates so the
// result does not depend on the evaluation order.
func computeRows(ctx context.Context, f *Field, res Resolution, r Region, precision int, rect image.Rectangle, o fieldOptions) error {
	xs := make([]float64, rect.Dx())
	for i := range xs {
		xs[i] = sampleX(r, res, rect.Min.X+i)
	}

	total := rect.Dy()
	var (
		done int
		mu   sync.Mutex
	)
	rowDone := func() {
		if o.progress == nil {
			return
		}
		mu.Lock()
		done++
		o.progress(done, total)
		mu.Unlock()
	}

	fillRow := func(i int) {
		cy := sampleY(r, res, rect.Min.Y+i)
		row := f.Row(i)
		for col, cx := range xs {
			row[col] = Escape(cx, cy, precision)
		}
	}

	workers := o.workers
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fillRow(i)
			rowDone()
		}
		return nil
	}

	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				fillRow(i)
				rowDone()
			}
		}()
	}

	var err error
feed:
	for i := 0; i < total; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case rows <- i:
		}
	}
	close(rows)
	wg.Wait()
	return err
}
