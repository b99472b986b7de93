// Package scheduler splits a render job into tiles and feeds them to any
// number of mandel.Renderer workers.
package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"slices"
	"sync"

	"github.com/marben/mandel"
)

// DefaultTileSize is the edge length of the square tiles a job is split into.
const DefaultTileSize = 64

// ErrIncomplete is returned by Run when every worker stopped before all tiles
// were rendered.
var ErrIncomplete = errors.New("render incomplete")

// Scheduler owns the target image of one job and the bookkeeping of which
// tiles are unstarted, in process and finished.
type Scheduler struct {
	job     mandel.Job
	workers int
	img     *image.RGBA

	done   chan struct{}
	closed bool

	totalPixels    int
	finishedPixels int

	unstarted []image.Rectangle
	inProcess map[image.Rectangle]struct{}
	finished  []image.Rectangle
	subs      map[chan image.Rectangle]struct{}
	m         sync.Mutex
}

// New splits job into tileW × tileH tiles, handed out centre first.
func New(job mandel.Job, tileW, tileH int) *Scheduler {
	img := image.NewRGBA(job.Bounds())
	allTiles := SplitRect(img.Bounds(), tileW, tileH)
	s := &Scheduler{
		job:         job,
		img:         img,
		done:        make(chan struct{}),
		unstarted:   allTiles,
		inProcess:   make(map[image.Rectangle]struct{}),
		subs:        make(map[chan image.Rectangle]struct{}),
		totalPixels: job.Resolution.Pixels(),
	}
	if len(allTiles) == 0 {
		s.finish()
	}
	return s
}

// Job returns the scheduled job.
func (s *Scheduler) Job() mandel.Job { return s.job }

// Done is closed once every tile has been rendered.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

func (s *Scheduler) popTile() (tile image.Rectangle, found bool) {
	s.m.Lock()
	defer s.m.Unlock()

	// Get unstarted tile
	if len(s.unstarted) > 0 {
		tile, s.unstarted = s.unstarted[0], s.unstarted[1:]
		s.inProcess[tile] = struct{}{}
		return tile, true
	}

	// No unstarted tile left: help with a tile someone else is rendering
	if len(s.inProcess) > 0 {
		for tile = range s.inProcess {
			break
		}
		return tile, true
	}

	return image.Rectangle{}, false
}

// GetImage blocks until the render is complete or ctx ends. The returned image
// must not be modified.
func (s *Scheduler) GetImage(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-s.done:
		return s.img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ mandel.ImgProvider = (*Scheduler)(nil)

// Progress is the finished fraction of pixels in [0, 1].
func (s *Scheduler) Progress() float64 {
	s.m.Lock()
	defer s.m.Unlock()
	if s.totalPixels == 0 {
		return 1
	}
	return float64(s.finishedPixels) / float64(s.totalPixels)
}

// Workers is the number of renderers currently running.
func (s *Scheduler) Workers() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.workers
}

// TileImage returns a copy of a finished tile.
func (s *Scheduler) TileImage(tile image.Rectangle) *image.RGBA {
	s.m.Lock()
	defer s.m.Unlock()
	out := image.NewRGBA(tile)
	draw.Draw(out, tile, s.img, tile.Min, draw.Src)
	return out
}

// Subscribe returns the tiles finished so far and a channel receiving every
// tile finished afterwards. The channel is closed when the render completes or
// cancel is called.
func (s *Scheduler) Subscribe() (finished []image.Rectangle, tiles <-chan image.Rectangle, cancel func()) {
	s.m.Lock()
	defer s.m.Unlock()

	finished = append([]image.Rectangle(nil), s.finished...)
	ch := make(chan image.Rectangle, len(s.unstarted)+len(s.inProcess))
	if s.closed {
		close(ch)
		return finished, ch, func() {}
	}
	s.subs[ch] = struct{}{}
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.m.Lock()
			defer s.m.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
	return finished, ch, cancel
}

func (s *Scheduler) tileFinished(tileImg *image.RGBA) {
	rect := tileImg.Bounds()
	s.m.Lock()
	defer s.m.Unlock()

	_, found := s.inProcess[rect]
	if !found {
		// a duplicate render of a tile that is already drawn
		return
	}

	draw.Draw(s.img, rect, tileImg, rect.Min, draw.Src)
	s.finishedPixels += rect.Dx() * rect.Dy()
	delete(s.inProcess, rect)
	s.finished = append(s.finished, rect)

	for ch := range s.subs {
		ch <- rect
	}

	mandel.Logger().Debug("tile finished", "tile", rect.String(), "progress", float64(s.finishedPixels)/float64(s.totalPixels))

	if len(s.unstarted) == 0 && len(s.inProcess) == 0 {
		s.finishLocked()
	}
}

func (s *Scheduler) finish() {
	s.m.Lock()
	defer s.m.Unlock()
	s.finishLocked()
}

func (s *Scheduler) finishLocked() {
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	close(s.done)
}

func (s *Scheduler) incActiveWorkers() {
	s.m.Lock()
	s.workers++
	w := s.workers
	s.m.Unlock()

	mandel.Logger().Info("worker joined", "workers", w)
}

func (s *Scheduler) decActiveWorkers() {
	s.m.Lock()
	s.workers--
	w := s.workers
	s.m.Unlock()

	mandel.Logger().Info("worker left", "workers", w)
}

// Render renders unfinished tiles on renderer until none are left, ctx ends
// or the renderer fails. A failed tile stays in process so other workers pick
// it up. Safe to call from many goroutines.
func (s *Scheduler) Render(ctx context.Context, renderer mandel.Renderer) error {
	s.incActiveWorkers()
	defer s.decActiveWorkers()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tile, found := s.popTile()
		if !found {
			return nil
		}
		tileImg, err := renderer.RenderTile(ctx, s.job, tile)
		if err != nil {
			mandel.Logger().Warn("tile render failed", "tile", tile.String(), "err", err)
			return fmt.Errorf("render tile %s: %w", tile, err)
		}
		if tileImg.Bounds() != tile {
			return fmt.Errorf("render tile %s: renderer returned bounds %s", tile, tileImg.Bounds())
		}
		s.tileFinished(tileImg)
	}
}

// Run renders the job with one goroutine per renderer and waits for them.
// It returns nil once the image is complete, even if some renderers failed.
func (s *Scheduler) Run(ctx context.Context, renderers ...mandel.Renderer) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range renderers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Render(ctx, r); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	select {
	case <-s.done:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(append([]error{ErrIncomplete}, errs...)...)
}

// SplitRect cuts r into tiles of at most tileW × tileH pixels, clipped at the
// right and bottom edges. A non-positive tile size falls back to
// DefaultTileSize. Tiles are ordered by the distance of their centre from the
// centre of r, so a progressive render grows outward from the middle; ties
// keep row-major order.
func SplitRect(r image.Rectangle, tileW, tileH int) []image.Rectangle {
	if tileW <= 0 {
		tileW = DefaultTileSize
	}
	if tileH <= 0 {
		tileH = DefaultTileSize
	}

	var tiles []image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y += tileH {
		for x := r.Min.X; x < r.Max.X; x += tileW {
			tiles = append(tiles, image.Rect(x, y, x+tileW, y+tileH).Intersect(r))
		}
	}

	// Doubled coordinates keep the centres integral.
	cx, cy := r.Min.X+r.Max.X, r.Min.Y+r.Max.Y
	dist := func(t image.Rectangle) int {
		dx := t.Min.X + t.Max.X - cx
		dy := t.Min.Y + t.Max.Y - cy
		return dx*dx + dy*dy
	}
	slices.SortStableFunc(tiles, func(a, b image.Rectangle) int {
		return cmp.Compare(dist(a), dist(b))
	})
	return tiles
}
