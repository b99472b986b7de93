// Package mandel renders escape-time images of the Mandelbrot set.
//
// The package is split in two independent halves. The field computer maps a
// window of the complex plane to a grid of normalized divergence values, and
// the colour mapper turns each value into an RGB triple. Render glues them
// together for a full set of Params.
package mandel

import (
	"fmt"
	"math"
	"sort"
)

// Region within the complex plane
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
}

// Dx is the width of the region on the real axis.
func (r Region) Dx() float64 { return r.Xmax - r.Xmin }

// Dy is the height of the region on the imaginary axis.
func (r Region) Dy() float64 { return r.Ymax - r.Ymin }

// Validate reports ErrInvalidViewport for non-finite, degenerate or inverted bounds.
func (r Region) Validate() error {
	for _, v := range [...]float64{r.Xmin, r.Xmax, r.Ymin, r.Ymax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound in %v", ErrInvalidViewport, r)
		}
	}
	if r.Xmax <= r.Xmin {
		return fmt.Errorf("%w: xmax %g <= xmin %g", ErrInvalidViewport, r.Xmax, r.Xmin)
	}
	if r.Ymax <= r.Ymin {
		return fmt.Errorf("%w: ymax %g <= ymin %g", ErrInvalidViewport, r.Ymax, r.Ymin)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]", r.Xmin, r.Xmax, r.Ymin, r.Ymax)
}

// Classic regions / landmarks in the Mandelbrot set
var (
	// Seahorse Valley – dense filaments and repeating “seahorse” curls
	SeahorseValley = Region{
		Xmin: -0.8,
		Xmax: -0.7,
		Ymin: 0.05,
		Ymax: 0.15,
	}

	// Elephant Valley – large bulb with trunk-like tendrils
	ElephantValley = Region{
		Xmin: -1.85,
		Xmax: -1.75,
		Ymin: -0.10,
		Ymax: -0.02,
	}

	// Spiral Minibrot – small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Xmin: -0.7435,
		Xmax: -0.7420,
		Ymin: 0.1310,
		Ymax: 0.1325,
	}

	// Triple Spiral – threefold symmetric spiral structure
	TripleSpiral = Region{
		Xmin: -0.7480,
		Xmax: -0.7450,
		Ymin: 0.0950,
		Ymax: 0.0980,
	}

	// Valley of the Dragon – deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Xmin: -0.7400,
		Xmax: -0.7350,
		Ymin: 0.1800,
		Ymax: 0.1850,
	}

	// Minibrot in a Mini-Spiral – self-similar Mandelbrot copy inside a spiral arm
	MinibrotInMiniSpiral = Region{
		Xmin: -1.7390,
		Xmax: -1.7375,
		Ymin: -0.0235,
		Ymax: -0.0220,
	}

	// FullSet is the default view: the whole set at zoom 1, offset 0.65.
	FullSet = DefaultViewport(1, DefaultOffset).Bounds()
)

var landmarks = map[string]Region{
	"full":         FullSet,
	"seahorse":     SeahorseValley,
	"elephant":     ElephantValley,
	"spiral":       SpiralMinibrot,
	"triplespiral": TripleSpiral,
	"dragon":       ValleyOfTheDragon,
	"minispiral":   MinibrotInMiniSpiral,
}

// Landmark returns the named region, e.g. "seahorse".
func Landmark(name string) (Region, bool) {
	r, ok := landmarks[name]
	return r, ok
}

// LandmarkNames returns the sorted names accepted by Landmark.
func LandmarkNames() []string {
	names := make([]string, 0, len(landmarks))
	for n := range landmarks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
