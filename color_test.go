package mandel

import (
	"errors"
	"image/color"
	"math"
	"strings"
	"testing"
)

// Verify at compile time that RGB implements color.Color.
var _ color.Color = RGB{}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestColorRules_KnownValues(t *testing.T) {
	tests := []struct {
		name  string
		rule  ColorRule
		shape float64
		value float64
		want  RGB
	}{
		{name: "power 0.002", rule: PowerColor, shape: 0.2, value: 0.002, want: RGB{40, 163, 230}},
		{name: "power 0.01", rule: PowerColor, shape: 0.2, value: 0.01, want: RGB{56, 55, 230}},
		{name: "power 0.1", rule: PowerColor, shape: 0.2, value: 0.1, want: RGB{230, 87, 172}},
		{name: "power 0.5", rule: PowerColor, shape: 0.2, value: 0.5, want: RGB{230, 212, 120}},
		{name: "power 0.9", rule: PowerColor, shape: 0.2, value: 0.9, want: RGB{183, 230, 135}},
		{name: "log10 0.002", rule: LogColor, shape: 10, value: 0.002, want: RGB{230, 46, 80}},
		{name: "log10 0.1", rule: LogColor, shape: 10, value: 0.1, want: RGB{116, 230, 46}},
		{name: "log10 0.5", rule: LogColor, shape: 10, value: 0.5, want: RGB{46, 151, 230}},
		{name: "log10 0.9", rule: LogColor, shape: 10, value: 0.9, want: RGB{65, 230, 46}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule(tt.value, tt.shape, 0.27, 1.0)
			// Allow ±1 for rounding differences in the HSV conversion
			if diff(got.R, tt.want.R) > 1 || diff(got.G, tt.want.G) > 1 || diff(got.B, tt.want.B) > 1 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestColorRules_HueWraps(t *testing.T) {
	// A whole number of extra hue turns does not change the colour.
	for _, v := range []float64{0.05, 0.3, 0.77} {
		a := PowerColor(v, 0.2, 0.27, 1.0)
		b := PowerColor(v, 0.2, 2.27, 1.0)
		if diff(a.R, b.R) > 1 || diff(a.G, b.G) > 1 || diff(a.B, b.B) > 1 {
			t.Errorf("value %v: offset 0.27 -> %v, offset 2.27 -> %v", v, a, b)
		}
	}
}

func TestColorRules_DenseSweep(t *testing.T) {
	powerHue := func(v, e float64) float64 { return 0.27 + math.Pow(v, e) }
	powerSat := func(v, e float64) float64 { return 1 - powerSaturationCut*math.Pow(v, e) }
	logHue := func(v, b float64) float64 { return 0.27 - math.Log(v)/math.Log(b) }
	logSat := func(float64, float64) float64 { return logRuleSaturation }

	rules := []struct {
		name     string
		rule     ColorRule
		shape    float64
		hue, sat func(v, shape float64) float64
	}{
		{"powerColor", PowerColor, 0.2, powerHue, powerSat},
		{"powerColor steep", PowerColor, 5, powerHue, powerSat},
		{"logColor base 10", LogColor, 10, logHue, logSat},
		{"logColor base 2", LogColor, 2, logHue, logSat},
		{"logColor base 0.2", LogColor, 0.2, logHue, logSat},
	}
	for _, r := range rules {
		t.Run(r.name, func(t *testing.T) {
			var distinct = map[RGB]struct{}{}
			for i := 1; i <= 1000; i++ {
				v := float64(i) / 1001
				h := r.hue(v, r.shape)
				if w := wrapTurns(h); !(w >= 0 && w < 1) {
					t.Fatalf("value %v: hue %v wraps to %v, outside [0, 1)", v, h, w)
				}
				c := r.rule(v, r.shape, 0.27, 1.0)
				if want := hsv(h, r.sat(v, r.shape), ruleBrightness); c != want {
					t.Fatalf("value %v: got %v, want %v from hue %v", v, c, want, h)
				}
				distinct[c] = struct{}{}
			}
			if len(distinct) < 10 {
				t.Errorf("only %d distinct colours over 1000 samples", len(distinct))
			}
		})
	}
}

func TestWrapTurns(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{0.25, 0.25},
		{1, 0},
		{2.75, 0.75},
		{-0.25, 0.75},
		{-1e-18, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		got := wrapTurns(tt.in)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("wrapTurns(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if !(got >= 0 && got < 1) {
			t.Errorf("wrapTurns(%v) = %v, outside [0, 1)", tt.in, got)
		}
	}
	for _, h := range []float64{1e300, -1e300, 1e17 + 0.5, -3e-300} {
		if got := wrapTurns(h); !(got >= 0 && got < 1) {
			t.Errorf("wrapTurns(%v) = %v, outside [0, 1)", h, got)
		}
	}
}

func TestHSV_NonFinite(t *testing.T) {
	for _, h := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.25, 1, 1e300} {
		c := hsv(h, 0.5, 0.9)
		if c == (RGB{}) {
			t.Errorf("hsv(%v) = black", h)
		}
	}
	if got := hsv(0, math.NaN(), 2); got != (RGB{255, 255, 255}) {
		t.Errorf("hsv with NaN saturation and value 2 = %v, want white", got)
	}
}

func TestLookupColorRule(t *testing.T) {
	for _, name := range []string{"powerColor", "logColor"} {
		rule, err := LookupColorRule(name)
		if err != nil {
			t.Fatalf("LookupColorRule(%q): %v", name, err)
		}
		if rule == nil {
			t.Fatalf("LookupColorRule(%q) returned nil rule", name)
		}
	}

	_, err := LookupColorRule("rainbow")
	if !errors.Is(err, ErrUnknownColorRule) {
		t.Fatalf("err = %v, want ErrUnknownColorRule", err)
	}
	var ue *UnknownColorRuleError
	if !errors.As(err, &ue) {
		t.Fatalf("err %T is not *UnknownColorRuleError", err)
	}
	if ue.Name != "rainbow" {
		t.Errorf("Name = %q", ue.Name)
	}
	for _, n := range []string{"powerColor", "logColor"} {
		if !strings.Contains(err.Error(), n) {
			t.Errorf("error %q does not list %q", err, n)
		}
	}
}

func TestRuleKind(t *testing.T) {
	if got := ColorRuleNames(); len(got) != 2 || got[0] != "logColor" || got[1] != "powerColor" {
		t.Errorf("ColorRuleNames() = %v", got)
	}
	for _, k := range []RuleKind{RulePower, RuleLog} {
		parsed, err := ParseRuleKind(k.String())
		if err != nil || parsed != k {
			t.Errorf("ParseRuleKind(%q) = %v, %v", k, parsed, err)
		}
		if k.Func() == nil {
			t.Errorf("%v has no func", k)
		}
		if err := k.ValidateShape(k.DefaultShape()); err != nil {
			t.Errorf("%v default shape: %v", k, err)
		}
	}
	if got := RuleKind(7).String(); got != "RuleKind(7)" {
		t.Errorf("String() = %q", got)
	}
}

func TestPalette_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Palette
		want error
	}{
		{name: "default power", p: DefaultPalette("powerColor")},
		{name: "default log", p: DefaultPalette("logColor")},
		{name: "unknown rule", p: DefaultPalette("plasma"), want: ErrUnknownColorRule},
		{name: "zero exponent", p: Palette{Rule: "powerColor", Shape: 0, HueScale: 1}, want: ErrInvalidPalette},
		{name: "log base one", p: Palette{Rule: "logColor", Shape: 1, HueScale: 1}, want: ErrInvalidPalette},
		{name: "log base negative", p: Palette{Rule: "logColor", Shape: -2, HueScale: 1}, want: ErrInvalidPalette},
		{name: "nan hue scale", p: Palette{Rule: "powerColor", Shape: 0.2, HueScale: math.NaN()}, want: ErrInvalidPalette},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPalette_WithDefaultShape(t *testing.T) {
	tests := []struct {
		p    Palette
		want float64
	}{
		{Palette{Rule: "powerColor"}, 0.2},
		{Palette{Rule: "logColor"}, 10},
		{Palette{Rule: "logColor", Shape: 3}, 3},
		{Palette{Rule: "plasma"}, 0},
	}
	for _, tt := range tests {
		if got := tt.p.WithDefaultShape().Shape; got != tt.want {
			t.Errorf("%+v.WithDefaultShape().Shape = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestColorize(t *testing.T) {
	f := &Field{Width: 3, Height: 2, Values: []float64{
		Sentinel, 0.5, 0.002,
		0.9, Sentinel, 0.1,
	}}
	p := DefaultPalette("powerColor")
	img, err := Colorize(f, p)
	if err != nil {
		t.Fatalf("Colorize: %v", err)
	}
	if img.At(0, 0) != Black || img.At(1, 1) != Black {
		t.Errorf("sentinel cells not black: %v %v", img.At(0, 0), img.At(1, 1))
	}
	if want := PowerColor(0.5, p.Shape, p.HueOffset, p.HueScale); img.At(1, 0) != want {
		t.Errorf("At(1,0) = %v, want %v", img.At(1, 0), want)
	}
	rows := img.Rows()
	if len(rows) != 2 || len(rows[0]) != 3 || rows[1][2] != img.At(2, 1) {
		t.Errorf("Rows() shape or content mismatch")
	}

	rgba := img.ToRGBA()
	if got := FromRGBA(rgba); len(got.Pix) != len(img.Pix) || got.At(2, 1) != img.At(2, 1) {
		t.Errorf("RGBA conversion lost pixels")
	}
	if c := rgba.RGBAAt(0, 0); c.A != 0xff {
		t.Errorf("alpha = %d, want opaque", c.A)
	}

	if _, err := Colorize(f, DefaultPalette("nope")); !errors.Is(err, ErrUnknownColorRule) {
		t.Errorf("Colorize with unknown rule: %v", err)
	}
}
