package mandel

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB is an opaque 8-bit colour.
type RGB struct {
	R, G, B uint8
}

// Black is the colour of points that never escape.
var Black = RGB{}

// RGBA implements color.Color.
func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

// ColorRule maps a divergence value in (0, 1) and the shaping parameters to a
// colour. Rules are pure; they are never called with the sentinel value.
type ColorRule func(value, shape, hueOffset, hueScale float64) RGB

// Fixed HSV components of the built-in rules.
const (
	ruleBrightness     = 0.9
	logRuleSaturation  = 0.8
	powerSaturationCut = 0.6
)

// PowerColor shapes value with value^exp, then walks hue with the shaped
// value while desaturating towards the set boundary.
func PowerColor(value, exp, hueOffset, hueScale float64) RGB {
	shaped := math.Pow(value, exp)
	return hsv(hueOffset+hueScale*shaped, 1-powerSaturationCut*shaped, ruleBrightness)
}

// LogColor shapes value with -log_base(value). base must be positive and not 1.
func LogColor(value, base, hueOffset, hueScale float64) RGB {
	shaped := -math.Log(value) / math.Log(base)
	return hsv(hueOffset+hueScale*shaped, logRuleSaturation, ruleBrightness)
}

// hsv converts with hue in turns (1.0 is a full circle). The hue wraps, and
// saturation and value are clamped to [0, 1]; non-finite components become 0.
func hsv(h, s, v float64) RGB {
	c := colorful.Hsv(wrapTurns(h)*360, clamp01(finite(s)), clamp01(finite(v))).Clamped()
	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}
}

// wrapTurns reduces a hue in turns to [0, 1).
func wrapTurns(h float64) float64 {
	h = finite(h)
	h -= math.Floor(h)
	// Tiny negatives round up to exactly 1.
	if h >= 1 {
		h = 0
	}
	return h
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// RuleKind enumerates the built-in colour rules.
type RuleKind int

const (
	RulePower RuleKind = iota
	RuleLog
)

func (k RuleKind) String() string {
	switch k {
	case RulePower:
		return "powerColor"
	case RuleLog:
		return "logColor"
	default:
		return fmt.Sprintf("RuleKind(%d)", int(k))
	}
}

// Func returns the rule implementation.
func (k RuleKind) Func() ColorRule {
	switch k {
	case RulePower:
		return PowerColor
	case RuleLog:
		return LogColor
	default:
		return nil
	}
}

// DefaultShape is the shaping parameter used when none is given: the exponent
// for RulePower and the logarithm base for RuleLog.
func (k RuleKind) DefaultShape() float64 {
	switch k {
	case RuleLog:
		return 10
	default:
		return 0.2
	}
}

// ValidateShape checks the shaping parameter against the rule's domain.
func (k RuleKind) ValidateShape(shape float64) error {
	if math.IsNaN(shape) || math.IsInf(shape, 0) {
		return fmt.Errorf("%w: %s shape %g is not finite", ErrInvalidPalette, k, shape)
	}
	switch k {
	case RulePower:
		if shape <= 0 {
			return fmt.Errorf("%w: %s exponent must be > 0, got %g", ErrInvalidPalette, k, shape)
		}
	case RuleLog:
		if shape <= 0 || shape == 1 {
			return fmt.Errorf("%w: %s base must be > 0 and != 1, got %g", ErrInvalidPalette, k, shape)
		}
	}
	return nil
}

var ruleKinds = map[string]RuleKind{
	RulePower.String(): RulePower,
	RuleLog.String():   RuleLog,
}

// ColorRuleNames returns the registered rule names in sorted order.
func ColorRuleNames() []string {
	names := make([]string, 0, len(ruleKinds))
	for n := range ruleKinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseRuleKind resolves a registry name.
func ParseRuleKind(name string) (RuleKind, error) {
	k, ok := ruleKinds[name]
	if !ok {
		return 0, &UnknownColorRuleError{Name: name, Valid: ColorRuleNames()}
	}
	return k, nil
}

// LookupColorRule returns the rule registered under name, or an
// *UnknownColorRuleError listing the valid names.
func LookupColorRule(name string) (ColorRule, error) {
	k, err := ParseRuleKind(name)
	if err != nil {
		return nil, err
	}
	return k.Func(), nil
}

// Palette selects a colour rule and its shaping parameters.
type Palette struct {
	Rule      string
	Shape     float64
	HueOffset float64
	HueScale  float64
}

// DefaultPalette returns the default parameters for the named rule: shape
// from RuleKind.DefaultShape, hue offset 0.27, hue scale 1.
func DefaultPalette(rule string) Palette {
	p := Palette{Rule: rule, HueOffset: 0.27, HueScale: 1}
	if k, err := ParseRuleKind(rule); err == nil {
		p.Shape = k.DefaultShape()
	}
	return p
}

// WithDefaultShape returns p with a zero Shape replaced by the rule's
// default. Front ends use zero to mean "not given". An unknown rule is left
// for Validate to report.
func (p Palette) WithDefaultShape() Palette {
	if p.Shape != 0 {
		return p
	}
	if k, err := ParseRuleKind(p.Rule); err == nil {
		p.Shape = k.DefaultShape()
	}
	return p
}

// Validate resolves the rule and checks the shaping parameters.
func (p Palette) Validate() error {
	_, err := p.resolve()
	return err
}

func (p Palette) resolve() (ColorRule, error) {
	k, err := ParseRuleKind(p.Rule)
	if err != nil {
		return nil, err
	}
	if err := k.ValidateShape(p.Shape); err != nil {
		return nil, err
	}
	for name, v := range map[string]float64{"hue offset": p.HueOffset, "hue scale": p.HueScale} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is %g", ErrInvalidPalette, name, v)
		}
	}
	return k.Func(), nil
}
