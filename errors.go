package mandel

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors. All of them are reported before any field computation
// starts; callers match them with errors.Is.
var (
	ErrInvalidResolution  = errors.New("invalid resolution")
	ErrInvalidPrecision   = errors.New("invalid precision")
	ErrInvalidViewport    = errors.New("invalid viewport")
	ErrUnknownColorRule   = errors.New("unknown colour rule")
	ErrInvalidPalette     = errors.New("invalid palette")
	ErrInvalidSupersample = errors.New("invalid supersample factor")
)

// UnknownColorRuleError is returned by LookupColorRule for names that are not
// in the registry.
type UnknownColorRuleError struct {
	Name  string
	Valid []string
}

func (e *UnknownColorRuleError) Error() string {
	return fmt.Sprintf("invalid colour_rule %q: choose from [%s]", e.Name, strings.Join(e.Valid, ", "))
}

func (e *UnknownColorRuleError) Unwrap() error {
	return ErrUnknownColorRule
}
