// Package persist writes rendered images to disk.
package persist

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/marben/mandel"
)

// DefaultDir is the directory images are written to.
const DefaultDir = "images"

// ErrUnknownFormat is returned for an output format without an encoder.
var ErrUnknownFormat = errors.New("unknown image format")

type encoder func(w io.Writer, img image.Image) error

var encoders = map[string]encoder{
	"png": png.Encode,
	"bmp": bmp.Encode,
	"tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	},
}

// Formats returns the supported format names.
func Formats() []string {
	names := make([]string, 0, len(encoders))
	for n := range encoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseFormat normalizes a format name.
func ParseFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimPrefix(format, "."))
	if f == "tif" {
		f = "tiff"
	}
	if _, ok := encoders[f]; !ok {
		return "", fmt.Errorf("%w %q: choose from [%s]", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
	return f, nil
}

// Filename returns the timestamped name of a render, e.g.
// images/output_2024-01-02_15-04-05_1000x750px_zoom1.00.png
func Filename(dir string, now time.Time, res mandel.Resolution, zoom float64, format string) string {
	name := fmt.Sprintf("output_%s_%dx%dpx_zoom%.2f.%s",
		now.Format("2006-01-02_15-04-05"), res.Width, res.Height, zoom, format)
	return filepath.Join(dir, name)
}

// Encode writes img to w in the given format.
func Encode(w io.Writer, img image.Image, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	if err := encoders[f](w, img); err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}

// Save writes img to path, creating the parent directory. The format comes
// from the file extension.
func Save(path string, img image.Image) (err error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Encode(f, img, format)
}

// SaveResult saves a render under its timestamped name in dir and returns the
// path written.
func SaveResult(dir string, now time.Time, res *mandel.Result, format string) (string, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return "", err
	}
	path := Filename(dir, now, res.Resolution, res.Params.Zoom, f)
	if err := Save(path, res.Image.ToRGBA()); err != nil {
		return "", err
	}
	return path, nil
}
