package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/persist"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.params != mandel.DefaultParams() {
		t.Errorf("params = %+v, want defaults", cfg.params)
	}
	if cfg.outDir != persist.DefaultDir || cfg.format != "png" || cfg.ansi != 0 || cfg.verbose {
		t.Errorf("config = %+v", cfg)
	}
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-width", "640", "-precision", "200", "-rule", "logColor",
		"-zoom", "4", "-offset", "0.75", "-y", "0.1", "-format", "TIF", "-supersample", "2",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	p := cfg.params
	if p.Width != 640 || p.Precision != 200 || p.Zoom != 4 || p.Offset != 0.75 || p.CenterY != 0.1 || p.Supersample != 2 {
		t.Errorf("params = %+v", p)
	}
	if p.Palette.Rule != "logColor" || p.Palette.Shape != 10 {
		t.Errorf("palette = %+v, want logColor with base 10", p.Palette)
	}
	if cfg.format != "tiff" {
		t.Errorf("format = %q, want tiff", cfg.format)
	}
}

func TestParseFlags_ZeroShapeIsRuleDefault(t *testing.T) {
	for rule, want := range map[string]float64{"powerColor": 0.2, "logColor": 10} {
		cfg, err := parseFlags([]string{"-rule", rule, "-shape", "0"}, io.Discard)
		if err != nil {
			t.Fatalf("parseFlags(%s): %v", rule, err)
		}
		if got := cfg.params.Palette.Shape; got != want {
			t.Errorf("%s shape = %v, want %v", rule, got, want)
		}
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown rule", []string{"-rule", "rainbow"}, mandel.ErrUnknownColorRule},
		{"unknown format", []string{"-format", "gif"}, persist.ErrUnknownFormat},
		{"zero width", []string{"-width", "0"}, mandel.ErrInvalidResolution},
		{"zero precision", []string{"-precision", "0"}, mandel.ErrInvalidPrecision},
		{"negative zoom", []string{"-zoom", "-1"}, mandel.ErrInvalidViewport},
		{"log base one", []string{"-rule", "logColor", "-shape", "1"}, mandel.ErrInvalidPalette},
		{"help", []string{"-h"}, flag.ErrHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var out bytes.Buffer
	_, err := parseFlags([]string{"-rule", "rainbow"}, &out)
	if err == nil || !strings.Contains(err.Error(), "powerColor") || !strings.Contains(err.Error(), "logColor") {
		t.Errorf("error %v does not list the valid rules", err)
	}
	if _, err := parseFlags([]string{"stray"}, io.Discard); err == nil {
		t.Error("positional argument accepted")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseFlags([]string{"-width", "40", "-precision", "30", "-out", dir, "-ansi", "20"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }

	var stdout bytes.Buffer
	if err := run(context.Background(), cfg, &stdout, now); err != nil {
		t.Fatalf("run: %v", err)
	}

	path := filepath.Join(dir, "output_2024-03-04_05-06-07_40x30px_zoom1.00.png")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("image not written: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Generation completed successfully: 1,200 pixels") {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(out, "\x1b[0;38;2;") {
		t.Error("no ansi preview on stdout")
	}
}

func TestRun_Cancelled(t *testing.T) {
	cfg, err := parseFlags([]string{"-width", "40", "-out", t.TempDir()}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, cfg, io.Discard, time.Now); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
