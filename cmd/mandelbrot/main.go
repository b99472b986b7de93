// mandelbrot renders one image of the Mandelbrot set and saves it under
// images/ with a timestamped name.
//
// Usage examples:
//
//	# Default full-set view, 1000x750, powerColor
//	mandelbrot
//
//	# Zoom into the left bulb with the log rule and 2x supersampling
//	mandelbrot -zoom 8 -offset 1.3 -rule logColor -supersample 2
//
//	# Also print a 100 column preview to the terminal
//	mandelbrot -width 400 -ansi 100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/persist"
)

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("FATAL: %v", err)
	}
	if cfg.verbose {
		mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, time.Now); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

type config struct {
	params  mandel.Params
	outDir  string
	format  string
	ansi    int
	verbose bool
}

// parseFlags reads the command line into a config. The colour rule and the
// output format are resolved here so a bad name fails before any work starts.
func parseFlags(args []string, output io.Writer) (config, error) {
	def := mandel.DefaultParams()
	cfg := config{params: def}
	p := &cfg.params

	fs := flag.NewFlagSet("mandelbrot", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.IntVar(&p.Width, "width", def.Width, "Image width in pixels (height = width * 3/4)")
	fs.IntVar(&p.Precision, "precision", def.Precision, "Maximum iterations before a point counts as non-divergent")
	fs.StringVar(&p.Palette.Rule, "rule", def.Palette.Rule, "Colour rule: "+strings.Join(mandel.ColorRuleNames(), ", "))
	fs.Float64Var(&p.Zoom, "zoom", def.Zoom, "Zoom level: 1 is the full view, >1 zooms in")
	fs.Float64Var(&p.Offset, "offset", def.Offset, "Horizontal offset, the view is centred at x = -offset")
	fs.Float64Var(&p.CenterY, "y", def.CenterY, "Vertical centre of the view")
	fs.Float64Var(&p.Palette.Shape, "shape", 0, "Rule shaping parameter: exponent for powerColor, base for logColor (0 = rule default)")
	fs.Float64Var(&p.Palette.HueOffset, "hue-offset", def.Palette.HueOffset, "Hue at divergence 0, in turns")
	fs.Float64Var(&p.Palette.HueScale, "hue-scale", def.Palette.HueScale, "Hue turns per unit of shaped divergence")
	fs.IntVar(&p.Supersample, "supersample", def.Supersample, fmt.Sprintf("Supersampling factor 1-%d", mandel.MaxSupersample))
	fs.IntVar(&p.Workers, "workers", 0, "Goroutines computing rows (0 = GOMAXPROCS)")
	fs.StringVar(&cfg.outDir, "out", persist.DefaultDir, "Output directory")
	fs.StringVar(&cfg.format, "format", "png", "Output format: "+strings.Join(persist.Formats(), ", "))
	fs.IntVar(&cfg.ansi, "ansi", 0, "Also print a truecolor preview this many columns wide (0 = off)")
	fs.BoolVar(&cfg.verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if _, err := mandel.ParseRuleKind(p.Palette.Rule); err != nil {
		return config{}, err
	}
	p.Palette = p.Palette.WithDefaultShape()
	var err error
	if cfg.format, err = persist.ParseFormat(cfg.format); err != nil {
		return config{}, err
	}
	if err := p.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, stdout io.Writer, now func() time.Time) error {
	printer := message.NewPrinter(language.English)
	start := now()

	lastDecile := -1
	progress := mandel.WithProgress(func(done, total int) {
		if d := done * 10 / total; d != lastDecile {
			lastDecile = d
			log.Printf("Computing Mandelbrot set: %d / %d rows, %d%%", done, total, done*100/total)
		}
	})

	res, err := mandel.Render(ctx, cfg.params, progress)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	path, err := persist.SaveResult(cfg.outDir, start, res, cfg.format)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if cfg.ansi > 0 {
		if err := persist.WriteANSI(stdout, res.Image, cfg.ansi); err != nil {
			return fmt.Errorf("ansi preview: %w", err)
		}
	}

	log.Printf("Image saved to %q", path)
	printer.Fprintf(stdout, "Generation completed successfully: %d pixels\n", res.Resolution.Pixels())
	return nil
}
