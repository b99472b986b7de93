// server renders one region of the Mandelbrot set with a pool of local tile
// workers plus any number of remote workers connected over irpc, and streams
// the finished tiles to browsers over a websocket.
//
// Remote workers (see cmd/cliclient) connect over tcp on -rpc or over a
// websocket on /rpc. Each one serves mandel.Renderer to the server and can
// fetch the finished image through mandel.ImgProvider.
//
// Endpoints:
//
//	/           viewer page drawing tiles as they arrive
//	/ws         websocket tile stream
//	/rpc        websocket irpc connections
//	/image.png  the complete image, blocks until the render is done
//	/progress   JSON render progress
//	/render     on-demand render of a viewport, e.g. /render?width=400&zoom=4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/marben/irpc"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/scheduler"
	"github.com/marben/mandel/render"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run() error {
	var (
		addr      = flag.String("addr", ":8080", "HTTP listen address")
		rpcAddr   = flag.String("rpc", ":8081", "TCP listen address for irpc workers, empty to disable")
		width     = flag.Int("width", 1920, "Image width in pixels, height follows the region")
		precision = flag.Int("precision", 1000, "Maximum iterations per point")
		region    = flag.String("region", "seahorse", "Region to render: "+strings.Join(mandel.LandmarkNames(), ", "))
		rule      = flag.String("rule", mandel.RulePower.String(), "Colour rule: "+strings.Join(mandel.ColorRuleNames(), ", "))
		workers   = flag.Int("workers", runtime.GOMAXPROCS(0), "Number of local tile workers, 0 leaves all rendering to remote workers")
		tileSize  = flag.Int("tile", scheduler.DefaultTileSize, "Tile edge length in pixels")
		verbose   = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	r, ok := mandel.Landmark(*region)
	if !ok {
		return fmt.Errorf("unknown region %q: choose from [%s]", *region, strings.Join(mandel.LandmarkNames(), ", "))
	}
	job, err := mandel.RegionJob(r, *width, *precision, mandel.DefaultPalette(*rule))
	if err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if *workers < 0 || *tileSize < 1 {
		return fmt.Errorf("workers must not be negative and tile size must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sched := scheduler.New(job, *tileSize, *tileSize)
	start := time.Now()
	go func() {
		select {
		case <-sched.Done():
			log.Printf("render of %s %s finished in %s", *region, job.Resolution, time.Since(start))
		case <-ctx.Done():
		}
	}()

	if *workers > 0 {
		renderers := make([]mandel.Renderer, *workers)
		for i := range renderers {
			renderers[i] = render.RendererImpl{}
		}
		go func() {
			if err := sched.Run(ctx, renderers...); err != nil {
				log.Printf("local render: %v", err)
			}
		}()
	}

	// irpcServer can serve multiple listeners. In this case both tcp and websocket
	irpcServer := newRPCServer(sched)
	websocketListener := NewWSListener(ctx, *addr+"/rpc")
	go func() {
		if err := irpcServer.Serve(websocketListener); err != nil && !errors.Is(err, irpc.ErrServerClosed) {
			log.Printf("server.Serve ws: %v", err)
		}
	}()
	if *rpcAddr != "" {
		tcpListener, err := net.Listen("tcp", *rpcAddr)
		if err != nil {
			return fmt.Errorf("net.Listen: %w", err)
		}
		log.Printf("tcp listening on %s", tcpListener.Addr())
		go func() {
			if err := irpcServer.Serve(tcpListener); err != nil && !errors.Is(err, irpc.ErrServerClosed) {
				log.Printf("server.Serve tcp: %v", err)
			}
		}()
	}

	httpServer := webServer(*addr, sched, websocketListener)
	go func() {
		<-ctx.Done()
		if err := irpcServer.Close(); err != nil {
			log.Printf("irpcServer close: %v", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("httpServer shutdown: %v", err)
		}
	}()

	log.Printf("mb server rendering %s at %s with %d local workers, waiting for remote workers", *region, job.Resolution, *workers)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer: %w", err)
	}
	return nil
}
