// cliclient is a remote worker for the Mandelbrot server. It connects over
// tcp or a websocket, renders the tiles the server hands it, then fetches the
// fully rendered image and saves it. The format follows the file extension.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/coder/websocket"
	"github.com/marben/irpc"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/persist"
	"github.com/marben/mandel/render"
)

type config struct {
	addr    string
	out     string
	verbose bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("FATAL: %v", err)
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	mandel.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func parseFlags(args []string, output io.Writer) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("cliclient", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", ":8081", "Server address: host:port for tcp, or a ws:// or wss:// url of the /rpc endpoint")
	fs.StringVar(&cfg.out, "out", "mandel.png", "Output file: "+strings.Join(persist.Formats(), ", "))
	fs.BoolVar(&cfg.verbose, "v", false, "Log every rendered tile")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	// Fail before connecting rather than after the whole render.
	if _, err := persist.ParseFormat(filepath.Ext(cfg.out)); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// dial opens the connection to the server, over a websocket for ws:// and
// wss:// urls and over tcp otherwise.
func dial(ctx context.Context, addr string) (net.Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("websocket.Dial: %w", err)
		}
		return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return conn, nil
}

func run(ctx context.Context, cfg config) error {
	log.Printf("Connecting to Mandelbrot server on %s...", cfg.addr)
	conn, err := dial(ctx, cfg.addr)
	if err != nil {
		return err
	}

	// the renderer service is called from the server to render tiles using our CPU
	renderer := render.RendererImpl{OnTileRender: func(tile image.Rectangle) {
		mandel.Logger().Debug("rendering tile", "tile", tile.String())
	}}
	ep := irpc.NewEndpoint(conn, irpc.WithEndpointServices(mandel.NewRendererIrpcService(renderer)))
	defer ep.Close()

	client, err := mandel.NewImgProviderIrpcClient(ep)
	if err != nil {
		return fmt.Errorf("failed to create ImgProvider client: %w", err)
	}

	log.Printf("Requesting fully rendered image from server...")
	img, err := client.GetImage(ctx)
	if err != nil {
		return fmt.Errorf("client.GetImage: %w", err)
	}

	if err := persist.Save(cfg.out, img); err != nil {
		return err
	}
	log.Printf("Fully rendered image saved to %q", cfg.out)
	return nil
}
