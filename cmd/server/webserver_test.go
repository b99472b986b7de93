package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/scheduler"
	"github.com/marben/mandel/render"
)

func testScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	job, err := mandel.RegionJob(mandel.SeahorseValley, 48, 40, mandel.DefaultPalette("powerColor"))
	if err != nil {
		t.Fatalf("RegionJob: %v", err)
	}
	return scheduler.New(job, 16, 16)
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp, body
}

func TestIndex(t *testing.T) {
	srv := httptest.NewServer(newMux(testScheduler(t), nil))
	defer srv.Close()

	resp, body := get(t, srv, "/")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("<canvas")) {
		t.Errorf("GET / = %d, %d bytes", resp.StatusCode, len(body))
	}
	if resp, _ := get(t, srv, "/nope"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope = %d, want 404", resp.StatusCode)
	}
}

func TestRenderEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux(testScheduler(t), nil))
	defer srv.Close()

	resp, body := get(t, srv, "/render?width=64&precision=40&zoom=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("image %dx%d, want 64x48", cfg.Width, cfg.Height)
	}

	if resp, body := get(t, srv, "/render?width=16&precision=20&shape=0"); resp.StatusCode != http.StatusOK {
		t.Errorf("shape=0 render = %d: %s", resp.StatusCode, body)
	}

	resp, body = get(t, srv, "/render?width=32&precision=20&format=bmp")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/bmp" {
		t.Errorf("bmp render = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("BM")) {
		t.Error("body is not a bmp")
	}

	for _, q := range []string{
		"rule=rainbow",
		"width=0",
		"width=abc",
		"precision=0",
		"zoom=0",
		"format=gif",
		"width=100000",
	} {
		resp, body := get(t, srv, "/render?"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("/render?%s = %d, want 400", q, resp.StatusCode)
		}
		if q == "rule=rainbow" && !strings.Contains(string(body), "powerColor") {
			t.Errorf("error body %q does not list the rules", body)
		}
	}
}

func TestParamsFromQuery(t *testing.T) {
	p, err := paramsFromQuery(url.Values{"rule": {"logColor"}, "y": {"0.25"}, "supersample": {"2"}})
	if err != nil {
		t.Fatalf("paramsFromQuery: %v", err)
	}
	if p.Width != 800 || p.Palette.Rule != "logColor" || p.Palette.Shape != 10 || p.CenterY != 0.25 || p.Supersample != 2 {
		t.Errorf("params = %+v", p)
	}

	for _, tt := range []struct {
		q    url.Values
		want float64
	}{
		{url.Values{"shape": {"0"}}, 0.2},
		{url.Values{"rule": {"logColor"}, "shape": {"0"}}, 10},
		{url.Values{"rule": {"logColor"}, "shape": {"2"}}, 2},
	} {
		p, err := paramsFromQuery(tt.q)
		if err != nil {
			t.Errorf("paramsFromQuery(%v): %v", tt.q, err)
			continue
		}
		if p.Palette.Shape != tt.want {
			t.Errorf("paramsFromQuery(%v) shape = %v, want %v", tt.q, p.Palette.Shape, tt.want)
		}
	}

	_, err = paramsFromQuery(url.Values{"width": {"4000"}, "supersample": {"2"}})
	if !errors.Is(err, mandel.ErrInvalidResolution) {
		t.Errorf("oversized render err = %v", err)
	}
	_, err = paramsFromQuery(url.Values{"rule": {"sepia"}})
	if !errors.Is(err, mandel.ErrUnknownColorRule) {
		t.Errorf("unknown rule err = %v", err)
	}
}

func TestProgressAndImage(t *testing.T) {
	sched := testScheduler(t)
	srv := httptest.NewServer(newMux(sched, nil))
	defer srv.Close()

	var before struct {
		Width, Height int
		Progress      float64
	}
	_, body := get(t, srv, "/progress")
	if err := json.Unmarshal(body, &before); err != nil {
		t.Fatalf("progress json: %v", err)
	}
	if before.Width != 48 || before.Height != 48 || before.Progress != 0 {
		t.Errorf("progress before render = %+v", before)
	}

	if err := sched.Run(context.Background(), render.RendererImpl{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, body = get(t, srv, "/progress")
	var after struct{ Progress float64 }
	if err := json.Unmarshal(body, &after); err != nil || after.Progress != 1 {
		t.Errorf("progress after render = %s, %v", body, err)
	}

	resp, body := get(t, srv, "/image.png?format=tiff")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/tiff" {
		t.Errorf("image = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp, body = get(t, srv, "/image.png")
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 48, 48) {
		t.Errorf("bounds %v", img.Bounds())
	}
}

func readTiles(t *testing.T, ctx context.Context, srv *httptest.Server) (dims tileMessage, tiles []tileMessage) {
	t.Helper()
	c, _, err := websocket.Dial(ctx, srv.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()
	c.SetReadLimit(1 << 20)

	if err := wsjson.Read(ctx, c, &dims); err != nil {
		t.Fatalf("read dims: %v", err)
	}
	for {
		var msg tileMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "done" {
			if msg.Progress != 1 {
				t.Errorf("done with progress %v", msg.Progress)
			}
			return dims, tiles
		}
		if msg.Type != "tile" {
			t.Fatalf("unexpected message type %q", msg.Type)
		}
		tiles = append(tiles, msg)
	}
}

func checkTiles(t *testing.T, sched *scheduler.Scheduler, dims tileMessage, tiles []tileMessage) {
	t.Helper()
	if dims.Type != "dims" || dims.Width != 48 || dims.Height != 48 {
		t.Errorf("dims = %+v", dims)
	}
	if len(tiles) != 9 {
		t.Fatalf("got %d tiles, want 9", len(tiles))
	}
	full, err := sched.GetImage(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range tiles {
		img, err := png.Decode(bytes.NewReader(msg.PNG))
		if err != nil {
			t.Fatalf("tile (%d,%d): %v", msg.X, msg.Y, err)
		}
		if img.Bounds().Dx() != msg.Width || img.Bounds().Dy() != msg.Height {
			t.Errorf("tile (%d,%d) is %v, header says %dx%d", msg.X, msg.Y, img.Bounds(), msg.Width, msg.Height)
		}
		// PNG does not keep the origin, so the decoded tile starts at (0,0).
		b := img.Bounds()
		for y := 0; y < msg.Height; y++ {
			for x := 0; x < msg.Width; x++ {
				r1, g1, b1, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				r2, g2, b2, _ := full.At(msg.X+x, msg.Y+y).RGBA()
				if r1 != r2 || g1 != g2 || b1 != b2 {
					t.Fatalf("tile (%d,%d) differs from the image at +(%d,%d)", msg.X, msg.Y, x, y)
				}
			}
		}
	}
}

func TestWebsocket_AfterRender(t *testing.T) {
	sched := testScheduler(t)
	if err := sched.Run(context.Background(), render.RendererImpl{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv := httptest.NewServer(newMux(sched, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dims, tiles := readTiles(t, ctx, srv)
	if dims.Progress != 1 {
		t.Errorf("dims progress = %v", dims.Progress)
	}
	checkTiles(t, sched, dims, tiles)
}

func TestWebsocket_Live(t *testing.T) {
	sched := testScheduler(t)
	srv := httptest.NewServer(newMux(sched, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		// Slow the workers down so the client subscribes mid-render.
		slow := render.RendererImpl{OnTileRender: func(image.Rectangle) { time.Sleep(5 * time.Millisecond) }}
		errc <- sched.Run(ctx, slow, slow)
	}()

	dims, tiles := readTiles(t, ctx, srv)
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	checkTiles(t, sched, dims, tiles)
}
