package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/persist"
	"github.com/marben/mandel/internal/scheduler"
)

//go:embed static/index.html
var indexHTML []byte

// maxRenderPixels bounds the size of on-demand renders.
const maxRenderPixels = 4000 * 3000

// webServer creates the http server serving the viewer page, the websocket
// tile stream and the image endpoints. Websocket irpc connections on /rpc are
// passed to rpc, when it is not nil.
func webServer(addr string, sched *scheduler.Scheduler, rpc *WebsocketListener) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(sched, rpc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("listening on http://localhost%s", addr)
	return srv
}

func newMux(sched *scheduler.Scheduler, rpc *WebsocketListener) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexHTML)
	})
	mux.HandleFunc("/ws", websocketHandler(sched))
	mux.HandleFunc("GET /image.png", imageHandler(sched))
	mux.HandleFunc("GET /progress", progressHandler(sched))
	mux.HandleFunc("GET /render", renderHandler)
	if rpc != nil {
		mux.HandleFunc("/rpc", rpcHandler(rpc))
	}
	return mux
}

// tileMessage is one message of the websocket stream. The stream starts with
// a "dims" message, then sends a "tile" message per finished tile and ends
// with "done".
type tileMessage struct {
	Type     string  `json:"type"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	PNG      []byte  `json:"png,omitempty"`
	Progress float64 `json:"progress"`
}

// websocketHandler replays the tiles finished so far and then forwards every
// newly finished tile until the render completes.
func websocketHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // TODO: tighten in prod
		})
		if err != nil {
			log.Println(err)
			return
		}
		defer c.CloseNow()

		// We never read from the client; CloseRead handles control frames and
		// cancels ctx when the client goes away.
		ctx := c.CloseRead(r.Context())

		if err := streamTiles(ctx, c, sched); err != nil {
			log.Printf("ws %s: %v", r.RemoteAddr, err)
			return
		}
		c.Close(websocket.StatusNormalClosure, "render complete")
	}
}

func streamTiles(ctx context.Context, c *websocket.Conn, sched *scheduler.Scheduler) error {
	job := sched.Job()
	dims := tileMessage{Type: "dims", Width: job.Resolution.Width, Height: job.Resolution.Height, Progress: sched.Progress()}
	if err := wsjson.Write(ctx, c, dims); err != nil {
		return fmt.Errorf("write dims: %w", err)
	}

	finished, tiles, cancel := sched.Subscribe()
	defer cancel()

	for _, t := range finished {
		if err := writeTile(ctx, c, sched, t); err != nil {
			return err
		}
	}
	for {
		select {
		case t, ok := <-tiles:
			if !ok {
				return wsjson.Write(ctx, c, tileMessage{Type: "done", Progress: sched.Progress()})
			}
			if err := writeTile(ctx, c, sched, t); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeTile(ctx context.Context, c *websocket.Conn, sched *scheduler.Scheduler, t image.Rectangle) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, sched.TileImage(t)); err != nil {
		return fmt.Errorf("encode tile %s: %w", t, err)
	}
	msg := tileMessage{
		Type:     "tile",
		X:        t.Min.X,
		Y:        t.Min.Y,
		Width:    t.Dx(),
		Height:   t.Dy(),
		PNG:      buf.Bytes(),
		Progress: sched.Progress(),
	}
	if err := wsjson.Write(ctx, c, msg); err != nil {
		return fmt.Errorf("write tile %s: %w", t, err)
	}
	return nil
}

// imageHandler waits for the full render. ?format= selects png, bmp or tiff.
func imageHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := persist.ParseFormat(formatParam(r.URL.Query()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		img, err := sched.GetImage(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeImage(w, img, format)
	}
}

func progressHandler(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := sched.Job()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"width":    job.Resolution.Width,
			"height":   job.Resolution.Height,
			"progress": sched.Progress(),
			"workers":  sched.Workers(),
		})
	}
}

// renderHandler renders the viewport given by the query parameters
// width, precision, zoom, offset, y, rule, shape, supersample and format.
func renderHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := paramsFromQuery(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	format, err := persist.ParseFormat(formatParam(q))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := mandel.Render(r.Context(), p)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeImage(w, res.Image.ToRGBA(), format)
}

// paramsFromQuery builds validated render parameters; absent keys keep the
// defaults of mandel.DefaultParams.
func paramsFromQuery(q url.Values) (mandel.Params, error) {
	p := mandel.DefaultParams()
	p.Width = 800

	ints := map[string]*int{
		"width":       &p.Width,
		"precision":   &p.Precision,
		"supersample": &p.Supersample,
	}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	floats := map[string]*float64{
		"zoom":   &p.Zoom,
		"offset": &p.Offset,
		"y":      &p.CenterY,
	}
	for key, dst := range floats {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if rule := q.Get("rule"); rule != "" {
		p.Palette = mandel.DefaultPalette(rule)
	}
	if v := q.Get("shape"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("shape: %w", err)
		}
		p.Palette.Shape = f
	}
	p.Palette = p.Palette.WithDefaultShape()

	if err := p.Validate(); err != nil {
		return p, err
	}
	res, err := p.Viewport().Resolution(p.Width)
	if err != nil {
		return p, err
	}
	if n := res.Pixels(); n > maxRenderPixels/(p.Supersample*p.Supersample) {
		return p, fmt.Errorf("%w: %s at supersample %d exceeds the server limit of %d samples", mandel.ErrInvalidResolution, res, p.Supersample, maxRenderPixels)
	}
	return p, nil
}

func formatParam(q url.Values) string {
	if f := q.Get("format"); f != "" {
		return f
	}
	return "png"
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
}

func writeImage(w http.ResponseWriter, img image.Image, format string) {
	var buf bytes.Buffer
	if err := persist.Encode(&buf, img, format); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}
