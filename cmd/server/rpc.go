package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/marben/irpc"

	"github.com/marben/mandel"
	"github.com/marben/mandel/internal/scheduler"
)

// newRPCServer creates the irpc server for remote clients. Every connected
// client serves mandel.Renderer and is used as a tile worker until the image
// is complete or it disconnects. Clients can fetch the finished image through
// mandel.ImgProvider, which is backed by the scheduler.
func newRPCServer(sched *scheduler.Scheduler) *irpc.Server {
	srv := irpc.NewServer(irpc.WithOnConnect(func(ep *irpc.Endpoint) {
		log.Printf("got connection from: %s", ep.RemoteAddr())

		rendererIrpcClient, err := mandel.NewRendererIrpcClient(ep)
		if err != nil {
			log.Printf("err: new Rendering client: %v", err)
			return
		}
		if err := sched.Render(ep.Context(), rendererIrpcClient); err != nil {
			log.Printf("err: render on client %q: %v", ep.RemoteAddr(), err)
			return
		}
		log.Printf("client %s: no tiles left", ep.RemoteAddr())
	}))
	srv.AddService(mandel.NewImgProviderIrpcService(sched))
	return srv
}

// rpcHandler upgrades the request to a websocket and hands it to l, so irpc
// clients running in a browser can connect over http.
func rpcHandler(l *WebsocketListener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // TODO: tighten in prod
		})
		if err != nil {
			log.Println(err)
			return
		}

		conn := websocket.NetConn(l.ctx, c, websocket.MessageBinary)
		select {
		case l.ch <- conn:
		case <-l.ctx.Done():
			conn.Close()
		}
	}
}

// WebsocketListener implements net.Listener over websocket connections
// accepted by rpcHandler.
type WebsocketListener struct {
	ch     chan net.Conn
	ctx    context.Context
	cancel context.CancelFunc
	addr   wsAddr
	once   sync.Once
}

func NewWSListener(ctx context.Context, addr string) *WebsocketListener {
	ctx, cancel := context.WithCancel(ctx)
	return &WebsocketListener{
		ch:     make(chan net.Conn),
		ctx:    ctx,
		cancel: cancel,
		addr:   wsAddr{addr: addr},
	}
}

func (l *WebsocketListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.ch:
		return c, nil
	case <-l.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (l *WebsocketListener) Addr() net.Addr {
	return l.addr
}

func (l *WebsocketListener) Close() error {
	l.once.Do(l.cancel)
	return nil
}

// wsAddr implements net.Addr
type wsAddr struct {
	addr string
}

func (a wsAddr) Network() string {
	return "ws"
}

func (a wsAddr) String() string {
	return a.addr
}
