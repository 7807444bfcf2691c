package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/losdos/motionglove/wire"
)

// FeedConfig configures the dongle's live instruction feed.
type FeedConfig struct {
	Addr string `help:"Listen address of the WebSocket feed (path /ws); empty disables it" env:"MOTIONGLOVE_FEED_ADDR"`
}

const (
	feedSendBuffer = 256
	feedWriteWait  = time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

// FeedMessage is one replayed instruction as sent to feed clients.
type FeedMessage struct {
	Seq uint64 `json:"seq"`
	wire.Instruction
}

// Feed broadcasts replayed instructions to WebSocket clients. A client that
// falls behind misses messages; the replay path never waits for it.
type Feed struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	seq      atomic.Uint64

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewFeed returns a feed with no clients.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local diagnostics tool; any page may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Observe broadcasts in. It has the signature of replay.Observer.
func (f *Feed) Observe(in wire.Instruction) {
	f.mu.Lock()
	n := len(f.clients)
	f.mu.Unlock()
	seq := f.seq.Add(1)
	if n == 0 {
		return
	}
	msg, err := json.Marshal(FeedMessage{Seq: seq, Instruction: in})
	if err != nil {
		f.logger.Warn("Feed marshal failed", "error", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Handler serves the feed at /ws.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", f.serveWS)
	return mux
}

// ListenAndServe serves the feed on addr until ctx is cancelled.
func (f *Feed) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: f.Handler(), ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		f.closeAll()
	})
	defer stop()
	f.logger.Info("Live feed listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (f *Feed) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := &feedClient{conn: conn, send: make(chan []byte, feedSendBuffer)}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.logger.Info("Feed client connected", "remote", r.RemoteAddr)

	go f.writePump(c)
	f.readPump(c)
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
	f.mu.Unlock()
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		_ = c.conn.Close()
	}
}

// readPump discards client messages and notices when the client goes away.
func (f *Feed) readPump(c *feedClient) {
	defer func() {
		f.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("Feed client read error", "error", err)
			}
			return
		}
	}
}

func (f *Feed) writePump(c *feedClient) {
	ping := time.NewTicker(feedPingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
