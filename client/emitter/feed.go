package emitter

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/results"
	"github.com/newazfarhan/newaz-speed-test/pkg/speedtest/spec"
)

const (
	// FeedProtocol is the Sec-WebSocket-Protocol spoken by the feed.
	FeedProtocol = "speedtest.feed.v1"

	feedWriteWait    = 5 * time.Second
	feedPongWait     = 30 * time.Second
	feedPingInterval = 10 * time.Second
	feedSendBuffer   = 64
)

// Event is one message pushed to feed subscribers.
type Event struct {
	Type      string           `json:"type"`
	Kind      spec.SubtestKind `json:"kind,omitempty"`
	LatencyMs *float64         `json:"latency_ms,omitempty"`
	Sample    *results.Sample  `json:"sample,omitempty"`
	Result    *results.Result  `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	Time      int64            `json:"ts"`
}

type feedClient struct {
	send chan []byte
}

// Feed is an Emitter that pushes session events as JSON text messages to
// every connected websocket client. Slow clients drop messages rather than
// blocking the measurement.
type Feed struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

// NewFeed returns an empty Feed. Serve it with ServeHTTP.
func NewFeed() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			// The display layer may be served from another origin.
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{FeedProtocol},
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Sugar().Debugw("Feed upgrade failed", "error", err)
		return
	}
	client := &feedClient{send: make(chan []byte, feedSendBuffer)}
	f.register(client)

	done := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(done)
			f.unregister(client)
			conn.Close()
		})
	}

	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})

	// Incoming messages are ignored; reading detects the peer going away.
	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cleanup()
		ticker := time.NewTicker(feedPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
					return
				}
			case data := <-client.send:
				_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

// Subscribers returns the number of connected clients.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) register(c *feedClient) {
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
}

func (f *Feed) unregister(c *feedClient) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
}

func (f *Feed) broadcast(ev Event) {
	ev.Time = time.Now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (f *Feed) OnStart(kind spec.SubtestKind) {
	f.broadcast(Event{Type: "start", Kind: kind})
}

func (f *Feed) OnLatency(ms float64) {
	f.broadcast(Event{Type: "latency", Kind: spec.SubtestLatency, LatencyMs: &ms})
}

func (f *Feed) OnProgress(kind spec.SubtestKind, s results.Sample) {
	f.broadcast(Event{Type: "progress", Kind: kind, Sample: &s})
}

func (f *Feed) OnError(kind spec.SubtestKind, err error) {
	f.broadcast(Event{Type: "error", Kind: kind, Error: err.Error()})
}

func (f *Feed) OnComplete(kind spec.SubtestKind, r *results.Result) {
	f.broadcast(Event{Type: "complete", Kind: kind, Result: r})
}
