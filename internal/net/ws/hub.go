package ws

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tvc-hud/watcher/internal/net/proto"
	"tvc-hud/watcher/internal/poll"
	"tvc-hud/watcher/internal/telemetry"
)

const writeWait = 2 * time.Second

// Hub fans frames out to websocket subscribers. Slow or broken subscribers
// are disconnected rather than allowed to stall the broadcast.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	nextID      atomic.Uint64
	latest      *poll.Frame
	tickRate    int
	logger      *log.Logger
	metrics     telemetry.Metrics
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

type HubConfig struct {
	TickRate int
	Logger   *log.Logger
	Metrics  telemetry.Metrics
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		tickRate:    cfg.TickRate,
		logger:      logger,
		metrics:     metrics,
	}
}

// subscribe registers conn and returns its id with the greeting to send.
func (h *Hub) subscribe(conn *websocket.Conn) (string, *subscriber, []byte, error) {
	id := fmt.Sprintf("sub-%d", h.nextID.Add(1))
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	h.subscribers[id] = sub
	latest := h.latest
	count := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.Store(telemetry.MetricSubscribers, uint64(count))

	hello, err := proto.EncodeHello(latest, h.tickRate, time.Now())
	if err != nil {
		h.Disconnect(id)
		return "", nil, nil, err
	}
	return id, sub, hello, nil
}

// Disconnect removes and closes a subscriber. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.metrics.Store(telemetry.MetricSubscribers, uint64(count))
	sub.conn.Close()
}

// Subscribers reports the live subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Latest returns the most recently broadcast frame.
func (h *Hub) Latest() (poll.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return poll.Frame{}, false
	}
	return *h.latest, true
}

// Broadcast sends frame to every subscriber.
func (h *Hub) Broadcast(frame poll.Frame) {
	data, err := proto.EncodeFrame(frame, time.Now())
	if err != nil {
		h.logger.Printf("failed to marshal frame: %v", err)
		return
	}

	h.mu.Lock()
	h.latest = &frame
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Printf("failed to send frame to %s: %v", id, err)
			h.Disconnect(id)
			continue
		}
		h.metrics.Add(telemetry.MetricFramesBroadcast, 1)
		h.metrics.Add(telemetry.MetricBytesBroadcast, uint64(len(data)))
	}
}

// Run broadcasts frames from the channel until ctx ends or frames closes,
// then closes every subscriber.
func (h *Hub) Run(ctx context.Context, frames <-chan poll.Frame) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			h.Broadcast(frame)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.subscribers))
	for id := range h.subscribers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Disconnect(id)
	}
}

// Offer returns a non-blocking frame sender suitable for a poll AfterStep
// hook. Frames are dropped when the channel is full.
func Offer(frames chan<- poll.Frame) func(poll.Frame) {
	return func(frame poll.Frame) {
		select {
		case frames <- frame:
		default:
		}
	}
}
