package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tailbeacon/pkg/logging"
	"tailbeacon/pkg/model"
)

const writeWait = 5 * time.Second

// BeaconsMessage is pushed to subscribers after every sweep.
type BeaconsMessage struct {
	Type    string         `json:"type"` // always "beacons"
	RunID   string         `json:"runId"`
	At      time.Time      `json:"at"`
	Beacons []model.Beacon `json:"beacons"`
}

// Hub keeps websocket subscribers and pushes them each sweep's beacon set.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex // guards subs and last; also serializes writes
	subs     map[*websocket.Conn]struct{}
	last     *BeaconsMessage
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
		log:  logging.OrNop(log).Named("ws"),
	}
}

// HandleBeacons upgrades the request and sends the latest set right away.
func (h *Hub) HandleBeacons(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	if h.last != nil {
		h.writeLocked(c, *h.last)
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.Debug("subscriber connected", zap.String("remote", r.RemoteAddr), zap.Int("subscribers", n))
	go h.readLoop(c)
}

// PublishRun implements agent.Publisher.
func (h *Hub) PublishRun(run model.DiscoveryRun) {
	beacons := run.Beacons
	if beacons == nil {
		beacons = []model.Beacon{}
	}
	msg := BeaconsMessage{Type: "beacons", RunID: run.ID, At: run.StartedAt, Beacons: beacons}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &msg
	for c := range h.subs {
		h.writeLocked(c, msg)
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) writeLocked(c *websocket.Conn, msg BeaconsMessage) {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteJSON(msg); err != nil {
		h.log.Debug("ws send failed", zap.Error(err))
		delete(h.subs, c)
		_ = c.Close()
	}
}

// readLoop drains client frames so close frames are noticed.
func (h *Hub) readLoop(c *websocket.Conn) {
	defer h.drop(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	_ = c.Close()
	h.mu.Lock()
	delete(h.subs, c)
	h.mu.Unlock()
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		_ = c.Close()
		delete(h.subs, c)
	}
	return nil
}
