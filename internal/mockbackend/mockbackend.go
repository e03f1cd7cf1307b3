package mockbackend

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Update is one state snapshot received from a drone, either as an HTTP
// POST or a WebSocket frame.
type Update struct {
	DroneID string          `json:"drone_id"`
	State   json.RawMessage `json:"state"`
}

// Collector is a stand-in backend. It accepts the snapshot traffic the
// fleet pushes and records it for inspection.
type Collector struct {
	srv *http.Server

	mu      sync.Mutex
	updates []Update
}

// Start runs the collector on the given address (e.g. "127.0.0.1:8000").
// POST /api/drones/{id}/state accepts one JSON snapshot; GET /ws upgrades
// to a WebSocket carrying {"drone_id": ..., "state": ...} frames.
func Start(addr string) *Collector {
	c := &Collector{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/drones/", c.stateHandler)
	mux.HandleFunc("/ws", c.wsHandler)

	c.srv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("mockbackend: listening on %s", c.srv.Addr)
		if err := c.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("mockbackend: ListenAndServe error: %v", err)
		}
	}()
	return c
}

func (c *Collector) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/drones/{id}/state
	rest := strings.TrimPrefix(r.URL.Path, "/api/drones/")
	id, tail, ok := strings.Cut(rest, "/")
	if !ok || id == "" || tail != "state" {
		http.NotFound(w, r)
		return
	}

	var state json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	c.record(Update{DroneID: id, State: state})
	w.WriteHeader(http.StatusNoContent)
}

func (c *Collector) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("mockbackend: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var upd Update
		if err := json.Unmarshal(msg, &upd); err != nil {
			log.Printf("mockbackend: invalid frame: %v", err)
			continue
		}
		c.record(upd)
	}
}

func (c *Collector) record(upd Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, upd)
}

// Updates returns a copy of everything received so far.
func (c *Collector) Updates() []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Update, len(c.updates))
	copy(out, c.updates)
	return out
}

// UpdatesFor filters the recorded snapshots by drone id.
func (c *Collector) UpdatesFor(droneID string) []Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Update
	for _, u := range c.updates {
		if u.DroneID == droneID {
			out = append(out, u)
		}
	}
	return out
}

func (c *Collector) Shutdown() error {
	return c.srv.Close()
}
