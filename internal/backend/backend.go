package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/curbz/tellofleet/pkg/util"
)

// Sink receives periodic state snapshots from every drone in the fleet.
type Sink interface {
	Push(ctx context.Context, droneID string, payload any) error
	Close() error
}

// NewSink builds a sink from the configured backend URL. An empty URL
// disables pushes; http(s) posts per-drone snapshots; ws(s) streams them
// over a single WebSocket connection.
func NewSink(url string) (Sink, error) {
	switch {
	case url == "":
		return nopSink{}, nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return NewHTTPSink(url), nil
	case strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return NewWSSink(url)
	default:
		return nil, fmt.Errorf("unsupported backend url %q", url)
	}
}

type nopSink struct{}

func (nopSink) Push(context.Context, string, any) error { return nil }
func (nopSink) Close() error                            { return nil }

// HTTPSink posts each snapshot to {base}/api/drones/{id}/state.
type HTTPSink struct {
	base   string
	client *http.Client
}

func NewHTTPSink(base string) *HTTPSink {
	return &HTTPSink{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

func (s *HTTPSink) Push(ctx context.Context, droneID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	url := fmt.Sprintf("%s/api/drones/%s/state", s.base, droneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// WSSink streams snapshots as JSON text frames over one shared connection.
type WSSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// wsFrame is the wire format of one pushed snapshot.
type wsFrame struct {
	DroneID string `json:"drone_id"`
	State   any    `json:"state"`
}

func NewWSSink(url string) (*WSSink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial backend websocket: %w", err)
	}
	return &WSSink{conn: conn}, nil
}

func (s *WSSink) Push(ctx context.Context, droneID string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}
	return util.SendJSON(s.conn, wsFrame{DroneID: droneID, State: payload})
}

func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
