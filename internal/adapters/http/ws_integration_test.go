package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arcadelab/pusher/internal/admission"
	"github.com/arcadelab/pusher/internal/broker"
	"github.com/arcadelab/pusher/internal/config"
	"github.com/arcadelab/pusher/internal/engine"
	"github.com/arcadelab/pusher/internal/gateway"
	"github.com/arcadelab/pusher/internal/worker"
)

const testSecret = "integration-secret"

func startStack(t *testing.T) (*httptest.Server, *gateway.Controller) {
	t.Helper()

	cfg := &config.Config{
		Mode:           "release",
		Secret:         testSecret,
		RequestTimeout: 5 * time.Second,
		ReadLimit:      32768,
	}

	bus := broker.New()
	t.Cleanup(bus.Stop)

	workers := make([]*worker.Worker, 0, 2)
	for i := 0; i < 2; i++ {
		w := worker.New(bus, engine.Factory, worker.Options{
			Capacity:         8,
			TickRate:         30,
			IdleTimeout:      time.Minute,
			AnnounceInterval: time.Second,
			MetricsInterval:  time.Minute,
		})
		w.Start()
		t.Cleanup(w.Stop)
		workers = append(workers, w)
	}

	admit := admission.NewSlidingWindow(100, time.Second)
	ctl := gateway.NewController(bus, admit, gateway.Options{
		Secret:         cfg.Secret,
		RequestTimeout: cfg.RequestTimeout,
		ReadLimit:      cfg.ReadLimit,
	})
	ctl.Start()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(SetupRouter(ctx, cfg, ctl, workers))
	t.Cleanup(srv.Close)
	return srv, ctl
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil skips unrelated messages (frames interleave freely) until one of
// the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	_ = ws.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", msgType, err)
		}
		var env map[string]any
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env["type"] == msgType {
			return env
		}
		if env["type"] == "error" {
			t.Fatalf("error while waiting for %q: %+v", msgType, env)
		}
	}
	t.Fatalf("never received %q", msgType)
	return nil
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestEndToEndJoinDropAndFrames(t *testing.T) {
	srv, _ := startStack(t)
	ws := dial(t, srv)

	connected := readUntil(t, ws, "connected")
	if id, _ := connected["connectionId"].(string); id == "" {
		t.Fatal("connected without a connection id")
	}

	send(t, ws, map[string]string{
		"type": "auth", "userId": "u1", "token": gateway.Token(testSecret, "u1"),
	})
	readUntil(t, ws, "auth_success")

	send(t, ws, map[string]string{"type": "join_room", "roomId": "r1"})
	joined := readUntil(t, ws, "room_joined")
	if joined["roomId"] != "r1" {
		t.Fatalf("joined the wrong room: %+v", joined)
	}

	send(t, ws, map[string]any{"type": "drop_coin", "x": 0.0})
	dropped := readUntil(t, ws, "coin_dropped")
	if dropped["data"] == nil {
		t.Fatal("coin_dropped without data")
	}

	// The spawned coin moves with the pusher, so a frame must follow.
	frameEnv := readUntil(t, ws, "physics_frame")
	frame, ok := frameEnv["frame"].(map[string]any)
	if !ok {
		t.Fatalf("malformed frame envelope: %+v", frameEnv)
	}
	if frame["room_id"] != "r1" {
		t.Fatalf("frame for the wrong room: %+v", frame)
	}
	if seq, _ := frame["frame_seq"].(float64); seq < 1 {
		t.Fatalf("frame_seq must start at 1: %+v", frame)
	}

	send(t, ws, map[string]string{"type": "ping"})
	readUntil(t, ws, "pong")
}

func TestUnauthenticatedActionRejected(t *testing.T) {
	srv, _ := startStack(t)
	ws := dial(t, srv)
	readUntil(t, ws, "connected")

	send(t, ws, map[string]string{"type": "join_room", "roomId": "r1"})

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env map[string]any
	_ = json.Unmarshal(data, &env)
	if env["type"] != "error" {
		t.Fatalf("expected error, got %+v", env)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := startStack(t)
	ws := dial(t, srv)
	readUntil(t, ws, "connected")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code %d", resp.StatusCode)
	}

	var body struct {
		Gateway gateway.Snapshot        `json:"gateway"`
		Workers []worker.StatusSnapshot `json:"workers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Gateway.Connections < 1 {
		t.Fatalf("open connection not counted: %+v", body.Gateway)
	}
	if len(body.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(body.Workers))
	}
}
