// Package gateway terminates client sockets and bridges them onto the
// broker: one correlated request per action, a private reply queue for the
// responses, and a topic subscription fanning simulation frames out to
// every socket watching a room.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

type Options struct {
	Secret         string
	RequestTimeout time.Duration
	ReadLimit      int64
}

type Controller struct {
	id     domain.GatewayID
	broker core.Broker
	admit  core.Admission
	opts   Options

	mu      sync.Mutex
	conns   map[domain.ConnID]*Conn
	rooms   map[domain.RoomID]map[domain.ConnID]*Conn
	pending map[domain.RequestID]*pendingCall
}

func NewController(b core.Broker, admit core.Admission, opts Options) *Controller {
	return &Controller{
		id:      domain.GatewayID("gw-" + uuid.NewString()[:8]),
		broker:  b,
		admit:   admit,
		opts:    opts,
		conns:   make(map[domain.ConnID]*Conn),
		rooms:   make(map[domain.RoomID]map[domain.ConnID]*Conn),
		pending: make(map[domain.RequestID]*pendingCall),
	}
}

func (ctl *Controller) ID() domain.GatewayID { return ctl.id }

// Start wires the controller onto the broker: its private reply queue and
// the shared frames topic.
func (ctl *Controller) Start() {
	ctl.broker.ConsumeWork(core.ReplyQueue(string(ctl.id)), ctl.onResponse)
	ctl.broker.SubscribeTopic(core.FramesTopic, ctl.onFrame)
	log.Info().Str("module", "gateway").Str("gateway_id", string(ctl.id)).Msg("started")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := newConn(domain.ConnID(uuid.NewString()), ws)

	ctl.mu.Lock()
	ctl.conns[conn.id] = conn
	ctl.mu.Unlock()

	log.Info().Str("module", "gateway").Str("conn", string(conn.id)).Msg("new WS connection")

	ctl.sendJSON(conn, map[string]any{
		"type":         "connected",
		"connectionId": conn.id,
	})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *Conn) {
	defer ctl.disconnect(c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				log.Info().Str("module", "gateway").Str("conn", string(c.id)).Msg("readPump closing")
				return
			}
			ctl.handleMessage(c, data)
		}
	}
}

func (ctl *Controller) handleMessage(c *Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, core.CodeBadRequest, "bad json")
		return
	}

	switch env.Type {
	case "auth":
		ctl.handleAuth(c, data)
	case "ping":
		ctl.sendJSON(c, map[string]any{"type": "pong"})
	case "join_room":
		go ctl.handleJoinRoom(c, data)
	case "leave_room":
		go ctl.handleLeaveRoom(c)
	case "drop_coin":
		go ctl.handleDropCoin(c, data)
	case "collect_coin":
		go ctl.handleCollectCoin(c, data)
	default:
		ctl.sendError(c, core.CodeBadRequest, "unknown message type")
	}
}

// disconnect removes the connection from its room's subscriber set and the
// connection table. Pending calls it initiated are left alone; they settle
// or time out into the void.
func (ctl *Controller) disconnect(c *Conn) {
	ctl.mu.Lock()
	delete(ctl.conns, c.id)
	if c.room != "" {
		if set, ok := ctl.rooms[c.room]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(ctl.rooms, c.room)
			}
		}
		c.room = ""
	}
	ctl.mu.Unlock()
	c.Close()
	log.Info().Str("module", "gateway").Str("conn", string(c.id)).
		Dur("connected_for", time.Since(c.connectedAt)).Msg("disconnected")
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *Conn, code, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  "error",
		"code":  code,
		"error": msg,
	})
}

// Snapshot is the read-only introspection view for the status endpoint.
type Snapshot struct {
	GatewayID    string `json:"gateway_id"`
	Connections  int    `json:"connections"`
	PendingCalls int    `json:"pending_calls"`
	Rooms        int    `json:"rooms"`
	Subscribers  int    `json:"subscribers"`
}

func (ctl *Controller) StatusSnapshot() Snapshot {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	subs := 0
	for _, set := range ctl.rooms {
		subs += len(set)
	}
	return Snapshot{
		GatewayID:    string(ctl.id),
		Connections:  len(ctl.conns),
		PendingCalls: len(ctl.pending),
		Rooms:        len(ctl.rooms),
		Subscribers:  subs,
	}
}
