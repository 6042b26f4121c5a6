package gateway

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

var validate = validator.New()

func (ctl *Controller) handleAuth(c *Conn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		ctl.sendError(c, core.CodeBadRequest, "bad auth payload")
		return
	}
	if !ctl.verifyToken(p.UserID, p.Token) {
		ctl.sendError(c, core.CodeUnauthorized, "invalid credentials")
		return
	}

	ctl.mu.Lock()
	c.user = domain.UserID(p.UserID)
	ctl.mu.Unlock()

	log.Info().Str("module", "gateway").Str("conn", string(c.id)).Str("user", p.UserID).Msg("authenticated")
	ctl.sendJSON(c, map[string]any{"type": "auth_success", "userId": p.UserID})
}

// binding reads the connection's auth and room state under the controller
// mutex.
func (ctl *Controller) binding(c *Conn) (domain.UserID, domain.RoomID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return c.user, c.room
}

func (ctl *Controller) handleJoinRoom(c *Conn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(c, core.CodeBadRequest, "bad join_room payload")
		return
	}
	user, _ := ctl.binding(c)
	if user == "" {
		ctl.sendError(c, core.CodeUnauthorized, "authenticate first")
		return
	}
	roomID := domain.RoomID(p.RoomID)

	// One room per connection. Re-joining the same room is allowed and
	// idempotent on the worker side.
	ctl.mu.Lock()
	if c.room != "" && c.room != roomID {
		ctl.mu.Unlock()
		ctl.sendError(c, core.CodeBadRequest, "already in a room")
		return
	}
	c.room = roomID
	if ctl.rooms[roomID] == nil {
		ctl.rooms[roomID] = make(map[domain.ConnID]*Conn)
	}
	ctl.rooms[roomID][c.id] = c
	ctl.mu.Unlock()

	resp, err := ctl.call(c, roomID, user, domain.ActionJoinRoom, nil)
	if err != nil || !resp.OK {
		ctl.unbindRoom(c, roomID)
		ctl.relayFailure(c, resp, err)
		return
	}

	log.Info().Str("module", "gateway").Str("conn", string(c.id)).Str("room", p.RoomID).Msg("joined room")
	ctl.sendJSON(c, map[string]any{
		"type":   "room_joined",
		"roomId": p.RoomID,
		"data":   resp.Data,
	})
}

func (ctl *Controller) handleLeaveRoom(c *Conn) {
	user, room := ctl.binding(c)
	if user == "" {
		ctl.sendError(c, core.CodeUnauthorized, "authenticate first")
		return
	}
	if room == "" {
		ctl.sendError(c, core.CodeBadRequest, "not in a room")
		return
	}

	resp, err := ctl.call(c, room, user, domain.ActionLeaveRoom, nil)
	// The local subscription goes away regardless: the user asked out.
	ctl.unbindRoom(c, room)
	if err != nil || !resp.OK {
		ctl.relayFailure(c, resp, err)
		return
	}
	ctl.sendJSON(c, map[string]any{
		"type":   "room_left",
		"roomId": room,
		"data":   resp.Data,
	})
}

type dropCoinMsg struct {
	Type string  `json:"type"`
	X    float64 `json:"x" validate:"gte=-5,lte=5"`
	Z    float64 `json:"z" validate:"gte=0,lte=8.5"`
}

func (ctl *Controller) handleDropCoin(c *Conn, data []byte) {
	var p dropCoinMsg
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, core.CodeBadRequest, "bad drop_coin payload")
		return
	}
	if err := validate.Struct(p); err != nil {
		ctl.sendError(c, core.CodeBadRequest, "drop_coin out of bounds")
		return
	}
	payload, _ := json.Marshal(map[string]float64{"x": p.X, "z": p.Z})
	ctl.gameplay(c, domain.ActionDropCoin, payload, "coin_dropped")
}

func (ctl *Controller) handleCollectCoin(c *Conn, data []byte) {
	var p struct {
		Type   string          `json:"type"`
		CoinID domain.EntityID `json:"coinId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.CoinID == 0 {
		ctl.sendError(c, core.CodeBadRequest, "bad collect_coin payload")
		return
	}
	payload, _ := json.Marshal(map[string]domain.EntityID{"coin_id": p.CoinID})
	ctl.gameplay(c, domain.ActionCollectCoin, payload, "coin_collected")
}

// gameplay runs the shared prerequisites for coin actions: authentication,
// a room binding, and the admission check. Admission rejection answers the
// caller without ever touching the broker.
func (ctl *Controller) gameplay(c *Conn, action domain.Action, payload json.RawMessage, okType string) {
	user, room := ctl.binding(c)
	if user == "" {
		ctl.sendError(c, core.CodeUnauthorized, "authenticate first")
		return
	}
	if room == "" {
		ctl.sendError(c, core.CodeUnauthorized, "join a room first")
		return
	}

	if d := ctl.admit.TryAcquire(string(user)); !d.Allowed {
		ctl.sendJSON(c, map[string]any{
			"type":    "error",
			"code":    core.CodeRateLimit,
			"error":   "rate limited",
			"resetAt": d.ResetAt.UnixMilli(),
		})
		return
	}

	resp, err := ctl.call(c, room, user, action, payload)
	if err != nil || !resp.OK {
		ctl.relayFailure(c, resp, err)
		return
	}
	ctl.sendJSON(c, map[string]any{"type": okType, "data": resp.Data})
}

func (ctl *Controller) unbindRoom(c *Conn, roomID domain.RoomID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if c.room == roomID {
		c.room = ""
	}
	if set, ok := ctl.rooms[roomID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(ctl.rooms, roomID)
		}
	}
}

func (ctl *Controller) relayFailure(c *Conn, resp core.SimulationResponse, err error) {
	switch {
	case errors.Is(err, ErrTimeout):
		ctl.sendError(c, core.CodeTimeout, "request timed out")
	case err != nil:
		ctl.sendError(c, core.CodeTransport, "broker unavailable")
	default:
		code := resp.Code
		if code == "" {
			code = core.CodeInternal
		}
		ctl.sendError(c, code, resp.Error)
	}
}
