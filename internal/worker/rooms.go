package worker

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

var validate = validator.New()

// roomState is one owned room: membership, the engine handle, and the frame
// sequence. Touched only under the worker mutex.
type roomState struct {
	id           domain.RoomID
	members      map[domain.UserID]struct{}
	engine       core.Engine
	owners       map[domain.EntityID]domain.UserID
	frameSeq     uint64
	createdAt    time.Time
	lastActivity time.Time
	lastTick     time.Time
}

func newRoomState(id domain.RoomID, eng core.Engine) *roomState {
	now := time.Now()
	return &roomState{
		id:           id,
		members:      make(map[domain.UserID]struct{}),
		engine:       eng,
		owners:       make(map[domain.EntityID]domain.UserID),
		createdAt:    now,
		lastActivity: now,
		lastTick:     now,
	}
}

func (r *roomState) touch() { r.lastActivity = time.Now() }

type membershipSummary struct {
	RoomID  domain.RoomID   `json:"room_id"`
	Members []domain.UserID `json:"members"`
	Count   int             `json:"count"`
}

func (r *roomState) summary() membershipSummary {
	members := make([]domain.UserID, 0, len(r.members))
	for uid := range r.members {
		members = append(members, uid)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return membershipSummary{RoomID: r.id, Members: members, Count: len(members)}
}

// join is idempotent: replaying the same request against an unchanged room
// yields the same membership summary.
func (r *roomState) join(req *core.SimulationRequest) core.SimulationResponse {
	r.members[req.UserID] = struct{}{}
	r.touch()
	return okResponse(req, r.summary())
}

func (r *roomState) leave(req *core.SimulationRequest) core.SimulationResponse {
	delete(r.members, req.UserID)
	r.touch()
	return okResponse(req, r.summary())
}

type dropCoinPayload struct {
	X float64 `json:"x" validate:"gte=-5,lte=5"`
	Z float64 `json:"z" validate:"gte=0,lte=8.5"`
}

type dropCoinResult struct {
	CoinID domain.EntityID `json:"coin_id"`
	Coin   domain.Entity   `json:"coin"`
}

func (r *roomState) dropCoin(req *core.SimulationRequest) core.SimulationResponse {
	var p dropCoinPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req, core.CodeBadRequest, "bad drop_coin payload")
	}
	if err := validate.Struct(p); err != nil {
		return errResponse(req, core.CodeBadRequest, "drop_coin out of bounds")
	}

	id := r.engine.Spawn(core.SpawnArgs{X: p.X, Z: p.Z, Owner: req.UserID})
	r.owners[id] = req.UserID
	r.touch()

	coin, _ := r.engine.Entity(id)
	return okResponse(req, dropCoinResult{CoinID: id, Coin: coin})
}

type collectCoinPayload struct {
	CoinID domain.EntityID `json:"coin_id"`
}

type collectCoinResult struct {
	CoinID domain.EntityID `json:"coin_id"`
	Owner  domain.UserID   `json:"owner,omitempty"`
	Reward int             `json:"reward"`
}

func (r *roomState) collectCoin(req *core.SimulationRequest) core.SimulationResponse {
	var p collectCoinPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errResponse(req, core.CodeBadRequest, "bad collect_coin payload")
	}
	if !r.engine.Collectable(p.CoinID) {
		return errResponse(req, core.CodeDomain, "coin not collectable")
	}
	r.engine.Remove(p.CoinID)
	owner := r.owners[p.CoinID]
	delete(r.owners, p.CoinID)
	r.touch()
	return okResponse(req, collectCoinResult{CoinID: p.CoinID, Owner: owner, Reward: 1})
}
