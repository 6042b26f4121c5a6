package core

import (
	"encoding/json"
	"time"

	"github.com/arcadelab/pusher/internal/domain"
)

// SimulationRequest is one client action addressed to whichever worker owns
// (or claims) the room. Immutable once published. ReplyTo names the issuing
// gateway's private response queue so the answer comes back to the instance
// that holds the pending call, not just "some" gateway.
type SimulationRequest struct {
	RequestID   domain.RequestID `json:"request_id"`
	ReplyTo     string           `json:"reply_to"`
	RoomID      domain.RoomID    `json:"room_id"`
	UserID      domain.UserID    `json:"user_id"`
	Action      domain.Action    `json:"action"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// SimulationResponse settles exactly one pending call on the issuing
// gateway. Late and duplicate responses are discarded there, silently.
type SimulationResponse struct {
	RequestID   domain.RequestID `json:"request_id"`
	RoomID      domain.RoomID    `json:"room_id"`
	OK          bool             `json:"ok"`
	Data        json.RawMessage  `json:"data,omitempty"`
	Code        string           `json:"code,omitempty"`
	Error       string           `json:"error,omitempty"`
	RespondedAt time.Time        `json:"responded_at"`
}

// SimulationFrame is a change notification for one room: only entities the
// engine reports as moved, collected, or removed since the previous tick.
// Frames are transient; nothing replays them.
type SimulationFrame struct {
	RoomID    domain.RoomID     `json:"room_id"`
	FrameSeq  uint64            `json:"frame_seq"`
	EmittedAt time.Time         `json:"emitted_at"`
	Updated   []domain.Entity   `json:"updated,omitempty"`
	Collected []domain.EntityID `json:"collected,omitempty"`
	Removed   []domain.EntityID `json:"removed,omitempty"`
}

// WorkerAnnouncement is the periodic liveness beacon. Liveness is inferred:
// no beacon within a few intervals means the worker is presumed dead.
type WorkerAnnouncement struct {
	WorkerID     domain.WorkerID `json:"worker_id"`
	OwnedRoomIDs []domain.RoomID `json:"owned_room_ids"`
	RoomCount    int             `json:"room_count"`
	Capacity     int             `json:"capacity"`
	EmittedAt    time.Time       `json:"emitted_at"`
}
