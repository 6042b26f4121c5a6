package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

var ErrTimeout = errors.New("request timed out")

// pendingCall correlates one in-flight request id with the caller waiting
// on it. The result channel is buffered so the settling side never blocks.
type pendingCall struct {
	ch chan core.SimulationResponse
}

// takePending removes and returns the pending call, or nil if someone else
// already removed it. Settle and timeout race on exactly this: whichever
// side takes the entry wins, the loser sees nil and must not resolve.
func (ctl *Controller) takePending(id domain.RequestID) *pendingCall {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	pc := ctl.pending[id]
	delete(ctl.pending, id)
	return pc
}

// call is the async-to-sync bridge: publish one simulation request, then
// block this caller (and only this caller) until the correlated response
// arrives or the deadline lapses.
func (ctl *Controller) call(c *Conn, room domain.RoomID, user domain.UserID, action domain.Action, payload json.RawMessage) (core.SimulationResponse, error) {
	id := domain.RequestID(uuid.NewString())
	req := core.SimulationRequest{
		RequestID:   id,
		ReplyTo:     core.ReplyQueue(string(ctl.id)),
		RoomID:      room,
		UserID:      user,
		Action:      action,
		Payload:     payload,
		SubmittedAt: time.Now(),
	}
	b, err := json.Marshal(req)
	if err != nil {
		return core.SimulationResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	pc := &pendingCall{ch: make(chan core.SimulationResponse, 1)}
	ctl.mu.Lock()
	ctl.pending[id] = pc
	ctl.mu.Unlock()

	if err := ctl.broker.PublishWork(core.RequestQueue, b); err != nil {
		// Do not leave a pending call doomed to time out.
		ctl.takePending(id)
		return core.SimulationResponse{}, fmt.Errorf("publish request: %w", err)
	}

	timer := time.NewTimer(ctl.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-pc.ch:
		return resp, nil
	case <-timer.C:
		if ctl.takePending(id) != nil {
			return core.SimulationResponse{}, ErrTimeout
		}
		// The response won the race; it is already on the channel.
		return <-pc.ch, nil
	}
}

// onResponse settles the matching pending call. An unknown request id is
// the normal case for late, duplicate, or foreign responses: discard
// silently, never an error.
func (ctl *Controller) onResponse(payload []byte) error {
	var resp core.SimulationResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad response payload")
		return nil
	}
	pc := ctl.takePending(resp.RequestID)
	if pc == nil {
		log.Debug().Str("module", "gateway").Str("request_id", string(resp.RequestID)).Msg("late response discarded")
		return nil
	}
	pc.ch <- resp
	return nil
}
