// Package worker consumes simulation requests, owns room state, runs the
// fixed-rate tick loop, and announces liveness. Any worker instance may
// receive any request; the claim registry decides who actually owns a room
// and losers forward to the winner's addressed queue.
package worker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

type Options struct {
	Capacity         int
	TickRate         int
	IdleTimeout      time.Duration
	AnnounceInterval time.Duration
	MetricsInterval  time.Duration
}

type Worker struct {
	id        domain.WorkerID
	opts      Options
	broker    core.Broker
	newEngine core.EngineFactory

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomState

	stats *metrics

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(b core.Broker, f core.EngineFactory, opts Options) *Worker {
	return &Worker{
		id:        domain.WorkerID("worker-" + uuid.NewString()[:8]),
		opts:      opts,
		broker:    b,
		newEngine: f,
		rooms:     make(map[domain.RoomID]*roomState),
		stats:     &metrics{},
		stop:      make(chan struct{}),
	}
}

func (w *Worker) ID() domain.WorkerID { return w.id }

// Start registers the worker on the shared request queue and on its own
// addressed queue (for forwarded requests), then launches the tick,
// announce, and metrics loops.
func (w *Worker) Start() {
	w.broker.ConsumeWork(core.RequestQueue, w.handleWork)
	w.broker.ConsumeWork(core.WorkerQueue(string(w.id)), w.handleWork)

	w.wg.Add(3)
	go w.runTicks()
	go w.runAnnounce()
	go w.runMetrics()

	log.Info().Str("module", "worker").Str("worker_id", string(w.id)).
		Int("capacity", w.opts.Capacity).Int("tick_rate", w.opts.TickRate).Msg("started")
}

// Stop halts the loops and releases every owned room.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()

	w.mu.Lock()
	for id, room := range w.rooms {
		room.engine.Close()
		w.broker.Claims().Release(string(id), string(w.id))
		delete(w.rooms, id)
	}
	w.mu.Unlock()
	log.Info().Str("module", "worker").Str("worker_id", string(w.id)).Msg("stopped")
}

func (w *Worker) handleWork(payload []byte) error {
	var req core.SimulationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		// Nothing to reply to; drop rather than poison the queue.
		log.Error().Err(err).Str("module", "worker").Msg("bad request payload")
		return nil
	}

	resp, owner := w.dispatch(&req)
	if owner != "" {
		// Someone else owns this room; hand the raw delivery over.
		log.Debug().Str("module", "worker").Str("worker_id", string(w.id)).
			Str("room", string(req.RoomID)).Str("owner", owner).Msg("forwarding to owner")
		return w.broker.PublishWork(core.WorkerQueue(owner), payload)
	}
	w.respond(req.ReplyTo, resp)
	return nil
}

// dispatch executes one request against room state. The room claim is taken
// under the same mutex hold that creates the state, so the tick loop cannot
// reclaim the id and release the claim in between; a non-empty owner return
// means another worker holds the claim and the caller must forward the raw
// delivery. It never lets a bad request escape: panics become an
// internal-error response so the pending call on the gateway always settles
// or times out, never both.
func (w *Worker) dispatch(req *core.SimulationRequest) (resp core.SimulationResponse, owner string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "worker").Str("worker_id", string(w.id)).
				Any("panic", r).Str("request_id", string(req.RequestID)).Msg("dispatch panicked")
			resp = errResponse(req, core.CodeInternal, "internal error")
			owner = ""
		}
		if owner == "" {
			w.stats.record(time.Since(start), resp.OK)
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()

	room, ok := w.rooms[req.RoomID]
	if !ok {
		cur, won := w.broker.Claims().Claim(string(req.RoomID), string(w.id))
		if !won {
			return core.SimulationResponse{}, cur
		}
		if len(w.rooms) >= w.opts.Capacity {
			w.broker.Claims().Release(string(req.RoomID), string(w.id))
			return errResponse(req, core.CodeCapacity, "room capacity exceeded"), ""
		}
		room = newRoomState(req.RoomID, w.newEngine(req.RoomID))
		w.rooms[req.RoomID] = room
		log.Info().Str("module", "worker").Str("worker_id", string(w.id)).
			Str("room", string(req.RoomID)).Int("rooms", len(w.rooms)).Msg("room created")
	}

	switch req.Action {
	case domain.ActionJoinRoom:
		return room.join(req), ""
	case domain.ActionLeaveRoom:
		return room.leave(req), ""
	case domain.ActionDropCoin:
		return room.dropCoin(req), ""
	case domain.ActionCollectCoin:
		return room.collectCoin(req), ""
	default:
		return errResponse(req, core.CodeDomain, "unknown action"), ""
	}
}

func (w *Worker) respond(replyTo string, resp core.SimulationResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("module", "worker").Msg("marshal response")
		return
	}
	if err := w.broker.PublishWork(replyTo, b); err != nil {
		log.Error().Err(err).Str("module", "worker").Str("reply_to", replyTo).Msg("publish response")
	}
}

func errResponse(req *core.SimulationRequest, code, msg string) core.SimulationResponse {
	return core.SimulationResponse{
		RequestID:   req.RequestID,
		RoomID:      req.RoomID,
		OK:          false,
		Code:        code,
		Error:       msg,
		RespondedAt: time.Now(),
	}
}

func okResponse(req *core.SimulationRequest, data any) core.SimulationResponse {
	b, _ := json.Marshal(data)
	return core.SimulationResponse{
		RequestID:   req.RequestID,
		RoomID:      req.RoomID,
		OK:          true,
		Data:        b,
		RespondedAt: time.Now(),
	}
}
