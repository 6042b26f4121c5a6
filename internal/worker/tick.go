package worker

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

// runTicks drives the fixed-rate simulation loop until Stop.
func (w *Worker) runTicks() {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Second / time.Duration(w.opts.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case now := <-ticker.C:
			for _, frame := range w.advance(now) {
				w.publishFrame(frame)
			}
		}
	}
}

// advance steps every owned room by its real elapsed time. A frame is
// emitted only when the engine reports a change; quiet rooms stay silent.
// This is also the only path that destroys room state: empty and idle past
// the threshold means release the engine, the claim, and the entry.
func (w *Worker) advance(now time.Time) []core.SimulationFrame {
	w.mu.Lock()
	defer w.mu.Unlock()

	frames := make([]core.SimulationFrame, 0, len(w.rooms))
	for id, room := range w.rooms {
		dt := now.Sub(room.lastTick).Seconds()
		if dt <= 0 {
			dt = 1.0 / float64(w.opts.TickRate)
		}
		room.lastTick = now

		res := room.engine.Step(dt)
		if !res.Empty() {
			for _, cid := range res.Collected {
				delete(room.owners, cid)
			}
			room.frameSeq++
			frames = append(frames, core.SimulationFrame{
				RoomID:    id,
				FrameSeq:  room.frameSeq,
				EmittedAt: now,
				Updated:   res.Updated,
				Collected: res.Collected,
				Removed:   res.Removed,
			})
		}

		if len(room.members) == 0 && now.Sub(room.lastActivity) > w.opts.IdleTimeout {
			room.engine.Close()
			w.broker.Claims().Release(string(id), string(w.id))
			delete(w.rooms, id)
			log.Info().Str("module", "worker").Str("worker_id", string(w.id)).
				Str("room", string(id)).Dur("lived", now.Sub(room.createdAt)).Msg("idle room reclaimed")
		}
	}
	return frames
}

func (w *Worker) publishFrame(frame core.SimulationFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("module", "worker").Msg("marshal frame")
		return
	}
	if err := w.broker.PublishTopic(core.FramesTopic, b); err != nil {
		log.Error().Err(err).Str("module", "worker").Msg("publish frame")
	}
}

// runAnnounce publishes the liveness beacon on a fixed interval. Consumers
// infer death from silence; nothing is pushed on shutdown.
func (w *Worker) runAnnounce() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.AnnounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case now := <-ticker.C:
			w.mu.Lock()
			owned := make([]domain.RoomID, 0, len(w.rooms))
			for id := range w.rooms {
				owned = append(owned, id)
			}
			w.mu.Unlock()

			b, err := json.Marshal(core.WorkerAnnouncement{
				WorkerID:     w.id,
				OwnedRoomIDs: owned,
				RoomCount:    len(owned),
				Capacity:     w.opts.Capacity,
				EmittedAt:    now,
			})
			if err != nil {
				continue
			}
			if err := w.broker.PublishTopic(core.WorkersTopic, b); err != nil {
				log.Error().Err(err).Str("module", "worker").Msg("publish announcement")
			}
		}
	}
}
