package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/arcadelab/pusher/internal/core"
)

// onFrame fans a simulation frame out to every open socket watching the
// room. No buffering, no replay: a connection that subscribes after the
// frame was published never sees it, and a slow socket just drops it.
func (ctl *Controller) onFrame(payload []byte) {
	var frame core.SimulationFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("bad frame payload")
		return
	}

	ctl.mu.Lock()
	set := ctl.rooms[frame.RoomID]
	conns := make([]*Conn, 0, len(set))
	for _, c := range set {
		conns = append(conns, c)
	}
	ctl.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(map[string]any{"type": "physics_frame", "frame": frame})
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Msg("marshal frame envelope")
		return
	}
	for _, c := range conns {
		_ = c.TrySend(b)
	}
}
