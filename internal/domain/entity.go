package domain

// Entity is a simulation object on the pusher table. The engine owns the
// authoritative copy; everything here is a snapshot for the wire.
type Entity struct {
	ID    EntityID `json:"id"`
	Kind  string   `json:"kind"`
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Z     float64  `json:"z"`
	Owner UserID   `json:"owner,omitempty"`
}

const EntityKindCoin = "coin"
