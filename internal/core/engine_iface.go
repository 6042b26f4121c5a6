package core

import "github.com/arcadelab/pusher/internal/domain"

// SpawnArgs describes a new coin dropped onto the table.
type SpawnArgs struct {
	X     float64
	Z     float64
	Owner domain.UserID
}

// StepResult reports what one simulation step changed. The engine suppresses
// entities that did not move, so an all-empty result means "nothing to tell".
type StepResult struct {
	Updated   []domain.Entity
	Collected []domain.EntityID
	Removed   []domain.EntityID
}

func (r StepResult) Empty() bool {
	return len(r.Updated) == 0 && len(r.Collected) == 0 && len(r.Removed) == 0
}

// Engine is the physics collaborator. It is synchronous and authoritative;
// callers never second-guess its results. One engine instance per room,
// touched only by the worker that owns the room.
type Engine interface {
	Spawn(args SpawnArgs) domain.EntityID
	Step(dt float64) StepResult
	Remove(id domain.EntityID)
	// Collectable reports whether the entity currently sits inside the
	// designated collection region.
	Collectable(id domain.EntityID) bool
	Entity(id domain.EntityID) (domain.Entity, bool)
	Close()
}

// EngineFactory builds a fresh engine for a newly created room.
type EngineFactory func(room domain.RoomID) Engine
