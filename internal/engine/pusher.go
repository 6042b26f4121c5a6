// Package engine is a deterministic stand-in for the physics collaborator.
// The coordination layer treats it as a black box: spawn coins, step the
// table, ask whether a coin sits in the collection region. A pusher bar
// oscillates along the Z axis and shoves coins toward the table edge; coins
// shoved past the edge are reported as collected.
package engine

import (
	"math"
	"sync"

	"github.com/arcadelab/pusher/internal/core"
	"github.com/arcadelab/pusher/internal/domain"
)

const (
	TableHalfWidth = 5.0  // |x| bound for drops
	TableLength    = 10.0 // z runs from 0 (back wall) to the front edge
	CollectLine    = 8.5  // z >= CollectLine is the collection region

	pusherAmplitude = 3.0 // how far the bar sweeps from the back wall
	pusherPeriod    = 4.0 // seconds per full sweep
	reachLimit      = 8.0 // push falls to zero this far ahead of the bar
)

type coin struct {
	domain.Entity
	moved bool
}

type Table struct {
	mu     sync.Mutex
	room   domain.RoomID
	coins  map[domain.EntityID]*coin
	nextID domain.EntityID
	clock  float64
	pusher float64
}

func NewTable(room domain.RoomID) *Table {
	return &Table{room: room, coins: make(map[domain.EntityID]*coin)}
}

// Factory builds one table per room, satisfying core.EngineFactory.
func Factory(room domain.RoomID) core.Engine { return NewTable(room) }

func (t *Table) Spawn(args core.SpawnArgs) domain.EntityID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.coins[id] = &coin{Entity: domain.Entity{
		ID:    id,
		Kind:  domain.EntityKindCoin,
		X:     clamp(args.X, -TableHalfWidth, TableHalfWidth),
		Z:     clamp(args.Z, 0, CollectLine),
		Owner: args.Owner,
	}}
	return id
}

// Step advances the pusher and every coin it reaches. Only coins that
// actually moved appear in the result; a quiescent table yields an empty
// one, which the worker treats as "publish nothing".
func (t *Table) Step(dt float64) core.StepResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res core.StepResult
	if dt <= 0 {
		return res
	}

	t.clock += dt
	prev := t.pusher
	t.pusher = pusherAmplitude * 0.5 * (1 - math.Cos(2*math.Pi*t.clock/pusherPeriod))
	advancing := t.pusher > prev

	for id, c := range t.coins {
		c.moved = false
		if advancing && c.Z < t.pusher {
			// The bar carries the coin with it, and coins already on the
			// pile drift forward proportionally.
			c.Z = t.pusher
			c.moved = true
		} else if advancing && c.Z < TableLength {
			push := (t.pusher - prev) * falloff(c.Z-t.pusher)
			if push > 0 {
				c.Z += push
				c.moved = true
			}
		}
		if c.Z >= TableLength {
			res.Collected = append(res.Collected, id)
			delete(t.coins, id)
			continue
		}
		if c.moved {
			res.Updated = append(res.Updated, c.Entity)
		}
	}
	return res
}

func (t *Table) Remove(id domain.EntityID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.coins, id)
}

func (t *Table) Collectable(id domain.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.coins[id]
	return ok && c.Z >= CollectLine
}

func (t *Table) Entity(id domain.EntityID) (domain.Entity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.coins[id]
	if !ok {
		return domain.Entity{}, false
	}
	return c.Entity, true
}

func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.coins = make(map[domain.EntityID]*coin)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// falloff attenuates the push for coins further ahead of the bar.
func falloff(gap float64) float64 {
	if gap <= 0 {
		return 1
	}
	if gap >= reachLimit {
		return 0
	}
	return 1 - gap/reachLimit
}
