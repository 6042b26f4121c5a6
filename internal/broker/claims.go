package broker

import "sync"

// claimTable is the shared room-ownership registry. Claim is a compare-and-
// set: the first worker to claim a room id wins, every later claimant is
// told who owns it and forwards instead of creating a second room.
type claimTable struct {
	mu     sync.Mutex
	owners map[string]string
}

func newClaimTable() *claimTable {
	return &claimTable{owners: make(map[string]string)}
}

func (c *claimTable) Claim(roomID, ownerID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.owners[roomID]; ok {
		return cur, cur == ownerID
	}
	c.owners[roomID] = ownerID
	return ownerID, true
}

func (c *claimTable) Release(roomID, ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owners[roomID] == ownerID {
		delete(c.owners, roomID)
	}
}
