package connection

import (
	"sync"

	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
)

// Group is a multicast set of connections. Broadcast iterates a snapshot, so
// a member closing mid-broadcast is skipped rather than corrupting the loop.
type Group struct {
	mu      sync.RWMutex
	members map[string]*Agreement
}

func NewGroup() *Group {
	return &Group{members: make(map[string]*Agreement)}
}

func (g *Group) Add(a *Agreement) {
	g.mu.Lock()
	g.members[a.ID] = a
	g.mu.Unlock()
}

func (g *Group) Remove(a *Agreement) {
	g.mu.Lock()
	delete(g.members, a.ID)
	g.mu.Unlock()
}

func (g *Group) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

func (g *Group) snapshot() []*Agreement {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Agreement, 0, len(g.members))
	for _, a := range g.members {
		out = append(out, a)
	}
	return out
}

// Broadcast sends to every live member. Sends are independent fire-and-forget;
// there is no ordering guarantee across members.
func (g *Group) Broadcast(p packet.Packet) {
	for _, a := range g.snapshot() {
		if a.IsClosed() {
			continue
		}
		_ = a.Send(p)
	}
}

// BroadcastExcept sends to every live member except the one given.
func (g *Group) BroadcastExcept(p packet.Packet, except *Agreement) {
	for _, a := range g.snapshot() {
		if a.IsClosed() || (except != nil && a.ID == except.ID) {
			continue
		}
		_ = a.Send(p)
	}
}
