package relay

import (
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sessamekesh/rts-relay-hub/internal/metrics"
	"go.uber.org/zap"
)

// RoomSizes are the process-wide aggregates over the live room registry.
// They are derived by scanning the registry, never cached stale.
type RoomSizes struct {
	All     int
	Public  int
	NoStart int
}

// Registry is the process-wide map of room id to live room. Construct one
// per process (or per test) and inject it; there is no global instance.
type Registry struct {
	cfg   RoomConfig
	log   *zap.Logger
	rooms cmap.ConcurrentMap[string, *Room]

	nextPublicID atomic.Int64
}

func NewRegistry(cfg RoomConfig, log *zap.Logger) *Registry {
	g := &Registry{
		cfg:   cfg,
		log:   log.With(zap.String("component", "room-registry")),
		rooms: cmap.New[*Room](),
	}
	g.nextPublicID.Store(1000)
	return g
}

// CreateRoom registers a new room. An empty roomID asks for a generated
// public id; a custom id makes the room private (join-by-id only). Rooms
// come into being on first host registration.
func (g *Registry) CreateRoom(roomID string) *Room {
	public := roomID == ""
	if public {
		roomID = strconv.FormatInt(g.nextPublicID.Add(1), 10)
	}
	room := newRoom(roomID, g.cfg, g, g.log)
	room.public = public
	g.rooms.Set(roomID, room)
	g.log.Info("Room created", zap.String("roomId", roomID), zap.Bool("public", public))
	g.recount()
	return room
}

func (g *Registry) Lookup(roomID string) (*Room, bool) {
	return g.rooms.Get(roomID)
}

func (g *Registry) remove(roomID string) {
	g.rooms.Remove(roomID)
	g.recount()
}

// Sizes recomputes the aggregates from the live registry.
func (g *Registry) Sizes() RoomSizes {
	sizes := RoomSizes{}
	for _, room := range g.rooms.Items() {
		sizes.All++
		room.mu.Lock()
		if room.public {
			sizes.Public++
		}
		if !room.isStartGame {
			sizes.NoStart++
		}
		room.mu.Unlock()
	}
	return sizes
}

// CloseAll tears down every room, used on process shutdown.
func (g *Registry) CloseAll() {
	for _, room := range g.rooms.Items() {
		room.Close()
	}
}

func (g *Registry) recount() {
	sizes := g.Sizes()
	metrics.RoomsAll.Set(float64(sizes.All))
	metrics.RoomsPublic.Set(float64(sizes.Public))
	metrics.RoomsWaiting.Set(float64(sizes.NoStart))
}
