// Package relay implements the relay side of the hub: the per-connection
// protocol state machine, the rooms that bridge one host client to many
// guests, and the in-room admin commands.
package relay

import (
	"sort"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"go.uber.org/zap"

	"sync"
)

// lateKickLockSeconds is how far into a started game kick/ban commands stop
// working, so a losing admin cannot purge the lobby at the end of a match.
const lateKickLockSeconds = 600

// RoomConfig carries the plain config values the room core reads. Loading
// and parsing config files happens outside the core.
type RoomConfig struct {
	MaxPlayers int

	// OneAdmin promotes the first eligible player when the admin drops.
	OneAdmin bool

	// SyncOnReconnect is the initial per-room syncFlag: whether a player
	// may rejoin after the game has started. Admins flip it per-room with
	// the sync command.
	SyncOnReconnect bool
}

func (c RoomConfig) withDefaults() RoomConfig {
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = 10
	}
	return c
}

// Room owns the set of connections in one game session: the host, the
// roster, the ban ledger, and the fan-out path. Membership mutations are
// serialized under one mutex; broadcasts iterate snapshots so a concurrent
// disconnect never corrupts an in-flight send loop.
type Room struct {
	ID string

	cfg      RoomConfig
	log      *zap.Logger
	registry *Registry

	connections cmap.ConcurrentMap[string, *Conn]
	group       *connection.Group
	penalties   *PenaltyLedger

	mu               sync.Mutex
	admin            *Conn
	roster           map[int]*Player
	joinOrder        []string
	isStartGame      bool
	startGameTime    int64
	syncFlag         bool
	allmute          bool
	replacePlayerHex string
	public           bool
	closed           bool

	now func() int64
}

func newRoom(id string, cfg RoomConfig, registry *Registry, log *zap.Logger) *Room {
	cfg = cfg.withDefaults()
	return &Room{
		ID:          id,
		cfg:         cfg,
		log:         log.With(zap.String("roomId", id)),
		registry:    registry,
		connections: cmap.New[*Conn](),
		group:       connection.NewGroup(),
		penalties:   NewPenaltyLedger(),
		roster:      make(map[int]*Player),
		syncFlag:    cfg.SyncOnReconnect,
		now:         func() int64 { return time.Now().Unix() },
	}
}

// Admin returns the current host/admin connection, nil if none. The room
// only references the admin; it does not own its lifecycle.
func (r *Room) Admin() *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admin
}

func (r *Room) IsStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isStartGame
}

// StartGame flips the room to in-game. The transition happens exactly once
// per room lifetime; restarting a game takes a new room.
func (r *Room) StartGame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isStartGame {
		return
	}
	r.isStartGame = true
	r.startGameTime = r.now()
	r.log.Info("Game started", zap.Int("players", len(r.roster)))
}

func (r *Room) SyncFlag() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncFlag
}

func (r *Room) SetSyncFlag(v bool) {
	r.mu.Lock()
	r.syncFlag = v
	r.mu.Unlock()
}

func (r *Room) AllMute() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allmute
}

func (r *Room) ToggleAllMute() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allmute = !r.allmute
	return r.allmute
}

// PlayerCount is the number of occupied roster slots, connected or not.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roster)
}

func (r *Room) ConnectionCount() int {
	return r.connections.Count()
}

// registerConnection assigns a roster position and admits the connection,
// enforcing capacity, the penalty ledger, and the mid-game reconnect policy.
func (r *Room) registerConnection(c *Conn) error {
	now := r.now()

	if p, banned := r.penalties.Active(c.registerPlayerID, now); banned {
		return &hub.JoinBanned{RoomID: r.ID, Subject: c.registerPlayerID, Reason: p.Kind.String() + " is still active"}
	}
	if p, banned := r.penalties.Active(c.agreement.IP, now); banned {
		return &hub.JoinBanned{RoomID: r.ID, Subject: c.agreement.IP, Reason: p.Kind.String() + " is still active"}
	}

	if err := r.admit(c); err != nil {
		return err
	}
	r.registry.recount()
	return nil
}

func (r *Room) admit(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return &hub.JoinBanned{RoomID: r.ID, Subject: c.registerPlayerID, Reason: "room is closed"}
	}

	// A disconnected slot with the same identity is always re-occupiable;
	// a pending takeover re-occupies its target slot.
	pos, ok, err := r.reclaimableSlot(c)
	if err != nil {
		return err
	}
	if ok {
		player := r.roster[pos]
		player.Name = c.name
		player.UUID = c.registerPlayerID
		player.conn = c
		r.attach(c, player)
		return nil
	}

	if r.isStartGame && !r.syncFlag {
		return &hub.JoinBanned{RoomID: r.ID, Subject: c.registerPlayerID, Reason: "game already started"}
	}
	if len(r.roster) >= r.cfg.MaxPlayers {
		return &hub.RoomFull{RoomID: r.ID, MaxPlayers: r.cfg.MaxPlayers}
	}

	player := &Player{
		UUID:     c.registerPlayerID,
		Name:     c.name,
		Position: r.freePosition(),
		conn:     c,
	}
	r.roster[player.Position] = player
	r.attach(c, player)
	return nil
}

// reclaimableSlot finds the roster position this connection may re-occupy:
// its own disconnected slot, or the slot a pending admin-approved takeover
// vacated. A second live connection with an identity already present is
// rejected outright (duplicate-presence guard).
func (r *Room) reclaimableSlot(c *Conn) (int, bool, error) {
	for pos, p := range r.roster {
		if p.UUID != c.registerPlayerID {
			continue
		}
		if p.Connected() {
			return 0, false, &hub.NameCollision{CollisionContext: "registerConnection", Name: c.registerPlayerID}
		}
		return pos, true, nil
	}

	if r.replacePlayerHex != "" && r.isStartGame {
		for pos, p := range r.roster {
			if p.UUID == r.replacePlayerHex && !p.Connected() {
				r.replacePlayerHex = ""
				return pos, true, nil
			}
		}
	}
	return 0, false, nil
}

// attach wires the connection into the membership structures. Caller holds
// r.mu; the registry recount happens after the lock is released.
func (r *Room) attach(c *Conn, player *Player) {
	c.room = r
	c.player = player
	r.connections.Set(c.agreement.ID, c)
	r.joinOrder = append(r.joinOrder, c.agreement.ID)
	r.group.Add(c.agreement)
}

// attachHost wires the host connection in. The host has no roster slot; it
// is the simulation authority, not a player.
func (r *Room) attachHost(c *Conn) {
	r.mu.Lock()
	r.attach(c, nil)
	r.mu.Unlock()
	r.registry.recount()
}

// setAdmin installs the host. At most one connection holds HostPermission in
// a room at any time; the previous host, if still around, is demoted.
func (r *Room) setAdmin(c *Conn) {
	r.mu.Lock()
	prev := r.admin
	r.admin = c
	r.mu.Unlock()

	if prev != nil && prev != c {
		prev.setPermission(PlayerPermission)
	}
	c.setPermission(HostPermission)
}

// leave detaches a closing connection and runs admin failover / teardown.
func (r *Room) leave(c *Conn) {
	r.connections.Remove(c.agreement.ID)
	r.group.Remove(c.agreement)

	r.mu.Lock()
	for i, id := range r.joinOrder {
		if id == c.agreement.ID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	if c.player != nil {
		if p, has := r.roster[c.player.Position]; has && p.conn == c {
			p.conn = nil
		}
	}
	wasAdmin := r.admin == c
	if wasAdmin {
		r.admin = nil
	}
	empty := r.connections.Count() == 0
	r.mu.Unlock()

	if wasAdmin && r.cfg.OneAdmin {
		r.promoteNextAdmin()
	}

	r.mu.Lock()
	noAdmin := r.admin == nil
	r.mu.Unlock()

	if empty && noAdmin {
		r.Close()
		return
	}
	r.registry.recount()
}

// promoteNextAdmin elects the first eligible connected, non-AI player in
// join order. Deterministic: the same membership always elects the same
// player.
func (r *Room) promoteNextAdmin() {
	r.mu.Lock()
	var next *Conn
	for _, id := range r.joinOrder {
		c, has := r.connections.Get(id)
		if !has || c.player == nil || c.player.IsAI {
			continue
		}
		if c == r.admin {
			continue
		}
		next = c
		break
	}
	r.mu.Unlock()

	if next == nil {
		return
	}
	r.setAdmin(next)
	r.log.Info("Admin failover", zap.String("newAdmin", next.name))
	r.BroadcastSystemMessage(next.name + " is now the room admin")
}

// BroadcastSystemMessage fans a system chat out to every live member. A
// member closing mid-iteration is skipped, never aborts the loop.
func (r *Room) BroadcastSystemMessage(text string) {
	p, err := packet.BuildSystemChat(text)
	if err != nil {
		r.log.Error("Failed to build system chat", zap.Error(err))
		return
	}
	r.group.Broadcast(p)
}

// Forward sends a packet to every member except the host.
func (r *Room) forwardFromHost(p packet.Packet) {
	r.mu.Lock()
	admin := r.admin
	r.mu.Unlock()
	var except *connection.Agreement
	if admin != nil {
		except = admin.agreement
	}
	r.group.BroadcastExcept(p, except)
}

func (r *Room) playerAt(position int) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, has := r.roster[position]
	if !has {
		return nil
	}
	return p.conn
}

// Kick ejects a player for durationSeconds (PermanentExpiry for a ban-length
// kick). Inside a started game it stops working lateKickLockSeconds after
// the start.
func (r *Room) Kick(target *Conn, reason string, durationSeconds int64) error {
	r.mu.Lock()
	locked := r.isStartGame && r.now() > r.startGameTime+lateKickLockSeconds
	r.mu.Unlock()
	if locked {
		return &hub.JoinBanned{RoomID: r.ID, Subject: target.registerPlayerID, Reason: "已经开局十分钟了"}
	}

	expiry := PermanentExpiry
	if durationSeconds > 0 && durationSeconds != PermanentExpiry {
		expiry = r.now() + durationSeconds
	}
	r.penalties.Add(PenaltyKick, target.registerPlayerID, expiry)

	r.log.Info("Kicking player",
		zap.String("player", target.name),
		zap.String("reason", reason),
		zap.Int64("expiry", expiry))
	target.Kick(reason)
	return nil
}

// Ban permanently bars the player's identity and IP, then kicks.
func (r *Room) Ban(target *Conn, reason string) error {
	r.mu.Lock()
	locked := r.isStartGame && r.now() > r.startGameTime+lateKickLockSeconds
	r.mu.Unlock()
	if locked {
		return &hub.JoinBanned{RoomID: r.ID, Subject: target.registerPlayerID, Reason: "已经开局十分钟了"}
	}

	r.penalties.Add(PenaltyKick, target.registerPlayerID, PermanentExpiry)
	r.penalties.Add(PenaltyBan, target.agreement.IP, PermanentExpiry)

	r.log.Info("Banning player", zap.String("player", target.name), zap.String("reason", reason))
	target.Kick(reason)
	return nil
}

// ReplacePlayer marks a pending takeover of the slot owned by oldHex. It is
// refused while any live connection still holds that identity.
func (r *Room) ReplacePlayer(oldHex string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.roster {
		if p.UUID == oldHex && p.Connected() {
			return &hub.NameCollision{CollisionContext: "ReplacePlayer", Name: oldHex}
		}
	}
	r.replacePlayerHex = oldHex
	return nil
}

// Close tears the room down: every remaining member is disconnected and the
// room leaves the registry.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	for _, item := range r.connections.Items() {
		item.Disconnect()
	}
	r.connections.Clear()
	r.registry.remove(r.ID)
	r.log.Info("Room closed")
}

// TeamSlots renders the roster for a team-list broadcast, position order.
func (r *Room) TeamSlots() []packet.TeamSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	positions := make([]int, 0, len(r.roster))
	for pos := range r.roster {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	slots := make([]packet.TeamSlot, 0, len(positions))
	for _, pos := range positions {
		p := r.roster[pos]
		slots = append(slots, packet.TeamSlot{
			Position: int32(pos),
			Name:     p.Name,
			Team:     p.Team,
			IsAI:     p.IsAI,
		})
	}
	return slots
}

func (r *Room) freePosition() int {
	for i := 0; ; i++ {
		if _, taken := r.roster[i]; !taken {
			return i
		}
	}
}
