package relay

import (
	"strings"
	"sync"

	"github.com/sessamekesh/rts-relay-hub/internal/metrics"
	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"github.com/sessamekesh/rts-relay-hub/pkg/pow"
	"go.uber.org/zap"
)

// Conn is the protocol state machine for one relay connection. Exactly one
// Conn exists per accepted connection; it owns the connection's Agreement
// and processes that connection's packets in receipt order.
type Conn struct {
	agreement *connection.Agreement
	log       *zap.Logger
	registry  *Registry
	commands  Dispatcher

	mu         sync.Mutex
	permission PermissionStatus

	room   *Room
	player *Player

	name             string
	registerPlayerID string
	clientVersion    int32

	cachePacket *packet.Packet
	challenge   *pow.Challenge
}

// NewConn binds a fresh state machine to an accepted connection. Room
// cleanup is hooked onto the agreement's close path, so a peer reset tears
// membership down the same way an explicit disconnect does.
func NewConn(a *connection.Agreement, registry *Registry, commands Dispatcher) *Conn {
	c := &Conn{
		agreement: a,
		log:       a.Logger().With(zap.String("protocol", "relay")),
		registry:  registry,
		commands:  commands,
	}
	a.OnClose(func(*connection.Agreement) {
		c.onClosed()
	})
	return c
}

func (c *Conn) Agreement() *connection.Agreement {
	return c.agreement
}

func (c *Conn) Permission() PermissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permission
}

func (c *Conn) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) Name() string {
	return c.name
}

func (c *Conn) PlayerID() string {
	return c.registerPlayerID
}

// setPermission only ever moves the ladder forward. The one backward edge is
// the host demotion to PlayerPermission when a room elects a new admin;
// regressing into the handshake states requires a whole new connection.
func (c *Conn) setPermission(s PermissionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s < c.permission && !(s == PlayerPermission && c.permission == HostPermission) {
		return
	}
	c.permission = s
}

// ProcessPacket is the single entry point for this connection's inbound
// frames. A panic while parsing one payload is confined to that packet: it
// is logged and the connection keeps processing.
func (c *Conn) ProcessPacket(p packet.Packet) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error("Packet dispatch panicked",
				zap.String("packetType", p.Type.String()),
				zap.Any("panic", rec))
		}
	}()

	if c.relayCheck(p) {
		return
	}

	if c.Permission() == HostPermission {
		c.hostProcessing(p)
	} else {
		c.normalProcessing(p)
	}
}

// relayCheck runs the handshake-only dispatch for connections that have not
// reached PlayerPermission yet. Returns true when the packet was consumed.
func (c *Conn) relayCheck(p packet.Packet) bool {
	status := c.Permission()
	if status.Certified() {
		return false
	}

	switch status {
	case InitialConnection:
		if p.Type == packet.PreregisterInfoReceive {
			c.setPermission(GetPlayerInfo)
			c.cachePacket = &p
			if err := c.agreement.Send(buildPreregisterReply()); err != nil {
				c.log.Debug("Failed to send preregister reply", zap.Error(err))
			}
		} else {
			c.exCommand(p)
		}
		return true

	case GetPlayerInfo:
		if p.Type == packet.RegisterPlayer {
			if !c.relayRegisterConnection(p) {
				c.failHandshake("malformed register packet")
				return true
			}
			c.setPermission(WaitCertified)
			_ = c.agreement.Send(buildRelayServerInfo())
			c.sendVerifyClientValidity()
		}
		return true

	case WaitCertified:
		if p.Type == packet.RelayPowReceive {
			if c.receiveVerifyClientValidity(p) {
				c.setPermission(CertifiedEnd)
				c.relayDirectInspection()
			} else {
				c.sendVerifyClientValidity()
			}
		} else {
			c.failHandshake("unexpected packet while waiting for proof of work")
		}
		return true

	case CertifiedEnd:
		if p.Type == packet.Relay118117Return {
			_ = c.agreement.Send(buildServerTypeReply())
		} else {
			c.failHandshake("unexpected packet after certification")
		}
		return true
	}

	c.failHandshake("packet before certification")
	return true
}

func (c *Conn) failHandshake(reason string) {
	err := &hub.HandshakeViolation{State: c.Permission().String(), Detail: reason}
	c.log.Info("Handshake violation, disconnecting", zap.Error(err))
	metrics.HandshakeFailures.Inc()
	c.Disconnect()
}

// exCommand handles out-of-band frames arriving before the hello. They
// carry extension traffic from non-game tooling; the relay ignores them
// without advancing the handshake.
func (c *Conn) exCommand(p packet.Packet) {
	c.log.Debug("Out-of-band packet before hello", zap.String("packetType", p.Type.String()))
}

func (c *Conn) relayRegisterConnection(p packet.Packet) bool {
	info, err := parseRegisterPlayer(p)
	if err != nil {
		c.log.Debug("Bad register packet", zap.Error(err))
		return false
	}
	c.name = info.Name
	c.registerPlayerID = info.PlayerUUIDHex
	c.clientVersion = info.ClientVersion
	c.log = c.log.With(zap.String("player", c.name))
	return true
}

// sendVerifyClientValidity issues a fresh proof-of-work challenge. Each
// verification attempt gets its own challenge; answers cannot be replayed
// across attempts because the nonce changes.
func (c *Conn) sendVerifyClientValidity() {
	c.challenge = pow.Issue()
	_ = c.agreement.Send(pow.BuildChallengePacket(c.challenge))
}

func (c *Conn) receiveVerifyClientValidity(p packet.Packet) bool {
	if c.challenge == nil {
		return false
	}
	resp, err := pow.ParseResponsePacket(p)
	if err != nil {
		return false
	}
	return c.challenge.Verify(resp.ResultInt, resp.Mode, resp.Answer)
}

// relayDirectInspection routes a certified connection into a room: the
// cached hello names the target room. A missing or empty id registers this
// connection as the host of a new room; an existing id joins as a guest.
func (c *Conn) relayDirectInspection() {
	if c.cachePacket == nil {
		c.failHandshake("no cached hello")
		return
	}
	info, err := parsePreregister(*c.cachePacket)
	if err != nil {
		c.failHandshake("malformed hello")
		return
	}
	c.clientVersion = info.ClientVersion

	if info.RoomID != "" {
		if room, has := c.registry.Lookup(info.RoomID); has {
			c.joinRoom(room)
			return
		}
	}
	c.becomeHost(info.RoomID)
}

// becomeHost creates the room and escalates this connection to
// HostPermission. The host holds no roster slot; it is the simulation
// authority the guests' packets get bridged to.
func (c *Conn) becomeHost(roomID string) {
	room := c.registry.CreateRoom(roomID)
	room.attachHost(c)

	c.mu.Lock()
	c.room = room
	c.mu.Unlock()

	room.setAdmin(c)
	_ = c.agreement.Send(buildBecomeServer(room.ID))
	if msg, err := packet.BuildSystemChat("Room " + room.ID + " is yours; players can join with this id"); err == nil {
		_ = c.agreement.Send(msg)
	}
	c.log.Info("Connection registered as room host", zap.String("roomId", room.ID))
}

// joinRoom admits the connection as a guest. Capacity and ban rejections
// answer with a kick packet carrying the reason, then a graceful close --
// never a silent drop.
func (c *Conn) joinRoom(room *Room) {
	if err := room.registerConnection(c); err != nil {
		c.log.Info("Join refused", zap.String("roomId", room.ID), zap.Error(err))
		c.Kick(err.Error())
		return
	}

	c.setPermission(PlayerPermission)
	_ = c.agreement.Send(buildClientAdd(int32(c.player.Position)))

	if admin := room.Admin(); admin != nil {
		_ = admin.agreement.Send(buildClientAdd(int32(c.player.Position)))
	}
	if teamList, err := packet.BuildTeamList(int32(room.cfg.MaxPlayers), room.TeamSlots()); err == nil {
		room.group.Broadcast(teamList)
	}
	c.log.Info("Joined room", zap.String("roomId", room.ID), zap.Int("position", c.player.Position))
}

// hostProcessing dispatches packets from the room host. The host is
// authoritative for game-state fan-out; anything it should not be sending
// as a host is ignored rather than forwarded.
func (c *Conn) hostProcessing(p packet.Packet) {
	switch p.Type {
	case packet.PacketForwardClientTo:
		c.addRelaySend(p)

	case packet.HeartBeat:
		if pong, err := packet.BuildPong(p); err == nil {
			_ = c.agreement.Send(pong)
		}

	case packet.Chat:
		c.hostChat(p)

	case packet.Disconnect:
		c.Disconnect()

	default:
		// A host is not also a guest.
	}
}

// addRelaySend unwraps a host forward envelope and re-broadcasts the inner
// packet to the addressed guest, or to every guest for position -1.
func (c *Conn) addRelaySend(p packet.Packet) {
	room := c.Room()
	if room == nil {
		return
	}
	env, err := parseForwardEnvelope(p)
	if err != nil {
		c.log.Debug("Malformed forward envelope", zap.Error(err))
		return
	}
	if env.Position < 0 {
		room.forwardFromHost(env.Inner)
		return
	}
	if target := room.playerAt(int(env.Position)); target != nil {
		_ = target.agreement.Send(env.Inner)
	}
}

// hostChat routes a dot-command the host typed at itself through the relay
// command parser; everything else from the host's chat is ignored here (the
// host fans chat out through forward envelopes like any other game state).
func (c *Conn) hostChat(p packet.Packet) {
	msg, err := packet.ParseChat(p)
	if err != nil {
		return
	}
	if msg.Sender != c.name || !strings.HasPrefix(msg.Text, ".") {
		return
	}
	c.runCommand(msg.Text)
}

func (c *Conn) runCommand(text string) {
	if c.commands == nil {
		return
	}
	resp := c.commands.Handle(text, c)
	var reply string
	switch resp.Type {
	case ResponseValid, ResponseNoCommand:
		return
	case ResponseFewArguments:
		reply = "Too few arguments. Usage: " + resp.Command + " " + resp.ParamText
	case ResponseManyArguments:
		reply = "Too many arguments. Usage: " + resp.Command + " " + resp.ParamText
	default:
		reply = "Unknown command. Type .help for the command list"
	}
	c.SendSystemMessage(reply)
}

// guestDenylist are the packet types a guest must never originate: relay
// control, host-only traffic, and server-origin frames. Forged frames of
// these types are dropped without a reply, so a probing client learns
// nothing.
var guestDenylist = map[packet.Type]struct{}{
	packet.Relay117:                      {},
	packet.Relay118117Return:             {},
	packet.RelayPow:                      {},
	packet.RelayPowReceive:               {},
	packet.RelayVersionInfo:              {},
	packet.RelayBecomeServer:             {},
	packet.ForwardClientAdd:              {},
	packet.ForwardClientRemove:           {},
	packet.PacketForwardClientFrom:       {},
	packet.PacketForwardClientTo:         {},
	packet.PacketForwardClientToRepeated: {},
	packet.Tick:                          {},
	packet.Sync:                          {},
	packet.SyncCheck:                     {},
	packet.ServerInfo:                    {},
	packet.HeartBeat:                     {},
	packet.StartGame:                     {},
	packet.ReturnToBattleroom:            {},
	packet.Chat:                          {},
	packet.Kick:                          {},
	packet.PacketReconnectTo:             {},
	packet.PasswdError:                   {},
	packet.TeamList:                      {},
	packet.PreregisterInfo:               {},
	packet.EmptyPackage:                  {},
	packet.NotResolved:                   {},
}

// normalProcessing dispatches packets from a guest. Unknown packet types
// default to "forward to host": the relay stays a dumb pipe for packet
// kinds newer than this build.
func (c *Conn) normalProcessing(p packet.Packet) {
	if _, denied := guestDenylist[p.Type]; denied {
		return
	}

	switch p.Type {
	case packet.GameCommandReceive:
		c.sendPacketToHost(p)

	case packet.RegisterPlayer:
		// Mid-session re-registration (reconnect path).
		c.relayRegisterConnection(p)

	case packet.ChatReceive:
		c.receiveChat(p)

	case packet.AcceptStartGame:
		if room := c.Room(); room != nil {
			room.StartGame()
		}
		c.sendPacketToHost(p)

	case packet.Disconnect:
		c.sendPacketToHost(p)
		c.Disconnect()

	default:
		c.sendPacketToHost(p)
	}
}

func (c *Conn) receiveChat(p packet.Packet) {
	text, err := parseChatReceive(p)
	if err != nil {
		return
	}

	if strings.HasPrefix(text, ".") || strings.HasPrefix(text, "/") {
		c.runCommand(text)
		return
	}

	room := c.Room()
	if room == nil {
		return
	}
	if room.AllMute() && room.Admin() != c {
		c.SendSystemMessage("The room is muted")
		return
	}
	c.sendPacketToHost(p)
}

// sendPacketToHost wraps and forwards a guest packet to the room host.
func (c *Conn) sendPacketToHost(p packet.Packet) {
	room := c.Room()
	if room == nil {
		return
	}
	admin := room.Admin()
	if admin == nil || admin == c {
		return
	}
	position := int32(-1)
	if c.player != nil {
		position = int32(c.player.Position)
	}
	_ = admin.agreement.Send(wrapToHost(position, p))
}

func (c *Conn) SendSystemMessage(text string) {
	msg, err := packet.BuildSystemChat(text)
	if err != nil {
		return
	}
	_ = c.agreement.Send(msg)
}

// Kick sends the reason to the peer and closes.
func (c *Conn) Kick(reason string) {
	_ = c.agreement.Send(packet.BuildKick(reason))
	metrics.ForcedDisconnects.Inc()
	c.Disconnect()
}

// Disconnect tears this connection down. Room cleanup runs through the
// agreement's close hook, so every teardown path converges here.
func (c *Conn) Disconnect() {
	c.agreement.Close(nil)
}

// onClosed runs exactly once when the underlying connection dies, whether
// by local close, kick, idle timeout, or peer reset.
func (c *Conn) onClosed() {
	c.mu.Lock()
	room := c.room
	player := c.player
	c.room = nil
	c.mu.Unlock()

	if room == nil {
		return
	}

	if player != nil {
		if admin := room.Admin(); admin != nil && admin != c {
			_ = admin.agreement.Send(buildClientRemove(int32(player.Position)))
		}
	}
	room.leave(c)
	c.log.Info("Connection left room", zap.String("roomId", room.ID))
}
