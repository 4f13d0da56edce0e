package relay

import (
	"testing"

	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"github.com/sessamekesh/rts-relay-hub/pkg/pow"
	"go.uber.org/zap"
)

func newTestRegistry(cfg RoomConfig) *Registry {
	return NewRegistry(cfg, zap.NewNop())
}

func TestHandshakeHostCreatesRoom(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")

	room := host.conn.Room()
	if room.Admin() != host.conn {
		t.Error("host is not the room admin")
	}
	if sizes := reg.Sizes(); sizes.All != 1 || sizes.Public != 1 || sizes.NoStart != 1 {
		t.Errorf("Sizes = %+v", sizes)
	}

	host.expect(t, packet.PreregisterInfo)
	host.expect(t, packet.RelayVersionInfo)
	host.expect(t, packet.RelayPow)
	host.expect(t, packet.RelayBecomeServer)
}

func TestHandshakeGuestJoins(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	room := host.conn.Room()
	if guest.conn.Room() != room {
		t.Fatal("guest joined a different room")
	}
	if room.PlayerCount() != 1 {
		t.Errorf("PlayerCount = %d, want 1 (host holds no slot)", room.PlayerCount())
	}
	if guest.conn.player.Position != 0 {
		t.Errorf("guest position = %d, want 0", guest.conn.player.Position)
	}

	guest.expect(t, packet.ForwardClientAdd)
	guest.expect(t, packet.TeamList)
	host.expect(t, packet.ForwardClientAdd)
}

func TestUnknownRoomIDCreatesPrivateRoom(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newTestClient(reg)
	host.handshake(t, "alice", "alice-uuid", "myFriends42")

	if got := host.conn.Permission(); got != HostPermission {
		t.Fatalf("permission = %v, want HostPermission", got)
	}
	room, has := reg.Lookup("myFriends42")
	if !has {
		t.Fatal("custom room id not registered")
	}
	if room.public {
		t.Error("custom-id room marked public")
	}
	if sizes := reg.Sizes(); sizes.Public != 0 {
		t.Errorf("Public = %d, want 0", sizes.Public)
	}
}

func TestInvalidProofOfWorkReissuesChallenge(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	client := newTestClient(reg)

	client.conn.ProcessPacket(BuildPreregisterHello(testClientVersion, ""))
	client.conn.ProcessPacket(BuildRegisterPlayer("mallory", "mallory-uuid", testClientVersion))

	first := client.conn.challenge
	client.conn.ProcessPacket(pow.BuildResponsePacket(first.ResultInt, first.Mode, "wrong-answer"))

	if client.conn.agreement.IsClosed() {
		t.Fatal("connection closed on a failed attempt instead of re-issuing")
	}
	if got := client.conn.Permission(); got != WaitCertified {
		t.Fatalf("permission = %v, want WaitCertified", got)
	}
	if client.conn.challenge == first {
		t.Error("challenge was not replaced after a failed attempt")
	}

	client.expect(t, packet.RelayPow)
	client.expect(t, packet.RelayPow)

	// The fresh challenge still verifies.
	second := client.conn.challenge
	client.conn.ProcessPacket(pow.BuildResponsePacket(second.ResultInt, second.Mode, second.Solve()))
	if got := client.conn.Permission(); got != HostPermission {
		t.Fatalf("permission after retry = %v, want HostPermission", got)
	}
}

func TestStaleNonceRejected(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	client := newTestClient(reg)

	client.conn.ProcessPacket(BuildPreregisterHello(testClientVersion, ""))
	client.conn.ProcessPacket(BuildRegisterPlayer("mallory", "mallory-uuid", testClientVersion))

	first := client.conn.challenge

	// Burn the first challenge; the replacement must be a fresh issue, so an
	// answer captured against the first cannot certify later.
	client.conn.ProcessPacket(pow.BuildResponsePacket(first.ResultInt, first.Mode, "nope"))
	if client.conn.challenge == first {
		t.Fatal("stale challenge survived the failed attempt")
	}
	if got := client.conn.Permission(); got != WaitCertified {
		t.Fatalf("permission = %v, want WaitCertified", got)
	}
}

func TestOutOfSequencePacketDisconnects(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	client := newTestClient(reg)

	client.conn.ProcessPacket(BuildPreregisterHello(testClientVersion, ""))
	client.conn.ProcessPacket(BuildRegisterPlayer("eve", "eve-uuid", testClientVersion))
	client.conn.ProcessPacket(BuildChatReceive("hello"))

	if !client.conn.agreement.IsClosed() {
		t.Fatal("out-of-sequence packet did not disconnect")
	}
}

func TestOutOfBandPacketBeforeHelloIgnored(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	client := newTestClient(reg)

	client.conn.ProcessPacket(packet.New(packet.EmptyPackage, nil))
	if client.conn.agreement.IsClosed() {
		t.Fatal("pre-hello extension frame closed the connection")
	}
	if got := client.conn.Permission(); got != InitialConnection {
		t.Fatalf("permission = %v, want InitialConnection", got)
	}
}

func TestGuestPacketForwardedToHost(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	guest.conn.ProcessPacket(packet.New(packet.GameCommandReceive, []byte{9, 9, 9}))

	wrapped := host.expect(t, packet.PacketForwardClientFrom)
	env, err := parseForwardEnvelope(wrapped)
	if err != nil {
		t.Fatalf("parseForwardEnvelope: %v", err)
	}
	if env.Position != 0 {
		t.Errorf("sender position = %d, want 0", env.Position)
	}
	if env.Inner.Type != packet.GameCommandReceive || len(env.Inner.Bytes) != 3 {
		t.Errorf("inner = %v (%d bytes)", env.Inner.Type, len(env.Inner.Bytes))
	}
}

func TestUnknownPacketTypeDefaultsToForward(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	// A type this build knows but has no handler for still reaches the host.
	guest.conn.ProcessPacket(packet.New(packet.GameCommandReceive, nil))
	host.expect(t, packet.PacketForwardClientFrom)
}

func TestGuestDenylistDropsForgedFrames(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	for _, forged := range []packet.Type{
		packet.RelayPow, packet.StartGame, packet.Kick,
		packet.PacketForwardClientTo, packet.HeartBeat,
	} {
		guest.conn.ProcessPacket(packet.New(forged, nil))
	}

	host.expectNone(t, packet.PacketForwardClientFrom)
	if guest.conn.agreement.IsClosed() {
		t.Error("denylisted frame closed the connection")
	}
}

func TestHostForwardEnvelopeToOneGuest(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	bob := newGuest(t, reg, host, "bob")
	carol := newGuest(t, reg, host, "carol")

	inner := packet.New(packet.StartGame, []byte{1})
	host.conn.ProcessPacket(BuildForwardToClient(0, inner))

	got := bob.expect(t, packet.StartGame)
	if len(got.Bytes) != 1 || got.Bytes[0] != 1 {
		t.Errorf("inner payload = %v", got.Bytes)
	}
	carol.expectNone(t, packet.StartGame)
}

func TestHostBroadcastEnvelopeReachesAllGuests(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	bob := newGuest(t, reg, host, "bob")
	carol := newGuest(t, reg, host, "carol")

	host.conn.ProcessPacket(BuildForwardToClient(-1, packet.New(packet.StartGame, nil)))

	bob.expect(t, packet.StartGame)
	carol.expect(t, packet.StartGame)
	host.expectNone(t, packet.StartGame)
}

func TestHostHeartbeatAnswered(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")

	w := packet.NewWriter()
	w.WriteInt64(99)
	host.conn.ProcessPacket(w.CreatePacket(packet.HeartBeat))
	host.expect(t, packet.HeartBeatResponse)
}

func TestAcceptStartGameFlipsRoom(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	guest.conn.ProcessPacket(packet.New(packet.AcceptStartGame, nil))

	if !host.conn.Room().IsStarted() {
		t.Fatal("room did not start")
	}
	host.expect(t, packet.PacketForwardClientFrom)
	if sizes := reg.Sizes(); sizes.NoStart != 0 {
		t.Errorf("NoStart = %d, want 0", sizes.NoStart)
	}
}

func TestGuestDisconnectNotifiesHost(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")
	room := host.conn.Room()

	guest.conn.ProcessPacket(packet.New(packet.Disconnect, nil))

	if !guest.conn.agreement.IsClosed() {
		t.Fatal("guest still open after disconnect")
	}
	host.expect(t, packet.ForwardClientRemove)
	if room.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount = %d, want 1", room.ConnectionCount())
	}
	// The roster slot survives for a reconnect.
	if room.PlayerCount() != 1 {
		t.Errorf("PlayerCount = %d, want 1", room.PlayerCount())
	}
}

func TestAllMuteBlocksGuestChat(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	mute, err := packet.BuildChat(".allmute", "alice", 0)
	if err != nil {
		t.Fatalf("BuildChat: %v", err)
	}
	host.conn.ProcessPacket(mute)
	if !host.conn.Room().AllMute() {
		t.Fatal("allmute did not engage")
	}

	guest.conn.ProcessPacket(BuildChatReceive("can anyone hear me"))
	guest.expectSystemChat(t, "muted")
	host.expectNone(t, packet.PacketForwardClientFrom)
}

func TestDotCommandFromGuestChat(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")
	guest := newGuest(t, reg, host, "bob")

	guest.conn.ProcessPacket(BuildChatReceive(".nonsense"))
	guest.expectSystemChat(t, "Unknown command")

	guest.conn.ProcessPacket(BuildChatReceive(".myid"))
	guest.expect(t, packet.Chat)
	host.expectNone(t, packet.PacketForwardClientFrom)
}

func TestHostChatFromOtherSenderIgnored(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")

	forged, err := packet.BuildChat(".allmute", "not-alice", 0)
	if err != nil {
		t.Fatalf("BuildChat: %v", err)
	}
	host.conn.ProcessPacket(forged)
	if host.conn.Room().AllMute() {
		t.Fatal("command ran for a forged sender")
	}
}

func TestPermissionNeverRegresses(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")

	host.conn.setPermission(InitialConnection)
	if got := host.conn.Permission(); got != HostPermission {
		t.Fatalf("permission regressed to %v", got)
	}

	// The one legal backward edge: host demoted to player on failover.
	host.conn.setPermission(PlayerPermission)
	if got := host.conn.Permission(); got != PlayerPermission {
		t.Fatalf("host demotion blocked, permission = %v", got)
	}
	host.conn.setPermission(WaitCertified)
	if got := host.conn.Permission(); got != PlayerPermission {
		t.Fatalf("player regressed to %v", got)
	}
}

func TestMalformedPayloadDoesNotKillConnection(t *testing.T) {
	reg := newTestRegistry(RoomConfig{})
	host := newHost(t, reg, "alice")

	// Truncated forward envelope parses with an error, never a panic.
	host.conn.ProcessPacket(packet.New(packet.PacketForwardClientTo, []byte{0x01}))
	if host.conn.agreement.IsClosed() {
		t.Fatal("malformed payload closed the connection")
	}

	w := packet.NewWriter()
	w.WriteInt64(5)
	host.conn.ProcessPacket(w.CreatePacket(packet.HeartBeat))
	host.expect(t, packet.HeartBeatResponse)
}
