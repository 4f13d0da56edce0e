package relay

import (
	"hash/fnv"

	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
)

// Identity strings the official client expects to see during the relay
// handshake. Kept bit-compatible with the upstream relay network.
const (
	serverIDRelayGet  = "net.rwhps.server.relayGetUUIDHex.Dr"
	serverRelayUUID   = "Dr (dr@der.kim) & Tiexiu.xyz Core Team"
	clientPackageName = "com.corrodinggames.rts.server"
	relayVersion      = "RELAY 1.1.0"
)

// PreregisterInfo is the decoded client hello: the first frame a relay
// client sends. An empty RoomID asks the hub for a fresh public room.
type PreregisterInfo struct {
	Package       string
	ClientVersion int32
	RoomID        string
}

// BuildPreregisterHello builds the client-side hello. Used by the loopback
// client and the handshake tests.
func BuildPreregisterHello(clientVersion int32, roomID string) packet.Packet {
	w := packet.NewWriter()
	w.WriteString(clientPackageName)
	w.WriteInt32(clientVersion)
	w.WriteIsString(roomID)
	return w.CreatePacket(packet.PreregisterInfoReceive)
}

func parsePreregister(p packet.Packet) (PreregisterInfo, error) {
	r := packet.NewReader(p)
	info := PreregisterInfo{}
	var err error
	if info.Package, err = r.ReadString(); err != nil {
		return PreregisterInfo{}, err
	}
	if info.ClientVersion, err = r.ReadInt32(); err != nil {
		return PreregisterInfo{}, err
	}
	if info.RoomID, err = r.ReadIsString(); err != nil {
		return PreregisterInfo{}, err
	}
	return info, nil
}

// buildPreregisterReply is the server identity frame answering the hello.
func buildPreregisterReply() packet.Packet {
	h := fnv.New32a()
	h.Write([]byte(serverRelayUUID))

	w := packet.NewWriter()
	w.WriteString(serverIDRelayGet)
	w.WriteInt32(1)
	w.WriteInt32(0)
	w.WriteInt32(0)
	w.WriteString(clientPackageName)
	w.WriteString(serverRelayUUID)
	w.WriteInt32(int32(h.Sum32()))
	return w.CreatePacket(packet.PreregisterInfo)
}

// RegisterInfo is the decoded player registration frame.
type RegisterInfo struct {
	Name          string
	PlayerUUIDHex string
	ClientVersion int32
}

// BuildRegisterPlayer builds the client-side registration frame.
func BuildRegisterPlayer(name, playerUUIDHex string, clientVersion int32) packet.Packet {
	w := packet.NewWriter()
	w.WriteString(name)
	w.WriteString(playerUUIDHex)
	w.WriteInt32(clientVersion)
	return w.CreatePacket(packet.RegisterPlayer)
}

func parseRegisterPlayer(p packet.Packet) (RegisterInfo, error) {
	r := packet.NewReader(p)
	info := RegisterInfo{}
	var err error
	if info.Name, err = r.ReadString(); err != nil {
		return RegisterInfo{}, err
	}
	if info.PlayerUUIDHex, err = r.ReadString(); err != nil {
		return RegisterInfo{}, err
	}
	if info.ClientVersion, err = r.ReadInt32(); err != nil {
		return RegisterInfo{}, err
	}
	return info, nil
}

// buildRelayServerInfo announces the relay version to a registering client.
func buildRelayServerInfo() packet.Packet {
	w := packet.NewWriter()
	w.WriteString(relayVersion)
	w.WriteInt32(1)
	w.WriteBool(true)
	return w.CreatePacket(packet.RelayVersionInfo)
}

// buildServerTypeReply answers the client's server-type query during the
// certified tail of the handshake.
func buildServerTypeReply() packet.Packet {
	w := packet.NewWriter()
	w.WriteString(serverIDRelayGet)
	w.WriteInt32(1)
	return w.CreatePacket(packet.Relay117)
}

// buildBecomeServer tells the registering host it now owns a room.
func buildBecomeServer(roomID string) packet.Packet {
	w := packet.NewWriter()
	w.WriteString(roomID)
	w.WriteBool(false)
	return w.CreatePacket(packet.RelayBecomeServer)
}

// buildReconnectTo points a guest at its assigned roster position after a
// successful join.
func buildClientAdd(position int32) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(position)
	return w.CreatePacket(packet.ForwardClientAdd)
}

func buildClientRemove(position int32) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(position)
	return w.CreatePacket(packet.ForwardClientRemove)
}

// wrapToHost frames a guest packet for the host, tagged with the sender's
// roster position.
func wrapToHost(fromPosition int32, p packet.Packet) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(fromPosition)
	w.WriteInt32(int32(p.Type))
	w.WriteBytes(p.Bytes)
	return w.CreatePacket(packet.PacketForwardClientFrom)
}

// ForwardEnvelope is a decoded host-to-guest (or guest-to-host) forward
// frame: the addressed roster position and the inner packet.
type ForwardEnvelope struct {
	Position int32
	Inner    packet.Packet
}

// BuildForwardToClient frames a host packet for one guest (position -1
// broadcasts to every guest).
func BuildForwardToClient(position int32, inner packet.Packet) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(position)
	w.WriteInt32(int32(inner.Type))
	w.WriteBytes(inner.Bytes)
	return w.CreatePacket(packet.PacketForwardClientTo)
}

func parseForwardEnvelope(p packet.Packet) (ForwardEnvelope, error) {
	r := packet.NewReader(p)
	env := ForwardEnvelope{}
	var err error
	if env.Position, err = r.ReadInt32(); err != nil {
		return ForwardEnvelope{}, err
	}
	var tag int32
	if tag, err = r.ReadInt32(); err != nil {
		return ForwardEnvelope{}, err
	}
	env.Inner = packet.New(packet.TypeFromInt(tag), r.ReadRemaining())
	return env, nil
}

// BuildChatReceive builds the client-side plain chat frame.
func BuildChatReceive(text string) packet.Packet {
	w := packet.NewWriter()
	w.WriteString(text)
	return w.CreatePacket(packet.ChatReceive)
}

func parseChatReceive(p packet.Packet) (string, error) {
	return packet.NewReader(p).ReadString()
}
