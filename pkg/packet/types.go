package packet

// Type is the 4-byte tag carried in every frame header. The enumeration is
// closed: tags the decoder does not recognize map to NotResolved instead of
// failing the frame, so newer clients can speak through older relays.
type Type int32

const (
	// NotResolved is the sentinel for unknown wire tags. It is never written.
	NotResolved Type = -1

	EmptyPackage Type = 0

	// Game traffic.
	Tick               Type = 10
	GameCommandReceive Type = 20
	SyncCheck          Type = 30
	Sync               Type = 35

	// Server <-> client.
	ServerInfo         Type = 106
	HeartBeat          Type = 108
	HeartBeatResponse  Type = 109
	RegisterPlayer     Type = 110
	Disconnect         Type = 111
	AcceptStartGame    Type = 112
	PasswdError        Type = 113
	TeamList           Type = 115
	StartGame          Type = 120
	ReturnToBattleroom Type = 122
	ChatReceive        Type = 140
	Chat               Type = 141
	Kick               Type = 150

	// Relay handshake and control.
	Relay117                      Type = 151
	Relay118117Return             Type = 152
	RelayPow                      Type = 153
	RelayPowReceive               Type = 154
	PreregisterInfoReceive        Type = 160
	PreregisterInfo               Type = 161
	RelayVersionInfo              Type = 163
	RelayBecomeServer             Type = 170
	ForwardClientAdd              Type = 172
	ForwardClientRemove           Type = 173
	PacketForwardClientFrom       Type = 174
	PacketForwardClientTo         Type = 175
	PacketForwardClientToRepeated Type = 176
	PacketReconnectTo             Type = 178
)

var knownTypes = map[int32]Type{}

func init() {
	for _, t := range []Type{
		EmptyPackage, Tick, GameCommandReceive, SyncCheck, Sync,
		ServerInfo, HeartBeat, HeartBeatResponse, RegisterPlayer, Disconnect,
		AcceptStartGame, PasswdError, TeamList, StartGame, ReturnToBattleroom,
		ChatReceive, Chat, Kick,
		Relay117, Relay118117Return, RelayPow, RelayPowReceive,
		PreregisterInfoReceive, PreregisterInfo, RelayVersionInfo,
		RelayBecomeServer, ForwardClientAdd, ForwardClientRemove,
		PacketForwardClientFrom, PacketForwardClientTo,
		PacketForwardClientToRepeated, PacketReconnectTo,
	} {
		knownTypes[int32(t)] = t
	}
}

// TypeFromInt maps a raw wire tag to its Type, or NotResolved.
func TypeFromInt(tag int32) Type {
	if t, has := knownTypes[tag]; has {
		return t
	}
	return NotResolved
}

func (t Type) String() string {
	switch t {
	case NotResolved:
		return "NOT_RESOLVED"
	case EmptyPackage:
		return "EMPTY_PACKAGE"
	case Tick:
		return "TICK"
	case GameCommandReceive:
		return "GAMECOMMAND_RECEIVE"
	case SyncCheck:
		return "SYNC_CHECK"
	case Sync:
		return "SYNC"
	case ServerInfo:
		return "SERVER_INFO"
	case HeartBeat:
		return "HEART_BEAT"
	case HeartBeatResponse:
		return "HEART_BEAT_RESPONSE"
	case RegisterPlayer:
		return "REGISTER_PLAYER"
	case Disconnect:
		return "DISCONNECT"
	case AcceptStartGame:
		return "ACCEPT_START_GAME"
	case PasswdError:
		return "PASSWD_ERROR"
	case TeamList:
		return "TEAM_LIST"
	case StartGame:
		return "START_GAME"
	case ReturnToBattleroom:
		return "RETURN_TO_BATTLEROOM"
	case ChatReceive:
		return "CHAT_RECEIVE"
	case Chat:
		return "CHAT"
	case Kick:
		return "KICK"
	case Relay117:
		return "RELAY_117"
	case Relay118117Return:
		return "RELAY_118_117_RETURN"
	case RelayPow:
		return "RELAY_POW"
	case RelayPowReceive:
		return "RELAY_POW_RECEIVE"
	case PreregisterInfoReceive:
		return "PREREGISTER_INFO_RECEIVE"
	case PreregisterInfo:
		return "PREREGISTER_INFO"
	case RelayVersionInfo:
		return "RELAY_VERSION_INFO"
	case RelayBecomeServer:
		return "RELAY_BECOME_SERVER"
	case ForwardClientAdd:
		return "FORWARD_CLIENT_ADD"
	case ForwardClientRemove:
		return "FORWARD_CLIENT_REMOVE"
	case PacketForwardClientFrom:
		return "PACKET_FORWARD_CLIENT_FROM"
	case PacketForwardClientTo:
		return "PACKET_FORWARD_CLIENT_TO"
	case PacketForwardClientToRepeated:
		return "PACKET_FORWARD_CLIENT_TO_REPEATED"
	case PacketReconnectTo:
		return "PACKET_RECONNECT_TO"
	}
	return "UNKNOWN"
}
