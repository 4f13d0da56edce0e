package packet

// Builders for the frames the hub itself originates. Formats mirror what the
// official client parses; the chat and team-list payloads carry their
// structured values inside a gzip section.

// ChatMessage is the decoded form of a Chat frame.
type ChatMessage struct {
	Text   string
	Sender string
	Team   int32
}

// BuildChat builds a Chat frame addressed from sender to everyone on team.
func BuildChat(text, sender string, team int32) (Packet, error) {
	inner := NewWriter()
	inner.WriteString(text)
	inner.WriteByte(3)
	inner.WriteIsString(sender)
	inner.WriteInt32(team)
	inner.WriteInt32(team)

	w := NewWriter()
	if err := w.WriteGzip(inner.Bytes()); err != nil {
		return Packet{}, err
	}
	return w.CreatePacket(Chat), nil
}

// BuildSystemChat builds a Chat frame tagged as system origin.
func BuildSystemChat(text string) (Packet, error) {
	return BuildChat(text, "RELAY-CN", 5)
}

// ParseChat unwraps a Chat frame built by BuildChat.
func ParseChat(p Packet) (ChatMessage, error) {
	inner, err := NewReader(p).ReadGzip()
	if err != nil {
		return ChatMessage{}, err
	}
	r := NewBytesReader(inner)
	msg := ChatMessage{}
	if msg.Text, err = r.ReadString(); err != nil {
		return ChatMessage{}, err
	}
	if err = r.Skip(1); err != nil {
		return ChatMessage{}, err
	}
	if msg.Sender, err = r.ReadIsString(); err != nil {
		return ChatMessage{}, err
	}
	if msg.Team, err = r.ReadInt32(); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// BuildKick builds a Kick frame carrying a human-readable reason.
func BuildKick(reason string) Packet {
	w := NewWriter()
	w.WriteString(reason)
	return w.CreatePacket(Kick)
}

// ParseKick reads the reason string back out of a Kick frame.
func ParseKick(p Packet) (string, error) {
	return NewReader(p).ReadString()
}

// BuildPong answers a HeartBeat frame, echoing the client's timestamp so it
// can measure round-trip time.
func BuildPong(heartBeat Packet) (Packet, error) {
	r := NewReader(heartBeat)
	ts, err := r.ReadInt64()
	if err != nil {
		return Packet{}, err
	}
	w := NewWriter()
	w.WriteInt64(ts)
	w.WriteByte(1)
	w.WriteByte(60)
	return w.CreatePacket(HeartBeatResponse), nil
}

// BuildTeamList builds the roster broadcast. The per-slot section is
// gzip-wrapped; slots without a player carry a presence flag of false.
type TeamSlot struct {
	Position int32
	Name     string
	Team     int32
	IsAI     bool
}

func BuildTeamList(maxPlayers int32, slots []TeamSlot) (Packet, error) {
	inner := NewWriter()
	inner.WriteInt32(maxPlayers)
	byPos := make(map[int32]TeamSlot, len(slots))
	for _, s := range slots {
		byPos[s.Position] = s
	}
	for i := int32(0); i < maxPlayers; i++ {
		s, has := byPos[i]
		inner.WriteBool(has)
		if !has {
			continue
		}
		inner.WriteString(s.Name)
		inner.WriteInt32(s.Team)
		inner.WriteBool(s.IsAI)
	}

	w := NewWriter()
	if err := w.WriteGzip(inner.Bytes()); err != nil {
		return Packet{}, err
	}
	return w.CreatePacket(TeamList), nil
}
