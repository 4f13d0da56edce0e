package relay

// Player is one roster slot in a relay room. The slot survives its
// connection: a player who drops mid-game keeps the position until the room
// dies or a takeover re-occupies it.
type Player struct {
	// UUID is the registered player identity (hex), stable across
	// reconnects of the same client install.
	UUID string
	Name string

	Position int
	Team     int32
	IsAI     bool

	// conn is nil while the player is disconnected.
	conn *Conn
}

func (p *Player) Connected() bool {
	return p.conn != nil && !p.conn.agreement.IsClosed()
}
