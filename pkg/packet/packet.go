// Package packet implements the length-prefixed binary wire protocol spoken
// between game clients and the relay hub: the frame codec, the data-stream
// reader/writer used inside payloads, and builders for the packets the hub
// originates.
package packet

import "fmt"

// MaxPacketSize is the largest payload the codec will accept or emit. A
// frame declaring more than this is a protocol violation and fatal to the
// connection that sent it.
const MaxPacketSize = 50000000

// HeaderSize is the fixed frame header length: int32 payload length plus
// int32 type tag, both big-endian.
const HeaderSize = 8

// Packet is one decoded frame. Immutable once constructed; Bytes must not be
// mutated after a Packet is built around it.
type Packet struct {
	Type  Type
	Bytes []byte
}

// New builds a Packet over the given payload.
func New(t Type, payload []byte) Packet {
	return Packet{Type: t, Bytes: payload}
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{type=%s len=%d}", p.Type, len(p.Bytes))
}
