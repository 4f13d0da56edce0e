package packet

import (
	"bytes"
	"encoding/binary"
	"io"

	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"

	pkgerrors "github.com/pkg/errors"
)

// Encode writes one frame: [int32 length][int32 type][payload], big-endian.
func Encode(w io.Writer, p Packet) error {
	if len(p.Bytes) > MaxPacketSize {
		return &hub.OversizedFrame{DeclaredLength: len(p.Bytes), Limit: MaxPacketSize}
	}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(p.Bytes)))
	binary.BigEndian.PutUint32(header[4:8], uint32(int32(p.Type)))

	if _, err := w.Write(header[:]); err != nil {
		return pkgerrors.Wrap(err, "write frame header")
	}
	if len(p.Bytes) == 0 {
		return nil
	}
	_, err := w.Write(p.Bytes)
	return pkgerrors.Wrap(err, "write frame payload")
}

// Marshal encodes a frame into a fresh byte slice.
func Marshal(p Packet) ([]byte, error) {
	buf := make([]byte, 0, HeaderSize+len(p.Bytes))
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(p.Bytes)))
	binary.BigEndian.PutUint32(header[4:8], uint32(int32(p.Type)))
	buf = append(buf, header[:]...)
	buf = append(buf, p.Bytes...)
	return buf, nil
}

// Decode reads exactly one frame from r. An unknown type tag yields a packet
// of type NotResolved; a declared length beyond MaxPacketSize is a protocol
// violation and returns an OversizedFrame error before any payload byte is
// read, so a hostile header never triggers a large allocation.
func Decode(r io.Reader) (Packet, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Packet{}, err
	}

	length := int(int32(binary.BigEndian.Uint32(header[0:4])))
	tag := int32(binary.BigEndian.Uint32(header[4:8]))

	if length < 0 || length > MaxPacketSize {
		return Packet{}, &hub.OversizedFrame{DeclaredLength: length, Limit: MaxPacketSize}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Packet{}, pkgerrors.Wrap(err, "read frame payload")
	}

	return Packet{Type: TypeFromInt(tag), Bytes: payload}, nil
}

// Unmarshal decodes one frame held entirely in data. Trailing bytes after
// the declared payload are a protocol violation.
func Unmarshal(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, pkgerrors.Errorf("frame too short: %d bytes", len(data))
	}
	p, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Packet{}, err
	}
	if HeaderSize+len(p.Bytes) != len(data) {
		return Packet{}, pkgerrors.Errorf("frame has %d trailing bytes", len(data)-HeaderSize-len(p.Bytes))
	}
	return p, nil
}
