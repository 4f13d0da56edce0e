package pow

import (
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
)

// BuildChallengePacket serializes a challenge into a RelayPow frame. Only
// the parameters the issued mode needs go on the wire.
func BuildChallengePacket(c *Challenge) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(c.ResultInt)
	w.WriteByte(c.Mode)
	switch c.Mode {
	case 0:
		w.WriteInt32(c.InitInt1)
	case 1:
		w.WriteInt32(c.InitInt2)
	case 3, 4:
		w.WriteInt32(c.InitInt1)
		w.WriteInt32(c.InitInt2)
		w.WriteString(c.Outcome)
	case 5, 6:
		w.WriteString(c.FixedInitial)
		w.WriteInt32(c.Off)
		w.WriteInt32(c.MaxIterations)
		w.WriteString(c.Outcome)
	}
	return w.CreatePacket(packet.RelayPow)
}

// ParseChallengePacket reads a RelayPow frame back into a Challenge. Used by
// the loopback client and tests.
func ParseChallengePacket(p packet.Packet) (*Challenge, error) {
	r := packet.NewReader(p)
	c := &Challenge{}
	var err error
	if c.ResultInt, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if c.Mode, err = r.ReadByte(); err != nil {
		return nil, err
	}
	switch c.Mode {
	case 0:
		c.InitInt1, err = r.ReadInt32()
	case 1:
		c.InitInt2, err = r.ReadInt32()
	case 3, 4:
		if c.InitInt1, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.InitInt2, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		c.Outcome, err = r.ReadString()
	case 5, 6:
		if c.FixedInitial, err = r.ReadString(); err != nil {
			return nil, err
		}
		if c.Off, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		if c.MaxIterations, err = r.ReadInt32(); err != nil {
			return nil, err
		}
		c.Outcome, err = r.ReadString()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BuildResponsePacket builds the client's RelayPowReceive answer frame.
func BuildResponsePacket(resultInt int32, mode byte, answer string) packet.Packet {
	w := packet.NewWriter()
	w.WriteInt32(resultInt)
	w.WriteInt32(int32(mode))
	w.WriteString(answer)
	return w.CreatePacket(packet.RelayPowReceive)
}

// Response is a decoded RelayPowReceive frame.
type Response struct {
	ResultInt int32
	Mode      int32
	Answer    string
}

func ParseResponsePacket(p packet.Packet) (Response, error) {
	r := packet.NewReader(p)
	resp := Response{}
	var err error
	if resp.ResultInt, err = r.ReadInt32(); err != nil {
		return Response{}, err
	}
	if resp.Mode, err = r.ReadInt32(); err != nil {
		return Response{}, err
	}
	if resp.Answer, err = r.ReadString(); err != nil {
		return Response{}, err
	}
	return resp, nil
}
