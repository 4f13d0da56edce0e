package game

import (
	"sync/atomic"

	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"go.uber.org/zap"
)

// Dispatch feeds one direct-server connection's traffic into an Adapter.
// Tick packets advance the shared clock; game commands are applied at the
// clock's current value. Unlike the relay path there is no handshake here;
// a direct server trusts its own listener.
type Dispatch struct {
	adapter   Adapter
	agreement *connection.Agreement
	tick      *atomic.Int64
	log       *zap.Logger
}

// SharedClock is the tick counter served to every Dispatch of one game.
type SharedClock struct {
	tick atomic.Int64
}

func (c *SharedClock) Current() int64 { return c.tick.Load() }

// NewDispatch builds the per-connection processor. All connections of one
// game share the same clock.
func NewDispatch(adapter Adapter, clock *SharedClock, a *connection.Agreement) *Dispatch {
	return &Dispatch{
		adapter:   adapter,
		agreement: a,
		tick:      &clock.tick,
		log:       a.Logger().With(zap.String("dispatch", "direct")),
	}
}

func (d *Dispatch) ProcessPacket(p packet.Packet) {
	switch p.Type {
	case packet.Tick:
		r := packet.NewReader(p)
		t, err := r.ReadInt32()
		if err != nil {
			d.log.Warn("Malformed tick packet", zap.Error(err))
			return
		}
		d.tick.Store(int64(t))

	case packet.GameCommandReceive:
		if err := d.adapter.ApplyCommand(d.tick.Load(), p.Bytes); err != nil {
			d.log.Warn("Command rejected", zap.Error(err))
		}

	case packet.HeartBeat:
		pong, err := packet.BuildPong(p)
		if err != nil {
			d.log.Warn("Malformed heartbeat", zap.Error(err))
			return
		}
		if err := d.agreement.Send(pong); err != nil {
			d.log.Debug("Pong dropped", zap.Error(err))
		}

	case packet.Disconnect:
		d.agreement.Close(nil)

	default:
		d.log.Debug("Ignoring packet on direct path", zap.String("type", p.Type.String()))
	}
}
