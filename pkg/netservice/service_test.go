package netservice

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"go.uber.org/zap"
)

// capture collects every packet one connection's processor sees.
type capture struct {
	mu      sync.Mutex
	packets []packet.Packet
}

func (c *capture) ProcessPacket(p packet.Packet) {
	c.mu.Lock()
	c.packets = append(c.packets, p)
	c.mu.Unlock()
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func (c *capture) waitFor(t *testing.T, n int) []packet.Packet {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			c.mu.Lock()
			defer c.mu.Unlock()
			out := make([]packet.Packet, len(c.packets))
			copy(out, c.packets)
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d packets (have %d)", n, c.count())
	return nil
}

// startCaptureService opens a service on an ephemeral port and returns the
// per-connection captures in accept order.
func startCaptureService(t *testing.T, cfg Config) (*Service, *ServiceRegistry, func() *capture) {
	t.Helper()
	registry := NewServiceRegistry()

	var mu sync.Mutex
	var captures []*capture
	factory := func(a *connection.Agreement) Processor {
		c := &capture{}
		mu.Lock()
		captures = append(captures, c)
		mu.Unlock()
		return c
	}

	svc := New(RelayProtocol, factory, cfg, registry, zap.NewNop())
	if err := svc.OpenPort(0); err != nil {
		t.Fatalf("OpenPort: %v", err)
	}
	t.Cleanup(svc.Stop)

	last := func() *capture {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := len(captures)
			mu.Unlock()
			if n > 0 {
				mu.Lock()
				defer mu.Unlock()
				return captures[n-1]
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatal("no connection accepted")
		return nil
	}
	return svc, registry, last
}

func dialService(t *testing.T, svc *Service) net.Conn {
	t.Helper()
	addrs := svc.Addrs()
	if len(addrs) == 0 {
		t.Fatal("service has no bound address")
	}
	conn, err := net.Dial("tcp", addrs[0])
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestServiceRegistersOnBindAndDeregistersOnStop(t *testing.T) {
	svc, registry, _ := startCaptureService(t, Config{})
	if registry.Len() != 1 {
		t.Fatalf("registry Len = %d, want 1", registry.Len())
	}
	if len(svc.ID) != 10 {
		t.Errorf("service id length = %d, want 10", len(svc.ID))
	}
	if _, has := registry.Get(svc.ID); !has {
		t.Error("service not retrievable by id")
	}

	svc.Stop()
	if registry.Len() != 0 {
		t.Errorf("registry Len = %d after Stop, want 0", registry.Len())
	}
}

func TestServiceFeedsFramesToProcessor(t *testing.T) {
	svc, _, last := startCaptureService(t, Config{})
	conn := dialService(t, svc)
	defer conn.Close()

	for i := byte(0); i < 3; i++ {
		if err := packet.Encode(conn, packet.New(packet.ChatReceive, []byte{i})); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}

	got := last().waitFor(t, 3)
	for i, p := range got {
		if p.Type != packet.ChatReceive || p.Bytes[0] != byte(i) {
			t.Errorf("packet %d = %v %v", i, p.Type, p.Bytes)
		}
	}
}

func TestServiceCountsConnections(t *testing.T) {
	svc, _, last := startCaptureService(t, Config{})
	conn := dialService(t, svc)
	defer conn.Close()
	last()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.ConnectCount() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := svc.ConnectCount(); got != 1 {
		t.Fatalf("ConnectCount = %d, want 1", got)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.ConnectCount() != 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := svc.ConnectCount(); got != 0 {
		t.Fatalf("ConnectCount = %d after close, want 0", got)
	}
}

func TestServiceDisconnectsOnOversizedFrame(t *testing.T) {
	svc, _, last := startCaptureService(t, Config{})
	conn := dialService(t, svc)
	defer conn.Close()
	last()

	// Hand-rolled header declaring more than the limit.
	header := []byte{0x02, 0xfa, 0xf0, 0x81, 0x00, 0x00, 0x00, 0x8c}
	if _, err := conn.Write(header); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection survived an oversized frame")
	}
}

func TestServiceIdleTimeout(t *testing.T) {
	svc, _, last := startCaptureService(t, Config{IdleTimeout: 100 * time.Millisecond})
	conn := dialService(t, svc)
	defer conn.Close()
	last()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("idle connection survived the timeout")
	}
}

func TestPortBindCollision(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	registry := NewServiceRegistry()
	svc := New(RelayProtocol, func(a *connection.Agreement) Processor {
		return &capture{}
	}, Config{}, registry, zap.NewNop())

	if err := svc.OpenPort(port); err == nil {
		t.Fatal("OpenPort succeeded on an occupied port")
	}
	if registry.Len() != 0 {
		t.Errorf("failed bind still registered the service (Len = %d)", registry.Len())
	}
}

func TestConfigIdleTimeoutDefault(t *testing.T) {
	if got := (Config{}).idleTimeout(); got != defaultIdleTimeout {
		t.Errorf("default idle timeout = %v", got)
	}
	if got := (Config{IdleTimeout: time.Minute}).idleTimeout(); got != time.Minute {
		t.Errorf("explicit idle timeout = %v", got)
	}
}
