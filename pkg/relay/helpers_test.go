package relay

import (
	"strings"
	"testing"
	"time"

	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	"github.com/sessamekesh/rts-relay-hub/pkg/pow"
	"go.uber.org/zap"
)

const testClientVersion = 151

// testClient is one simulated game client: a relay state machine over a
// loopback transport whose outbound packets land on lb.Outgoing.
type testClient struct {
	conn *Conn
	lb   *connection.Loopback
}

func newTestClient(reg *Registry) *testClient {
	lb := connection.NewLoopback(64)
	a := connection.NewAgreement(lb, zap.NewNop())
	return &testClient{conn: NewConn(a, reg, NewCommandHandler()), lb: lb}
}

// expect reads from the client's mailbox until a packet of the wanted type
// arrives, failing the test after a timeout.
func (c *testClient) expect(t *testing.T, want packet.Type) packet.Packet {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-c.lb.Outgoing:
			if p.Type == want {
				return p
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v", want)
			return packet.Packet{}
		}
	}
}

// expectNone asserts no packet of the given type arrives within 150ms.
func (c *testClient) expectNone(t *testing.T, unwanted packet.Type) {
	t.Helper()
	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case p := <-c.lb.Outgoing:
			if p.Type == unwanted {
				t.Fatalf("received unwanted %v", unwanted)
			}
		case <-deadline:
			return
		}
	}
}

// expectSystemChat reads chat frames until one whose text contains fragment
// arrives.
func (c *testClient) expectSystemChat(t *testing.T, fragment string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-c.lb.Outgoing:
			if p.Type != packet.Chat {
				continue
			}
			msg, err := packet.ParseChat(p)
			if err != nil {
				t.Fatalf("ParseChat: %v", err)
			}
			if strings.Contains(msg.Text, fragment) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for chat containing %q", fragment)
		}
	}
}

// handshake drives the client through the full certification exchange. For
// an empty roomID the client ends as a room host, otherwise as a guest of
// the named room.
func (c *testClient) handshake(t *testing.T, name, uuidHex, roomID string) {
	t.Helper()

	c.conn.ProcessPacket(BuildPreregisterHello(testClientVersion, roomID))
	if got := c.conn.Permission(); got != GetPlayerInfo {
		t.Fatalf("after hello: permission = %v, want GetPlayerInfo", got)
	}

	c.conn.ProcessPacket(BuildRegisterPlayer(name, uuidHex, testClientVersion))
	if got := c.conn.Permission(); got != WaitCertified {
		t.Fatalf("after register: permission = %v, want WaitCertified", got)
	}

	challenge := c.conn.challenge
	if challenge == nil {
		t.Fatal("no proof-of-work challenge issued")
	}
	c.conn.ProcessPacket(pow.BuildResponsePacket(challenge.ResultInt, challenge.Mode, challenge.Solve()))
}

// newHost creates a registry-backed host with a fresh public room.
func newHost(t *testing.T, reg *Registry, name string) *testClient {
	t.Helper()
	host := newTestClient(reg)
	host.handshake(t, name, name+"-uuid", "")
	if got := host.conn.Permission(); got != HostPermission {
		t.Fatalf("host permission = %v, want HostPermission", got)
	}
	if host.conn.Room() == nil {
		t.Fatal("host has no room")
	}
	return host
}

// newGuest joins the host's room as a certified player.
func newGuest(t *testing.T, reg *Registry, host *testClient, name string) *testClient {
	t.Helper()
	guest := newTestClient(reg)
	guest.handshake(t, name, name+"-uuid", host.conn.Room().ID)
	if got := guest.conn.Permission(); got != PlayerPermission {
		t.Fatalf("guest %s permission = %v, want PlayerPermission", name, got)
	}
	return guest
}
