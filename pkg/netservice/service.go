// Package netservice accepts transport connections and binds each one to a
// freshly constructed protocol state machine. One service owns one primary
// listening port plus an optional contiguous extra range.
package netservice

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessamekesh/rts-relay-hub/internal/metrics"
	"github.com/sessamekesh/rts-relay-hub/pkg/connection"
	hub "github.com/sessamekesh/rts-relay-hub/pkg/errors"
	"github.com/sessamekesh/rts-relay-hub/pkg/packet"
	utils "github.com/sessamekesh/rts-relay-hub/pkg/util"
	"go.uber.org/zap"

	pkgerrors "github.com/pkg/errors"
)

// NetType labels which protocol family a service speaks.
type NetType int

const (
	RelayProtocol NetType = iota
	RelayMulticastProtocol
	ServerProtocol
	HttpProtocol
	RemoteControlProtocol
	MixedProtocol
)

func (t NetType) String() string {
	switch t {
	case RelayProtocol:
		return "RelayProtocol"
	case RelayMulticastProtocol:
		return "RelayMulticastProtocol"
	case ServerProtocol:
		return "ServerProtocol"
	case HttpProtocol:
		return "HttpProtocol"
	case RemoteControlProtocol:
		return "RemoteControlProtocol"
	case MixedProtocol:
		return "MixedProtocol"
	}
	return "Unknown"
}

// Processor consumes one connection's packets in receipt order. The relay
// and direct-server state machines both implement it.
type Processor interface {
	ProcessPacket(p packet.Packet)
}

// ProcessorFactory builds the state machine for a freshly accepted
// connection.
type ProcessorFactory func(a *connection.Agreement) Processor

// Config is the plain tuning the service core reads.
type Config struct {
	// IdleTimeout disconnects a connection with no inbound traffic for
	// this long. Zero means the 10 second default.
	IdleTimeout time.Duration
}

const defaultIdleTimeout = 10 * time.Second

func (c Config) idleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return c.IdleTimeout
}

var idGen = utils.CreateRandomStringGenerator(time.Now().UnixNano())

// Service is one listener group bound to one processor factory.
type Service struct {
	ID   string
	Type NetType

	cfg      Config
	factory  ProcessorFactory
	registry *ServiceRegistry
	log      *zap.Logger

	mu        sync.Mutex
	listeners []net.Listener

	connCount atomic.Int64
	stopped   atomic.Bool
	wg        sync.WaitGroup
}

// New builds a service. It does not listen or register itself until
// OpenPort succeeds.
func New(t NetType, factory ProcessorFactory, cfg Config, registry *ServiceRegistry, log *zap.Logger) *Service {
	id := idGen.GetRandomString(10)
	return &Service{
		ID:       id,
		Type:     t,
		cfg:      cfg,
		factory:  factory,
		registry: registry,
		log:      log.With(zap.String("serviceId", id), zap.String("netType", t.String())),
	}
}

// OpenPort binds the primary port and starts accepting.
func (s *Service) OpenPort(port int) error {
	return s.OpenPortRange(port, 0, -1)
}

// OpenPortRange binds the primary port plus the contiguous
// [startPort, endPort] range as extra listeners speaking the same protocol.
// A primary bind collision is a structured error and leaves the service
// unregistered; a failed extra port is logged and skipped.
func (s *Service) OpenPortRange(port, startPort, endPort int) error {
	primary, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return &hub.PortBind{Port: port, Underlying: err}
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, primary)
	s.mu.Unlock()

	for extra := startPort; extra <= endPort; extra++ {
		l, lerr := net.Listen("tcp", ":"+strconv.Itoa(extra))
		if lerr != nil {
			s.log.Warn("Skipping extra listener port", zap.Int("port", extra), zap.Error(lerr))
			continue
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()
	}

	if s.registry != nil {
		s.registry.add(s)
	}

	s.mu.Lock()
	toServe := make([]net.Listener, len(s.listeners))
	copy(toServe, s.listeners)
	s.mu.Unlock()

	for _, l := range toServe {
		s.wg.Add(1)
		go s.acceptLoop(l)
	}

	s.log.Info("Service listening", zap.Int("port", port), zap.Int("listeners", len(toServe)))
	return nil
}

func (s *Service) acceptLoop(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.stopped.Load() {
				return
			}
			s.log.Warn("Accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn is the one worker per accepted connection: it owns the read
// side and feeds the connection's state machine in receipt order.
func (s *Service) handleConn(raw net.Conn) {
	agreement := connection.NewAgreement(connection.NewTCPTransport(raw), s.log)
	processor := s.factory(agreement)

	s.connCount.Add(1)
	metrics.LiveConnections.Inc()
	defer func() {
		s.connCount.Add(-1)
		metrics.LiveConnections.Dec()
	}()

	log := agreement.Logger()
	log.Info("Connection accepted")

	idle := s.cfg.idleTimeout()
	for {
		if err := raw.SetReadDeadline(time.Now().Add(idle)); err != nil {
			agreement.MarkPeerClosed()
			return
		}

		p, err := packet.Decode(raw)
		if err != nil {
			s.closeOnReadError(agreement, log, err)
			return
		}
		processor.ProcessPacket(p)

		if agreement.IsClosed() {
			return
		}
	}
}

func (s *Service) closeOnReadError(agreement *connection.Agreement, log *zap.Logger, err error) {
	var oversized *hub.OversizedFrame
	switch {
	case pkgerrors.As(err, &oversized):
		log.Warn("Oversized frame, forcing disconnect",
			zap.Int("declared", oversized.DeclaredLength),
			zap.Int("limit", oversized.Limit))
		metrics.ForcedDisconnects.Inc()
		agreement.Close(nil)
	case isTimeout(err):
		log.Info("Idle timeout, forcing disconnect")
		metrics.ForcedDisconnects.Inc()
		agreement.Close(nil)
	default:
		log.Debug("Read path closed", zap.Error(err))
		agreement.MarkPeerClosed()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return pkgerrors.As(err, &netErr) && netErr.Timeout()
}

// Addrs lists the bound listener addresses.
func (s *Service) Addrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Addr().String())
	}
	return out
}

// ConnectCount returns the number of live accepted connections.
func (s *Service) ConnectCount() int {
	return int(s.connCount.Load())
}

// Stop closes every bound listener and deregisters. Connections already
// accepted keep running until their own read path ends; in-flight sends are
// never severed.
func (s *Service) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	for _, l := range s.listeners {
		_ = l.Close()
	}
	s.listeners = nil
	s.mu.Unlock()

	s.wg.Wait()
	if s.registry != nil {
		s.registry.remove(s.ID)
	}
	s.log.Info("Service stopped")
}
