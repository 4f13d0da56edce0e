// Package game decouples the network layer from the simulation behind it.
// Relay rooms never simulate anything; a direct server plugs a real
// simulation in through Adapter.
package game

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// ErrGameNotRunning rejects commands applied before StartServer.
var ErrGameNotRunning = pkgerrors.New("game is not running")

// Adapter is the seam between packet dispatch and a game simulation.
type Adapter interface {
	// StartServer spins up the simulation listening side. Password may be
	// empty for an open game.
	StartServer(port int, password string) error

	// ApplyCommand hands one raw player command to the simulation at the
	// given tick.
	ApplyCommand(tick int64, cmd []byte) error

	IsGameRunning() bool
	CurrentMapName() string
}

// HeadlessAdapter is an Adapter with no simulation behind it. It tracks
// the running flag and retains a bounded tail of applied commands, which is
// enough for dispatch plumbing and for tests to observe traffic.
type HeadlessAdapter struct {
	mu       sync.Mutex
	running  bool
	port     int
	password string
	mapName  string
	commands []AppliedCommand
}

// AppliedCommand is one command as the simulation saw it.
type AppliedCommand struct {
	Tick int64
	Cmd  []byte
}

const commandTailLimit = 1024

func NewHeadlessAdapter(mapName string) *HeadlessAdapter {
	return &HeadlessAdapter{mapName: mapName}
}

func (a *HeadlessAdapter) StartServer(port int, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	a.port = port
	a.password = password
	return nil
}

func (a *HeadlessAdapter) ApplyCommand(tick int64, cmd []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return ErrGameNotRunning
	}
	buf := make([]byte, len(cmd))
	copy(buf, cmd)
	a.commands = append(a.commands, AppliedCommand{Tick: tick, Cmd: buf})
	if len(a.commands) > commandTailLimit {
		a.commands = a.commands[len(a.commands)-commandTailLimit:]
	}
	return nil
}

func (a *HeadlessAdapter) IsGameRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *HeadlessAdapter) CurrentMapName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mapName
}

// Commands returns a copy of the retained command tail.
func (a *HeadlessAdapter) Commands() []AppliedCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AppliedCommand, len(a.commands))
	copy(out, a.commands)
	return out
}
