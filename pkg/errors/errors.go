package errors

import "fmt"

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type OversizedFrame struct {
	DeclaredLength int
	Limit          int
}

func (e *OversizedFrame) Error() string {
	return fmt.Sprintf("Frame declares %d payload bytes, limit is %d", e.DeclaredLength, e.Limit)
}

type HandshakeViolation struct {
	State  string
	Detail string
}

func (e *HandshakeViolation) Error() string {
	return fmt.Sprintf("Handshake violation in state %s: %s", e.State, e.Detail)
}

type RoomFull struct {
	RoomID     string
	MaxPlayers int
}

func (e *RoomFull) Error() string {
	return fmt.Sprintf("Room %s is full (max %d players)", e.RoomID, e.MaxPlayers)
}

type JoinBanned struct {
	RoomID  string
	Subject string
	Reason  string
}

func (e *JoinBanned) Error() string {
	return fmt.Sprintf("Subject %s refused from room %s: %s", e.Subject, e.RoomID, e.Reason)
}

type NameCollision struct {
	CollisionContext string
	Name             string
}

func (e *NameCollision) Error() string {
	return fmt.Sprintf("Name collision for name '%s' in context '%s'", e.Name, e.CollisionContext)
}

type PortBind struct {
	Port       int
	Underlying error
}

func (e *PortBind) Error() string {
	return fmt.Sprintf("Failed to bind port %d: %v", e.Port, e.Underlying)
}

func (e *PortBind) Unwrap() error {
	return e.Underlying
}
