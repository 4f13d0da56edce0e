package relay

// PermissionStatus is the per-connection handshake ladder. It only moves
// forward: a connection that reached PlayerPermission can never fall back to
// the handshake states without a full reconnect (a new connection instance).
// HostPermission is assigned explicitly to the one connection that registers
// as the room's host.
type PermissionStatus int

const (
	InitialConnection PermissionStatus = iota
	GetPlayerInfo
	WaitCertified
	CertifiedEnd
	PlayerPermission
	HostPermission
)

func (s PermissionStatus) String() string {
	switch s {
	case InitialConnection:
		return "InitialConnection"
	case GetPlayerInfo:
		return "GetPlayerInfo"
	case WaitCertified:
		return "WaitCertified"
	case CertifiedEnd:
		return "CertifiedEnd"
	case PlayerPermission:
		return "PlayerPermission"
	case HostPermission:
		return "HostPermission"
	}
	return "Unknown"
}

// Certified reports whether the connection may carry normal traffic.
func (s PermissionStatus) Certified() bool {
	return s >= PlayerPermission
}
