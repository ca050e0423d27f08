package guardian

// ConnState represents the manager's current relationship to the guardian
// service. It is the single source of truth for deciding whether remote
// calls are safe to issue.
type ConnState string

const (
	StateDisconnected  ConnState = "disconnected"
	StateConnecting    ConnState = "connecting"
	StateConnected     ConnState = "connected"
	StateBindFailed    ConnState = "bind_failed"
	StateBindingDied   ConnState = "binding_died"
	StateNullBinding   ConnState = "null_binding"
	StateSecurityError ConnState = "security_error"
	StateNotInstalled  ConnState = "not_installed"
)
