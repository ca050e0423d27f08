// Package guardian manages the connection to the guardian (parent/family)
// app's control service. The guardian app is installed separately; when it
// is present, squeakbox binds to its bus service to receive parental policy
// pushes and to report playback events back. When it is absent, or the
// connection is in any failure state, parental controls are simply
// unavailable and playback continues unrestricted.
package guardian

import (
	"log/slog"
	"sync"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Presence PresenceChecker
	Binder   Binder
	Logger   *slog.Logger // Defaults to slog.Default()
}

// Manager owns the lifecycle of the binding to the guardian service: it
// tracks connection state, forwards the caller-supplied Listener to the
// remote side, exposes the live remote handle, and rebinds automatically
// when the binding dies.
//
// Bind and Unbind are expected to be driven by a single owner (the daemon
// lifecycle); completion events arrive on the binder's goroutine, so the
// mutable state is guarded by a mutex.
type Manager struct {
	presence PresenceChecker
	binder   Binder
	logger   *slog.Logger

	mu       sync.Mutex
	state    ConnState
	bound    bool          // OS-level binding request currently held
	svc      RemoteService // Live remote handle, nil unless connected
	listener Listener
}

// NewManager creates a connection manager. It performs no bus activity
// until Bind is called.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		presence: cfg.Presence,
		binder:   cfg.Binder,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// Bind attempts to bind to the guardian service. It is idempotent: if a
// binding is already held (connected or in flight), it returns nil without
// issuing a second bind request. Binding is asynchronous - a nil return
// means the attempt is in flight, and the resulting state arrives later
// via the binder's completion events.
func (m *Manager) Bind() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.presence.Installed() {
		m.state = StateNotInstalled
		m.logger.Info("Guardian app not installed, parental controls unavailable")
		return ErrNotInstalled
	}

	if m.bound {
		return nil
	}

	ep := m.presence.Endpoint()
	m.state = StateConnecting
	m.logger.Info("Binding to guardian service", "name", ep.Name)

	if err := m.binder.Bind(ep, (*bindSink)(m)); err != nil {
		switch err {
		case ErrPermission:
			m.state = StateSecurityError
		default:
			m.state = StateBindFailed
		}
		m.logger.Warn("Guardian bind request failed", "name", ep.Name, "error", err)
		return err
	}

	m.bound = true
	return nil
}

// Unbind releases the binding. If a listener is registered and the service
// is live, it is unregistered from the remote first, best-effort. The
// manager always ends in StateDisconnected, even when the underlying
// release fails or no binding was held.
func (m *Manager) Unbind() {
	m.mu.Lock()
	svc := m.svc
	listener := m.listener
	wasBound := m.bound
	m.svc = nil
	m.bound = false
	m.state = StateDisconnected
	m.mu.Unlock()

	if svc != nil && listener != nil {
		if err := svc.UnregisterListener(listener); err != nil {
			m.logger.Warn("Failed to unregister guardian listener", "error", err)
		}
	}

	if wasBound {
		if err := m.binder.Unbind(); err != nil {
			// "not bound" is not an error here; the binding may already
			// be gone.
			m.logger.Debug("Guardian unbind", "error", err)
		}
	}
}

// SetListener replaces the callback object registered with the guardian
// service. If the service is live, the previous listener (if any) is
// unregistered and the new one (if any) registered, each best-effort.
// Otherwise registration is deferred until the next successful connect.
// Passing nil clears the registration.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	old := m.listener
	m.listener = l
	svc := m.svc
	m.mu.Unlock()

	if svc == nil {
		return
	}
	if old != nil {
		if err := svc.UnregisterListener(old); err != nil {
			m.logger.Warn("Failed to unregister previous guardian listener", "error", err)
		}
	}
	if l != nil {
		if err := svc.RegisterListener(l); err != nil {
			m.logger.Warn("Failed to register guardian listener", "error", err)
		}
	}
}

// IsConnected reports whether the remote handle is live and the binding is
// currently held. Both are required: a stale handle without a binding must
// not be reported as connected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.svc != nil && m.bound
}

// IsConnecting reports whether a bind attempt is currently in flight.
func (m *Manager) IsConnecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnecting
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Service returns the live remote handle, or nil when not connected.
// Callers must not cache the handle; it is invalidated on disconnect.
func (m *Manager) Service() RemoteService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bound {
		return nil
	}
	return m.svc
}

// bindSink receives the binder's completion events. It is a separate type
// so the BindEvents methods don't leak into the Manager API.
type bindSink Manager

func (s *bindSink) manager() *Manager { return (*Manager)(s) }

// Connected captures the live remote handle and registers the stored
// listener, if any. The registration action is re-derived from the stored
// reference at this moment rather than assuming SetListener ordering
// relative to the bind.
func (s *bindSink) Connected(svc RemoteService) {
	m := s.manager()

	m.mu.Lock()
	m.svc = svc
	m.state = StateConnected
	listener := m.listener
	m.mu.Unlock()

	m.logger.Info("Connected to guardian service")

	if listener != nil {
		if err := svc.RegisterListener(listener); err != nil {
			m.logger.Warn("Failed to register guardian listener on connect", "error", err)
		}
	}
}

// Disconnected drops the handle but keeps the binding: the bus may restart
// the guardian service and re-fire Connected without our involvement.
func (s *bindSink) Disconnected() {
	m := s.manager()

	m.mu.Lock()
	m.svc = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	m.logger.Warn("Guardian service disconnected, awaiting reconnect")
}

// BindingDied drops the handle, releases the dead binding, and immediately
// attempts one rebind. This is the only failure state with automatic
// recovery; the rest wait for an explicit Bind.
func (s *bindSink) BindingDied() {
	m := s.manager()

	m.mu.Lock()
	m.svc = nil
	m.state = StateBindingDied
	m.mu.Unlock()

	m.logger.Warn("Guardian binding died, rebinding")

	m.Unbind()
	if err := m.Bind(); err != nil {
		m.logger.Warn("Guardian rebind after binding death failed", "error", err)
	}
}

// NullBinding records that the remote declined to return a usable channel.
// The binding request stays held; recovery requires the caller to Unbind
// and Bind again.
func (s *bindSink) NullBinding() {
	m := s.manager()

	m.mu.Lock()
	m.svc = nil
	m.state = StateNullBinding
	m.mu.Unlock()

	m.logger.Warn("Guardian service returned no usable channel")
}
