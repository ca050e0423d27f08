package guardian

import (
	"context"
	"errors"
)

var (
	// ErrNotInstalled is returned by Bind when the guardian app is not
	// present on this machine. No bind attempt is made.
	ErrNotInstalled = errors.New("guardian app is not installed")

	// ErrBindRefused is returned by a Binder when the bus refuses the bind
	// request outright.
	ErrBindRefused = errors.New("bind request refused")

	// ErrPermission is returned by a Binder when the bind request is denied
	// by bus policy.
	ErrPermission = errors.New("bind request denied by bus policy")
)

// Endpoint identifies the guardian app's control service on the bus.
type Endpoint struct {
	Name string // Well-known bus name, e.g. "org.squeakbox.Guardian1"
	Path string // Object path of the control service
}

// PresenceChecker reports whether the guardian app is available on this
// machine and where its control service lives. The manager consults it
// before every bind attempt; it never performs bus queries itself.
type PresenceChecker interface {
	Installed() bool
	Endpoint() Endpoint
}

// Binder performs the actual cross-process binding. Bind is asynchronous:
// a nil return means the attempt is in flight, with the outcome delivered
// later through the BindEvents sink. Bind returns ErrBindRefused or
// ErrPermission when the bus rejects the request synchronously.
type Binder interface {
	Bind(ep Endpoint, events BindEvents) error
	Unbind() error
}

// BindEvents receives asynchronous completion signals from a Binder. The
// Manager is the only implementation; events arrive on the binder's own
// goroutine.
type BindEvents interface {
	// Connected delivers the live remote handle.
	Connected(svc RemoteService)
	// Disconnected signals that the remote went away but the binding
	// remains. The bus may re-fire Connected later.
	Disconnected()
	// BindingDied signals that the binding itself is no longer valid.
	BindingDied()
	// NullBinding signals that the remote declined to return a usable
	// channel.
	NullBinding()
}

// RemoteService is the live handle to the guardian app's control service.
// It is valid only while the manager reports connected; callers must not
// cache it across invocations.
type RemoteService interface {
	CurrentPolicy(ctx context.Context) (Policy, error)
	ReportBlock(ctx context.Context, itemID, reason string) error
	RegisterListener(l Listener) error
	UnregisterListener(l Listener) error
}

// Listener is the callback contract the guardian app pushes events through.
// The manager owns its registration lifecycle, not its dispatch.
type Listener interface {
	// PolicyChanged is invoked when the guardian app publishes a new policy.
	PolicyChanged(p Policy)
	// SessionRevoked is invoked when a parent halts playback immediately.
	SessionRevoked(reason string)
}
