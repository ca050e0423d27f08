package guardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	// DefaultBusName is the well-known name the guardian app claims on the
	// session bus.
	DefaultBusName = "org.squeakbox.Guardian1"
	// DefaultObjectPath is the object path of the guardian control service.
	DefaultObjectPath = "/org/squeakbox/Guardian1"

	guardianInterface = "org.squeakbox.Guardian1"
	listenerPath      = "/org/squeakbox/Listener1"
	listenerInterface = "org.squeakbox.Listener1"

	dbusInterface          = "org.freedesktop.DBus"
	accessDeniedError      = "org.freedesktop.DBus.Error.AccessDenied"
	serviceUnknownError    = "org.freedesktop.DBus.Error.ServiceUnknown"
	defaultNullBindTimeout = 5 * time.Second
)

// errBusUnavailable wraps bus-level failures that are neither permission
// problems nor outright refusals.
var errBusUnavailable = errors.New("session bus unavailable")

// DBusPresence answers "is the guardian app available" by asking the
// session bus whether the guardian name is currently owned or activatable.
// An activatable name means the guardian app is installed even if its
// service is not running right now.
type DBusPresence struct {
	conn *dbus.Conn
	name string
	path string
}

// NewDBusPresence creates a presence checker on the session bus.
func NewDBusPresence(name, path string) (*DBusPresence, error) {
	if name == "" {
		name = DefaultBusName
	}
	if path == "" {
		path = DefaultObjectPath
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	return &DBusPresence{conn: conn, name: name, path: path}, nil
}

// Installed reports whether the guardian name is owned or activatable.
func (p *DBusPresence) Installed() bool {
	var names []string
	if err := p.conn.BusObject().Call(dbusInterface+".ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, n := range names {
		if n == p.name {
			return true
		}
	}
	var activatable []string
	if err := p.conn.BusObject().Call(dbusInterface+".ListActivatableNames", 0).Store(&activatable); err != nil {
		return false
	}
	for _, n := range activatable {
		if n == p.name {
			return true
		}
	}
	return false
}

// Endpoint returns the guardian service endpoint.
func (p *DBusPresence) Endpoint() Endpoint {
	return Endpoint{Name: p.name, Path: p.path}
}

// Close releases the bus connection.
func (p *DBusPresence) Close() error {
	return p.conn.Close()
}

// DBusBinder binds to the guardian service over the session bus. A bind
// issues StartServiceByName (so the bus starts the guardian service if it
// is not running) and then tracks NameOwnerChanged:
//
//   - owner appears            -> Connected with a live handle
//   - owner lost, name remains -> Disconnected (bus may restart it)
//   - bus connection torn down -> BindingDied
//   - started but never owned  -> NullBinding
type DBusBinder struct {
	logger *slog.Logger

	// connect is swappable for tests.
	connect func() (*dbus.Conn, error)

	binderM sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}
	bound   bool
}

// NewDBusBinder creates a binder that dials the session bus on each bind.
func NewDBusBinder(logger *slog.Logger) *DBusBinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBusBinder{
		logger:  logger,
		connect: func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
	}
}

// Bind issues the bind request and starts the completion watch. Outcomes
// are delivered on a dedicated goroutine via events.
func (b *DBusBinder) Bind(ep Endpoint, events BindEvents) error {
	b.binderM.Lock()
	defer b.binderM.Unlock()

	if b.bound {
		return nil
	}

	conn, err := b.connect()
	if err != nil {
		return fmt.Errorf("%w: %v", errBusUnavailable, err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchSender(dbusInterface),
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, ep.Name),
	); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", errBusUnavailable, err)
	}

	// Ask the bus to start the guardian service if it is not running.
	var startReply uint32
	call := conn.BusObject().Call(dbusInterface+".StartServiceByName", 0, ep.Name, uint32(0))
	if err := call.Store(&startReply); err != nil {
		conn.Close()
		var dbusErr dbus.Error
		if errors.As(err, &dbusErr) {
			switch dbusErr.Name {
			case accessDeniedError:
				return ErrPermission
			case serviceUnknownError:
				return ErrBindRefused
			}
		}
		return fmt.Errorf("%w: %v", ErrBindRefused, err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	b.conn = conn
	b.signals = signals
	b.done = make(chan struct{})
	b.bound = true

	go b.watch(conn, ep, signals, b.done, events)
	return nil
}

// watch delivers completion events until the binding is released or the
// bus connection dies.
func (b *DBusBinder) watch(conn *dbus.Conn, ep Endpoint, signals chan *dbus.Signal, done chan struct{}, events BindEvents) {
	// The service may already be running; check once before waiting on
	// NameOwnerChanged.
	var owner string
	err := conn.BusObject().Call(dbusInterface+".GetNameOwner", 0, ep.Name).Store(&owner)
	connected := err == nil && owner != ""
	if connected {
		b.logger.Debug("Guardian service already owned", "name", ep.Name, "owner", owner)
		events.Connected(newDBusService(conn, ep))
	}

	var nullTimer <-chan time.Time
	if !connected {
		nullTimer = time.After(defaultNullBindTimeout)
	}

	for {
		select {
		case <-done:
			return

		case <-nullTimer:
			nullTimer = nil
			if !connected {
				b.logger.Warn("Guardian service started but never claimed its name", "name", ep.Name)
				events.NullBinding()
			}

		case sig, ok := <-signals:
			if !ok {
				// The bus connection itself is gone - the strongest
				// failure signal.
				b.logger.Warn("Session bus connection lost", "name", ep.Name)
				events.BindingDied()
				return
			}
			if sig.Name != dbusInterface+".NameOwnerChanged" || len(sig.Body) < 3 {
				continue
			}
			name, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if name != ep.Name {
				continue
			}
			if newOwner != "" {
				b.logger.Debug("Guardian service came up", "name", ep.Name, "owner", newOwner)
				connected = true
				nullTimer = nil
				events.Connected(newDBusService(conn, ep))
			} else {
				b.logger.Debug("Guardian service went away", "name", ep.Name)
				connected = false
				events.Disconnected()
			}
		}
	}
}

// Unbind releases the binding. It tolerates an already-released binding.
func (b *DBusBinder) Unbind() error {
	b.binderM.Lock()
	defer b.binderM.Unlock()

	if !b.bound {
		return nil
	}
	b.bound = false

	close(b.done)
	b.conn.RemoveSignal(b.signals)
	err := b.conn.Close()
	b.conn = nil
	b.signals = nil
	return err
}

// dbusService is the RemoteService over the guardian's exported object.
type dbusService struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func newDBusService(conn *dbus.Conn, ep Endpoint) *dbusService {
	return &dbusService{
		conn: conn,
		obj:  conn.Object(ep.Name, dbus.ObjectPath(ep.Path)),
	}
}

// CurrentPolicy fetches the active policy from the guardian app.
func (s *dbusService) CurrentPolicy(ctx context.Context) (Policy, error) {
	var (
		revision     int64
		limitMinutes int32
		bedtimeStart string
		bedtimeEnd   string
		blocked      []string
		issuedUnix   int64
	)
	call := s.obj.CallWithContext(ctx, guardianInterface+".CurrentPolicy", 0)
	if err := call.Store(&revision, &limitMinutes, &bedtimeStart, &bedtimeEnd, &blocked, &issuedUnix); err != nil {
		return Policy{}, fmt.Errorf("fetch policy: %w", err)
	}
	return Policy{
		Revision:     revision,
		DailyLimit:   time.Duration(limitMinutes) * time.Minute,
		BedtimeStart: bedtimeStart,
		BedtimeEnd:   bedtimeEnd,
		BlockedItems: blocked,
		IssuedAt:     time.Unix(issuedUnix, 0),
	}, nil
}

// ReportBlock tells the guardian app that playback of an item was refused.
func (s *dbusService) ReportBlock(ctx context.Context, itemID, reason string) error {
	return s.obj.CallWithContext(ctx, guardianInterface+".ReportBlock", 0, itemID, reason).Err
}

// RegisterListener exports the listener on our side of the bus and hands
// its object path to the guardian app.
func (s *dbusService) RegisterListener(l Listener) error {
	if err := s.conn.Export(&listenerExport{l: l}, listenerPath, listenerInterface); err != nil {
		return fmt.Errorf("export listener: %w", err)
	}
	return s.obj.Call(guardianInterface+".RegisterListener", 0, dbus.ObjectPath(listenerPath)).Err
}

// UnregisterListener withdraws the registration and unexports the object.
func (s *dbusService) UnregisterListener(l Listener) error {
	err := s.obj.Call(guardianInterface+".UnregisterListener", 0, dbus.ObjectPath(listenerPath)).Err
	if exportErr := s.conn.Export(nil, listenerPath, listenerInterface); err == nil {
		err = exportErr
	}
	return err
}

// listenerExport adapts a Listener to the bus method signatures the
// guardian app invokes.
type listenerExport struct {
	l Listener
}

func (e *listenerExport) PolicyChanged(revision int64, limitMinutes int32, bedtimeStart, bedtimeEnd string, blocked []string, issuedUnix int64) *dbus.Error {
	e.l.PolicyChanged(Policy{
		Revision:     revision,
		DailyLimit:   time.Duration(limitMinutes) * time.Minute,
		BedtimeStart: bedtimeStart,
		BedtimeEnd:   bedtimeEnd,
		BlockedItems: blocked,
		IssuedAt:     time.Unix(issuedUnix, 0),
	})
	return nil
}

func (e *listenerExport) SessionRevoked(reason string) *dbus.Error {
	e.l.SessionRevoked(reason)
	return nil
}
