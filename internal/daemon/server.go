package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/squeakbox/squeakbox/internal/core"
	"github.com/squeakbox/squeakbox/internal/guardian"
	"github.com/squeakbox/squeakbox/internal/keyring"
	"github.com/squeakbox/squeakbox/internal/library"
	"github.com/squeakbox/squeakbox/internal/player"
)

// Daemon runs the media player, the library store and the guardian
// connection, and serves IPC commands over a unix socket.
type Daemon struct {
	mu           sync.Mutex
	listener     net.Listener
	shutdownOnce sync.Once
	logBroadcast *LogBroadcaster // For streaming logs to clients
	store        *library.Store  // Media catalog and history
	player       *player.Player
	session      *Session
	guardianMgr  *guardian.Manager
	presence     *guardian.DBusPresence
	currentWatch string // Active watch session id, empty when idle
	startTime    time.Time
	ctx          context.Context // Context for lifecycle management
	cancelFunc   context.CancelFunc
}

func New() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		logBroadcast: NewLogBroadcaster(core.Config.Daemon.LogHistory),
		startTime:    time.Now(),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// guardianListener forwards guardian callbacks into the session and
// interrupts playback when the new policy forbids it.
type guardianListener struct {
	d *Daemon
}

func (l *guardianListener) PolicyChanged(p guardian.Policy) {
	l.d.session.SetPolicy(p)
	l.d.enforceCurrentPlayback()
}

func (l *guardianListener) SessionRevoked(reason string) {
	l.d.session.Revoke(reason)
	l.d.player.Stop()
	if l.d.store != nil {
		l.d.store.LogGuardianEvent("session_revoked", reason)
	}
}

// Run starts the daemon's main loop.
func (d *Daemon) Run() {
	// Setup custom logger that broadcasts to connected clients
	d.setupLogging()

	// Open the library database
	dbPath := core.GetDatabasePath()
	store, err := library.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open library database", "error", err, "path", dbPath)
	} else {
		d.store = store
		slog.Info("Library database opened", "path", dbPath)

		version := core.FormatVersion(core.Version)
		if err := d.store.LogGuardianEvent("daemon_start", fmt.Sprintf("version: %s, PID: %d", version, os.Getpid())); err != nil {
			slog.Error("Failed to log daemon start", "error", err)
		}
	}

	d.session = NewSession(d.store, slog.Default())
	d.player = player.New(core.Config.Engine.Command, core.Config.Engine.Args, slog.Default())
	d.player.SetExitHandler(d.onPlaybackExit)

	d.setupGuardian()

	// Setup PID and socket files and ensure they are cleaned up on exit.
	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	// Try to create the socket listener
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		// Socket creation failed - this could be due to a stale socket file
		if _, statErr := os.Stat(socketPath); statErr == nil {
			// Socket file exists, try to connect to it to see if daemon is actually running
			conn, dialErr := net.Dial("unix", socketPath)
			if dialErr == nil {
				// Successfully connected, daemon is running
				conn.Close()
				slog.Error("Fatal: Daemon is already running")
				os.Exit(1)
			}
			// Connection failed, socket file is stale - remove it
			slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
			if removeErr := os.Remove(socketPath); removeErr != nil {
				slog.Error(fmt.Sprintf("Fatal: Could not remove stale socket: %v", removeErr))
				os.Exit(1)
			}
			// Try to create listener again
			listener, err = net.Listen("unix", socketPath)
		}
		if err != nil {
			slog.Error(fmt.Sprintf("Fatal: Could not create socket listener: %v", err))
			os.Exit(1)
		}
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	// Keep the session policy fresh while connected
	go d.policyRefreshLoop()

	// Watch config file for changes
	d.watchConfig()

	// Handle signals
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received. Stopping playback.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	}()

	// Accept connections in a loop
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

// setupGuardian wires the D-Bus presence checker, binder and connection
// manager, and binds if the config asks for it.
func (d *Daemon) setupGuardian() {
	presence, err := guardian.NewDBusPresence(core.Config.Guardian.BusName, core.Config.Guardian.ObjectPath)
	if err != nil {
		slog.Warn("Session bus unavailable, guardian features disabled", "error", err)
		d.guardianMgr = nil
		return
	}
	d.presence = presence

	d.guardianMgr = guardian.NewManager(guardian.ManagerConfig{
		Presence: presence,
		Binder:   guardian.NewDBusBinder(slog.Default()),
		Logger:   slog.Default(),
	})
	d.guardianMgr.SetListener(&guardianListener{d: d})

	if core.Config.Guardian.AutoBind {
		if err := d.guardianMgr.Bind(); err != nil {
			slog.Warn("Guardian bind failed at startup", "error", err, "state", d.guardianMgr.State())
		}
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	// Log the command execution (skip VERSION as it's automatic, mask the PIN)
	if command != "VERSION" {
		logArgs := args
		if command == "UNLOCK" && len(args) >= 1 {
			logArgs = []string{"[MASKED]"}
		}

		if len(logArgs) > 0 {
			slog.Info(fmt.Sprintf("Executing command: %s %v", command, logArgs))
		} else {
			slog.Info(fmt.Sprintf("Executing command: %s", command))
		}
	}

	var response Response
	switch command {
	case "PLAY":
		if len(args) > 0 {
			response = d.startPlayback(args[0])
		} else {
			response = errorResponse("PLAY requires an item id")
		}
	case "PAUSE":
		if err := d.player.Pause(); err != nil {
			response = errorResponse("%v", err)
		} else {
			response = infoResponse("Playback paused")
		}
	case "RESUME":
		if err := d.player.Resume(); err != nil {
			response = errorResponse("%v", err)
		} else {
			response = infoResponse("Playback resumed")
		}
	case "PLAYBACK_STOP":
		d.player.Stop()
		response = infoResponse("Playback stopped")
	case "LIBRARY_SCAN":
		response = d.scanLibrary()
	case "LIBRARY_LIST":
		response = d.listLibrary()
	case "HISTORY":
		limit := 20
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		response = d.getHistory(limit)
	case "GUARDIAN_STATUS":
		response = d.getGuardianStatus()
	case "GUARDIAN_BIND":
		response = d.bindGuardian()
	case "GUARDIAN_UNBIND":
		response = d.unbindGuardian()
	case "UNLOCK":
		if len(args) > 0 {
			response = d.unlockWithPIN(args[0])
		} else {
			response = errorResponse("UNLOCK requires a PIN")
		}
	case "STATUS":
		response = d.getStatus()
	case "VERSION":
		response = d.getVersion()
	case "LOGS":
		d.handleLogs(conn)
		return // handleLogs manages the connection lifetime
	case "STOP":
		response = d.stopDaemon()
		conn.Write([]byte(response.ToJSON()))
		go func() {
			// Give the response a moment to flush before exiting
			time.Sleep(100 * time.Millisecond)
			d.shutdown()
			os.Exit(0)
		}()
		return
	default:
		response = errorResponse("Unknown command: %s", command)
	}

	conn.Write([]byte(response.ToJSON()))
}

// startPlayback enforces the policy, starts the engine and opens a
// watch history record.
func (d *Daemon) startPlayback(itemID string) Response {
	if d.store == nil {
		return errorResponse("Library database is not available")
	}

	item, err := d.store.GetItem(itemID)
	if err != nil {
		return errorResponse("Unknown item: %s", itemID)
	}

	if reason, allowed := d.session.CheckPlayback(item.ID); !allowed {
		if err := d.store.LogBlockEvent(item.ID, string(reason)); err != nil {
			slog.Error("Failed to log block event", "error", err)
		}
		d.reportBlockToGuardian(item.ID, string(reason))
		return errorResponse("%s", DenialMessage(reason, item.Title))
	}

	if err := d.player.Play(item.ID, item.Path); err != nil {
		return errorResponse("Failed to start playback: %v", err)
	}

	watchID := uuid.NewString()
	d.mu.Lock()
	d.currentWatch = watchID
	d.mu.Unlock()
	if err := d.store.StartWatch(item.ID, watchID); err != nil {
		slog.Error("Failed to record watch start", "error", err)
	}

	response := infoResponse("Playing '%s'", item.Title)
	response.AddData(map[string]interface{}{
		"item_id": item.ID,
		"title":   item.Title,
		"path":    item.Path,
	})
	return response
}

// onPlaybackExit closes the open watch record when the engine exits.
func (d *Daemon) onPlaybackExit(itemID string, watched time.Duration) {
	d.mu.Lock()
	watchID := d.currentWatch
	d.currentWatch = ""
	d.mu.Unlock()

	if watchID == "" || d.store == nil {
		return
	}
	if err := d.store.FinishWatch(watchID, watched); err != nil {
		slog.Error("Failed to record watch end", "error", err, "item", itemID)
	}
}

// enforceCurrentPlayback stops the engine if the active item is no
// longer allowed under the current policy.
func (d *Daemon) enforceCurrentPlayback() {
	status, itemID := d.player.State()
	if itemID == "" || (status != player.StatusPlaying && status != player.StatusPaused) {
		return
	}
	if reason, allowed := d.session.CheckPlayback(itemID); !allowed {
		slog.Info("Stopping playback after policy change", "item", itemID, "reason", reason)
		if d.store != nil {
			d.store.LogBlockEvent(itemID, string(reason))
		}
		d.reportBlockToGuardian(itemID, string(reason))
		d.player.Stop()
	}
}

// reportBlockToGuardian tells the guardian app about a refused playback.
// Best effort: failures are logged and swallowed.
func (d *Daemon) reportBlockToGuardian(itemID, reason string) {
	if d.guardianMgr == nil {
		return
	}
	svc := d.guardianMgr.Service()
	if svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, 2*time.Second)
	defer cancel()
	if err := svc.ReportBlock(ctx, itemID, reason); err != nil {
		slog.Warn("Failed to report block to guardian", "error", err, "item", itemID)
	}
}

// policyRefreshLoop fetches the current policy from the guardian once a
// minute while connected, so a missed PolicyChanged signal heals itself.
func (d *Daemon) policyRefreshLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.refreshPolicy()
		}
	}
}

func (d *Daemon) refreshPolicy() {
	if d.guardianMgr == nil {
		return
	}
	svc := d.guardianMgr.Service()
	if svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()
	policy, err := svc.CurrentPolicy(ctx)
	if err != nil {
		slog.Debug("Policy refresh failed", "error", err)
		return
	}
	d.session.SetPolicy(policy)
	d.enforceCurrentPlayback()
}

func (d *Daemon) scanLibrary() Response {
	if d.store == nil {
		return errorResponse("Library database is not available")
	}

	paths := make([]string, 0, len(core.Config.Library.Paths))
	for _, p := range core.Config.Library.Paths {
		paths = append(paths, core.ExpandPath(p))
	}

	result, err := d.store.Scan(paths, core.Config.Library.Extensions)
	if err != nil {
		return errorResponse("Library scan failed: %v", err)
	}

	response := infoResponse("Scan complete: %d new, %d seen, %d removed",
		result.Added, result.Seen, result.Removed)
	response.AddData(result)
	return response
}

func (d *Daemon) listLibrary() Response {
	if d.store == nil {
		return errorResponse("Library database is not available")
	}

	items, err := d.store.ListItems()
	if err != nil {
		return errorResponse("Failed to list library: %v", err)
	}

	response := Response{}
	if len(items) == 0 {
		response.AddMessage("Library is empty, run a scan first", "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	response.AddData(items)
	return response
}

func (d *Daemon) getHistory(limit int) Response {
	if d.store == nil {
		return errorResponse("Library database is not available")
	}

	records, err := d.store.GetRecentHistory(limit)
	if err != nil {
		return errorResponse("Failed to read history: %v", err)
	}

	response := Response{}
	if len(records) == 0 {
		response.AddMessage("No watch history yet", "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	response.AddData(records)
	return response
}

// GuardianStatus is the wire form of the guardian connection state.
type GuardianStatus struct {
	State          string `json:"state"`
	Connected      bool   `json:"connected"`
	BusName        string `json:"bus_name"`
	PolicyRevision int64  `json:"policy_revision,omitempty"`
	DailyLimit     string `json:"daily_limit,omitempty"`
	BedtimeStart   string `json:"bedtime_start,omitempty"`
	BedtimeEnd     string `json:"bedtime_end,omitempty"`
	BlockedItems   int    `json:"blocked_items"`
	Unlocked       bool   `json:"unlocked"`
}

func (d *Daemon) getGuardianStatus() Response {
	response := Response{}

	if d.guardianMgr == nil {
		response.AddMessage("Guardian integration is disabled (no session bus)", "WARN")
		return response
	}

	status := GuardianStatus{
		State:     string(d.guardianMgr.State()),
		Connected: d.guardianMgr.IsConnected(),
		BusName:   core.Config.Guardian.BusName,
		Unlocked:  d.session.Unlocked(),
	}
	if policy, ok := d.session.Policy(); ok {
		status.PolicyRevision = policy.Revision
		if policy.DailyLimit > 0 {
			status.DailyLimit = policy.DailyLimit.String()
		}
		status.BedtimeStart = policy.BedtimeStart
		status.BedtimeEnd = policy.BedtimeEnd
		status.BlockedItems = len(policy.BlockedItems)
	}

	response.AddMessage("OK", "INFO")
	response.AddData(status)
	return response
}

func (d *Daemon) bindGuardian() Response {
	if d.guardianMgr == nil {
		return errorResponse("Guardian integration is disabled (no session bus)")
	}

	if err := d.guardianMgr.Bind(); err != nil {
		if d.store != nil {
			d.store.LogGuardianEvent("bind_failed", err.Error())
		}
		return errorResponse("Guardian bind failed: %v (state: %s)", err, d.guardianMgr.State())
	}

	if d.store != nil {
		d.store.LogGuardianEvent("bind_requested", core.Config.Guardian.BusName)
	}
	return infoResponse("Guardian bind requested (state: %s)", d.guardianMgr.State())
}

func (d *Daemon) unbindGuardian() Response {
	if d.guardianMgr == nil {
		return errorResponse("Guardian integration is disabled (no session bus)")
	}

	d.guardianMgr.Unbind()
	if d.store != nil {
		d.store.LogGuardianEvent("unbind", "requested over IPC")
	}
	return infoResponse("Guardian unbound (state: %s)", d.guardianMgr.State())
}

func (d *Daemon) unlockWithPIN(pin string) Response {
	hash, err := keyring.GetPINHash()
	if err != nil {
		return errorResponse("Failed to read PIN from keyring: %v", err)
	}
	if hash == "" {
		return errorResponse("No parent PIN is set, run 'squeakbox pin set' first")
	}
	if !keyring.VerifyPIN(hash, pin) {
		slog.Warn("Rejected unlock attempt with wrong PIN")
		return errorResponse("Wrong PIN")
	}

	duration, err := time.ParseDuration(core.Config.Daemon.UnlockDuration)
	if err != nil {
		duration = 15 * time.Minute
	}
	d.session.Unlock(duration)
	return infoResponse("Parental controls unlocked for %s", duration)
}

// EngineStats holds resource usage of the running media engine.
type EngineStats struct {
	Pid        int     `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
}

// DaemonStatus is the wire form of the STATUS command.
type DaemonStatus struct {
	Pid            int          `json:"pid"`
	Uptime         string       `json:"uptime"`
	PlaybackState  string       `json:"playback_state"`
	CurrentItem    string       `json:"current_item,omitempty"`
	Position       string       `json:"position,omitempty"`
	Duration       string       `json:"duration,omitempty"`
	GuardianState  string       `json:"guardian_state"`
	ScreenTimeLeft string       `json:"screen_time_left,omitempty"`
	Engine         *EngineStats `json:"engine,omitempty"`
}

func (d *Daemon) getStatus() Response {
	response := Response{}

	status := DaemonStatus{
		Pid:    os.Getpid(),
		Uptime: time.Since(d.startTime).Round(time.Second).String(),
	}

	playbackState, itemID := d.player.State()
	status.PlaybackState = string(playbackState)
	if itemID != "" {
		status.CurrentItem = itemID
		progress := d.player.CurrentProgress()
		status.Position = progress.Position.Round(time.Second).String()
		status.Duration = progress.Duration.Round(time.Second).String()
	}

	if d.guardianMgr != nil {
		status.GuardianState = string(d.guardianMgr.State())
	} else {
		status.GuardianState = "disabled"
	}

	if remaining := d.session.RemainingScreenTime(); remaining >= 0 {
		status.ScreenTimeLeft = remaining.Round(time.Second).String()
	}

	if pid := d.player.EnginePID(); pid > 0 {
		status.Engine = engineStats(pid)
	}

	response.AddMessage("OK", "INFO")
	response.AddData(status)
	return response
}

// engineStats collects CPU and memory usage of the engine process.
func engineStats(pid int) *EngineStats {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return &EngineStats{Pid: pid}
	}
	stats := &EngineStats{Pid: pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryMB = float64(mem.RSS) / (1024 * 1024)
	}
	return stats
}

func (d *Daemon) getVersion() Response {
	response := Response{}

	response.AddMessage("OK", "INFO")
	response.AddData(map[string]interface{}{
		"version": core.Version,
		"pid":     os.Getpid(),
	})

	return response
}

func (d *Daemon) stopDaemon() Response {
	response := Response{}

	status, itemID := d.player.State()
	if status == player.StatusPlaying || status == player.StatusPaused {
		response.AddMessage(fmt.Sprintf("Stopping daemon and ending playback of '%s'...", itemID), "INFO")
	} else {
		response.AddMessage("Stopping daemon...", "INFO")
	}

	return response
}

func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		// Cancel context to stop all background tasks
		if d.cancelFunc != nil {
			d.cancelFunc()
		}

		// Stop the engine before anything else so the watch record closes
		d.player.Stop()

		// Release the guardian binding
		if d.guardianMgr != nil {
			d.guardianMgr.Unbind()
		}
		if d.presence != nil {
			d.presence.Close()
		}

		if d.store != nil {
			version := core.FormatVersion(core.Version)
			details := fmt.Sprintf("version: %s, PID: %d", version, os.Getpid())
			if err := d.store.LogGuardianEvent("daemon_stop", details); err != nil {
				slog.Error("Failed to log daemon stop event", "error", err)
			}

			// Flush database to ensure all events are written before daemon exits
			if err := d.store.Flush(); err != nil {
				slog.Error("Failed to flush database during shutdown", "error", err)
			}
			if err := d.store.Close(); err != nil {
				slog.Error("Failed to close database during shutdown", "error", err)
			} else {
				slog.Info("Database closed successfully")
			}
		}
	})
}

// reloadConfig reloads the configuration file and applies what can be
// applied without a restart.
func (d *Daemon) reloadConfig() error {
	// Save the old config in case we need to roll back
	oldConfig := core.Config

	newConfig, err := core.LoadConfig(core.GetConfigFilePath())
	if err != nil {
		slog.Error("Configuration file has syntax errors, keeping previous configuration",
			"file", core.GetConfigFilePath(),
			"error", err)
		return fmt.Errorf("config parse error")
	}

	// Preserve the config path
	newConfig.ConfigPath = oldConfig.ConfigPath
	core.Config = newConfig

	// Engine and guardian settings apply to the NEXT playback/bind;
	// the running engine process and binding are left alone.
	slog.Info("Configuration reloaded successfully")
	return nil
}

// watchConfig sets up automatic config file watching
func (d *Daemon) watchConfig() {
	configPath := core.GetConfigFilePath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		slog.Error("Failed to watch config file", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	// Set up a debounced reload handler
	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				// Re-add watch after RENAME, REMOVE, or CREATE events
				// Editors using atomic writes remove the original from the watch list.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go func() {
						for attempt := 0; attempt < 5; attempt++ {
							if attempt > 0 {
								delay := time.Duration(10<<uint(attempt-1)) * time.Millisecond
								time.Sleep(delay)
							}
							watcher.Remove(configPath)
							if err := watcher.Add(configPath); err == nil {
								return
							} else if attempt == 4 {
								slog.Error("Failed to re-add watch after multiple attempts", "error", err, "path", configPath)
							}
						}
					}()
				}

				// Reload on write, create, or rename events
				// Many editors use atomic rename operations instead of direct writes
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				// Debounce: wait 500ms after last change before reloading
				if reloadTimer != nil {
					reloadTimer.Stop()
				}

				reloadTimer = time.AfterFunc(500*time.Millisecond, func() {
					slog.Info("Configuration file changed, reloading...", "file", event.Name)
					if err := d.reloadConfig(); err != nil {
						slog.Debug("Config reload failed", "error", err)
					}
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()

	slog.Info("Watching configuration file for changes")
}
