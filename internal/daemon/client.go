package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/squeakbox/squeakbox/internal/core"
)

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}

	return response, nil
}

// StartDaemon forks the current binary as a background daemon process.
func StartDaemon() error {
	cmd := exec.Command(os.Args[0], "internal-daemon-start",
		"--config-path", core.Config.ConfigPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not fork daemon process: %w", err)
	}
	slog.Debug(fmt.Sprintf("Daemon process launched with PID: %d", cmd.Process.Pid))
	return nil
}

// WaitForDaemon polls until the daemon socket answers or a timeout hits.
func WaitForDaemon() error {
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := SendCommand("STATUS"); err == nil {
			return nil
		}
	}
	return fmt.Errorf("daemon was launched but did not become ready in time")
}

// EnsureDaemonIsRunning handles the auto-start logic.
func EnsureDaemonIsRunning() {
	if _, err := SendCommand("STATUS"); err == nil {
		return // Daemon is running
	}

	slog.Info("Daemon not running. Starting it now...")
	if err := StartDaemon(); err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		os.Exit(1)
	}
	if err := WaitForDaemon(); err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		os.Exit(1)
	}
	slog.Info("Daemon is ready.")
}

// CheckVersionMismatch warns when the client and daemon binaries differ.
func CheckVersionMismatch() {
	response, err := SendCommand("VERSION")
	if err != nil {
		return // Daemon not running, nothing to compare
	}
	dataMap, ok := response.Data.(map[string]interface{})
	if !ok {
		return
	}
	daemonVersion, ok := dataMap["version"].(string)
	if !ok {
		return
	}
	if daemonVersion != core.Version {
		slog.Warn(fmt.Sprintf("Version mismatch! Client %s and daemon %s versions differ. Consider restarting the daemon.",
			core.FormatVersion(core.Version), core.FormatVersion(daemonVersion)))
	}
}
