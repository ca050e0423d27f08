package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName    = ".config/squeakbox"
	ConfigFileName = "config.hcl"
	PidFileName    = "daemon.pid"
	SocketName     = "daemon.sock"
	DatabaseName   = "squeakbox.db"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete squeakbox configuration
type Configuration struct {
	ConfigPath string // Directory containing config, socket, pid and database files
	Verbose    int    // Verbosity level
	Engine     EngineConfig
	Library    LibraryConfig
	Guardian   GuardianConfig
	Daemon     DaemonConfig
}

// EngineConfig describes the external media engine squeakbox delegates
// playback to.
type EngineConfig struct {
	Command string   // Engine binary, e.g. "mpv"
	Args    []string // Extra arguments passed before the media path
}

// LibraryConfig describes where media is found.
type LibraryConfig struct {
	Paths      []string // Directories scanned for media
	Extensions []string // File extensions considered media (without dot)
}

// GuardianConfig describes the guardian app's control service.
type GuardianConfig struct {
	BusName    string // Well-known session bus name of the guardian service
	ObjectPath string // Object path of the guardian service
	AutoBind   bool   // Bind on daemon start
}

// DaemonConfig holds daemon behavior settings.
type DaemonConfig struct {
	LogHistory     int    // Lines of log history kept for streaming clients
	UnlockDuration string // How long a PIN unlock suspends enforcement
}

// HCL parsing structs

type hclConfig struct {
	Verbose  int          `hcl:"verbose,optional"`
	Engine   *hclEngine   `hcl:"engine,block"`
	Library  *hclLibrary  `hcl:"library,block"`
	Guardian *hclGuardian `hcl:"guardian,block"`
	Daemon   *hclDaemon   `hcl:"daemon,block"`
}

type hclEngine struct {
	Command string   `hcl:"command,optional"`
	Args    []string `hcl:"args,optional"`
}

type hclLibrary struct {
	Paths      []string `hcl:"paths,optional"`
	Extensions []string `hcl:"extensions,optional"`
}

type hclGuardian struct {
	BusName    string `hcl:"bus_name,optional"`
	ObjectPath string `hcl:"object_path,optional"`
	AutoBind   *bool  `hcl:"auto_bind,optional"`
}

type hclDaemon struct {
	LogHistory     int    `hcl:"log_history,optional"`
	UnlockDuration string `hcl:"unlock_duration,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration
// struct with defaults applied for anything the file omits.
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Engine != nil {
		if hclCfg.Engine.Command != "" {
			cfg.Engine.Command = hclCfg.Engine.Command
		}
		if len(hclCfg.Engine.Args) > 0 {
			cfg.Engine.Args = hclCfg.Engine.Args
		}
	}

	if hclCfg.Library != nil {
		if len(hclCfg.Library.Paths) > 0 {
			paths := make([]string, 0, len(hclCfg.Library.Paths))
			for _, p := range hclCfg.Library.Paths {
				paths = append(paths, ExpandPath(p))
			}
			cfg.Library.Paths = paths
		}
		if len(hclCfg.Library.Extensions) > 0 {
			cfg.Library.Extensions = hclCfg.Library.Extensions
		}
	}

	if hclCfg.Guardian != nil {
		if hclCfg.Guardian.BusName != "" {
			cfg.Guardian.BusName = hclCfg.Guardian.BusName
		}
		if hclCfg.Guardian.ObjectPath != "" {
			cfg.Guardian.ObjectPath = hclCfg.Guardian.ObjectPath
		}
		if hclCfg.Guardian.AutoBind != nil {
			cfg.Guardian.AutoBind = *hclCfg.Guardian.AutoBind
		}
	}

	if hclCfg.Daemon != nil {
		if hclCfg.Daemon.LogHistory > 0 {
			cfg.Daemon.LogHistory = hclCfg.Daemon.LogHistory
		}
		if hclCfg.Daemon.UnlockDuration != "" {
			cfg.Daemon.UnlockDuration = hclCfg.Daemon.UnlockDuration
		}
	}

	return cfg, nil
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Verbose: 0,
		Engine: EngineConfig{
			Command: "mpv",
			Args:    []string{"--no-config", "--really-quiet=no", "--term-status-msg=POS ${=time-pos}/${=duration}"},
		},
		Library: LibraryConfig{
			Paths:      []string{},
			Extensions: []string{"mp4", "mkv", "webm", "mp3", "ogg", "opus", "flac", "m4a"},
		},
		Guardian: GuardianConfig{
			BusName:    "org.squeakbox.Guardian1",
			ObjectPath: "/org/squeakbox/Guardian1",
			AutoBind:   true,
		},
		Daemon: DaemonConfig{
			LogHistory:     1000,
			UnlockDuration: "15m",
		},
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// InitializeConfig loads configuration from configPath, falling back to
// defaults when no config file exists yet.
func InitializeConfig(configPath string) error {
	cfg := GetDefaultConfig()

	file := filepath.Join(configPath, ConfigFileName)
	if ConfigExists(file) {
		loaded, err := LoadConfig(file)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ConfigPath = configPath
	Config = cfg
	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
