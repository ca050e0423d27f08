package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.hcl")

	hclConfig := `# Test configuration
verbose = 1

engine {
  command = "mpv"
  args    = ["--no-config"]
}

library {
  paths      = ["/media/kids", "/media/music"]
  extensions = ["mp4", "mp3"]
}

guardian {
  bus_name    = "org.example.Guardian1"
  object_path = "/org/example/Guardian1"
  auto_bind   = false
}

daemon {
  log_history     = 500
  unlock_duration = "30m"
}
`

	if err := os.WriteFile(configPath, []byte(hclConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load HCL config: %v", err)
	}

	if config.Verbose != 1 {
		t.Errorf("Expected verbose=1, got %v", config.Verbose)
	}
	if config.Engine.Command != "mpv" {
		t.Errorf("Expected engine command 'mpv', got %q", config.Engine.Command)
	}
	if len(config.Engine.Args) != 1 || config.Engine.Args[0] != "--no-config" {
		t.Errorf("Unexpected engine args: %v", config.Engine.Args)
	}
	if len(config.Library.Paths) != 2 {
		t.Fatalf("Expected 2 library paths, got %d", len(config.Library.Paths))
	}
	if config.Library.Paths[0] != "/media/kids" {
		t.Errorf("Expected first library path '/media/kids', got %q", config.Library.Paths[0])
	}
	if len(config.Library.Extensions) != 2 {
		t.Errorf("Expected 2 extensions, got %d", len(config.Library.Extensions))
	}
	if config.Guardian.BusName != "org.example.Guardian1" {
		t.Errorf("Expected guardian bus name 'org.example.Guardian1', got %q", config.Guardian.BusName)
	}
	if config.Guardian.AutoBind {
		t.Error("Expected guardian auto_bind=false")
	}
	if config.Daemon.LogHistory != 500 {
		t.Errorf("Expected log_history=500, got %d", config.Daemon.LogHistory)
	}
	if config.Daemon.UnlockDuration != "30m" {
		t.Errorf("Expected unlock_duration='30m', got %q", config.Daemon.UnlockDuration)
	}
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.hcl")

	// Minimal config: everything should come from defaults
	if err := os.WriteFile(configPath, []byte("verbose = 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load HCL config: %v", err)
	}

	if config.Engine.Command != "mpv" {
		t.Errorf("Expected default engine 'mpv', got %q", config.Engine.Command)
	}
	if config.Guardian.BusName != "org.squeakbox.Guardian1" {
		t.Errorf("Expected default guardian bus name, got %q", config.Guardian.BusName)
	}
	if !config.Guardian.AutoBind {
		t.Error("Expected default guardian auto_bind=true")
	}
	if config.Daemon.LogHistory != 1000 {
		t.Errorf("Expected default log_history=1000, got %d", config.Daemon.LogHistory)
	}
	if len(config.Library.Extensions) == 0 {
		t.Error("Expected default media extensions")
	}
}

func TestLoadConfig_InvalidHCL(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.hcl")

	if err := os.WriteFile(configPath, []byte("engine {\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error for invalid HCL")
	}
}

func TestInitializeConfig_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	oldConfig := Config
	t.Cleanup(func() { Config = oldConfig })

	if err := InitializeConfig(tmpDir); err != nil {
		t.Fatalf("InitializeConfig: %v", err)
	}
	if Config == nil {
		t.Fatal("Expected global config to be set")
	}
	if Config.ConfigPath != tmpDir {
		t.Errorf("Expected config path %q, got %q", tmpDir, Config.ConfigPath)
	}
	if Config.Engine.Command != "mpv" {
		t.Errorf("Expected default engine, got %q", Config.Engine.Command)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	got := ExpandPath("~/Videos")
	want := filepath.Join(home, "Videos")
	if got != want {
		t.Errorf("ExpandPath(~/Videos) = %q, want %q", got, want)
	}

	if got := ExpandPath("/absolute/path"); got != "/absolute/path" {
		t.Errorf("ExpandPath should leave absolute paths alone, got %q", got)
	}
}

func TestPaths(t *testing.T) {
	oldConfig := Config
	t.Cleanup(func() { Config = oldConfig })

	Config = &Configuration{ConfigPath: "/tmp/sb-test"}

	if got := GetSocketPath(); got != "/tmp/sb-test/daemon.sock" {
		t.Errorf("GetSocketPath() = %q", got)
	}
	if got := GetPIDFilePath(); got != "/tmp/sb-test/daemon.pid" {
		t.Errorf("GetPIDFilePath() = %q", got)
	}
	if got := GetDatabasePath(); got != "/tmp/sb-test/squeakbox.db" {
		t.Errorf("GetDatabasePath() = %q", got)
	}
}

func TestFormatVersion(t *testing.T) {
	cases := map[string]string{
		"v1.2.0":        "1.2.0",
		"devel-ab34cd1": "devel-ab34cd1",
		"devel":         "devel",
	}
	for in, want := range cases {
		if got := FormatVersion(in); got != want {
			t.Errorf("FormatVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
