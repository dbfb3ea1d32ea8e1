package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/elvis/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Run.MaxTicks != 1000 {
		t.Errorf("Run.MaxTicks = %d, want %d", cfg.Run.MaxTicks, 1000)
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// A bare default has no scenario, so it must fail validation on its own.
	if err := config.Validate(cfg); !errors.Is(err, config.ErrNoMachines) {
		t.Errorf("Validate(DefaultConfig()) error = %v, want %v", err, config.ErrNoMachines)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
run:
  max_ticks: 50
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
scenario:
  machines:
    - name: sender
      applications:
        - type: send_message
          local:
            address: "10.0.0.1"
            port: 1000
          remote:
            address: "10.0.0.2"
            port: 2000
          message: "hello"
    - name: receiver
      applications:
        - type: capture
          local:
            address: "10.0.0.2"
            port: 2000
  networks:
    - name: net0
  attachments:
    - machine: sender
      network: net0
    - machine: receiver
      network: net0
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Run.MaxTicks != 50 {
		t.Errorf("Run.MaxTicks = %d, want %d", cfg.Run.MaxTicks, 50)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if len(cfg.Scenario.Machines) != 2 {
		t.Fatalf("Scenario.Machines count = %d, want 2", len(cfg.Scenario.Machines))
	}

	sender := cfg.Scenario.Machines[0]
	if sender.Name != "sender" {
		t.Errorf("Machines[0].Name = %q, want %q", sender.Name, "sender")
	}
	if len(sender.Applications) != 1 || sender.Applications[0].Type != config.AppSendMessage {
		t.Fatalf("Machines[0].Applications = %+v, want one send_message app", sender.Applications)
	}
	addr, err := sender.Applications[0].Local.Addr()
	if err != nil {
		t.Fatalf("Local.Addr(): %v", err)
	}
	if addr != 0x0A000001 {
		t.Errorf("Local.Addr() = %#x, want %#x", addr, 0x0A000001)
	}

	if len(cfg.Scenario.Networks) != 1 || cfg.Scenario.Networks[0].Name != "net0" {
		t.Fatalf("Scenario.Networks = %+v, want one net0", cfg.Scenario.Networks)
	}

	if len(cfg.Scenario.Attachments) != 2 {
		t.Fatalf("Scenario.Attachments count = %d, want 2", len(cfg.Scenario.Attachments))
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
log:
  level: "warn"
scenario:
  machines:
    - name: only
      applications:
        - type: capture
          local:
            address: "10.0.0.1"
            port: 1000
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Run.MaxTicks != 1000 {
		t.Errorf("Run.MaxTicks = %d, want default %d", cfg.Run.MaxTicks, 1000)
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	validMachine := config.MachineConfig{
		Name: "m0",
		Applications: []config.ApplicationConfig{
			{Type: config.AppCapture, Local: config.EndpointConfig{Address: "10.0.0.1", Port: 1000}},
		},
	}

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name:    "no machines",
			modify:  func(cfg *config.Config) {},
			wantErr: config.ErrNoMachines,
		},
		{
			name: "negative max ticks",
			modify: func(cfg *config.Config) {
				cfg.Scenario.Machines = []config.MachineConfig{validMachine}
				cfg.Run.MaxTicks = -1
			},
			wantErr: config.ErrInvalidMaxTicks,
		},
		{
			name: "duplicate machine name",
			modify: func(cfg *config.Config) {
				cfg.Scenario.Machines = []config.MachineConfig{validMachine, validMachine}
			},
			wantErr: config.ErrDuplicateMachineName,
		},
		{
			name: "unknown application type",
			modify: func(cfg *config.Config) {
				m := validMachine
				m.Applications = []config.ApplicationConfig{
					{Type: "carrier_pigeon", Local: config.EndpointConfig{Address: "10.0.0.1", Port: 1000}},
				}
				cfg.Scenario.Machines = []config.MachineConfig{m}
			},
			wantErr: config.ErrUnknownApplicationType,
		},
		{
			name: "invalid endpoint address",
			modify: func(cfg *config.Config) {
				m := validMachine
				m.Applications = []config.ApplicationConfig{
					{Type: config.AppCapture, Local: config.EndpointConfig{Address: "not-an-ip", Port: 1000}},
				}
				cfg.Scenario.Machines = []config.MachineConfig{m}
			},
			wantErr: config.ErrInvalidEndpointAddress,
		},
		{
			name: "attachment references unknown machine",
			modify: func(cfg *config.Config) {
				cfg.Scenario.Machines = []config.MachineConfig{validMachine}
				cfg.Scenario.Networks = []config.NetworkConfig{{Name: "net0"}}
				cfg.Scenario.Attachments = []config.AttachmentConfig{{Machine: "ghost", Network: "net0"}}
			},
			wantErr: config.ErrUnknownAttachmentMachine,
		},
		{
			name: "attachment references unknown network",
			modify: func(cfg *config.Config) {
				cfg.Scenario.Machines = []config.MachineConfig{validMachine}
				cfg.Scenario.Attachments = []config.AttachmentConfig{{Machine: "m0", Network: "ghost"}}
			},
			wantErr: config.ErrUnknownAttachmentNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/scenario.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
