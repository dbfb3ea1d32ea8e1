// Package config manages elvis-sim scenario configuration using koanf/v2.
//
// Supports YAML scenario files and environment variable overrides for run
// parameters (max ticks, log level, metrics endpoint).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds a complete elvis-sim run configuration: the scenario
// topology plus ambient run parameters.
type Config struct {
	Run      RunConfig      `koanf:"run"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Scenario ScenarioConfig `koanf:"scenario"`
}

// RunConfig holds parameters of the simulation loop itself.
type RunConfig struct {
	// MaxTicks bounds how many ticks Internet.Run will execute before
	// giving up, even if no application ever signals EndSimulation.
	// Zero means unbounded.
	MaxTicks int `koanf:"max_ticks"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	// Empty disables the metrics listener.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ScenarioConfig describes the topology a simulation run builds: the
// machines and their protocol stacks, the networks connecting them, and
// which machine is attached to which network.
type ScenarioConfig struct {
	Machines    []MachineConfig    `koanf:"machines"`
	Networks    []NetworkConfig    `koanf:"networks"`
	Attachments []AttachmentConfig `koanf:"attachments"`
}

// MachineConfig names one simulated host and the applications running on
// it. Every machine is built with a Tap, IPv4, and UDP already wired in;
// Applications lists only the User-layer collaborators.
type MachineConfig struct {
	Name         string              `koanf:"name"`
	Applications []ApplicationConfig `koanf:"applications"`
}

// Recognized ApplicationConfig.Type values.
const (
	AppSendMessage = "send_message"
	AppCapture     = "capture"
)

// ApplicationConfig describes one User-layer application to attach to a
// machine. Local is required for every application type; Remote and
// Message are only meaningful for AppSendMessage.
type ApplicationConfig struct {
	Type    string         `koanf:"type"`
	Local   EndpointConfig `koanf:"local"`
	Remote  EndpointConfig `koanf:"remote"`
	Message string         `koanf:"message"`
}

// EndpointConfig names a UDP socket as a dotted-quad address and port.
type EndpointConfig struct {
	Address string `koanf:"address"`
	Port    uint16 `koanf:"port"`
}

// Addr parses Address as an IPv4 dotted-quad and packs it into the
// big-endian uint32 representation the core and IPv4/UDP packages use.
func (e EndpointConfig) Addr() (uint32, error) {
	return parseIPv4(e.Address)
}

// NetworkConfig names one broadcast medium in the scenario.
type NetworkConfig struct {
	Name string `koanf:"name"`
}

// AttachmentConfig attaches one machine to one network.
type AttachmentConfig struct {
	Machine string `koanf:"machine"`
	Network string `koanf:"network"`
}

// parseIPv4 parses a dotted-quad string into its big-endian uint32
// representation (the encoding internal/protocols/ipv4 and internal/apps
// use for addresses).
func parseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	addr4 := addr.As4()
	return uint32(addr4[0])<<24 | uint32(addr4[1])<<16 | uint32(addr4[2])<<8 | uint32(addr4[3]), nil
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. The
// scenario itself has no sane default and is left empty; Validate will
// reject a scenario with no machines.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			MaxTicks: 1000,
		},
		Metrics: MetricsConfig{
			Addr: "",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for elvis-sim configuration.
// Variables are named ELVIS_<section>_<key>, e.g., ELVIS_RUN_MAX_TICKS.
const envPrefix = "ELVIS_"

// Load reads a scenario configuration from a YAML file at path, overlays
// environment variable overrides (ELVIS_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	ELVIS_RUN_MAX_TICKS  -> run.max_ticks
//	ELVIS_METRICS_ADDR   -> metrics.addr
//	ELVIS_METRICS_PATH   -> metrics.path
//	ELVIS_LOG_LEVEL      -> log.level
//	ELVIS_LOG_FORMAT     -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms ELVIS_RUN_MAX_TICKS -> run.max_ticks.
// Strips the ELVIS_ prefix, lowercases, and replaces the first _ (the
// section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"run.max_ticks": defaults.Run.MaxTicks,
		"metrics.addr":  defaults.Metrics.Addr,
		"metrics.path":  defaults.Metrics.Path,
		"log.level":     defaults.Log.Level,
		"log.format":    defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNoMachines indicates the scenario declares no machines.
	ErrNoMachines = errors.New("scenario.machines must not be empty")

	// ErrInvalidMaxTicks indicates run.max_ticks is negative.
	ErrInvalidMaxTicks = errors.New("run.max_ticks must be >= 0")

	// ErrDuplicateMachineName indicates two machines share a name.
	ErrDuplicateMachineName = errors.New("duplicate machine name")

	// ErrDuplicateNetworkName indicates two networks share a name.
	ErrDuplicateNetworkName = errors.New("duplicate network name")

	// ErrUnknownApplicationType indicates an application's type is not recognized.
	ErrUnknownApplicationType = errors.New("application type must be send_message or capture")

	// ErrInvalidEndpointAddress indicates an endpoint address is not a valid IPv4 dotted-quad.
	ErrInvalidEndpointAddress = errors.New("endpoint address is not a valid IPv4 address")

	// ErrUnknownAttachmentMachine indicates an attachment names a machine not declared in scenario.machines.
	ErrUnknownAttachmentMachine = errors.New("attachment references an undeclared machine")

	// ErrUnknownAttachmentNetwork indicates an attachment names a network not declared in scenario.networks.
	ErrUnknownAttachmentNetwork = errors.New("attachment references an undeclared network")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Run.MaxTicks < 0 {
		return ErrInvalidMaxTicks
	}

	if len(cfg.Scenario.Machines) == 0 {
		return ErrNoMachines
	}

	machineNames, err := validateMachines(cfg.Scenario.Machines)
	if err != nil {
		return err
	}

	networkNames, err := validateNetworks(cfg.Scenario.Networks)
	if err != nil {
		return err
	}

	return validateAttachments(cfg.Scenario.Attachments, machineNames, networkNames)
}

// ValidApplicationTypes lists the recognized application type strings.
var ValidApplicationTypes = map[string]bool{
	AppSendMessage: true,
	AppCapture:     true,
}

func validateMachines(machines []MachineConfig) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(machines))

	for i, m := range machines {
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("scenario.machines[%d] name %q: %w", i, m.Name, ErrDuplicateMachineName)
		}
		seen[m.Name] = struct{}{}

		for j, app := range m.Applications {
			if !ValidApplicationTypes[app.Type] {
				return nil, fmt.Errorf("scenario.machines[%d].applications[%d] type %q: %w", i, j, app.Type, ErrUnknownApplicationType)
			}
			if _, err := app.Local.Addr(); err != nil {
				return nil, fmt.Errorf("scenario.machines[%d].applications[%d].local: %w: %w", i, j, ErrInvalidEndpointAddress, err)
			}
			if app.Type == AppSendMessage {
				if _, err := app.Remote.Addr(); err != nil {
					return nil, fmt.Errorf("scenario.machines[%d].applications[%d].remote: %w: %w", i, j, ErrInvalidEndpointAddress, err)
				}
			}
		}
	}

	return seen, nil
}

func validateNetworks(networks []NetworkConfig) (map[string]struct{}, error) {
	seen := make(map[string]struct{}, len(networks))

	for i, n := range networks {
		if _, dup := seen[n.Name]; dup {
			return nil, fmt.Errorf("scenario.networks[%d] name %q: %w", i, n.Name, ErrDuplicateNetworkName)
		}
		seen[n.Name] = struct{}{}
	}

	return seen, nil
}

func validateAttachments(attachments []AttachmentConfig, machineNames, networkNames map[string]struct{}) error {
	for i, a := range attachments {
		if _, ok := machineNames[a.Machine]; !ok {
			return fmt.Errorf("scenario.attachments[%d] machine %q: %w", i, a.Machine, ErrUnknownAttachmentMachine)
		}
		if _, ok := networkNames[a.Network]; !ok {
			return fmt.Errorf("scenario.attachments[%d] network %q: %w", i, a.Network, ErrUnknownAttachmentNetwork)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
