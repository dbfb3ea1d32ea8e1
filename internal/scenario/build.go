// Package scenario builds a runnable core.Internet from a declarative
// config.ScenarioConfig: one core.Machine per configured machine (with a
// Tap, IPv4, and UDP stack plus whichever applications it names), one
// core.Network per configured network, and the attachments joining them.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/elvis/internal/apps"
	"github.com/dantte-lp/elvis/internal/config"
	"github.com/dantte-lp/elvis/internal/core"
	"github.com/dantte-lp/elvis/internal/protocols/ipv4"
	"github.com/dantte-lp/elvis/internal/protocols/tap"
	"github.com/dantte-lp/elvis/internal/protocols/udp"
)

// ErrUnbuildableScenario indicates the scenario failed config.Validate's
// checks and cannot be built. Build always calls config.Validate itself,
// so callers do not need to.
var ErrUnbuildableScenario = errors.New("scenario: invalid scenario configuration")

// Built is the product of Build: the runnable Internet plus handles onto
// every Capture application, for a caller that wants to inspect captured
// messages once the simulation ends.
type Built struct {
	Internet *core.Internet
	Captures map[string]*apps.Capture
}

// Options bundles the run parameters Build needs beyond the scenario
// topology itself.
type Options struct {
	MaxTicks int
	OnTick   func()
	Logger   *slog.Logger
	Metrics  core.MetricsReporter
}

// Build constructs an Internet from sc. Capture applications are keyed
// in the result by "<machine name>#<application index>".
func Build(sc config.ScenarioConfig, opts Options, logger *slog.Logger) (*Built, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(&config.Config{Scenario: sc}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnbuildableScenario, err)
	}

	networkIndex := make(map[string]int, len(sc.Networks))
	networks := make([]*core.Network, 0, len(sc.Networks))
	for _, n := range sc.Networks {
		networkIndex[n.Name] = len(networks)
		networks = append(networks, core.NewNetwork())
	}

	captures := make(map[string]*apps.Capture)
	machines := make([]*core.Machine, 0, len(sc.Machines))
	machineID := make(map[string]core.MachineID, len(sc.Machines))

	for i, mc := range sc.Machines {
		id := core.MachineID(i)
		machineID[mc.Name] = id

		protocols, err := buildApplications(mc, captures, logger)
		if err != nil {
			return nil, fmt.Errorf("machine %q: %w", mc.Name, err)
		}

		machines = append(machines, core.NewMachine(id, tap.New(),
			append([]core.Protocol{ipv4.New(), udp.New()}, protocols...), logger,
			core.WithMetrics(opts.Metrics)))
	}

	attachments := make(map[core.MachineID][]int, len(sc.Machines))
	for _, a := range sc.Attachments {
		id, ok := machineID[a.Machine]
		if !ok {
			return nil, fmt.Errorf("attachment machine %q: %w", a.Machine, ErrUnbuildableScenario)
		}
		idx, ok := networkIndex[a.Network]
		if !ok {
			return nil, fmt.Errorf("attachment network %q: %w", a.Network, ErrUnbuildableScenario)
		}
		attachments[id] = append(attachments[id], idx)
	}

	internetOpts := []core.InternetOption{}
	if opts.MaxTicks > 0 {
		internetOpts = append(internetOpts, core.WithMaxTicks(opts.MaxTicks))
	}
	if opts.OnTick != nil {
		internetOpts = append(internetOpts, core.WithTickHook(opts.OnTick))
	}

	in, err := core.NewInternet(machines, networks, attachments, logger, internetOpts...)
	if err != nil {
		return nil, fmt.Errorf("build internet: %w", err)
	}

	return &Built{Internet: in, Captures: captures}, nil
}

// buildApplications constructs the User-layer protocols named by mc,
// recording each Capture it builds into captures under a stable key.
func buildApplications(mc config.MachineConfig, captures map[string]*apps.Capture, logger *slog.Logger) ([]core.Protocol, error) {
	protocols := make([]core.Protocol, 0, len(mc.Applications))

	for i, app := range mc.Applications {
		appID := core.NewProtocolId(core.LayerUser, uint8(i))

		local, err := endpoint(app.Local)
		if err != nil {
			return nil, fmt.Errorf("application[%d] local endpoint: %w", i, err)
		}

		switch app.Type {
		case config.AppSendMessage:
			remote, err := endpoint(app.Remote)
			if err != nil {
				return nil, fmt.Errorf("application[%d] remote endpoint: %w", i, err)
			}
			protocols = append(protocols, apps.NewSendMessage(appID, local, remote, core.NewMessageString(app.Message), logger))
		case config.AppCapture:
			c := apps.NewCapture(appID, local, logger)
			captures[fmt.Sprintf("%s#%d", mc.Name, i)] = c
			protocols = append(protocols, c)
		default:
			return nil, fmt.Errorf("application[%d] type %q: %w", i, app.Type, ErrUnbuildableScenario)
		}
	}

	return protocols, nil
}

func endpoint(e config.EndpointConfig) (apps.Endpoint, error) {
	addr, err := e.Addr()
	if err != nil {
		return apps.Endpoint{}, err
	}
	return apps.Endpoint{Address: addr, Port: e.Port}, nil
}
