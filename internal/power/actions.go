// Package power reads the supply state and reboots or powers off the host.
package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

type commandSpec struct {
	name string
	args []string
}

type commandRunner func(ctx context.Context, name string, args ...string) error

var (
	rebootCommands = []commandSpec{
		{name: "systemctl", args: []string{"reboot"}},
		{name: "reboot"},
	}
	powerOffCommands = []commandSpec{
		{name: "systemctl", args: []string{"poweroff"}},
		{name: "poweroff"},
	}
)

// Actions restarts and shuts down the host. Filesystems are synced first
// so a power cut right after does not lose preferences.
type Actions struct {
	run    commandRunner
	sync   func()
	logger *slog.Logger
}

func NewActions(logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{run: runCommand, sync: syncFilesystems, logger: logger}
}

func (a *Actions) Reboot(ctx context.Context) error {
	return a.perform(ctx, "reboot", rebootCommands)
}

func (a *Actions) PowerOff(ctx context.Context) error {
	return a.perform(ctx, "power off", powerOffCommands)
}

func (a *Actions) perform(ctx context.Context, action string, commands []commandSpec) error {
	a.sync()
	a.logger.Info("power action", "action", action, "attempts", len(commands))

	var errs []error
	for i, spec := range commands {
		err := a.run(ctx, spec.name, spec.args...)
		if err == nil {
			a.logger.Info("power action started", "action", action, "command", spec.name, "attempt", i+1)
			return nil
		}
		a.logger.Debug("power command failed", "action", action, "command", spec.name, "args", spec.args, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", spec.name, err))
	}

	joined := errors.Join(errs...)
	a.logger.Warn("power action failed", "action", action, "error", joined)
	return joined
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
