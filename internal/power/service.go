package power

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sdbus "github.com/coreos/go-systemd/v22/dbus"
)

type Rebooter interface {
	Reboot(ctx context.Context) error
}

type unitRestarter func(ctx context.Context, unit string) error

// ServiceRestarter restarts the daemon's own systemd unit. Without a unit,
// or when systemd refuses the job, the host is rebooted instead.
type ServiceRestarter struct {
	unit     string
	restart  unitRestarter
	fallback Rebooter
	sync     func()
	logger   *slog.Logger
}

func NewServiceRestarter(unit string, fallback Rebooter, logger *slog.Logger) *ServiceRestarter {
	if logger == nil {
		logger = slog.Default()
	}
	unit = strings.TrimSpace(unit)
	if unit != "" && !strings.Contains(unit, ".") {
		unit += ".service"
	}
	return &ServiceRestarter{unit: unit, restart: restartUnit, fallback: fallback, sync: syncFilesystems, logger: logger}
}

func (s *ServiceRestarter) Unit() string {
	return s.unit
}

func (s *ServiceRestarter) Restart(ctx context.Context) error {
	if s.unit == "" {
		return s.fallback.Reboot(ctx)
	}

	s.sync()
	if err := s.restart(ctx, s.unit); err != nil {
		s.logger.Warn("service restart failed, rebooting", "unit", s.unit, "error", err)
		return s.fallback.Reboot(ctx)
	}
	s.logger.Info("service restart queued", "unit", s.unit)

	return nil
}

// restartUnit queues the job and returns without waiting for the result:
// the job stops this process before it could be reported.
func restartUnit(ctx context.Context, unit string) error {
	conn, err := sdbus.NewWithContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	result := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, unit, "replace", result); err != nil {
		return fmt.Errorf("restart unit %s: %w", unit, err)
	}

	return nil
}
