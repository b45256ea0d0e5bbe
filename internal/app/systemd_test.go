package app

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func newTestNotifier(watchdog time.Duration) (*notifier, *[]string) {
	var sent []string
	n := &notifier{
		send: func(state string) error {
			sent = append(sent, state)
			return nil
		},
		watchdog: watchdog,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return n, &sent
}

func TestNotifierStatusOnlyOnChange(t *testing.T) {
	n, sent := newTestNotifier(0)

	n.Status("idle")
	n.Status("idle")
	n.Status("in-use")

	if got := strings.Join(*sent, "|"); got != "STATUS=idle|STATUS=in-use" {
		t.Fatalf("unexpected notifications %q", got)
	}
}

func TestNotifierWatchdogPingsAtHalfInterval(t *testing.T) {
	n, sent := newTestNotifier(10 * time.Second)
	start := time.Unix(1_700_000_000, 0)

	n.Tick(start)
	n.Tick(start.Add(4 * time.Second))
	n.Tick(start.Add(5 * time.Second))
	n.Tick(start.Add(9 * time.Second))
	n.Tick(start.Add(10 * time.Second))

	if len(*sent) != 3 {
		t.Fatalf("expected 3 watchdog pings, got %v", *sent)
	}
	for _, state := range *sent {
		if state != daemon.SdNotifyWatchdog {
			t.Fatalf("expected watchdog ping, got %q", state)
		}
	}
}

func TestNotifierWatchdogDisabled(t *testing.T) {
	n, sent := newTestNotifier(0)
	n.Tick(time.Now())
	if len(*sent) != 0 {
		t.Fatalf("expected no pings without a watchdog, got %v", *sent)
	}
}

func TestNotifierIgnoresSendErrors(t *testing.T) {
	n, _ := newTestNotifier(0)
	n.send = func(string) error { return errors.New("no socket") }

	n.Ready()
	n.Stopping()
}
