package diag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skobkin/bblink/internal/adapter"
	"github.com/skobkin/bblink/internal/bridge"
	"github.com/skobkin/bblink/internal/bus"
	"github.com/skobkin/bblink/internal/connectors"
	"github.com/skobkin/bblink/internal/persistence"
)

type fakeBridge struct{}

func (fakeBridge) Snapshot() bridge.Snapshot {
	return bridge.Snapshot{Wireless: "connected", Radio: "connected", Ready: true, PairedName: "TH-D74"}
}

type fakeAdapter struct {
	commands []byte
	err      error
}

func (a *fakeAdapter) Snapshot() connectors.AdapterState {
	return connectors.AdapterState{State: "in-use", Status: "ready"}
}

func (a *fakeAdapter) Console(cmd byte) error {
	if a.err != nil {
		return a.err
	}
	a.commands = append(a.commands, cmd)
	return nil
}

type fakePrefs struct {
	err error
}

func (p fakePrefs) List(context.Context) ([]persistence.Pref, error) {
	if p.err != nil {
		return nil, p.err
	}
	return []persistence.Pref{{Key: "radioName", Size: 6}}, nil
}

func newTestServer(ad *fakeAdapter, prefs PrefLister, b bus.MessageBus) *Server {
	return New("127.0.0.1:0", "1.2.3", Deps{
		Bridge:  fakeBridge{},
		Adapter: ad,
		Prefs:   prefs,
		Bus:     b,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeAdapter{}, nil, nil), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestStatusIncludesLinksFromBus(t *testing.T) {
	b := bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer b.Close()
	s := newTestServer(&fakeAdapter{}, nil, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Watch(ctx)
	b.Publish(connectors.TopicLinkStatus, connectors.LinkStatus{Link: connectors.LinkRadio, State: connectors.ConnectionStateConnected})

	var resp statusResponse
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/status")
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Links) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if resp.Adapter.State != "in-use" || !resp.Bridge.Ready || resp.Bridge.PairedName != "TH-D74" {
		t.Fatalf("unexpected status %+v", resp)
	}
	if resp.Links[connectors.LinkRadio].State != connectors.ConnectionStateConnected {
		t.Fatalf("expected radio link from bus, got %+v", resp.Links)
	}
}

func TestStatusCountsTraffic(t *testing.T) {
	b := bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer b.Close()
	s := newTestServer(&fakeAdapter{}, nil, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Watch(ctx)
	b.Publish(connectors.TopicRawFrameIn, connectors.RawFrame{Hex: "c000c0", Len: 3})
	b.Publish(connectors.TopicRawFrameIn, connectors.RawFrame{Hex: "c00001c0", Len: 4})
	b.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: "c000c0", Len: 3})
	b.Publish(connectors.TopicCommand, connectors.CommandEvent{Opcode: "SetFrequency"})

	var resp statusResponse
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec := do(t, s, http.MethodGet, "/status")
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Traffic.FramesIn == 2 && resp.Traffic.FramesOut == 1 && resp.Traffic.Commands == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if resp.Traffic.BytesIn != 7 || resp.Traffic.BytesOut != 3 {
		t.Fatalf("unexpected traffic %+v", resp.Traffic)
	}
	if resp.Traffic.LastCommand == nil || resp.Traffic.LastCommand.Opcode != "SetFrequency" {
		t.Fatalf("expected last command, got %+v", resp.Traffic.LastCommand)
	}
}

func TestPrefs(t *testing.T) {
	rec := do(t, newTestServer(&fakeAdapter{}, fakePrefs{}, nil), http.MethodGet, "/prefs")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, newTestServer(&fakeAdapter{}, fakePrefs{err: errors.New("locked")}, nil), http.MethodGet, "/prefs")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	rec = do(t, newTestServer(&fakeAdapter{}, nil, nil), http.MethodGet, "/prefs")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a store, got %d", rec.Code)
	}
}

func TestConsole(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantCmd  byte
	}{
		{name: "named", path: "/console/factory-reset", wantCode: http.StatusAccepted, wantCmd: adapter.CommandFactoryReset},
		{name: "raw", path: "/console/r", wantCode: http.StatusAccepted, wantCmd: adapter.CommandReboot},
		{name: "plus", path: "/console/+", wantCode: http.StatusAccepted, wantCmd: adapter.CommandMoreVerbosity},
		{name: "unknown name", path: "/console/selfdestruct", wantCode: http.StatusBadRequest},
		{name: "rejected raw", path: "/console/x", err: adapter.ErrUnknownCommand, wantCode: http.StatusBadRequest},
		{name: "busy", path: "/console/r", err: adapter.ErrConsoleBusy, wantCode: http.StatusTooManyRequests},
	}

	for _, tc := range tests {
		ad := &fakeAdapter{err: tc.err}
		rec := do(t, newTestServer(ad, nil, nil), http.MethodPost, tc.path)
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.wantCode, rec.Code)
		}
		if tc.wantCmd != 0 && (len(ad.commands) != 1 || ad.commands[0] != tc.wantCmd) {
			t.Fatalf("%s: expected command %q, got %q", tc.name, tc.wantCmd, ad.commands)
		}
	}

	rec := do(t, newTestServer(&fakeAdapter{}, nil, nil), http.MethodGet, "/console/r")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestShutdownWithoutListen(t *testing.T) {
	if err := newTestServer(&fakeAdapter{}, nil, nil).Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
