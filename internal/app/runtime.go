package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skobkin/bblink/internal/adapter"
	"github.com/skobkin/bblink/internal/bridge"
	"github.com/skobkin/bblink/internal/bus"
	"github.com/skobkin/bblink/internal/config"
	"github.com/skobkin/bblink/internal/diag"
	"github.com/skobkin/bblink/internal/firmware"
	"github.com/skobkin/bblink/internal/fsm"
	"github.com/skobkin/bblink/internal/indicator"
	"github.com/skobkin/bblink/internal/logging"
	"github.com/skobkin/bblink/internal/persistence"
	"github.com/skobkin/bblink/internal/platform"
	"github.com/skobkin/bblink/internal/power"
	"github.com/skobkin/bblink/internal/rig"
	"github.com/skobkin/bblink/internal/transport"
)

const closeTimeout = 5 * time.Second

type Runtime struct {
	Paths  Paths
	Config config.AppConfig

	LogManager *logging.Manager
	Bus        *bus.PubSubBus
	DB         *sql.DB
	Prefs      *persistence.PrefStore

	Peripheral *transport.BLEPeripheral
	Radio      RadioLink
	Classic    *transport.BlueZClassic
	Rig        *rig.Client
	Bridge     *bridge.Bridge

	Indicator indicator.Indicator
	Updates   *firmware.Sink
	Power     *power.Actions
	Adapter   *adapter.Adapter
	Diag      *diag.Server

	lock     platform.InstanceLock
	logger   *slog.Logger
	notifier *notifier
}

// Initialize loads configuration and builds every component. Nothing talks
// to the radio or advertises until Run.
func Initialize(parent context.Context, configPath string) (*Runtime, error) {
	paths, err := ResolvePaths(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}

	lock, err := platform.AcquireInstanceLock(Name, cfg.Wireless.AdapterID)
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}

	rt := &Runtime{
		Paths:  paths,
		Config: cfg,
		lock:   lock,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		_ = rt.Close()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	rt.logger = logMgr.Logger("app")
	rt.logger.Info("starting bblink",
		"version", BuildVersion(),
		"build_date", BuildDateYMD(),
		"radio", cfg.Radio.Connector,
		"target", RadioTarget(cfg.Radio),
	)
	rt.notifier = newNotifier(rt.logger)

	db, err := persistence.Open(parent, paths.DBFile)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = db
	rt.Prefs = persistence.NewPrefStore(db)
	rt.Bus = bus.New(logMgr.Logger("bus"))

	if err := rt.buildHardware(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := rt.buildBridge(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.buildAdapter()

	if cfg.Diag.Listen != "" {
		rt.Diag = diag.New(cfg.Diag.Listen, BuildVersionWithDate(), diag.Deps{
			Bridge:  rt.Bridge,
			Adapter: rt.Adapter,
			Prefs:   rt.Prefs,
			Bus:     rt.Bus,
			Logger:  logMgr.Logger("diag"),
		})
	}

	return rt, nil
}

func (r *Runtime) buildHardware() error {
	cfg := r.Config.Hardware
	ind, err := newIndicator(cfg, fsm.SystemClock{}, r.LogManager.Logger("indicator"))
	if err != nil {
		return err
	}
	r.Indicator = ind
	r.Updates = firmware.NewSink(r.Paths.UpdateDir)
	r.Power = power.NewActions(r.LogManager.Logger("power"))

	return nil
}

func (r *Runtime) buildBridge() error {
	cfg := r.Config
	logger := r.LogManager.Logger("transport")

	link, err := NewRadioLink(cfg.Radio, logger)
	if err != nil {
		return err
	}
	r.Radio = link
	r.Classic = transport.NewBlueZClassic(cfg.Radio.AdapterID, bridge.KenwoodHandheldClass, logger)
	r.Rig = rig.NewClient(link, rig.Config{
		ResponseTimeout: time.Duration(cfg.Radio.ResponseTimeoutMS) * time.Millisecond,
	}, r.LogManager.Logger("rig"))

	identity, err := deviceIdentity(cfg.Device).MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	r.Peripheral = transport.NewBLEPeripheral(transport.PeripheralConfig{
		AdapterID: cfg.Wireless.AdapterID,
		LocalName: cfg.Device.Name,
		MTU:       cfg.Wireless.MTU,
		Identity:  identity,
	}, transport.PeripheralHandlers{
		OnConnect:     r.handlePeerConnection,
		OnWrite:       r.handlePeerWrite,
		OnUpdateWrite: r.handleUpdateWrite,
	}, logger)

	r.Bridge = bridge.New(bridge.Config{
		MTU:               cfg.Wireless.MTU,
		ReconnectInterval: time.Duration(cfg.Radio.ReconnectSeconds) * time.Second,
		FirmwareVersion:   FirmwareVersionString(),
	}, bridge.Deps{
		Peer:      r.Peripheral,
		Radio:     link,
		Rig:       r.Rig,
		Discovery: r.Classic,
		Prefs:     r.Prefs,
		Restarter: power.NewServiceRestarter(cfg.Device.SystemdUnit, r.Power, r.LogManager.Logger("power")),
		Bus:       r.Bus,
		Logger:    r.LogManager.Logger("bridge"),
	})

	return nil
}

// buildAdapter runs after buildBridge. Broken button or battery hardware is
// logged and replaced by the no-op variant so the bridge keeps working.
func (r *Runtime) buildAdapter() {
	sampler, err := newButton(r.Config.Hardware)
	if err != nil {
		r.logger.Warn("touch button disabled", "error", err)
		sampler, _ = newButton(config.HardwareConfig{})
	}
	battery, err := newBatteryMonitor(r.Config.Hardware)
	if err != nil {
		r.logger.Warn("battery monitoring disabled", "error", err)
		battery = power.Mains
	}

	r.Adapter = adapter.New(adapter.Config{}, adapter.Deps{
		Bridge:    r.Bridge,
		Indicator: r.Indicator,
		Button:    sampler,
		Battery:   battery,
		Power:     r.Power,
		Updates:   r.Updates,
		Verbosity: r.LogManager,
		Bus:       r.Bus,
		Logger:    r.LogManager.Logger("adapter"),
	})
}

func (r *Runtime) handlePeerConnection(connected bool) {
	r.Bridge.HandlePeerConnection(connected)
}

func (r *Runtime) handlePeerWrite(data []byte) {
	if err := r.Bridge.HandlePeerWrite(data); err != nil {
		r.logger.Warn("peer write rejected", "error", err)
	}
}

func (r *Runtime) handleUpdateWrite(data []byte) {
	r.Adapter.HandleUpdateWrite(data)
}

func (r *Runtime) start(ctx context.Context) error {
	if err := r.Peripheral.Start(); err != nil {
		return fmt.Errorf("start ble peripheral: %w", err)
	}
	if err := r.Bridge.Init(ctx); err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}

	return nil
}

// Run drives the adapter every TickInterval until ctx is cancelled or the
// adapter powers the host off or reboots it. A failed start leaves the
// indicator showing the error until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.start(ctx); err != nil {
		r.logger.Error("initialization failed", "error", err)
		return r.halt(ctx, err)
	}

	if r.Diag != nil {
		r.Diag.Watch(ctx)
		go func() {
			if err := r.Diag.ListenAndServe(); err != nil {
				r.logger.Error("diagnostics server stopped", "error", err)
			}
		}()
	}

	r.notifier.Ready()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.notifier.Stopping()
			r.Bridge.Disconnect()
			r.Indicator.Sleep()
			return nil
		case <-r.Adapter.Done():
			r.notifier.Stopping()
			r.logger.Info("adapter finished", "outcome", r.Adapter.Outcome())
			return nil
		case now := <-ticker.C:
			r.Adapter.Tick(ctx)
			r.notifier.Status(r.Adapter.State().String())
			r.notifier.Tick(now)
		}
	}
}

func (r *Runtime) halt(ctx context.Context, cause error) error {
	r.Indicator.Set(indicator.StatusError)
	r.notifier.Status("error: " + cause.Error())

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Indicator.Sleep()
			return cause
		case now := <-ticker.C:
			r.Indicator.Render()
			r.notifier.Tick(now)
		}
	}
}

func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if r.Diag != nil {
		if err := r.Diag.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown diagnostics: %w", err))
		}
	}
	if r.Peripheral != nil {
		_ = r.Peripheral.StopAdvertising()
	}
	if r.Radio != nil {
		if err := r.Radio.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect radio: %w", err))
		}
	}
	if r.Updates != nil {
		r.Updates.Abort()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close preferences: %w", err))
		}
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}
	if r.lock != nil {
		if err := r.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release instance lock: %w", err))
		}
		r.lock = nil
	}

	return errors.Join(errs...)
}
