package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dwarf-astro/dwarfctl/internal/config"
	"github.com/dwarf-astro/dwarfctl/pkg/db"
	"github.com/dwarf-astro/dwarfctl/pkg/devicecfg"
	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/flows"
	"github.com/dwarf-astro/dwarfctl/pkg/sequencer"
	"github.com/dwarf-astro/dwarfctl/pkg/session"
	"github.com/dwarf-astro/dwarfctl/pkg/transport"
	"github.com/fatih/color"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Only needed for the run command
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}
	return nil
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// app wires the session store, the device transport and the flows for one
// command invocation.
type app struct {
	cfg        *config.Config
	repo       *db.Repository
	store      *session.PersistentStore
	transports *transport.Registry
	seq        *sequencer.Sequencer
	ctl        *flows.Controller
	unsub      func()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return nil, err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}

	store := session.NewPersistentStore(session.NewMemoryStore(), repo)
	if err := store.Restore(ctx); err != nil {
		repo.Close()
		return nil, errors.Wrap(err, "session restore failed")
	}
	// A restored connection belongs to a previous process.
	store.SetConnectionStatus(false)
	if cfg.DeviceIP != "" {
		store.SetDeviceIP(cfg.DeviceIP)
	}

	observer, err := cfg.Observer()
	if err != nil {
		repo.Close()
		return nil, err
	}

	transports := transport.NewRegistry(func(addr string) transport.Transport {
		return transport.NewHandler(addr, transport.Options{
			Port:              cfg.DevicePort,
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			DeviceID:          store.Snapshot().DeviceID,
		})
	})
	seq := sequencer.New(sequencer.Config{
		Transports: transports,
		Store:      store,
		Recorder:   repo,
		Timeout:    cfg.CommandTimeout,
	})
	ctl := flows.New(seq, devicecfg.New(cfg.DeviceConfigPort, 3*time.Second), flows.Options{
		Location:        observer,
		Timezone:        cfg.Timezone,
		ForceIP:         cfg.ForceIP,
		Pacing:          cfg.CommandPacing,
		RestoreDelay:    cfg.RestoreDelay,
		RestoreInterval: cfg.RestoreInterval,
	})

	a := &app{cfg: cfg, repo: repo, store: store, transports: transports, seq: seq, ctl: ctl}
	a.unsub = store.Subscribe(printNotice)
	return a, nil
}

func (a *app) Close() {
	a.unsub()
	a.transports.Close()
	a.seq.Close()
	a.repo.Close()
}

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	infoColor    = color.New(color.FgCyan)
)

// printNotice prints every notice change of the session.
func printNotice(c session.Change) {
	if c.Field != session.FieldNotice {
		return
	}
	n := c.Snapshot.Notices[c.Channel]
	switch {
	case n.Error != "":
		errorColor.Printf("[%s] %s\n", c.Channel, n.Error)
	case n.Success != "":
		successColor.Printf("[%s] %s\n", c.Channel, n.Success)
	}
}

// wait blocks until f is terminal and turns a failure into an error.
func wait(ctx context.Context, f *sequencer.Flow) (sequencer.State, error) {
	st, err := f.Wait(ctx)
	if err != nil {
		return st, errors.Wrapf(err, "%s interrupted", f.Label())
	}
	if st.Status == sequencer.Failed {
		if st.Err == nil {
			return st, fmt.Errorf("%s failed: %s", f.Label(), st.Detail)
		}
		return st, errors.Wrapf(st.Err, "%s failed", f.Label())
	}
	return st, nil
}

// connect opens the device session and waits for the first sign of life.
func (a *app) connect(ctx context.Context) error {
	if a.store.Snapshot().DeviceIP == "" {
		return fmt.Errorf("no device address: set --device-ip or DWARF_DEVICE_IP")
	}
	f, err := a.ctl.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "connect failed")
	}
	_, err = wait(ctx, f)
	return err
}

// runFlow connects, starts a flow and waits for it.
func (a *app) runFlow(ctx context.Context, start func() (*sequencer.Flow, error)) (sequencer.State, error) {
	if err := a.connect(ctx); err != nil {
		return sequencer.State{}, err
	}
	f, err := start()
	if err != nil {
		return sequencer.State{}, err
	}
	return wait(ctx, f)
}

// awaitRestore keeps the process alive until the camera settings scheduled
// after a goto have been sent.
func (a *app) awaitRestore(ctx context.Context) {
	d := a.cfg.RestoreDelay + 6*a.cfg.RestoreInterval
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
