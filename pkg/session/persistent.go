package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
)

// Keys of the persisted session state.
const (
	KeyConnected         = "connection_status"
	KeyInitialConnection = "initial_connection_time"
	KeyDeviceIP          = "device_ip"
	KeyDevice            = "device"
	KeyImaging           = "imaging_session"
	KeyAstro             = "astro_settings"
	KeyPosition          = "saved_position"
)

// StateRepository stores persisted session values by key.
type StateRepository interface {
	PutState(ctx context.Context, key, value string) error
	GetState(ctx context.Context, key string) (string, bool, error)
}

// PersistentStore decorates a Store and writes the values that must survive
// a restart on each relevant transition: connection status, initial
// connection time, device address and identity, imaging session, astro
// settings and saved position.
type PersistentStore struct {
	Store
	repo StateRepository
}

var _ Store = (*PersistentStore)(nil)

func NewPersistentStore(inner Store, repo StateRepository) *PersistentStore {
	return &PersistentStore{Store: inner, repo: repo}
}

// persist writes one value. Failures are logged only: setters are
// fire-and-forget.
func (s *PersistentStore) persist(key string, value any) {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			slog.Error("session_persist_encode_failed", "key", key, "error", err)
			return
		}
		raw = string(b)
	}
	if err := s.repo.PutState(context.Background(), key, raw); err != nil {
		slog.Error("session_persist_failed", "key", key, "error", err)
	}
}

func (s *PersistentStore) SetConnectionStatus(connected bool) {
	s.Store.SetConnectionStatus(connected)
	s.persist(KeyConnected, strconv.FormatBool(connected))
}

func (s *PersistentStore) SetInitialConnectionTime(t time.Time) {
	s.Store.SetInitialConnectionTime(t)
	s.persist(KeyInitialConnection, t.UTC().Format(time.RFC3339Nano))
}

func (s *PersistentStore) SetDeviceIP(ip string) {
	s.Store.SetDeviceIP(ip)
	s.persist(KeyDeviceIP, ip)
}

type deviceRecord struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (s *PersistentStore) SetDevice(id int, name string) {
	s.Store.SetDevice(id, name)
	s.persist(KeyDevice, deviceRecord{ID: id, Name: name})
}

func (s *PersistentStore) UpdateImaging(fn func(*ImagingSession)) {
	s.Store.UpdateImaging(fn)
	s.persist(KeyImaging, s.Store.Snapshot().Imaging)
}

func (s *PersistentStore) UpdateAstro(fn func(*AstroSettings)) {
	s.Store.UpdateAstro(fn)
	s.persist(KeyAstro, s.Store.Snapshot().Astro)
}

func (s *PersistentStore) SetSavedPosition(p SavedPosition) {
	s.Store.SetSavedPosition(p)
	s.persist(KeyPosition, p)
}

// Restore loads the persisted values into the wrapped store. Missing keys are
// left at their zero value, and so are rows that no longer decode: they are
// logged and skipped. Only a failing repository makes Restore fail.
func (s *PersistentStore) Restore(ctx context.Context) error {
	slog.Info("session_restore")

	get := func(key string) (string, bool, error) {
		v, ok, err := s.repo.GetState(ctx, key)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to restore %s", key)
		}
		return v, ok, nil
	}
	skip := func(key string, err error) {
		slog.Warn("session_restore_skipped", "key", key, "error", err)
	}

	if v, ok, err := get(KeyConnected); err != nil {
		return err
	} else if ok {
		connected, _ := strconv.ParseBool(v)
		s.Store.SetConnectionStatus(connected)
	}

	if v, ok, err := get(KeyInitialConnection); err != nil {
		return err
	} else if ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err != nil {
			skip(KeyInitialConnection, err)
		} else {
			s.Store.SetInitialConnectionTime(t)
		}
	}

	if v, ok, err := get(KeyDeviceIP); err != nil {
		return err
	} else if ok {
		s.Store.SetDeviceIP(v)
	}

	if v, ok, err := get(KeyDevice); err != nil {
		return err
	} else if ok {
		var d deviceRecord
		if err := json.Unmarshal([]byte(v), &d); err != nil {
			skip(KeyDevice, err)
		} else {
			s.Store.SetDevice(d.ID, d.Name)
		}
	}

	if v, ok, err := get(KeyImaging); err != nil {
		return err
	} else if ok {
		var im ImagingSession
		if err := json.Unmarshal([]byte(v), &im); err != nil {
			skip(KeyImaging, err)
		} else {
			s.Store.UpdateImaging(func(dst *ImagingSession) { *dst = im })
		}
	}

	if v, ok, err := get(KeyAstro); err != nil {
		return err
	} else if ok {
		var as AstroSettings
		if err := json.Unmarshal([]byte(v), &as); err != nil {
			skip(KeyAstro, err)
		} else {
			s.Store.UpdateAstro(func(dst *AstroSettings) { *dst = as })
		}
	}

	if v, ok, err := get(KeyPosition); err != nil {
		return err
	} else if ok {
		var p SavedPosition
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			skip(KeyPosition, err)
		} else {
			s.Store.SetSavedPosition(p)
		}
	}

	slog.Info("session_restored", "device_ip", s.Store.Snapshot().DeviceIP)
	return nil
}
