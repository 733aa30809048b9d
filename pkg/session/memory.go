package session

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Subscribers are called synchronously,
// outside the store lock, in subscription order.
type MemoryStore struct {
	mu     sync.Mutex
	state  Snapshot
	subs   map[int]func(Change)
	nextID int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: Snapshot{Notices: make(map[Channel]Notice)},
		subs:  make(map[int]func(Change)),
	}
}

func (s *MemoryStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *MemoryStore) copyLocked() Snapshot {
	out := s.state
	out.Notices = maps.Clone(s.state.Notices)
	return out
}

// update applies fn under the lock and notifies subscribers if fn reports a
// change.
func (s *MemoryStore) update(field Field, ch Channel, fn func(st *Snapshot) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	change := Change{Field: field, Channel: ch, Snapshot: s.copyLocked()}
	subs := make([]func(Change), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if sub, ok := s.subs[id]; ok {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	slog.Debug("session_changed", "field", field, "channel", ch)
	for _, sub := range subs {
		sub(change)
	}
}

func (s *MemoryStore) SetConnectionStatus(connected bool) {
	s.update(FieldConnection, "", func(st *Snapshot) bool {
		if st.Connected == connected {
			return false
		}
		st.Connected = connected
		return true
	})
}

func (s *MemoryStore) SetSlaveMode(slave bool) {
	s.update(FieldSlaveMode, "", func(st *Snapshot) bool {
		if st.SlaveMode == slave {
			return false
		}
		st.SlaveMode = slave
		return true
	})
}

func (s *MemoryStore) SetInitialConnectionTime(t time.Time) {
	s.update(FieldInitialConnection, "", func(st *Snapshot) bool {
		if st.InitialConnection.Equal(t) {
			return false
		}
		st.InitialConnection = t
		return true
	})
}

func (s *MemoryStore) SetDeviceIP(ip string) {
	s.update(FieldDeviceIP, "", func(st *Snapshot) bool {
		if st.DeviceIP == ip {
			return false
		}
		st.DeviceIP = ip
		return true
	})
}

func (s *MemoryStore) SetDevice(id int, name string) {
	s.update(FieldDevice, "", func(st *Snapshot) bool {
		if st.DeviceID == id && st.DeviceName == name {
			return false
		}
		st.DeviceID, st.DeviceName = id, name
		return true
	})
}

func (s *MemoryStore) SetBatteryLevel(level int) {
	s.update(FieldBattery, "", func(st *Snapshot) bool {
		if st.BatteryLevel == level {
			return false
		}
		st.BatteryLevel = level
		return true
	})
}

func (s *MemoryStore) SetChargeStatus(status int) {
	s.update(FieldCharge, "", func(st *Snapshot) bool {
		if st.ChargeStatus == status {
			return false
		}
		st.ChargeStatus = status
		return true
	})
}

func (s *MemoryStore) SetCardCapacity(available, total int64) {
	s.update(FieldCard, "", func(st *Snapshot) bool {
		if st.CardAvailable == available && st.CardTotal == total {
			return false
		}
		st.CardAvailable, st.CardTotal = available, total
		return true
	})
}

func (s *MemoryStore) UpdateImaging(fn func(*ImagingSession)) {
	s.update(FieldImaging, "", func(st *Snapshot) bool {
		before := st.Imaging
		fn(&st.Imaging)
		return st.Imaging != before
	})
}

func (s *MemoryStore) UpdateAstro(fn func(*AstroSettings)) {
	s.update(FieldAstro, "", func(st *Snapshot) bool {
		before := st.Astro
		fn(&st.Astro)
		return st.Astro != before
	})
}

func (s *MemoryStore) SetSavedPosition(p SavedPosition) {
	s.update(FieldPosition, "", func(st *Snapshot) bool {
		if st.Position == p {
			return false
		}
		st.Position = p
		return true
	})
}

func (s *MemoryStore) SetRingLight(on bool) {
	s.update(FieldLights, "", func(st *Snapshot) bool {
		if st.RingLight == on {
			return false
		}
		st.RingLight = on
		return true
	})
}

func (s *MemoryStore) SetPowerLight(on bool) {
	s.update(FieldLights, "", func(st *Snapshot) bool {
		if st.PowerLight == on {
			return false
		}
		st.PowerLight = on
		return true
	})
}

func (s *MemoryStore) SetError(ch Channel, text string) {
	s.setNotice(ch, Notice{Error: text})
}

func (s *MemoryStore) SetSuccess(ch Channel, text string) {
	s.setNotice(ch, Notice{Success: text})
}

func (s *MemoryStore) ClearNotices(ch Channel) {
	s.setNotice(ch, Notice{})
}

func (s *MemoryStore) setNotice(ch Channel, n Notice) {
	s.update(FieldNotice, ch, func(st *Snapshot) bool {
		if st.Notices[ch] == n {
			return false
		}
		if n == (Notice{}) {
			delete(st.Notices, ch)
		} else {
			st.Notices[ch] = n
		}
		return true
	})
}

func (s *MemoryStore) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
