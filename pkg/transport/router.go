package transport

import (
	"log/slog"
	"sync"

	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/google/uuid"
)

type registration struct {
	id       string
	label    string
	tags     protocol.TagSet
	handlers Handlers
}

// Router holds the registrations of a transport and dispatches inbound
// notifications to them. It is safe for concurrent use.
type Router struct {
	mu   sync.RWMutex
	regs []*registration
}

// Add registers handlers for tags and returns the registration id.
func (r *Router) Add(label string, tags []protocol.Tag, h Handlers) string {
	reg := &registration{
		id:       uuid.NewString(),
		label:    label,
		tags:     protocol.NewTagSet(tags...),
		handlers: h,
	}

	r.mu.Lock()
	r.regs = append(r.regs, reg)
	r.mu.Unlock()

	return reg.id
}

// Remove drops the registration with the given id.
func (r *Router) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.regs {
		if reg.id == id {
			r.regs = append(r.regs[:i:i], r.regs[i+1:]...)
			return
		}
	}
}

// Reset drops every registration.
func (r *Router) Reset() {
	r.mu.Lock()
	r.regs = nil
	r.mu.Unlock()
}

// Len returns the number of registrations.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

func (r *Router) snapshot() []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := make([]*registration, len(r.regs))
	copy(regs, r.regs)
	return regs
}

// Dispatch delivers n to every registration whose tag set matches, in
// registration order. It returns the number of registrations reached; an
// unmatched notification is logged and dropped.
func (r *Router) Dispatch(n protocol.Notification) int {
	delivered := 0
	for _, reg := range r.snapshot() {
		if !reg.tags.Matches(n.Tag) || reg.handlers.OnMessage == nil {
			continue
		}
		reg.handlers.OnMessage(reg.label, n)
		delivered++
	}
	if delivered == 0 {
		slog.Debug("notification_unhandled", "tag", n.Tag, "type", n.Type, "code", n.Data.Code)
	}
	return delivered
}

// NotifyState forwards a connection state change to every registration.
func (r *Router) NotifyState(connected bool) {
	for _, reg := range r.snapshot() {
		if reg.handlers.OnStateChange != nil {
			reg.handlers.OnStateChange(connected)
		}
	}
}

// NotifyError forwards a transport failure to every registration.
func (r *Router) NotifyError(err error) {
	for _, reg := range r.snapshot() {
		if reg.handlers.OnError != nil {
			reg.handlers.OnError(err)
		}
	}
}

// NotifyReconnect invokes every registered reconnect handler.
func (r *Router) NotifyReconnect() {
	for _, reg := range r.snapshot() {
		if reg.handlers.OnReconnect != nil {
			reg.handlers.OnReconnect()
		}
	}
}
