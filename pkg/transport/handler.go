package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	"github.com/gorilla/websocket"
)

// Default connection settings of the device's command endpoint.
const (
	DefaultPort             = 9900
	DefaultPath             = "/"
	DefaultHandshakeTimeout = 3 * time.Second
)

// Options configure a Handler.
type Options struct {
	Port              int
	Path              string
	HandshakeTimeout  time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	DeviceID          int
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return o
}

// Handler is the WebSocket Transport. Commands queued by Prepare are written by
// a single writer in submission order; a reader goroutine decodes frames and
// dispatches them through the Router.
type Handler struct {
	opts   Options
	router Router

	// writeMu serialises queue flushes so commands hit the wire in order.
	// Lock order: writeMu, then mu.
	writeMu sync.Mutex

	mu         sync.Mutex
	addr       string
	conn       *websocket.Conn
	gen        int
	connecting bool
	stopped    bool
	queue      []protocol.Command
	deviceID   int
	closeTimer func()
	stopTimer  func()
}

// Compile-time assertion that Handler implements Transport
var _ Transport = (*Handler)(nil)

// NewHandler creates a transport for the device at addr. No connection is made
// until Run is called.
func NewHandler(addr string, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		opts:     opts,
		addr:     addr,
		deviceID: opts.DeviceID,
	}
}

func (h *Handler) url() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(h.addr, strconv.Itoa(h.opts.Port)),
		Path:   h.opts.Path,
	}
	return u.String()
}

func (h *Handler) Prepare(cmds []protocol.Command, label string, tags []protocol.Tag, hs Handlers) string {
	id := h.router.Add(label, tags, hs)

	h.mu.Lock()
	h.queue = append(h.queue, cmds...)
	connected := h.conn != nil
	h.mu.Unlock()

	slog.Debug("transport_prepare", "label", label, "commands", len(cmds), "tags", len(tags))

	if connected {
		h.flush()
	}
	return id
}

func (h *Handler) Unregister(id string) {
	h.router.Remove(id)
}

func (h *Handler) Run() bool {
	h.mu.Lock()
	if h.stopped || h.addr == "" {
		h.mu.Unlock()
		return false
	}
	if h.conn != nil {
		h.mu.Unlock()
		h.flush()
		return true
	}
	if h.connecting {
		h.mu.Unlock()
		return true
	}
	h.connecting = true
	h.mu.Unlock()

	go func() {
		if err := h.connect(); err != nil {
			slog.Error("transport_connect_failed", "addr", h.addr, "error", err)
			h.router.NotifyError(err)
			h.router.NotifyState(false)
		}
	}()
	return true
}

func (h *Handler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

func (h *Handler) connect() error {
	h.mu.Lock()
	target := h.url()
	h.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: h.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		h.mu.Lock()
		h.connecting = false
		h.mu.Unlock()
		return errors.Wrap(err, "failed to connect to device")
	}

	h.mu.Lock()
	if h.stopped {
		h.connecting = false
		h.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	h.conn = conn
	h.gen++
	gen := h.gen
	h.connecting = false
	h.mu.Unlock()

	slog.Info("transport_connected", "url", target)

	go h.readLoop(conn, gen)
	h.router.NotifyState(true)
	h.flush()
	return nil
}

func (h *Handler) flush() {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	conn := h.conn
	if conn == nil {
		h.mu.Unlock()
		return
	}
	queue := h.queue
	h.queue = nil
	deviceID := h.deviceID
	h.mu.Unlock()

	for i, cmd := range queue {
		frame, err := protocol.Encode(cmd, deviceID)
		if err != nil {
			slog.Error("transport_encode_failed", "tag", cmd.Tag, "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			slog.Error("transport_write_failed", "tag", cmd.Tag, "error", err)
			// Requeue what was not written; the reader will notice the broken
			// connection and reconnection will flush it.
			h.mu.Lock()
			h.queue = append(append([]protocol.Command{}, queue[i:]...), h.queue...)
			h.mu.Unlock()
			return
		}
		slog.Debug("transport_sent", "tag", cmd.Tag)
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.dropped(conn, gen, err)
			return
		}

		n, err := protocol.Decode(data)
		if err != nil {
			slog.Warn("transport_bad_frame", "error", err)
			continue
		}
		h.router.Dispatch(n)
	}
}

// dropped handles a connection lost underneath the handler. Connections closed
// on purpose have already been detached and are ignored here.
func (h *Handler) dropped(conn *websocket.Conn, gen int, cause error) {
	h.mu.Lock()
	if h.conn != conn || h.gen != gen {
		h.mu.Unlock()
		return
	}
	h.conn = nil
	stopped := h.stopped
	h.mu.Unlock()

	conn.Close()
	slog.Warn("transport_connection_lost", "addr", h.addr, "error", cause)

	h.router.NotifyError(errors.Wrap(cause, "connection lost"))
	h.router.NotifyState(false)

	if !stopped && h.opts.ReconnectAttempts > 0 {
		go h.reconnect()
	}
}

func (h *Handler) reconnect() {
	for attempt := 1; attempt <= h.opts.ReconnectAttempts; attempt++ {
		time.Sleep(h.opts.ReconnectDelay)

		h.mu.Lock()
		if h.stopped || h.conn != nil || h.connecting {
			h.mu.Unlock()
			return
		}
		h.connecting = true
		h.mu.Unlock()

		err := h.connect()
		if err == nil {
			slog.Info("transport_reconnected", "addr", h.addr, "attempt", attempt)
			h.router.NotifyReconnect()
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		slog.Warn("transport_reconnect_failed", "addr", h.addr, "attempt", attempt, "error", err)
	}
}

// detach removes the current connection so its reader exits quietly.
func (h *Handler) detach() *websocket.Conn {
	conn := h.conn
	h.conn = nil
	h.gen++
	return conn
}

func closeConn(conn *websocket.Conn, reason string) {
	if conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func (h *Handler) HandleClose(reason string) {
	h.mu.Lock()
	conn := h.detach()
	hook := h.closeTimer
	h.mu.Unlock()

	closeConn(conn, reason)
	slog.Info("transport_closed", "addr", h.addr, "reason", reason)

	h.router.NotifyState(false)
	if hook != nil {
		hook()
	}
}

func (h *Handler) Cleanup(force bool) {
	h.mu.Lock()
	conn := h.detach()
	h.queue = nil
	if force {
		h.stopped = true
	}
	hook := h.stopTimer
	h.mu.Unlock()

	closeConn(conn, "cleanup")
	slog.Info("transport_cleanup", "addr", h.addr, "force", force)

	h.router.NotifyState(false)
	h.router.Reset()
	if force && hook != nil {
		hook()
	}
}

func (h *Handler) SetDeviceID(id int) bool {
	if id <= 0 {
		return false
	}
	h.mu.Lock()
	h.deviceID = id
	h.mu.Unlock()
	return true
}

// SetNewIP points the handler at a new device address. The current connection,
// if any, is closed; the next Run connects to the new address.
func (h *Handler) SetNewIP(ctx context.Context, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ip == "" {
		return fmt.Errorf("device address cannot be empty")
	}

	h.mu.Lock()
	if h.addr == ip {
		h.mu.Unlock()
		return nil
	}
	h.addr = ip
	conn := h.detach()
	h.mu.Unlock()

	closeConn(conn, "address changed")
	slog.Info("transport_address_changed", "addr", ip)
	return nil
}

func (h *Handler) SetCloseTimerHandler(fn func()) {
	h.mu.Lock()
	h.closeTimer = fn
	h.mu.Unlock()
}

func (h *Handler) SetStopTimerHandler(fn func()) {
	h.mu.Lock()
	h.stopTimer = fn
	h.mu.Unlock()
}
