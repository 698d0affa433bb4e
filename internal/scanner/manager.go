package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"labattend/internal/clock"
	"labattend/internal/feedback"
	"labattend/internal/metrics"
)

// State is the connection lifecycle of the single active scanner.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrUnknownDevice    = errors.New("device was not returned by discovery")
	ErrBusy             = errors.New("scanner operation already in progress")
	ErrAlreadyConnected = errors.New("scanner already connected")
	ErrNoDevice         = errors.New("no scanner to reconnect")
)

// ConnectionError reports a failed connect or reconnect.
type ConnectionError struct {
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Status is a consistent snapshot of the manager.
type Status struct {
	State            State   `json:"state"`
	Device           *Device `json:"device,omitempty"`
	Err              string  `json:"error,omitempty"`
	Advisory         string  `json:"advisory,omitempty"`
	Supported        bool    `json:"supported"`
	Discovering      bool    `json:"discovering"`
	AutoReconnect    bool    `json:"auto_reconnect"`
	ReconnectPending bool    `json:"reconnect_pending"`
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	AutoReconnect  bool
	Clock          clock.Clock
	Notifier       feedback.Notifier
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	// OnTransition observes every state change. It runs with the manager's
	// lock held and must not call back into the Manager.
	OnTransition func(from, to State)
}

// Manager owns the connect/disconnect lifecycle of one scanner at a time.
type Manager struct {
	transport      Transport
	clock          clock.Clock
	notify         feedback.Notifier
	metrics        *metrics.Metrics
	log            *zap.Logger
	reconnectDelay time.Duration
	connectTimeout time.Duration
	onTransition   func(from, to State)

	mu            sync.Mutex
	state         State
	errMsg        string
	advisory      string
	active        *Device
	remembered    *Device
	handle        Handle
	devices       []Device
	discovering   bool
	connecting    bool
	autoReconnect bool
	reconnect     clock.Timer
	reconnectGen  int
	// linkGen is bumped on every connect or intentional disconnect so that
	// callbacks from superseded links are ignored.
	linkGen int
}

// NewManager creates a manager in the Disconnected state.
func NewManager(t Transport, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifier == nil {
		opts.Notifier = feedback.Discard{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		transport:      t,
		clock:          opts.Clock,
		notify:         opts.Notifier,
		metrics:        opts.Metrics,
		log:            opts.Logger.Named("scanner"),
		reconnectDelay: opts.ReconnectDelay,
		connectTimeout: opts.ConnectTimeout,
		autoReconnect:  opts.AutoReconnect,
		onTransition:   opts.OnTransition,
	}
}

// Supported reports whether the platform has scanner hardware.
func (m *Manager) Supported() bool { return m.transport.Supported() }

// Status returns the current snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:            m.state,
		Err:              m.errMsg,
		Advisory:         m.advisory,
		Supported:        m.transport.Supported(),
		Discovering:      m.discovering,
		AutoReconnect:    m.autoReconnect,
		ReconnectPending: m.reconnect != nil,
	}
	if m.active != nil {
		d := *m.active
		st.Device = &d
	}
	return st
}

// Devices returns the candidates from the last successful discovery.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// SetAutoReconnect toggles recovery for the next unexpected disconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	m.autoReconnect = enabled
	m.mu.Unlock()
	m.log.Info("auto-reconnect toggled", zap.Bool("enabled", enabled))
}

// Discover lists candidate devices.
func (m *Manager) Discover(ctx context.Context) ([]Device, error) {
	if !m.transport.Supported() {
		m.mu.Lock()
		m.advisory = "Scanner hardware is not supported on this platform. Use manual entry."
		m.mu.Unlock()
		return nil, ErrPlatformUnsupported
	}

	m.mu.Lock()
	if m.discovering {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.discovering = true
	m.advisory = ""
	m.mu.Unlock()

	devices, err := m.transport.Discover(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovering = false
	if err != nil {
		m.log.Warn("discovery failed", zap.Error(err))
		switch {
		case errors.Is(err, ErrPermissionDenied):
			m.advisory = "Scanner access denied. Allow access and try again."
		case errors.Is(err, ErrPlatformUnsupported):
			m.advisory = "Scanner hardware is not supported on this platform. Use manual entry."
		default:
			m.advisory = "Discovery failed: " + err.Error()
		}
		return nil, fmt.Errorf("discover: %w", err)
	}
	m.devices = append(m.devices[:0], devices...)
	m.log.Info("discovery finished", zap.Int("devices", len(devices)))
	out := make([]Device, len(devices))
	copy(out, devices)
	return out, nil
}

// Connect opens a link to a device returned by the last discovery.
func (m *Manager) Connect(ctx context.Context, deviceID string) (Status, error) {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return m.Status(), ErrBusy
	}
	if m.state == Connected {
		m.mu.Unlock()
		return m.Status(), ErrAlreadyConnected
	}
	var dev *Device
	for i := range m.devices {
		if m.devices[i].ID == deviceID {
			d := m.devices[i]
			dev = &d
			break
		}
	}
	if dev == nil {
		m.mu.Unlock()
		return m.Status(), ErrUnknownDevice
	}
	m.mu.Unlock()

	err := m.open(ctx, *dev, false)
	return m.Status(), err
}

// Retry manually reconnects the remembered device after a failure or loss.
func (m *Manager) Retry(ctx context.Context) (Status, error) {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return m.Status(), ErrBusy
	}
	if m.state == Connected {
		m.mu.Unlock()
		return m.Status(), ErrAlreadyConnected
	}
	if m.remembered == nil {
		m.mu.Unlock()
		return m.Status(), ErrNoDevice
	}
	dev := *m.remembered
	m.mu.Unlock()

	err := m.open(ctx, dev, true)
	return m.Status(), err
}

// open runs Connecting -> Connected|Error for dev.
func (m *Manager) open(ctx context.Context, dev Device, reconnect bool) error {
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return ErrBusy
	}
	m.cancelReconnectLocked()
	m.connecting = true
	m.linkGen++
	gen := m.linkGen
	m.transition(Connecting, "")
	m.mu.Unlock()

	h, err := m.transport.Connect(ctx, dev, func() { m.lost(gen) })

	m.mu.Lock()
	m.connecting = false
	if gen != m.linkGen {
		// An intentional Disconnect happened while connecting.
		m.mu.Unlock()
		if err == nil {
			_ = m.transport.Disconnect(h)
		}
		return &ConnectionError{Reason: "connection cancelled"}
	}
	if err != nil {
		reason := "Failed to connect: " + err.Error()
		if reconnect {
			reason = "Reconnection failed"
		}
		m.transition(Error, reason)
		m.mu.Unlock()
		m.log.Warn("connect failed", zap.String("device", dev.ID), zap.Bool("reconnect", reconnect), zap.Error(err))
		m.notify.Notify(feedback.Error("Connection failed", feedback.DeviceBannerDuration))
		return &ConnectionError{Reason: reason, Err: err}
	}
	m.handle = h
	m.active = &dev
	m.remembered = &dev
	m.transition(Connected, "")
	m.mu.Unlock()

	m.log.Info("scanner connected", zap.String("device", dev.ID), zap.String("name", dev.Name), zap.Bool("reconnect", reconnect))
	msg := "Connected to " + dev.DisplayName()
	if reconnect {
		msg = "Reconnected successfully"
	}
	m.notify.Notify(feedback.Success(msg, feedback.DeviceBannerDuration))
	return nil
}

// Disconnect closes the link on request. Idempotent.
func (m *Manager) Disconnect() Status {
	m.mu.Lock()
	m.cancelReconnectLocked()
	wasIdle := m.state == Disconnected && m.handle == nil && !m.connecting
	h := m.handle
	m.handle = nil
	m.active = nil
	m.remembered = nil
	m.linkGen++
	if !wasIdle {
		m.transition(Disconnected, "")
	}
	m.mu.Unlock()

	if wasIdle {
		return m.Status()
	}
	if h != nil {
		if err := m.transport.Disconnect(h); err != nil {
			m.log.Warn("transport disconnect failed", zap.Error(err))
		}
	}
	m.log.Info("scanner disconnected by operator")
	m.notify.Notify(feedback.Success("Scanner disconnected", feedback.DeviceBannerDuration))
	return m.Status()
}

// HandleDisconnection is the platform's signal that the current link dropped.
func (m *Manager) HandleDisconnection() {
	m.mu.Lock()
	gen := m.linkGen
	m.mu.Unlock()
	m.lost(gen)
}

func (m *Manager) lost(gen int) {
	m.mu.Lock()
	if gen != m.linkGen || m.state != Connected {
		m.mu.Unlock()
		return
	}
	dev := m.active
	m.handle = nil
	m.active = nil
	m.transition(Disconnected, "")
	scheduled := false
	if m.autoReconnect && m.remembered != nil {
		m.reconnectGen++
		rgen := m.reconnectGen
		m.reconnect = m.clock.AfterFunc(m.reconnectDelay, func() { m.autoReconnectFire(rgen) })
		scheduled = true
	}
	m.mu.Unlock()

	fields := []zap.Field{zap.Bool("reconnect_scheduled", scheduled)}
	if dev != nil {
		fields = append(fields, zap.String("device", dev.ID))
	}
	m.log.Warn("scanner link lost", fields...)
	m.notify.Notify(feedback.Error("Scanner disconnected", feedback.DeviceBannerDuration))
}

func (m *Manager) autoReconnectFire(rgen int) {
	m.mu.Lock()
	if rgen != m.reconnectGen || m.reconnect == nil {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	if m.state != Disconnected || m.remembered == nil || m.connecting {
		m.mu.Unlock()
		return
	}
	dev := *m.remembered
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout)
	defer cancel()
	if err := m.open(ctx, dev, true); err != nil {
		m.metrics.Reconnects.WithLabelValues("failed").Inc()
		return
	}
	m.metrics.Reconnects.WithLabelValues("succeeded").Inc()
}

// cancelReconnectLocked must be called with m.mu held.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
		m.reconnectGen++
	}
}

// transition must be called with m.mu held.
func (m *Manager) transition(to State, errMsg string) {
	if to == Error && errMsg == "" {
		errMsg = "scanner error"
	}
	if to != Error {
		errMsg = ""
	}
	from := m.state
	m.state = to
	m.errMsg = errMsg
	m.metrics.ScannerState.WithLabelValues(to.String()).Inc()
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}
