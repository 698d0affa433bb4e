package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Device is one pairable barcode scanner.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName falls back to "Scanner" for unnamed devices.
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.Name) == "" {
		return "Scanner"
	}
	return d.Name
}

// Handle is the transport's connection token. The manager never looks inside.
type Handle any

// Transport wraps the platform's hardware API.
type Transport interface {
	// Supported reports whether the platform exposes scanner hardware at all.
	Supported() bool
	Discover(ctx context.Context) ([]Device, error)
	// Connect opens a link. onDisconnect is invoked by the transport when the
	// link drops for any reason after a successful connect.
	Connect(ctx context.Context, d Device, onDisconnect func()) (Handle, error)
	Disconnect(h Handle) error
}

var (
	ErrPlatformUnsupported = errors.New("scanner hardware not supported on this platform")
	ErrPermissionDenied    = errors.New("scanner access denied")
)

// Unsupported is the transport for manual-entry-only platforms.
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }

func (Unsupported) Discover(context.Context) ([]Device, error) {
	return nil, ErrPlatformUnsupported
}

func (Unsupported) Connect(context.Context, Device, func()) (Handle, error) {
	return nil, ErrPlatformUnsupported
}

func (Unsupported) Disconnect(Handle) error { return nil }

// Simulated is an in-process transport with a fixed set of virtual devices.
// Drop emulates the device going out of range.
type Simulated struct {
	mu      sync.Mutex
	devices []Device
	failing map[string]bool
	denied  bool
	links   map[string]*simLink
}

type simLink struct {
	device       Device
	onDisconnect func()
	open         bool
}

// NewSimulated builds a transport exposing one device per name.
func NewSimulated(names ...string) *Simulated {
	s := &Simulated{failing: map[string]bool{}, links: map[string]*simLink{}}
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		s.devices = append(s.devices, Device{ID: fmt.Sprintf("sim-%d", i+1), Name: n})
	}
	return s
}

func (s *Simulated) Supported() bool { return true }

func (s *Simulated) Discover(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return nil, ErrPermissionDenied
	}
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

func (s *Simulated) Connect(ctx context.Context, d Device, onDisconnect func()) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[d.ID] {
		return nil, fmt.Errorf("GATT server unreachable for %s", d.ID)
	}
	l := &simLink{device: d, onDisconnect: onDisconnect, open: true}
	s.links[d.ID] = l
	return l, nil
}

func (s *Simulated) Disconnect(h Handle) error {
	l, ok := h.(*simLink)
	if !ok || l == nil {
		return nil
	}
	s.mu.Lock()
	wasOpen := l.open
	l.open = false
	s.mu.Unlock()
	if wasOpen && l.onDisconnect != nil {
		l.onDisconnect()
	}
	return nil
}

// Drop severs the link to deviceID as if the device went away.
func (s *Simulated) Drop(deviceID string) bool {
	s.mu.Lock()
	l, ok := s.links[deviceID]
	if !ok || !l.open {
		s.mu.Unlock()
		return false
	}
	l.open = false
	s.mu.Unlock()
	if l.onDisconnect != nil {
		l.onDisconnect()
	}
	return true
}

// SetFailing makes future connects to deviceID fail.
func (s *Simulated) SetFailing(deviceID string, failing bool) {
	s.mu.Lock()
	s.failing[deviceID] = failing
	s.mu.Unlock()
}

// SetDenied makes discovery fail with ErrPermissionDenied.
func (s *Simulated) SetDenied(denied bool) {
	s.mu.Lock()
	s.denied = denied
	s.mu.Unlock()
}
