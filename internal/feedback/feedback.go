package feedback

import (
	"sync"
	"time"

	"labattend/internal/clock"
)

// Kind classifies a feedback signal.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Tone is an audible cue.
type Tone struct {
	FrequencyHz int           `json:"frequency_hz"`
	Duration    time.Duration `json:"duration"`
}

var (
	SuccessTone = Tone{FrequencyHz: 1000, Duration: 150 * time.Millisecond}
	ErrorTone   = Tone{FrequencyHz: 400, Duration: 300 * time.Millisecond}
)

const (
	DefaultBannerDuration = 3 * time.Second
	DeviceBannerDuration  = 3 * time.Second
	BriefBannerDuration   = 2 * time.Second
)

// Signal is one tone plus banner emitted to the operator.
type Signal struct {
	Kind     Kind          `json:"kind"`
	Message  string        `json:"message"`
	Tone     *Tone         `json:"tone,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success builds a success signal with the success tone.
func Success(msg string, d time.Duration) Signal {
	t := SuccessTone
	return Signal{Kind: KindSuccess, Message: msg, Tone: &t, Duration: d}
}

// Error builds an error signal with the error tone.
func Error(msg string, d time.Duration) Signal {
	t := ErrorTone
	return Signal{Kind: KindError, Message: msg, Tone: &t, Duration: d}
}

// Notifier receives operator feedback.
type Notifier interface {
	Notify(Signal)
}

// Discard drops every signal.
type Discard struct{}

func (Discard) Notify(Signal) {}

// Board holds the single visible banner and clears it once its duration
// elapses. A newer banner replaces the older one and its pending clear.
type Board struct {
	clock clock.Clock

	mu      sync.Mutex
	current *Signal
	gen     int
	timer   clock.Timer
	history []Signal
	limit   int
}

// NewBoard creates a board that keeps the last limit signals.
func NewBoard(c clock.Clock, limit int) *Board {
	if limit <= 0 {
		limit = 50
	}
	return &Board{clock: c, limit: limit}
}

// Notify shows s and schedules it to clear.
func (b *Board) Notify(s Signal) {
	if s.Duration <= 0 {
		s.Duration = DefaultBannerDuration
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	cur := s
	b.current = &cur
	b.history = append(b.history, s)
	if len(b.history) > b.limit {
		b.history = b.history[len(b.history)-b.limit:]
	}
	b.timer = b.clock.AfterFunc(s.Duration, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.current = nil
			b.timer = nil
		}
	})
}

// Current returns the visible banner, if any.
func (b *Board) Current() (Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Signal{}, false
	}
	return *b.current, true
}

// History returns recent signals, oldest first.
func (b *Board) History() []Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Signal, len(b.history))
	copy(out, b.history)
	return out
}

// Recorder collects signals; handy in tests and for fan-out.
type Recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *Recorder) Notify(s Signal) {
	r.mu.Lock()
	r.signals = append(r.signals, s)
	r.mu.Unlock()
}

// Signals returns a copy of everything recorded.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, len(r.signals))
	copy(out, r.signals)
	return out
}

// Multi fans a signal out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(s Signal) {
	for _, n := range m {
		if n != nil {
			n.Notify(s)
		}
	}
}
