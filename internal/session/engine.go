package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"labattend/internal/clock"
	"labattend/internal/directory"
	"labattend/internal/feedback"
	"labattend/internal/metrics"
	"labattend/internal/model"
	"labattend/internal/scanner"
)

var (
	ErrNoLabSelected   = errors.New("please select a lab first")
	ErrScannerRequired = errors.New("please connect a scanner first")
	ErrSessionActive   = errors.New("a session is already active")
	ErrNoSession       = errors.New("no active session")
	ErrEmptyInput      = errors.New("empty scan input")
	ErrEmptyRoster     = errors.New("no students were scanned")
)

// Directory is the student lookup the engine scans against.
type Directory interface {
	FindStudent(id string) (directory.User, bool)
	IsEnrolled(student directory.User, lab string) bool
	EnrolledCount(lab string) int
}

// Connectivity reports whether a hardware scanner exists and is linked.
type Connectivity interface {
	Supported() bool
	Status() scanner.Status
}

// Finalizer materializes a finished session.
type Finalizer interface {
	Finalize(ctx context.Context, s model.Session, totalEnrolled, staffID int, end time.Time) (model.Completed, error)
}

// Confirmer decides whether a student not enrolled in the lab is marked anyway.
// It is called with the engine locked and must not call back into it.
type Confirmer interface {
	ConfirmUnenrolled(student directory.User, lab string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(student directory.User, lab string) bool

func (f ConfirmFunc) ConfirmUnenrolled(student directory.User, lab string) bool {
	return f(student, lab)
}

type always bool

func (a always) ConfirmUnenrolled(directory.User, string) bool { return bool(a) }

// Always answers every confirmation with ok.
func Always(ok bool) Confirmer { return always(ok) }

// Result describes one processed scan.
type Result struct {
	Outcome     Outcome         `json:"outcome"`
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	Event       model.ScanEvent `json:"event"`
	Feedback    feedback.Signal `json:"feedback"`
}

// EndOptions controls End.
type EndOptions struct {
	StaffID int
	// ConfirmEmpty ends the session even when nobody was scanned.
	ConfirmEmpty bool
}

// EndResult is everything the caller needs after a session closes.
type EndResult struct {
	Summary model.Summary     `json:"summary"`
	Records []model.Record    `json:"records"`
	ScanLog []model.ScanEvent `json:"scan_log"`
	// Discarded is unsubmitted keyboard input dropped on termination.
	Discarded string `json:"discarded,omitempty"`
}

// Options configures NewEngine.
type Options struct {
	Connectivity   Connectivity
	Clock          clock.Clock
	Notifier       feedback.Notifier
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	BannerDuration time.Duration
}

// Engine runs at most one scan session at a time.
type Engine struct {
	dir   Directory
	fin   Finalizer
	conn  Connectivity
	clock clock.Clock
	note  feedback.Notifier
	m     *metrics.Metrics
	log   *zap.Logger
	dur   time.Duration

	mu     sync.Mutex
	active *state
	buf    strings.Builder
}

type state struct {
	id         string
	lab        string
	startedAt  time.Time
	roster     []model.RosterEntry
	index      map[string]int
	duplicates []model.DuplicateAttempt
	scanLog    []model.ScanEvent
}

// NewEngine wires an engine to its directory and finalizer.
func NewEngine(dir Directory, fin Finalizer, opts Options) *Engine {
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
	if opts.BannerDuration <= 0 {
		opts.BannerDuration = feedback.DefaultBannerDuration
	}
	return &Engine{
		dir:   dir,
		fin:   fin,
		conn:  opts.Connectivity,
		clock: opts.Clock,
		note:  opts.Notifier,
		m:     opts.Metrics,
		log:   opts.Logger.Named("session"),
		dur:   opts.BannerDuration,
	}
}

// Start opens a session for lab.
func (e *Engine) Start(lab string) (model.Session, error) {
	lab = strings.TrimSpace(lab)
	if lab == "" {
		return model.Session{}, ErrNoLabSelected
	}
	if e.conn != nil && e.conn.Supported() && e.conn.Status().State != scanner.Connected {
		return model.Session{}, ErrScannerRequired
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return model.Session{}, ErrSessionActive
	}
	now := e.clock.Now()
	e.active = &state{
		id:        fmt.Sprintf("session_%d", now.UnixMilli()),
		lab:       lab,
		startedAt: now,
		index:     make(map[string]int),
	}
	e.buf.Reset()
	e.m.SessionsActive.Set(1)
	e.log.Info("session started", zap.String("session_id", e.active.id), zap.String("lab", lab))
	e.note.Notify(feedback.Success("Session started for "+lab, feedback.BriefBannerDuration))
	return e.active.snapshot(), nil
}

// Active reports whether a session is open.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Snapshot returns a copy of the open session.
func (e *Engine) Snapshot() (model.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return model.Session{}, false
	}
	return e.active.snapshot(), true
}

// Submit processes one scanned or typed identifier.
func (e *Engine) Submit(ctx context.Context, raw string, c Confirmer) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()
	return e.submitLocked(raw, c)
}

func (e *Engine) submitLocked(raw string, c Confirmer) (Result, error) {
	s := e.active
	if s == nil {
		return Result{}, ErrNoSession
	}
	id := directory.CanonicalID(raw)
	if id == "" {
		return Result{}, ErrEmptyInput
	}

	now := e.clock.Now()
	student, found := e.dir.FindStudent(id)
	name := "Unknown"
	if found {
		name = student.Name
	}
	s.scanLog = append(s.scanLog, model.ScanEvent{
		Timestamp:   now,
		StudentID:   id,
		StudentName: name,
		Status:      model.ScanPending,
		Lab:         s.lab,
		SessionID:   s.id,
	})
	ev := &s.scanLog[len(s.scanLog)-1]
	res := Result{StudentID: id, StudentName: name}

	enrolled := false
	switch {
	case !found:
		res.Outcome = NotFound
		ev.Status = model.ScanNotFound
		res.Feedback = feedback.Error(fmt.Sprintf("Student ID %s not found!", id), e.dur)
	case s.has(id):
		res.Outcome = Duplicate
		ev.Status = model.ScanDuplicate
		s.duplicates = append(s.duplicates, model.DuplicateAttempt{StudentID: id, Time: now})
		res.Feedback = feedback.Error(fmt.Sprintf("%s (%s) already scanned!", name, id), e.dur)
	default:
		enrolled = e.dir.IsEnrolled(student, s.lab)
		if enrolled {
			res.Outcome = Success
			ev.Status = model.ScanSuccess
		} else {
			if c == nil || !c.ConfirmUnenrolled(student, s.lab) {
				res.Outcome = Declined
				res.Event = *ev
				e.m.Scans.WithLabelValues(res.Outcome.String()).Inc()
				e.log.Debug("unenrolled scan declined", zap.String("student_id", id), zap.String("lab", s.lab))
				return res, nil
			}
			res.Outcome = NotEnrolledButMarked
			ev.Status = model.ScanNotEnrolledButMarked
		}
		s.index[id] = len(s.roster)
		s.roster = append(s.roster, model.RosterEntry{StudentID: id, Name: name, ScanTime: now, Enrolled: enrolled})
		res.Feedback = feedback.Success(fmt.Sprintf("%s (%s) marked present", name, id), e.dur)
	}

	res.Event = *ev
	e.m.Scans.WithLabelValues(res.Outcome.String()).Inc()
	e.note.Notify(res.Feedback)
	e.log.Debug("scan processed",
		zap.String("session_id", s.id),
		zap.String("student_id", id),
		zap.Stringer("outcome", res.Outcome),
	)
	return res, nil
}

// Feed appends keyboard-wedge input. Each CR or LF submits the buffered
// identifier; blank lines are skipped. Results come back in input order.
func (e *Engine) Feed(ctx context.Context, chunk string, c Confirmer) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return nil, ErrNoSession
	}

	var out []Result
	for _, r := range chunk {
		if r != '\r' && r != '\n' {
			e.buf.WriteRune(r)
			continue
		}
		line := e.buf.String()
		e.buf.Reset()
		res, err := e.submitLocked(line, c)
		if errors.Is(err, ErrEmptyInput) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Pending returns keyboard input not yet terminated by a newline.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}

// Remove takes a student off the open session's roster. The scan log is kept.
func (e *Engine) Remove(studentID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.active
	if s == nil {
		return false, ErrNoSession
	}
	id := directory.CanonicalID(studentID)
	i, ok := s.index[id]
	if !ok {
		return false, nil
	}
	s.roster = append(s.roster[:i], s.roster[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.roster); j++ {
		s.index[s.roster[j].StudentID] = j
	}
	e.log.Info("student removed from roster", zap.String("session_id", s.id), zap.String("student_id", id))
	return true, nil
}

// End closes the session and materializes its roster. Unsubmitted keyboard
// input is discarded. If materialization fails the session stays open.
func (e *Engine) End(ctx context.Context, opts EndOptions) (EndResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.active
	if s == nil {
		return EndResult{}, ErrNoSession
	}
	discarded := e.buf.String()
	e.buf.Reset()
	if len(s.roster) == 0 && !opts.ConfirmEmpty {
		return EndResult{Discarded: discarded}, ErrEmptyRoster
	}

	snap := s.snapshot()
	end := e.clock.Now()
	done, err := e.fin.Finalize(ctx, snap, e.dir.EnrolledCount(s.lab), opts.StaffID, end)
	if err != nil {
		return EndResult{Discarded: discarded}, fmt.Errorf("end session %s: %w", s.id, err)
	}

	e.active = nil
	e.m.SessionsActive.Set(0)
	e.m.SessionsCompleted.Inc()
	e.log.Info("session ended",
		zap.String("session_id", snap.ID),
		zap.Int("present", done.Summary.Present),
		zap.Int("absent", done.Summary.Absent),
	)
	return EndResult{
		Summary:   done.Summary,
		Records:   done.Records,
		ScanLog:   snap.ScanLog,
		Discarded: discarded,
	}, nil
}

func (s *state) has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *state) snapshot() model.Session {
	return model.Session{
		ID:         s.id,
		Lab:        s.lab,
		StartedAt:  s.startedAt,
		Roster:     append([]model.RosterEntry(nil), s.roster...),
		Duplicates: append([]model.DuplicateAttempt(nil), s.duplicates...),
		ScanLog:    append([]model.ScanEvent(nil), s.scanLog...),
	}
}
