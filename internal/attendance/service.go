package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"labattend/internal/metrics"
	"labattend/internal/model"
	"labattend/internal/queue"
)

// DefaultPercentage is stamped on materialized records when no score is
// configured.
const DefaultPercentage = 85

// DefaultPublishTimeout bounds the completion announcement.
const DefaultPublishTimeout = 2 * time.Second

// CompletedMessage is the queue message type for a materialized session.
const CompletedMessage = "session.completed"

// Publisher is the outbound side of queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Materializer turns a finished session's roster into attendance records.
type Materializer struct {
	repo       Repository
	pub        Publisher
	percentage int
	publishTTL time.Duration
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// MaterializerOptions configures NewMaterializer.
type MaterializerOptions struct {
	// Percentage stamped on every record. Zero selects DefaultPercentage.
	Percentage     int
	// PublishTimeout caps how long Finalize waits on the queue.
	PublishTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// NewMaterializer creates a materializer writing to repo. pub may be nil.
func NewMaterializer(repo Repository, pub Publisher, opts MaterializerOptions) *Materializer {
	if opts.Percentage <= 0 {
		opts.Percentage = DefaultPercentage
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Materializer{
		repo:       repo,
		pub:        pub,
		percentage: opts.Percentage,
		publishTTL: opts.PublishTimeout,
		metrics:    opts.Metrics,
		log:        opts.Logger.Named("materializer"),
	}
}

// ElapsedSeconds is the whole seconds between start and end, never negative.
func ElapsedSeconds(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// Materialize builds the present record for one roster entry.
func Materialize(s model.Session, e model.RosterEntry, staffID, percentage int, end time.Time) model.Record {
	return model.Record{
		ID:              NewID(),
		StudentID:       e.StudentID,
		Date:            end.UTC().Format("2006-01-02"),
		Lab:             s.Lab,
		Status:          model.StatusPresent,
		Percentage:      percentage,
		MarkedBy:        staffID,
		SessionDuration: ElapsedSeconds(s.StartedAt, end),
		SessionID:       s.ID,
	}
}

// ComputeSummary tallies a session against the lab's enrolled population.
// Students marked without enrollment count as present but are not taken
// off the enrolled total, so Absent never goes negative.
func ComputeSummary(s model.Session, totalEnrolled int, end time.Time) model.Summary {
	enrolledPresent := 0
	for _, e := range s.Roster {
		if e.Enrolled {
			enrolledPresent++
		}
	}
	absent := totalEnrolled - enrolledPresent
	if absent < 0 {
		absent = 0
	}
	return model.Summary{
		SessionID:         s.ID,
		Lab:               s.Lab,
		DurationSeconds:   ElapsedSeconds(s.StartedAt, end),
		TotalEnrolled:     totalEnrolled,
		Present:           len(s.Roster),
		Absent:            absent,
		DuplicateAttempts: len(s.Duplicates),
		MarkedNotEnrolled: len(s.Roster) - enrolledPresent,
	}
}

// Finalize materializes every roster entry, appends the records to the
// sink and announces the completed session. A failed publish is logged,
// not returned: the records are already stored.
func (m *Materializer) Finalize(ctx context.Context, s model.Session, totalEnrolled, staffID int, end time.Time) (model.Completed, error) {
	records := make([]model.Record, 0, len(s.Roster))
	for _, e := range s.Roster {
		records = append(records, Materialize(s, e, staffID, m.percentage, end))
	}
	if err := m.repo.Append(ctx, records); err != nil {
		return model.Completed{}, fmt.Errorf("append attendance records: %w", err)
	}
	m.metrics.RecordsWritten.Add(float64(len(records)))

	done := model.Completed{
		Summary:  ComputeSummary(s, totalEnrolled, end),
		Records:  records,
		ScanLog:  s.ScanLog,
		EndedAt:  end,
		MarkedBy: staffID,
	}
	m.log.Info("session materialized",
		zap.String("session_id", s.ID),
		zap.String("lab", s.Lab),
		zap.Int("records", len(records)),
		zap.Int("absent", done.Summary.Absent),
	)

	if m.pub != nil {
		body, err := json.Marshal(done)
		if err != nil {
			m.log.Error("encode completed session", zap.Error(err))
			return done, nil
		}
		pctx, cancel := context.WithTimeout(ctx, m.publishTTL)
		defer cancel()
		if err := m.pub.Publish(pctx, queue.Message{Type: CompletedMessage, Body: body}); err != nil {
			m.log.Warn("queue publish failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	return done, nil
}
