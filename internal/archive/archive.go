// Package archive writes finished sessions to disk as they arrive on the
// completion queue.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"labattend/internal/attendance"
	"labattend/internal/export"
	"labattend/internal/model"
	"labattend/internal/queue"
)

// Writer stores each completed session under dir/<session id>/.
type Writer struct {
	dir   string
	names export.Names
	log   *zap.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, names export.Names, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{dir: dir, names: names, log: log.Named("archive")}
}

// Handle writes one session.completed message. Other message types are ignored.
func (w *Writer) Handle(msg queue.Message) error {
	if msg.Type != attendance.CompletedMessage {
		return nil
	}
	var done model.Completed
	if err := json.Unmarshal(msg.Body, &done); err != nil {
		return fmt.Errorf("decode completed session: %w", err)
	}
	if done.Summary.SessionID == "" {
		return errors.New("completed session without id")
	}

	dst := filepath.Join(w.dir, filepath.Base(done.Summary.SessionID))
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dst, "summary.txt"), []byte(done.Summary.String()+"\n"), 0o644); err != nil {
		return err
	}
	files := 1
	if body, err := export.ScanLogCSV(done.ScanLog); err == nil {
		if err := os.WriteFile(filepath.Join(dst, export.ScanLogFilename(done.EndedAt)), []byte(body), 0o644); err != nil {
			return err
		}
		files++
	}
	if body, err := export.AttendanceCSV(done.Records, w.names); err == nil {
		name := export.HistoryFilename(done.Summary.Lab, done.EndedAt)
		if err := os.WriteFile(filepath.Join(dst, name), []byte(body), 0o644); err != nil {
			return err
		}
		files++
	}
	w.log.Info("session archived",
		zap.String("session_id", done.Summary.SessionID),
		zap.String("path", dst),
		zap.Int("files", files),
	)
	return nil
}

// Run consumes q until ctx is cancelled. Failed messages are logged and skipped.
func (w *Writer) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.log.Info("archive worker started", zap.String("dir", w.dir))
	for msg := range msgs {
		if err := w.Handle(msg); err != nil {
			w.log.Error("archive session failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	w.log.Info("archive worker stopped")
	return ctx.Err()
}
