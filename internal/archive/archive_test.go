package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labattend/internal/attendance"
	"labattend/internal/model"
	"labattend/internal/queue"
)

type names map[string]string

func (n names) StudentName(id string) string { return n[id] }

func completed(t *testing.T) queue.Message {
	t.Helper()
	end := time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC)
	done := model.Completed{
		Summary: model.Summary{SessionID: "session_1705312800000", Lab: "Physics Lab", DurationSeconds: 300, TotalEnrolled: 2, Present: 1, Absent: 1},
		Records: []model.Record{{StudentID: "STU001", Date: "2024-01-15", Lab: "Physics Lab", Status: model.StatusPresent, Percentage: 85}},
		ScanLog: []model.ScanEvent{{Timestamp: end.Add(-time.Minute), StudentID: "STU001", StudentName: "Alice Brown", Status: model.ScanSuccess, Lab: "Physics Lab", SessionID: "session_1705312800000"}},
		EndedAt: end,
	}
	body, err := json.Marshal(done)
	if err != nil {
		t.Fatal(err)
	}
	return queue.Message{Type: attendance.CompletedMessage, Body: body}
}

func TestHandleWritesSessionFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, names{"STU001": "Alice Brown"}, nil)
	if err := w.Handle(completed(t)); err != nil {
		t.Fatal(err)
	}
	base := filepath.Join(dir, "session_1705312800000")

	scanLog, err := os.ReadFile(filepath.Join(base, "scan_log_2024-01-15.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "Timestamp,Student_ID,Student_Name,Status,Lab,Session_ID\n2024-01-15T10:04:00.000Z,STU001,Alice Brown,success,Physics Lab,session_1705312800000"; string(scanLog) != want {
		t.Fatalf("scan log = %q", scanLog)
	}
	att, err := os.ReadFile(filepath.Join(base, "Physics Lab_attendance_2024-01-15.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(att), "\n2024-01-15,Physics Lab,STU001,Alice Brown,present,85") {
		t.Fatalf("attendance = %q", att)
	}
	summary, _ := os.ReadFile(filepath.Join(base, "summary.txt"))
	if !strings.Contains(string(summary), "Duration: 05:00") {
		t.Fatalf("summary = %q", summary)
	}
}

func TestHandleIgnoresOtherTypes(t *testing.T) {
	dir := t.TempDir()
	if err := NewWriter(dir, nil, nil).Handle(queue.Message{Type: "checkin", Body: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestRunLogsBadMessagesAndStops(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dir := t.TempDir()
	w := NewWriter(dir, nil, zap.New(core))
	q := queue.NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx, q) }()

	_ = q.Publish(ctx, queue.Message{Type: attendance.CompletedMessage, Body: []byte("{")})
	_ = q.Publish(ctx, completed(t))

	deadline := time.After(2 * time.Second)
	for logs.FilterMessage("session archived").Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("session not archived")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if logs.FilterMessage("archive session failed").Len() != 1 {
		t.Fatalf("logs = %v", logs.All())
	}
}
