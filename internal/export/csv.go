// Package export renders the scan log and attendance history in the flat
// comma-separated layout the department's spreadsheets import. Fields are
// written verbatim: no quoting, rows joined by "\n", no trailing newline.
package export

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"labattend/internal/model"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("no data to export")

const (
	ScanLogHeader    = "Timestamp,Student_ID,Student_Name,Status,Lab,Session_ID"
	AttendanceHeader = "Date,Lab,Student_ID,Student_Name,Status,Percentage"

	// TimestampLayout is the millisecond UTC form used in the scan log.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

// Names resolves a student's display name.
type Names interface {
	StudentName(id string) string
}

// ScanLogCSV renders one row per scan attempt, in order.
func ScanLogCSV(events []model.ScanEvent) (string, error) {
	if len(events) == 0 {
		return "", ErrNoData
	}
	var b strings.Builder
	b.WriteString(ScanLogHeader)
	for _, ev := range events {
		b.WriteByte('\n')
		writeRow(&b,
			ev.Timestamp.UTC().Format(TimestampLayout),
			ev.StudentID,
			ev.StudentName,
			string(ev.Status),
			ev.Lab,
			ev.SessionID,
		)
	}
	return b.String(), nil
}

// AttendanceCSV renders attendance records. Names that cannot be resolved
// are written as "Unknown".
func AttendanceCSV(records []model.Record, names Names) (string, error) {
	if len(records) == 0 {
		return "", ErrNoData
	}
	var b strings.Builder
	b.WriteString(AttendanceHeader)
	for _, r := range records {
		name := ""
		if names != nil {
			name = names.StudentName(r.StudentID)
		}
		if name == "" {
			name = "Unknown"
		}
		b.WriteByte('\n')
		writeRow(&b, r.Date, r.Lab, r.StudentID, name, string(r.Status), strconv.Itoa(r.Percentage))
	}
	return b.String(), nil
}

func writeRow(b *strings.Builder, fields ...string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f)
	}
}

// ScanLogFilename is the download name for a scan log exported at t.
func ScanLogFilename(t time.Time) string {
	return "scan_log_" + t.UTC().Format("2006-01-02") + ".csv"
}

// AttendanceFilename is the download name for one student's history.
func AttendanceFilename(studentID string) string {
	return studentID + "_attendance_report.csv"
}

// HistoryFilename is the download name for records exported on behalf of
// owner, a lab or staff member, at t.
func HistoryFilename(owner string, t time.Time) string {
	return owner + "_attendance_" + t.UTC().Format("2006-01-02") + ".csv"
}
