package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the presence value of an attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Record is one finalized attendance entry. Never mutated after creation.
type Record struct {
	ID              string `json:"id"`
	StudentID       string `json:"student_id"`
	Date            string `json:"date"` // YYYY-MM-DD
	Lab             string `json:"lab"`
	Status          Status `json:"status"`
	Percentage      int    `json:"percentage"`
	MarkedBy        int    `json:"marked_by,omitempty"`
	SessionDuration int    `json:"session_duration,omitempty"` // seconds
	SessionID       string `json:"session_id,omitempty"`
}

// ScanStatus is the audit-log status of one scan attempt.
type ScanStatus string

const (
	ScanSuccess              ScanStatus = "success"
	ScanNotFound             ScanStatus = "not_found"
	ScanDuplicate            ScanStatus = "duplicate"
	ScanNotEnrolledButMarked ScanStatus = "not_enrolled_but_marked"
	ScanPending              ScanStatus = "pending"
)

// ScanEvent is one audit-log line.
type ScanEvent struct {
	Timestamp   time.Time  `json:"timestamp"`
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	Status      ScanStatus `json:"status"`
	Lab         string     `json:"lab"`
	SessionID   string     `json:"session_id"`
}

// RosterEntry is a student marked present in a session.
type RosterEntry struct {
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	ScanTime  time.Time `json:"scan_time"`
	Enrolled  bool      `json:"enrolled"`
}

// DuplicateAttempt is a repeat scan of an already-marked student.
type DuplicateAttempt struct {
	StudentID string    `json:"student_id"`
	Time      time.Time `json:"time"`
}

// Session is a read-only copy of a scan session's state.
type Session struct {
	ID         string             `json:"id"`
	Lab        string             `json:"lab"`
	StartedAt  time.Time          `json:"started_at"`
	Roster     []RosterEntry      `json:"roster"`
	Duplicates []DuplicateAttempt `json:"duplicates"`
	ScanLog    []ScanEvent        `json:"scan_log"`
}

// Summary is the human-facing result of a finished session.
type Summary struct {
	SessionID         string `json:"session_id"`
	Lab               string `json:"lab"`
	DurationSeconds   int    `json:"duration_seconds"`
	TotalEnrolled     int    `json:"total_enrolled"`
	Present           int    `json:"present"`
	Absent            int    `json:"absent"`
	DuplicateAttempts int    `json:"duplicate_attempts"`
	MarkedNotEnrolled int    `json:"marked_not_enrolled"`
}

func (s Summary) String() string {
	var b strings.Builder
	b.WriteString("Session completed!\n\n")
	fmt.Fprintf(&b, "Lab: %s\n", s.Lab)
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(s.DurationSeconds))
	fmt.Fprintf(&b, "Total Enrolled: %d\n", s.TotalEnrolled)
	fmt.Fprintf(&b, "Students Present: %d\n", s.Present)
	fmt.Fprintf(&b, "Students Absent: %d\n", s.Absent)
	fmt.Fprintf(&b, "Duplicate Attempts: %d", s.DuplicateAttempts)
	if s.MarkedNotEnrolled > 0 {
		fmt.Fprintf(&b, "\nMarked Without Enrollment: %d", s.MarkedNotEnrolled)
	}
	return b.String()
}

// FormatDuration renders seconds as mm:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Completed is published once a session has been materialized.
type Completed struct {
	Summary  Summary     `json:"summary"`
	Records  []Record    `json:"records"`
	ScanLog  []ScanEvent `json:"scan_log"`
	EndedAt  time.Time   `json:"ended_at"`
	MarkedBy int         `json:"marked_by"`
}
