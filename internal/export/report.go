package export

import (
	"fmt"
	"strings"
	"time"

	"labattend/internal/attendance"
	"labattend/internal/directory"
	"labattend/internal/model"
)

// ReportTimeLayout formats the generation stamp of a text report.
const ReportTimeLayout = "2006-01-02 15:04:05 MST"

// StudentReport renders a student's attendance as the plain-text report
// students download from their dashboard.
func StudentReport(student directory.User, records []model.Record, generated time.Time) string {
	rep := attendance.BuildReport(records)

	var b strings.Builder
	section(&b, "ATTENDANCE REPORT")
	fmt.Fprintf(&b, "Student: %s\n", student.Name)
	fmt.Fprintf(&b, "Student ID: %s\n", student.StudentID)
	fmt.Fprintf(&b, "Year: %s\n", student.Year)
	fmt.Fprintf(&b, "Email: %s\n", student.Email)
	fmt.Fprintf(&b, "Report Generated: %s\n\n", generated.UTC().Format(ReportTimeLayout))

	section(&b, "OVERALL SUMMARY")
	fmt.Fprintf(&b, "Total Classes: %d\n", rep.Total)
	fmt.Fprintf(&b, "Present: %d\n", rep.Present)
	fmt.Fprintf(&b, "Absent: %d\n", rep.Total-rep.Present)
	fmt.Fprintf(&b, "Overall Percentage: %d%%\n\n", rep.Percentage)

	section(&b, "LAB-WISE BREAKDOWN")
	for _, l := range rep.Labs {
		fmt.Fprintf(&b, "%s: %d%% (%d/%d)\n", l.Lab, l.Percentage, l.Present, l.Total)
	}
	b.WriteByte('\n')

	section(&b, "DETAILED ATTENDANCE")
	for _, r := range records {
		fmt.Fprintf(&b, "%s | %s | %s\n", r.Date, r.Lab, strings.ToUpper(string(r.Status)))
	}
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteByte('\n')
}

// ReportFilename is the download name for a student's text report.
func ReportFilename(studentID string) string {
	return studentID + "_attendance_report.txt"
}
