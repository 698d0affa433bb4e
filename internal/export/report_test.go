package export

import (
	"strings"
	"testing"
	"time"

	"labattend/internal/directory"
	"labattend/internal/model"
)

func TestStudentReport(t *testing.T) {
	alice := directory.User{Name: "Alice Brown", StudentID: "STU001", Year: "2nd Year", Email: "alice@student.edu", Role: directory.RoleStudent}
	records := []model.Record{
		{StudentID: "STU001", Date: "2024-01-15", Lab: "Physics Lab", Status: model.StatusPresent},
		{StudentID: "STU001", Date: "2024-01-16", Lab: "Mathematics Lab", Status: model.StatusAbsent},
		{StudentID: "STU001", Date: "2024-01-18", Lab: "Physics Lab", Status: model.StatusPresent},
	}
	got := StudentReport(alice, records, time.Date(2024, 1, 19, 8, 30, 0, 0, time.UTC))

	for _, want := range []string{
		"ATTENDANCE REPORT\n=================\nStudent: Alice Brown\nStudent ID: STU001\nYear: 2nd Year\nEmail: alice@student.edu\n",
		"Report Generated: 2024-01-19 08:30:00 UTC\n",
		"OVERALL SUMMARY\n===============\nTotal Classes: 3\nPresent: 2\nAbsent: 1\nOverall Percentage: 67%\n",
		"LAB-WISE BREAKDOWN\n==================\nPhysics Lab: 100% (2/2)\nMathematics Lab: 0% (0/1)\n",
		"DETAILED ATTENDANCE\n===================\n2024-01-15 | Physics Lab | PRESENT\n2024-01-16 | Mathematics Lab | ABSENT\n2024-01-18 | Physics Lab | PRESENT\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestStudentReportWithoutRecords(t *testing.T) {
	got := StudentReport(directory.User{Name: "Frank Lee", StudentID: "STU006"}, nil, time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC))
	if !strings.Contains(got, "Total Classes: 0\nPresent: 0\nAbsent: 0\nOverall Percentage: 0%\n") {
		t.Fatalf("report = %s", got)
	}
}
