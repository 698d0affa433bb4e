package directory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func loadDefault(t *testing.T) *Memory {
	t.Helper()
	seed, err := LoadSeed("")
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	m, err := NewMemory(seed)
	if err != nil {
		t.Fatalf("new memory: %v", err)
	}
	return m
}

func TestDefaultSeed(t *testing.T) {
	m := loadDefault(t)

	if got := len(m.Students()); got != 5 {
		t.Fatalf("students = %d, want 5", got)
	}
	if got := len(m.ListUsers(RoleStaff)); got != 2 {
		t.Fatalf("staff = %d, want 2", got)
	}
	if got := len(m.ListUsers(0)); got != 8 {
		t.Fatalf("users = %d, want 8", got)
	}
	if got := len(m.Labs()); got != 8 {
		t.Fatalf("labs = %d", got)
	}
}

func TestFindStudentIsCaseInsensitive(t *testing.T) {
	m := loadDefault(t)
	u, ok := m.FindStudent("  stu001 ")
	if !ok || u.Name != "Alice Brown" {
		t.Fatalf("got %+v, %v", u, ok)
	}
	if _, ok := m.FindStudent("STU999"); ok {
		t.Fatal("unknown id found")
	}
	if got := m.StudentName("STU999"); got != "Unknown" {
		t.Fatalf("name = %q", got)
	}
}

func TestEnrollment(t *testing.T) {
	m := loadDefault(t)
	alice, _ := m.FindStudent("STU001")
	if !m.IsEnrolled(alice, "Physics Lab") || m.IsEnrolled(alice, "Chemistry Lab") {
		t.Fatal("unexpected enrollment for STU001")
	}
	if got := m.EnrolledCount("Physics Lab"); got != 2 {
		t.Fatalf("physics enrolled = %d, want 2", got)
	}
	if got := m.EnrolledCount("Electronics Lab"); got != 0 {
		t.Fatalf("electronics enrolled = %d", got)
	}
}

func TestStaffAssignment(t *testing.T) {
	m := loadDefault(t)
	staff, ok := m.FindStaff(2)
	if !ok || staff.Role != RoleStaff {
		t.Fatalf("staff 2 = %+v, %v", staff, ok)
	}
	if !Assigned(staff, "Physics Lab") || Assigned(staff, "Biology Lab") {
		t.Fatal("unexpected assignment")
	}
	if _, ok := m.FindStaff(3); ok {
		t.Fatal("student returned as staff")
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"HOD": RoleHOD, "staff": RoleStaff, " Student ": RoleStudent} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatal("admin accepted")
	}
}

func TestSeedValidation(t *testing.T) {
	dir := t.TempDir()
	write := func(body string) string {
		p := filepath.Join(dir, "seed.yaml")
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	seed, err := LoadSeed(write("users:\n  - {id: 1, username: a, role: student, student_id: s1}\n  - {id: 2, username: b, role: student, student_id: S1}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewMemory(seed); !errors.Is(err, ErrDuplicateStudent) {
		t.Fatalf("err = %v, want duplicate", err)
	}

	if _, err := LoadSeed(write("users:\n  - {id: 1, username: a, role: janitor}\n")); err == nil {
		t.Fatal("unknown role accepted")
	}
}
