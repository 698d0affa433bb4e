package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Role is the closed set of account kinds.
type Role int

const (
	RoleHOD Role = iota + 1
	RoleStaff
	RoleStudent
)

// ParseRole maps the seed spelling to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hod":
		return RoleHOD, nil
	case "staff":
		return RoleStaff, nil
	case "student":
		return RoleStudent, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleHOD:
		return "hod"
	case RoleStaff:
		return "staff"
	case RoleStudent:
		return "student"
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseRole(node.Value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User is one account in the department directory.
type User struct {
	ID           int      `yaml:"id" json:"id"`
	Username     string   `yaml:"username" json:"username"`
	Name         string   `yaml:"name" json:"name"`
	Role         Role     `yaml:"role" json:"role"`
	Email        string   `yaml:"email" json:"email"`
	Year         string   `yaml:"year,omitempty" json:"year,omitempty"`
	StudentID    string   `yaml:"student_id,omitempty" json:"student_id,omitempty"`
	Labs         []string `yaml:"labs,omitempty" json:"labs,omitempty"`
	AssignedLabs []string `yaml:"assigned_labs,omitempty" json:"assigned_labs,omitempty"`
}

// HistoryRow is a pre-existing attendance entry shipped with the seed.
type HistoryRow struct {
	StudentID  string `yaml:"student_id"`
	Date       string `yaml:"date"`
	Lab        string `yaml:"lab"`
	Status     string `yaml:"status"`
	Percentage int    `yaml:"percentage"`
}

// Seed is the on-disk directory fixture.
type Seed struct {
	Labs       []string     `yaml:"labs"`
	Years      []string     `yaml:"years"`
	Users      []User       `yaml:"users"`
	Attendance []HistoryRow `yaml:"attendance"`
}

//go:embed seed.yaml
var defaultSeed []byte

// LoadSeed reads path, or the built-in department fixture when path is empty.
func LoadSeed(path string) (Seed, error) {
	raw := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Seed{}, fmt.Errorf("read seed: %w", err)
		}
		raw = b
	}
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}

var (
	ErrDuplicateStudent = errors.New("duplicate student id")
	ErrMissingStudentID = errors.New("student without student id")
)

// Memory is an in-memory directory. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	users    []User
	students map[string]User
	labs     []string
	years    []string
}

// NewMemory validates the seed and indexes students by canonical id.
func NewMemory(s Seed) (*Memory, error) {
	m := &Memory{
		students: make(map[string]User),
		labs:     append([]string(nil), s.Labs...),
		years:    append([]string(nil), s.Years...),
	}
	for _, u := range s.Users {
		if u.Role == 0 {
			return nil, fmt.Errorf("user %q: missing role", u.Username)
		}
		if u.Role == RoleStudent {
			key := CanonicalID(u.StudentID)
			if key == "" {
				return nil, fmt.Errorf("user %q: %w", u.Username, ErrMissingStudentID)
			}
			if _, dup := m.students[key]; dup {
				return nil, fmt.Errorf("%s: %w", key, ErrDuplicateStudent)
			}
			u.StudentID = key
			m.students[key] = u
		}
		m.users = append(m.users, u)
	}
	return m, nil
}

// CanonicalID is the comparison form of a student identifier.
func CanonicalID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// FindStudent looks a student up by identifier.
func (m *Memory) FindStudent(id string) (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.students[CanonicalID(id)]
	return u, ok
}

// IsEnrolled reports whether student lists lab among their labs.
func (m *Memory) IsEnrolled(student User, lab string) bool {
	for _, l := range student.Labs {
		if l == lab {
			return true
		}
	}
	return false
}

// EnrolledCount is the number of students enrolled in lab.
func (m *Memory) EnrolledCount(lab string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.students {
		if m.IsEnrolled(s, lab) {
			n++
		}
	}
	return n
}

// StudentName resolves a display name, "Unknown" when absent.
func (m *Memory) StudentName(id string) string {
	if u, ok := m.FindStudent(id); ok {
		return u.Name
	}
	return "Unknown"
}

// ListUsers returns every user, optionally restricted to one role.
func (m *Memory) ListUsers(role Role) []User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []User
	for _, u := range m.users {
		if role == 0 || u.Role == role {
			out = append(out, u)
		}
	}
	return out
}

// Students returns students sorted by identifier.
func (m *Memory) Students() []User {
	out := m.ListUsers(RoleStudent)
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

// FindStaff returns the staff member with the given user id.
func (m *Memory) FindStaff(id int) (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.ID == id && u.Role == RoleStaff {
			return u, true
		}
	}
	return User{}, false
}

// Labs returns the department's lab catalogue.
func (m *Memory) Labs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.labs...)
}

// Years returns the configured study years.
func (m *Memory) Years() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.years...)
}

// Assigned reports whether staff is assigned to lab.
func Assigned(staff User, lab string) bool {
	for _, l := range staff.AssignedLabs {
		if l == lab {
			return true
		}
	}
	return false
}
