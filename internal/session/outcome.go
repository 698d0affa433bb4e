package session

// Outcome is the result of processing one scan.
type Outcome int

const (
	Success Outcome = iota
	NotFound
	Duplicate
	NotEnrolledButMarked
	// Declined is an unenrolled scan the operator chose not to mark.
	Declined
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case Duplicate:
		return "duplicate"
	case NotEnrolledButMarked:
		return "not_enrolled_but_marked"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Marked reports whether the outcome added the student to the roster.
func (o Outcome) Marked() bool { return o == Success || o == NotEnrolledButMarked }
