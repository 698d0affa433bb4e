package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"labattend/internal/metrics"
	"labattend/internal/model"
	"labattend/internal/queue"
)

var start = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func physicsSession() model.Session {
	return model.Session{
		ID:        "session_1705312800000",
		Lab:       "Physics Lab",
		StartedAt: start,
		Roster: []model.RosterEntry{
			{StudentID: "STU001", Name: "Alice Brown", ScanTime: start.Add(time.Minute), Enrolled: true},
			{StudentID: "STU003", Name: "Emma Davis", ScanTime: start.Add(2 * time.Minute), Enrolled: true},
		},
		Duplicates: []model.DuplicateAttempt{{StudentID: "STU001", Time: start.Add(3 * time.Minute)}},
	}
}

func TestMaterializeRecord(t *testing.T) {
	s := physicsSession()
	end := start.Add(5*time.Minute + 42*time.Second + 900*time.Millisecond)
	rec := Materialize(s, s.Roster[0], 2, DefaultPercentage, end)

	if rec.ID == "" {
		t.Fatal("missing id")
	}
	want := model.Record{
		ID: rec.ID, StudentID: "STU001", Date: "2024-01-15", Lab: "Physics Lab",
		Status: model.StatusPresent, Percentage: 85, MarkedBy: 2,
		SessionDuration: 342, SessionID: "session_1705312800000",
	}
	if rec != want {
		t.Fatalf("record = %+v\nwant %+v", rec, want)
	}
}

func TestComputeSummary(t *testing.T) {
	s := physicsSession()
	sum := ComputeSummary(s, 2, start.Add(90*time.Second))
	if sum.Present != 2 || sum.Absent != 0 || sum.TotalEnrolled != 2 || sum.DuplicateAttempts != 1 || sum.DurationSeconds != 90 {
		t.Fatalf("summary = %+v", sum)
	}
	if !strings.Contains(sum.String(), "Duration: 01:30") {
		t.Fatalf("rendered = %q", sum.String())
	}
}

func TestComputeSummaryAbsentEqualsEnrolledMinusPresent(t *testing.T) {
	s := physicsSession()
	for enrolled := 2; enrolled < 6; enrolled++ {
		sum := ComputeSummary(s, enrolled, start)
		if sum.Absent != enrolled-sum.Present {
			t.Fatalf("enrolled=%d: absent=%d present=%d", enrolled, sum.Absent, sum.Present)
		}
	}
}

func TestComputeSummaryNotEnrolledNeverNegative(t *testing.T) {
	s := physicsSession()
	s.Roster = append(s.Roster,
		model.RosterEntry{StudentID: "STU002", Enrolled: false},
		model.RosterEntry{StudentID: "STU005", Enrolled: false},
	)
	sum := ComputeSummary(s, 2, start)
	if sum.Present != 4 || sum.Absent != 0 || sum.MarkedNotEnrolled != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if !strings.Contains(sum.String(), "Marked Without Enrollment: 2") {
		t.Fatalf("rendered = %q", sum.String())
	}
}

func TestFinalizeAppendsAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	q := queue.NewInMemory(1)
	m := metrics.New(prometheus.NewRegistry())
	mat := NewMaterializer(repo, q, MaterializerOptions{Metrics: m})

	done, err := mat.Finalize(ctx, physicsSession(), 2, 2, start.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(done.Records) != 2 {
		t.Fatalf("records = %d", len(done.Records))
	}
	for _, r := range done.Records {
		if r.Status != model.StatusPresent {
			t.Fatalf("status = %q", r.Status)
		}
	}
	stored, _ := repo.List(ctx, Filter{Lab: "Physics Lab"})
	if len(stored) != 2 {
		t.Fatalf("stored = %d", len(stored))
	}
	if got := testutil.ToFloat64(m.RecordsWritten); got != 2 {
		t.Fatalf("records metric = %v", got)
	}

	msgs, _ := q.Consume(ctx)
	msg := <-msgs
	if msg.Type != CompletedMessage {
		t.Fatalf("type = %q", msg.Type)
	}
	var decoded model.Completed
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Summary.SessionID != "session_1705312800000" || len(decoded.Records) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
}

type failingRepo struct{}

func (failingRepo) Append(context.Context, []model.Record) error { return errors.New("disk full") }
func (failingRepo) List(context.Context, Filter) ([]model.Record, error) { return nil, nil }

func TestFinalizeSurfacesSinkErrors(t *testing.T) {
	mat := NewMaterializer(failingRepo{}, nil, MaterializerOptions{})
	if _, err := mat.Finalize(context.Background(), physicsSession(), 2, 2, start); err == nil {
		t.Fatal("expected error")
	}
}

func TestFinalizeStampsConfiguredPercentage(t *testing.T) {
	cases := []struct {
		configured, want int
	}{
		{configured: 90, want: 90},
		{configured: 0, want: DefaultPercentage},
	}
	for _, tc := range cases {
		mat := NewMaterializer(NewMemoryRepository(), nil, MaterializerOptions{Percentage: tc.configured})
		done, err := mat.Finalize(context.Background(), physicsSession(), 2, 2, start.Add(time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range done.Records {
			if r.Percentage != tc.want {
				t.Fatalf("configured %d: percentage = %d, want %d", tc.configured, r.Percentage, tc.want)
			}
		}
	}
}

// stalledQueue blocks every publish until the context gives up.
type stalledQueue struct{ err chan error }

func (q stalledQueue) Publish(ctx context.Context, _ queue.Message) error {
	<-ctx.Done()
	q.err <- ctx.Err()
	return ctx.Err()
}

func TestFinalizeBoundsStalledPublish(t *testing.T) {
	q := stalledQueue{err: make(chan error, 1)}
	repo := NewMemoryRepository()
	mat := NewMaterializer(repo, q, MaterializerOptions{PublishTimeout: 20 * time.Millisecond})

	done, err := mat.Finalize(context.Background(), physicsSession(), 2, 2, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("stalled publish failed finalize: %v", err)
	}
	if len(done.Records) != 2 {
		t.Fatalf("records = %d", len(done.Records))
	}
	if got := <-q.err; !errors.Is(got, context.DeadlineExceeded) {
		t.Fatalf("publish ctx err = %v", got)
	}
	stored, _ := repo.List(context.Background(), Filter{})
	if len(stored) != 2 {
		t.Fatalf("stored = %d", len(stored))
	}
}

func TestMemoryRepositoryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Append(ctx, []model.Record{
		{ID: "1", StudentID: "STU001", Lab: "Physics Lab"},
		{ID: "2", StudentID: "STU002", Lab: "Chemistry Lab"},
		{ID: "3", StudentID: "STU001", Lab: "Mathematics Lab"},
		{ID: "4", StudentID: "STU001", Lab: "Physics Lab"},
	})
	got, _ := repo.List(ctx, Filter{StudentID: "STU001"})
	if len(got) != 3 {
		t.Fatalf("by student = %d", len(got))
	}
	got, _ = repo.List(ctx, Filter{StudentID: "STU001", Lab: "Physics Lab", Limit: 1, Offset: 1})
	if len(got) != 1 || got[0].ID != "4" {
		t.Fatalf("paged = %+v", got)
	}
}

func TestBuildReport(t *testing.T) {
	recs := []model.Record{
		{Lab: "Physics Lab", Status: model.StatusPresent, Percentage: 92},
		{Lab: "Mathematics Lab", Status: model.StatusPresent, Percentage: 92},
		{Lab: "Physics Lab", Status: model.StatusAbsent, Percentage: 92},
		{Lab: "Physics Lab", Status: model.StatusPresent, Percentage: 92},
	}
	rep := BuildReport(recs)
	if rep.Total != 4 || rep.Present != 3 || rep.Percentage != 75 || rep.Standing != StandingMid {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Labs) != 2 || rep.Labs[0].Lab != "Physics Lab" || rep.Labs[0].Percentage != 67 || rep.Labs[0].Standing != StandingLow {
		t.Fatalf("labs = %+v", rep.Labs)
	}
	if rep.Labs[1].Percentage != 100 || rep.Labs[1].Standing != StandingGood {
		t.Fatalf("maths = %+v", rep.Labs[1])
	}
	if got := AverageScore(recs); got != 92 {
		t.Fatalf("average = %d", got)
	}
	if empty := BuildReport(nil); empty.Percentage != 0 || len(empty.Labs) != 0 {
		t.Fatalf("empty = %+v", empty)
	}
}

func TestStandingThresholds(t *testing.T) {
	cases := map[int]Standing{100: StandingGood, 85: StandingGood, 84: StandingMid, 75: StandingMid, 74: StandingLow, 0: StandingLow}
	for pct, want := range cases {
		if got := StandingFor(pct); got != want {
			t.Fatalf("StandingFor(%d) = %s, want %s", pct, got, want)
		}
	}
}
