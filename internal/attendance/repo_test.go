package attendance

import (
	"context"
	"path/filepath"
	"testing"

	"labattend/internal/model"
	"labattend/internal/store"
)

func TestSQLRepositoryOnSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewDB(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "attendance.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer db.Close()

	repo := NewSQLRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate is not idempotent: %v", err)
	}

	recs := []model.Record{
		{ID: NewID(), StudentID: "STU001", Date: "2024-01-18", Lab: "Physics Lab", Status: model.StatusPresent, Percentage: 85, MarkedBy: 2, SessionDuration: 120, SessionID: "session_2"},
		{ID: NewID(), StudentID: "STU003", Date: "2024-01-18", Lab: "Physics Lab", Status: model.StatusPresent, Percentage: 85, MarkedBy: 2, SessionDuration: 120, SessionID: "session_2"},
		{ID: NewID(), StudentID: "STU001", Date: "2024-01-15", Lab: "Mathematics Lab", Status: model.StatusAbsent, Percentage: 92},
	}
	if err := repo.Append(ctx, recs); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Date != "2024-01-15" {
		t.Fatalf("all = %+v", all)
	}

	got, err := repo.List(ctx, Filter{StudentID: "STU001", Lab: "Physics Lab"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != recs[0] {
		t.Fatalf("filtered = %+v", got)
	}

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].StudentID != "STU003" {
		t.Fatalf("page = %+v", page)
	}
}
