package attendance

import (
	"math"

	"labattend/internal/directory"
	"labattend/internal/model"
)

// Standing buckets an attendance percentage.
type Standing string

const (
	StandingGood Standing = "good"
	StandingMid  Standing = "mid"
	StandingLow  Standing = "low"
)

// StandingFor applies the department thresholds: 85 and above is good,
// 75 and above is mid.
func StandingFor(pct int) Standing {
	switch {
	case pct >= 85:
		return StandingGood
	case pct >= 75:
		return StandingMid
	}
	return StandingLow
}

// LabStat is a student's attendance in one lab.
type LabStat struct {
	Lab        string   `json:"lab"`
	Present    int      `json:"present"`
	Total      int      `json:"total"`
	Percentage int      `json:"percentage"`
	Standing   Standing `json:"standing"`
}

// Report aggregates a set of records, usually one student's.
type Report struct {
	Total      int       `json:"total"`
	Present    int       `json:"present"`
	Percentage int       `json:"percentage"`
	Standing   Standing  `json:"standing"`
	Labs       []LabStat `json:"labs"`
}

func roundPct(num, den int) int {
	if den == 0 {
		return 0
	}
	return int(math.Floor(float64(num)*100/float64(den) + 0.5))
}

// BuildReport computes overall and per-lab presence. Labs keep the order
// in which they first appear in records.
func BuildReport(records []model.Record) Report {
	var rep Report
	idx := map[string]int{}
	for _, r := range records {
		i, ok := idx[r.Lab]
		if !ok {
			i = len(rep.Labs)
			idx[r.Lab] = i
			rep.Labs = append(rep.Labs, LabStat{Lab: r.Lab})
		}
		rep.Labs[i].Total++
		rep.Total++
		if r.Status == model.StatusPresent {
			rep.Labs[i].Present++
			rep.Present++
		}
	}
	for i := range rep.Labs {
		rep.Labs[i].Percentage = roundPct(rep.Labs[i].Present, rep.Labs[i].Total)
		rep.Labs[i].Standing = StandingFor(rep.Labs[i].Percentage)
	}
	rep.Percentage = roundPct(rep.Present, rep.Total)
	rep.Standing = StandingFor(rep.Percentage)
	return rep
}

// AverageScore is the rounded mean of the recorded percentages.
func AverageScore(records []model.Record) int {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, r := range records {
		sum += r.Percentage
	}
	return int(math.Floor(float64(sum)/float64(len(records)) + 0.5))
}

// FromHistory converts seed rows into records with fresh ids.
func FromHistory(rows []directory.HistoryRow) []model.Record {
	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Record{
			ID:         NewID(),
			StudentID:  directory.CanonicalID(row.StudentID),
			Date:       row.Date,
			Lab:        row.Lab,
			Status:     model.Status(row.Status),
			Percentage: row.Percentage,
		})
	}
	return out
}
