package candidate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleJSON = `[
	{"ticker":"AAPL","report_date":"2025-10-01","grade":"A","grade_source":"html","score":85.5,"company_name":"Apple"},
	{"ticker":"MSFT","report_date":"2025-10-01","grade":"B","grade_source":"inferred","score":72.0},
	{"ticker":"TSLA","report_date":"2025-10-02","grade":"A","grade_source":"html","score":90.0}
]`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "candidates.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestJSONFileSourceFiltersByReportDate(t *testing.T) {
	path := writeSample(t)
	src := NewJSONFileSource(path)

	got, err := src.Candidates(context.Background(), time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates for 2025-10-01, got %d", len(got))
	}
}

func TestLoadAllCandidatesParsesEveryRecord(t *testing.T) {
	path := writeSample(t)
	got, err := LoadAllCandidates(path)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates total, got %d", len(got))
	}
	if got[0].Score == nil || *got[0].Score != 85.5 {
		t.Fatalf("expected first candidate score 85.5, got %+v", got[0].Score)
	}
}
