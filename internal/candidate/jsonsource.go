package candidate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonCandidate is the on-disk shape a JSONFileSource reads, decoupled
// from Candidate so the file format can evolve independently of the
// in-memory type.
type jsonCandidate struct {
	Ticker      string  `json:"ticker"`
	ReportDate  string  `json:"report_date"`
	Grade       string  `json:"grade"`
	GradeSource string  `json:"grade_source"`
	Score       *float64 `json:"score"`
	GapSize     *float64 `json:"gap_size"`
	CompanyName string  `json:"company_name"`
}

// JSONFileSource is a file-backed Source, the minimal external
// collaborator this module builds itself: one JSON array of candidates
// per trade date, read from disk with no parsing/rendering layer above it.
type JSONFileSource struct {
	path string
}

// NewJSONFileSource builds a JSONFileSource reading candidates from path.
func NewJSONFileSource(path string) *JSONFileSource {
	return &JSONFileSource{path: path}
}

// Candidates reads every candidate in the file whose report date
// matches tradeDate (UTC, day granularity).
func (s *JSONFileSource) Candidates(ctx context.Context, tradeDate time.Time) ([]Candidate, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("candidate: read %s: %w", s.path, err)
	}

	var records []jsonCandidate
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("candidate: parse %s: %w", s.path, err)
	}

	want := tradeDate.Format("2006-01-02")
	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		if r.ReportDate != want {
			continue
		}
		out = append(out, Candidate{
			Ticker:      r.Ticker,
			ReportDate:  tradeDate,
			Grade:       Grade(r.Grade),
			GradeSource: GradeSource(r.GradeSource),
			Score:       r.Score,
			GapSize:     r.GapSize,
			CompanyName: r.CompanyName,
		})
	}
	return out, nil
}

// LoadAllCandidates reads every candidate in the file regardless of
// report date, the shape the backtest runner needs (it schedules entry
// dates itself; see internal/simulator.Portfolio.Run).
func LoadAllCandidates(path string) ([]Candidate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("candidate: read %s: %w", path, err)
	}

	var records []jsonCandidate
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("candidate: parse %s: %w", path, err)
	}

	out := make([]Candidate, 0, len(records))
	for _, r := range records {
		reportDate, err := time.Parse("2006-01-02", r.ReportDate)
		if err != nil {
			return nil, fmt.Errorf("candidate: parse report_date %q for %s: %w", r.ReportDate, r.Ticker, err)
		}
		out = append(out, Candidate{
			Ticker:      r.Ticker,
			ReportDate:  reportDate,
			Grade:       Grade(r.Grade),
			GradeSource: GradeSource(r.GradeSource),
			Score:       r.Score,
			GapSize:     r.GapSize,
			CompanyName: r.CompanyName,
		})
	}
	return out, nil
}
