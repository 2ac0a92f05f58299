// Package history persists verification results in SQLite so runs can be
// compared over time, browsed over HTTP and queried over MCP.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/designref/capture"
	"github.com/hazyhaar/designref/dbopen"
	"github.com/hazyhaar/designref/idgen"
	"github.com/hazyhaar/designref/verify"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history: not found")

// Entry is one recorded verification.
type Entry struct {
	ID            string           `json:"id"`
	RunID         string           `json:"run_id"`
	Feature       string           `json:"feature,omitempty"`
	Scenario      string           `json:"scenario,omitempty"`
	Reference     string           `json:"reference"`
	Browser       string           `json:"browser"`
	Region        capture.Region   `json:"region"`
	Outcome       verify.Outcome   `json:"outcome"`
	Passed        bool             `json:"passed"`
	Score         float64          `json:"score"`
	Retries       int              `json:"retries"`
	Attempts      []verify.Attempt `json:"attempts"`
	Candidate     string           `json:"candidate,omitempty"`
	Baseline      string           `json:"baseline,omitempty"`
	Diff          string           `json:"diff,omitempty"`
	PHashDistance int              `json:"phash_distance"` // -1 when not computed
	StartedAt     int64            `json:"started_at"`     // unix ms
	DurationMS    int64            `json:"duration_ms"`
}

// FromResult converts a verification result into an entry without run or
// scenario attribution.
func FromResult(res *verify.Result) *Entry {
	return &Entry{
		Reference:     res.Reference,
		Browser:       res.Browser,
		Region:        res.Region,
		Outcome:       res.Outcome,
		Passed:        res.Passed(),
		Score:         float64(res.Score),
		Retries:       res.Retries(),
		Attempts:      res.Attempts,
		Candidate:     res.Candidate,
		Baseline:      res.Baseline,
		Diff:          res.Diff,
		PHashDistance: -1,
		StartedAt:     res.Started.UnixMilli(),
		DurationMS:    res.Duration.Milliseconds(),
	}
}

// Filter narrows List.
type Filter struct {
	RunID     string
	Reference string
	Outcome   string
	Failed    bool // only non-passing entries
	Limit     int  // default 50
}

// Stats aggregates the entries of one run, or of all runs when RunID is
// empty.
type Stats struct {
	RunID     string         `json:"run_id,omitempty"`
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Retries   int            `json:"retries"`
	ByOutcome map[string]int `json:"by_outcome"`
}

// Run summarises one suite run.
type Run struct {
	ID        string `json:"id"`
	StartedAt int64  `json:"started_at"`
	Total     int    `json:"total"`
	Failed    int    `json:"failed"`
}

// Store is the history database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the history database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Record inserts e, assigning an ID and start time when missing.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = idgen.NewVerificationID()
	}
	if e.StartedAt == 0 {
		e.StartedAt = time.Now().UnixMilli()
	}
	if e.Attempts == nil {
		e.Attempts = []verify.Attempt{}
	}
	attempts, err := json.Marshal(e.Attempts)
	if err != nil {
		return fmt.Errorf("history: marshal attempts: %w", err)
	}

	_, err = dbopen.Exec(ctx, s.DB, `
		INSERT INTO verifications
			(id, run_id, feature, scenario, reference, browser,
			 region_x, region_y, region_w, region_h,
			 outcome, passed, score, retries, attempts,
			 candidate, baseline, diff, phash_distance, started_at, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.RunID, e.Feature, e.Scenario, e.Reference, e.Browser,
		e.Region.X, e.Region.Y, e.Region.Width, e.Region.Height,
		e.Outcome.String(), boolInt(e.Passed), e.Score, e.Retries, string(attempts),
		e.Candidate, e.Baseline, e.Diff, e.PHashDistance, e.StartedAt, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.Reference, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, run_id, feature, scenario, reference, browser,
	       region_x, region_y, region_w, region_h,
	       outcome, passed, score, retries, attempts,
	       candidate, baseline, diff, phash_distance, started_at, duration_ms
	FROM verifications`

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.DB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	return e, nil
}

// List returns entries matching f, most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Entry, error) {
	q := selectColumns + ` WHERE 1=1`
	var args []any
	if f.RunID != "" {
		q += ` AND run_id = ?`
		args = append(args, f.RunID)
	}
	if f.Reference != "" {
		q += ` AND reference = ?`
		args = append(args, f.Reference)
	}
	if f.Outcome != "" {
		if _, err := verify.ParseOutcome(f.Outcome); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		q += ` AND outcome = ?`
		args = append(args, f.Outcome)
	}
	if f.Failed {
		q += ` AND passed = 0`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("history: list scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates entries of runID (all runs when empty).
func (s *Store) Stats(ctx context.Context, runID string) (*Stats, error) {
	q := `SELECT outcome, passed, COUNT(*), COALESCE(SUM(retries), 0) FROM verifications`
	var args []any
	if runID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	q += ` GROUP BY outcome, passed`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: stats: %w", err)
	}
	defer rows.Close()

	st := &Stats{RunID: runID, ByOutcome: map[string]int{}}
	for rows.Next() {
		var outcome string
		var passed, n, retries int
		if err := rows.Scan(&outcome, &passed, &n, &retries); err != nil {
			return nil, fmt.Errorf("history: stats scan: %w", err)
		}
		st.ByOutcome[outcome] += n
		st.Total += n
		st.Retries += retries
		if passed == 1 {
			st.Passed += n
		} else {
			st.Failed += n
		}
	}
	return st, rows.Err()
}

// Runs lists suite runs, most recent first.
func (s *Store) Runs(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT run_id, MIN(started_at), COUNT(*), SUM(CASE WHEN passed = 0 THEN 1 ELSE 0 END)
		FROM verifications
		GROUP BY run_id
		ORDER BY MIN(started_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Total, &r.Failed); err != nil {
			return nil, fmt.Errorf("history: runs scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the id of the most recent run, or "" when empty.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	runs, err := s.Runs(ctx, 1)
	if err != nil || len(runs) == 0 {
		return "", err
	}
	return runs[0].ID, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	e := &Entry{}
	var outcome, attempts string
	var passed int
	err := sc.Scan(&e.ID, &e.RunID, &e.Feature, &e.Scenario, &e.Reference, &e.Browser,
		&e.Region.X, &e.Region.Y, &e.Region.Width, &e.Region.Height,
		&outcome, &passed, &e.Score, &e.Retries, &attempts,
		&e.Candidate, &e.Baseline, &e.Diff, &e.PHashDistance, &e.StartedAt, &e.DurationMS)
	if err != nil {
		return nil, err
	}
	if e.Outcome, err = verify.ParseOutcome(outcome); err != nil {
		return nil, err
	}
	e.Passed = passed == 1
	if err := json.Unmarshal([]byte(attempts), &e.Attempts); err != nil {
		return nil, fmt.Errorf("attempts: %w", err)
	}
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
