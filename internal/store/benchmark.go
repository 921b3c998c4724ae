package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/bench"
)

// BenchmarkRun is a stored benchmark report.
type BenchmarkRun struct {
	ID             string      `json:"id"`
	Iterations     int         `json:"iterations"`
	Version        string      `json:"version,omitempty"`
	Compiled       bench.Stats `json:"compiled"`
	Interpreted    bench.Stats `json:"interpreted"`
	CompiledErrors int         `json:"compiledErrors"`
	Speedup        float64     `json:"speedup"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// NewBenchmarkRun converts a report into a run ready to store.
func NewBenchmarkRun(r bench.Report, version string) *BenchmarkRun {
	return &BenchmarkRun{
		Iterations:     r.Iterations,
		Version:        version,
		Compiled:       r.Compiled,
		Interpreted:    r.Interpreted,
		CompiledErrors: r.CompiledErrors,
		Speedup:        r.Speedup,
	}
}

// BenchmarkRepository stores benchmark runs.
type BenchmarkRepository struct {
	db *sql.DB
}

// Benchmarks returns the benchmark repository for this store.
func (s *Store) Benchmarks() *BenchmarkRepository {
	return &BenchmarkRepository{db: s.db}
}

const benchmarkColumns = `id, iterations, version,
	compiled_avg_ms, compiled_min_ms, compiled_max_ms, compiled_p50_ms, compiled_p95_ms, compiled_count, compiled_errors,
	interpreted_avg_ms, interpreted_min_ms, interpreted_max_ms, interpreted_p50_ms, interpreted_p95_ms, interpreted_count,
	speedup, created_at`

// Create inserts a run, assigning an ID when it has none.
func (r *BenchmarkRepository) Create(run *BenchmarkRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	c, i := run.Compiled, run.Interpreted
	_, err := r.db.Exec(
		`INSERT INTO benchmark_runs (`+benchmarkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Iterations, run.Version,
		c.Avg, c.Min, c.Max, c.P50, c.P95, c.Count, run.CompiledErrors,
		i.Avg, i.Min, i.Max, i.P50, i.P95, i.Count,
		run.Speedup, run.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBenchmark(row scanner) (*BenchmarkRun, error) {
	run := &BenchmarkRun{}
	c, i := &run.Compiled, &run.Interpreted
	err := row.Scan(
		&run.ID, &run.Iterations, &run.Version,
		&c.Avg, &c.Min, &c.Max, &c.P50, &c.P95, &c.Count, &run.CompiledErrors,
		&i.Avg, &i.Min, &i.Max, &i.P50, &i.P95, &i.Count,
		&run.Speedup, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *BenchmarkRepository) GetByID(id string) (*BenchmarkRun, error) {
	run, err := scanBenchmark(r.db.QueryRow(
		`SELECT `+benchmarkColumns+` FROM benchmark_runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List returns up to limit runs, newest first. A limit of 0 returns all.
func (r *BenchmarkRepository) List(limit int) ([]*BenchmarkRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+benchmarkColumns+` FROM benchmark_runs
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*BenchmarkRun
	for rows.Next() {
		run, err := scanBenchmark(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Delete removes a run by its ID.
func (r *BenchmarkRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM benchmark_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(result)
}

// Trend returns the stored runs oldest first as chart points.
func (r *BenchmarkRepository) Trend(limit int) ([]bench.TrendPoint, error) {
	runs, err := r.List(limit)
	if err != nil {
		return nil, err
	}
	points := make([]bench.TrendPoint, len(runs))
	for n, run := range runs {
		points[len(runs)-1-n] = bench.TrendPoint{
			Label:       run.CreatedAt.Format("01-02 15:04:05"),
			Compiled:    run.Compiled.Avg,
			Interpreted: run.Interpreted.Avg,
		}
	}
	return points, nil
}
