package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Emission is a gesture that passed the stability gate.
type Emission struct {
	ID         string    `json:"id"`
	Gesture    string    `json:"gesture"`
	GestureID  int       `json:"gestureId"`
	Confidence float64   `json:"confidence"`
	Method     string    `json:"method"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EmissionRepository stores emitted gestures.
type EmissionRepository struct {
	db *sql.DB
}

// Emissions returns the emission repository for this store.
func (s *Store) Emissions() *EmissionRepository {
	return &EmissionRepository{db: s.db}
}

// Create inserts an emission. A zero CreatedAt is set to now.
func (r *EmissionRepository) Create(e *Emission) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	_, err := r.db.Exec(
		`INSERT INTO emissions (id, gesture, gesture_id, confidence, method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Gesture, e.GestureID, e.Confidence, e.Method, e.CreatedAt,
	)
	return err
}

// Recent returns up to limit emissions, newest first.
func (r *EmissionRepository) Recent(limit int) ([]*Emission, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, gesture, gesture_id, confidence, method, created_at
		 FROM emissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emissions []*Emission
	for rows.Next() {
		e := &Emission{}
		if err := rows.Scan(&e.ID, &e.Gesture, &e.GestureID, &e.Confidence, &e.Method, &e.CreatedAt); err != nil {
			return nil, err
		}
		emissions = append(emissions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emissions, nil
}

// Counts returns how many times each gesture was emitted.
func (r *EmissionRepository) Counts() (map[string]int, error) {
	rows, err := r.db.Query(`SELECT gesture, COUNT(*) FROM emissions GROUP BY gesture`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var gesture string
		var n int
		if err := rows.Scan(&gesture, &n); err != nil {
			return nil, err
		}
		counts[gesture] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes emissions older than t and returns how many were
// removed.
func (r *EmissionRepository) DeleteBefore(t time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM emissions WHERE created_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
