package scorelog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS score_events (
	event_id    TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	top_label   TEXT NOT NULL,
	top_prob    REAL NOT NULL,
	probs_json  TEXT NOT NULL,
	valence     REAL NOT NULL,
	arousal     REAL NOT NULL,
	cache_hit   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_events_label
ON score_events(top_label);
`

// #endregion schema

// #region types
// Event is one recorded scoring outcome.
type Event struct {
	EventID        string
	Text           string
	TopLabel       string
	TopProbability float64
	Probabilities  map[string]float64
	Valence        float64
	Arousal        float64
	CacheHit       bool
	CreatedAt      time.Time
}

// LabelSummary aggregates events by top label.
type LabelSummary struct {
	Label       string
	Count       int64
	MeanTopProb float64
	MeanValence float64
	MeanArousal float64
}

// #endregion types

// #region store
// Store persists scoring outcomes in SQLite for offline calibration tuning.
// The serving core never touches it; only the cmd tools write and read here.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region record
// Record persists one event. A missing ID or timestamp is filled in here.
func (s *Store) Record(ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	probsJSON, err := json.Marshal(ev.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	cacheHit := 0
	if ev.CacheHit {
		cacheHit = 1
	}

	_, err = s.db.Exec(
		`INSERT INTO score_events
		 (event_id, text, top_label, top_prob, probs_json, valence, arousal, cache_hit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.Text, ev.TopLabel, ev.TopProbability, string(probsJSON),
		ev.Valence, ev.Arousal, cacheHit, ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// #endregion record

// #region summary
// Summary aggregates recorded events per top label, most frequent first.
func (s *Store) Summary() ([]LabelSummary, error) {
	rows, err := s.db.Query(
		`SELECT top_label, COUNT(*), AVG(top_prob), AVG(valence), AVG(arousal)
		 FROM score_events GROUP BY top_label ORDER BY COUNT(*) DESC, top_label`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary query: %w", err)
	}
	defer rows.Close()

	var out []LabelSummary
	for rows.Next() {
		var ls LabelSummary
		if err := rows.Scan(&ls.Label, &ls.Count, &ls.MeanTopProb, &ls.MeanValence, &ls.MeanArousal); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// #endregion summary

// #region list-recent
// ListRecent returns the newest events first.
func (s *Store) ListRecent(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, text, top_label, top_prob, probs_json, valence, arousal, cache_hit, created_at
		 FROM score_events ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var probsJSON string
		var cacheHit int
		var createdStr string
		if err := rows.Scan(&ev.EventID, &ev.Text, &ev.TopLabel, &ev.TopProbability,
			&probsJSON, &ev.Valence, &ev.Arousal, &cacheHit, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if err := json.Unmarshal([]byte(probsJSON), &ev.Probabilities); err != nil {
			return nil, fmt.Errorf("unmarshal probabilities: %w", err)
		}
		ev.CacheHit = cacheHit != 0
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// #endregion list-recent
