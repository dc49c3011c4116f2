// Package results parses the per-episode metrics evaluator runs emit
// and maintains a cross-run SQLite index for aggregate queries.
//
// An evaluator child appends one JSON object per finished episode to
// episodes.jsonl in its run directory:
//
//	{"episode_id":"ep_0042","scene":"yZVvKaJZghh","goal":"chair",
//	 "success":true,"spl":0.73,"distance_to_goal":0.42,"steps":187,
//	 "checked_area":23.5}
package results

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/polonav/igpctl/internal/config"
	"github.com/polonav/igpctl/internal/logging"
)

// Episode is one evaluation episode's outcome.
type Episode struct {
	EpisodeID      string  `json:"episode_id"`
	Scene          string  `json:"scene"`
	Goal           string  `json:"goal"`
	Success        bool    `json:"success"`
	SPL            float64 `json:"spl"`
	DistanceToGoal float64 `json:"distance_to_goal"`
	Steps          int     `json:"steps"`
	CheckedArea    float64 `json:"checked_area,omitempty"`
}

// ReadEpisodes parses an episodes.jsonl file. Malformed lines are
// skipped: the child may be mid-write on the last line.
func ReadEpisodes(path string) ([]Episode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var episodes []Episode
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ep Episode
		if err := json.Unmarshal(line, &ep); err != nil {
			continue
		}
		episodes = append(episodes, ep)
	}
	if err := scanner.Err(); err != nil {
		return episodes, fmt.Errorf("error reading episodes: %w", err)
	}
	return episodes, nil
}

// Summary aggregates episode metrics.
type Summary struct {
	Episodes        int
	SuccessRate     float64
	MeanSPL         float64
	MeanDistance    float64
	MeanSteps       float64
	MeanCheckedArea float64
}

// Summarize computes aggregate metrics over episodes.
func Summarize(episodes []Episode) Summary {
	s := Summary{Episodes: len(episodes)}
	if len(episodes) == 0 {
		return s
	}

	for _, ep := range episodes {
		if ep.Success {
			s.SuccessRate++
		}
		s.MeanSPL += ep.SPL
		s.MeanDistance += ep.DistanceToGoal
		s.MeanSteps += float64(ep.Steps)
		s.MeanCheckedArea += ep.CheckedArea
	}

	n := float64(len(episodes))
	s.SuccessRate /= n
	s.MeanSPL /= n
	s.MeanDistance /= n
	s.MeanSteps /= n
	s.MeanCheckedArea /= n
	return s
}

// Store is the SQLite index of episode metrics across runs.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open creates or opens the results index at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results index: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize results schema: %w", err)
	}
	return store, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the index file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run TEXT PRIMARY KEY,
		experiment TEXT NOT NULL,
		policy TEXT,
		indexed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS episodes (
		run TEXT NOT NULL,
		episode_id TEXT NOT NULL,
		scene TEXT NOT NULL,
		goal TEXT NOT NULL,
		success INTEGER NOT NULL,
		spl REAL NOT NULL,
		distance_to_goal REAL NOT NULL,
		steps INTEGER NOT NULL,
		checked_area REAL,
		PRIMARY KEY (run, episode_id)
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_run ON episodes(run);
	CREATE INDEX IF NOT EXISTS idx_episodes_scene ON episodes(scene);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IndexRun records a run's episodes, replacing any previous rows for
// the same run so re-indexing is idempotent.
func (s *Store) IndexRun(record *config.RunRecord, episodes []Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO runs (run, experiment, policy, indexed_at) VALUES (?, ?, ?, ?)",
		record.Name, record.Experiment, record.Policy, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM episodes WHERE run = ?", record.Name); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO episodes
		(run, episode_id, scene, goal, success, spl, distance_to_goal, steps, checked_area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ep := range episodes {
		success := 0
		if ep.Success {
			success = 1
		}
		_, err := stmt.Exec(record.Name, ep.EpisodeID, ep.Scene, ep.Goal,
			success, ep.SPL, ep.DistanceToGoal, ep.Steps, ep.CheckedArea)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Filter narrows a results query.
type Filter struct {
	Experiment string
	Policy     string
}

// RunSummary is one run's aggregated metrics from the index.
type RunSummary struct {
	Run        string
	Experiment string
	Policy     string
	Summary
}

// Query aggregates indexed episodes per run, newest run name last.
func (s *Store) Query(f Filter) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT e.run, r.experiment, COALESCE(r.policy, ''),
		       COUNT(*),
		       AVG(e.success), AVG(e.spl), AVG(e.distance_to_goal),
		       AVG(e.steps), AVG(COALESCE(e.checked_area, 0))
		FROM episodes e
		JOIN runs r ON r.run = e.run
		WHERE (? = '' OR r.experiment = ?)
		  AND (? = '' OR r.policy = ?)
		GROUP BY e.run
		ORDER BY e.run`,
		f.Experiment, f.Experiment, f.Policy, f.Policy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var rs RunSummary
		err := rows.Scan(&rs.Run, &rs.Experiment, &rs.Policy,
			&rs.Episodes, &rs.SuccessRate, &rs.MeanSPL, &rs.MeanDistance,
			&rs.MeanSteps, &rs.MeanCheckedArea)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}

// Episodes returns the indexed episodes for one run.
func (s *Store) Episodes(run string) ([]Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT episode_id, scene, goal, success, spl, distance_to_goal, steps,
		       COALESCE(checked_area, 0)
		FROM episodes WHERE run = ? ORDER BY episode_id`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		var success int
		err := rows.Scan(&ep.EpisodeID, &ep.Scene, &ep.Goal, &success,
			&ep.SPL, &ep.DistanceToGoal, &ep.Steps, &ep.CheckedArea)
		if err != nil {
			return nil, err
		}
		ep.Success = success != 0
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// Sync indexes every run directory that has episode results, returning
// the number of runs indexed.
func Sync(store *Store, paths *config.Paths) (int, error) {
	records, err := config.ListRuns(paths.RunsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	indexed := 0
	for _, rec := range records {
		runDir, err := paths.RunDir(rec.Name)
		if err != nil {
			continue
		}
		path := config.EpisodesPath(runDir)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		episodes, err := ReadEpisodes(path)
		if err != nil {
			logging.Warn("failed to read episodes", "run", rec.Name, "error", err)
			continue
		}
		if err := store.IndexRun(rec, episodes); err != nil {
			return indexed, fmt.Errorf("failed to index run %s: %w", rec.Name, err)
		}
		indexed++
	}
	return indexed, nil
}
