// Package costcache keeps an append-only record of every pod's hourly
// cost, including pods that have since been terminated. It backs the
// savings figures on the dashboard: once a pod is gone the API no
// longer reports its cost, so this cache is the only source.
package costcache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS pod_costs (
	pod_id      TEXT PRIMARY KEY,
	pod_name    TEXT NOT NULL,
	cost_per_hr REAL NOT NULL,
	first_seen  INTEGER NOT NULL,
	last_seen   INTEGER NOT NULL
);
`

// Entry is one pod's cost record. FirstSeen and LastSeen are unix
// epochs bounding when the monitor observed the pod.
type Entry struct {
	PodID     string  `json:"pod_id"`
	PodName   string  `json:"pod_name"`
	CostPerHr float64 `json:"cost_per_hr"`
	FirstSeen int64   `json:"first_seen"`
	LastSeen  int64   `json:"last_seen"`
}

type Cache struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open creates or opens the cache database at the given path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cost cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cost cache schema: %w", err)
	}
	return &Cache{db: db, nowFn: time.Now}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Update records a pod's current cost. New pods get a fresh entry;
// known pods bump last_seen and pick up cost or name changes.
func (c *Cache) Update(podID, podName string, costPerHr float64) error {
	now := c.nowFn().Unix()
	_, err := c.db.Exec(`
		INSERT INTO pod_costs (pod_id, pod_name, cost_per_hr, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (pod_id) DO UPDATE SET
			pod_name = excluded.pod_name,
			cost_per_hr = excluded.cost_per_hr,
			last_seen = excluded.last_seen`,
		podID, podName, costPerHr, now, now)
	if err != nil {
		return fmt.Errorf("updating cost cache: %w", err)
	}
	return nil
}

// SyncFromPods updates the cache from one poll's snapshots.
func (c *Cache) SyncFromPods(pods []models.PodSnapshot) {
	for _, pod := range pods {
		if err := c.Update(pod.ID, pod.Name, pod.CostPerHr); err != nil {
			logger.WithPod(pod.ID).WithError(err).Warn("Cost cache update failed")
		}
	}
}

// Get returns a pod's cost entry, if the pod has ever been seen.
func (c *Cache) Get(podID string) (Entry, bool, error) {
	var e Entry
	err := c.db.QueryRow(`
		SELECT pod_id, pod_name, cost_per_hr, first_seen, last_seen
		FROM pod_costs WHERE pod_id = ?`, podID).
		Scan(&e.PodID, &e.PodName, &e.CostPerHr, &e.FirstSeen, &e.LastSeen)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cost cache: %w", err)
	}
	return e, true, nil
}

// All returns every cost entry ever recorded.
func (c *Cache) All() ([]Entry, error) {
	rows, err := c.db.Query(`
		SELECT pod_id, pod_name, cost_per_hr, first_seen, last_seen
		FROM pod_costs ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("reading cost cache: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PodID, &e.PodName, &e.CostPerHr, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats summarizes the cache for the dashboard.
type Stats struct {
	TotalPods      int     `json:"total_pods"`
	TotalCostPerHr float64 `json:"total_cost_per_hr"`
}

func (c *Cache) Stats() (Stats, error) {
	var s Stats
	err := c.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(cost_per_hr), 0) FROM pod_costs`).
		Scan(&s.TotalPods, &s.TotalCostPerHr)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cost cache stats: %w", err)
	}
	return s, nil
}
