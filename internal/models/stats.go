package models

import "time"

// StatsRecord is the canonical per-user solved-problem summary returned to
// clients and stored in cache. Username is the cache key and is case-sensitive.
type StatsRecord struct {
	Username    string `json:"username"`
	TotalSolved int    `json:"total_solved"`
	Easy        int    `json:"easy"`
	Medium      int    `json:"medium"`
	Hard        int    `json:"hard"`
	Ranking     int    `json:"ranking"`
}

// CacheEntry pairs a cached StatsRecord with the time of its last successful
// refresh. Entries are upserted on every successful fetch and never evicted;
// staleness is decided at read time by the caller.
type CacheEntry struct {
	Username  string      `json:"username"`
	Stats     StatsRecord `json:"stats"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Fresh reports whether the entry was refreshed strictly less than maxAge ago.
// An entry exactly maxAge old is stale.
func (e CacheEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.UpdatedAt) < maxAge
}
