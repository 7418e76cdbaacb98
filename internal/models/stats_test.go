package models

import (
	"testing"
	"time"
)

// TestCacheEntry_Fresh verifies the freshness comparison is strict: an entry
// one second younger than maxAge is fresh, an entry exactly maxAge old is not.
func TestCacheEntry_Fresh(t *testing.T) {
	now := time.Now()
	maxAge := 24 * time.Hour

	tests := []struct {
		name      string
		updatedAt time.Time
		want      bool
	}{
		{
			name:      "just updated",
			updatedAt: now,
			want:      true,
		},
		{
			name:      "one second inside the window",
			updatedAt: now.Add(-maxAge + time.Second),
			want:      true,
		},
		{
			name:      "exactly at the boundary",
			updatedAt: now.Add(-maxAge),
			want:      false,
		},
		{
			name:      "well past the boundary",
			updatedAt: now.Add(-48 * time.Hour),
			want:      false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry := CacheEntry{Username: "u", UpdatedAt: tc.updatedAt}
			if got := entry.Fresh(now, maxAge); got != tc.want {
				t.Errorf("Fresh() = %v, want %v (age %v)", got, tc.want, now.Sub(tc.updatedAt))
			}
		})
	}
}
