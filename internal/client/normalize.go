package client

import (
	"encoding/json"
	"fmt"

	"github.com/leetfollow/leetfollow-service/internal/models"
)

// submissionCount is one bucket of the acSubmissionNum array.
type submissionCount struct {
	Difficulty  string `json:"difficulty"`
	Count       int    `json:"count"`
	Submissions int    `json:"submissions"`
}

// statsResponse mirrors the GraphQL response envelope. matchedUser is null
// for unknown usernames; ranking is null for some fresh accounts.
type statsResponse struct {
	Data struct {
		MatchedUser *struct {
			Username    string `json:"username"`
			SubmitStats struct {
				ACSubmissionNum []submissionCount `json:"acSubmissionNum"`
			} `json:"submitStats"`
			Profile struct {
				Ranking *int `json:"ranking"`
			} `json:"profile"`
		} `json:"matchedUser"`
	} `json:"data"`
}

// difficultyOrder is the upstream bucket ordering. Normalization indexes by
// position, so each label is asserted rather than trusted.
var difficultyOrder = [...]string{"All", "Easy", "Medium", "Hard"}

// Normalize turns a raw GraphQL response body into a StatsRecord.
//
// The upstream All bucket duplicates the sum of Easy+Medium+Hard, so summing
// every bucket counts each accepted problem twice; integer-dividing by two
// restores the true total. Fails on malformed JSON, an unmatched username,
// unexpected bucket ordering, or a missing ranking.
func Normalize(body []byte) (models.StatsRecord, error) {
	var resp statsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.StatsRecord{}, fmt.Errorf("%w: parse response: %v", ErrMalformedResponse, err)
	}

	matched := resp.Data.MatchedUser
	if matched == nil {
		return models.StatsRecord{}, fmt.Errorf("%w", ErrUserNotFound)
	}

	buckets := matched.SubmitStats.ACSubmissionNum
	if len(buckets) != len(difficultyOrder) {
		return models.StatsRecord{}, fmt.Errorf("%w: expected %d submission buckets, got %d",
			ErrMalformedResponse, len(difficultyOrder), len(buckets))
	}

	total := 0
	for i, bucket := range buckets {
		if bucket.Difficulty != difficultyOrder[i] {
			return models.StatsRecord{}, fmt.Errorf("%w: expected difficulty %q at index %d, got %q",
				ErrMalformedResponse, difficultyOrder[i], i, bucket.Difficulty)
		}
		if bucket.Count < 0 {
			return models.StatsRecord{}, fmt.Errorf("%w: negative count for %q", ErrMalformedResponse, bucket.Difficulty)
		}
		total += bucket.Count
	}
	total /= 2

	if matched.Profile.Ranking == nil {
		return models.StatsRecord{}, fmt.Errorf("%w: ranking missing", ErrMalformedResponse)
	}

	return models.StatsRecord{
		Username:    matched.Username,
		TotalSolved: total,
		Easy:        buckets[1].Count,
		Medium:      buckets[2].Count,
		Hard:        buckets[3].Count,
		Ranking:     *matched.Profile.Ranking,
	}, nil
}
