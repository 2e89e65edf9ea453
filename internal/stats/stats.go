// Package stats records per-stream metrics (model, outcome, time to first
// delta, duration, size) and persists them to ~/.batu/stats.json.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/batu-chat/batu/internal/config"
)

const (
	fileName   = "stats.json"
	maxRecords = 1000
)

// Outcome values, matching the terminal stream states.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Record is a single instrumented stream.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
	Model          string    `json:"model"`
	Outcome        string    `json:"outcome"`
	FirstDeltaMs   int64     `json:"first_delta_ms,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	Deltas         int       `json:"deltas"`
	Chars          int       `json:"chars"`
	Error          string    `json:"error,omitempty"`
}

// Summary is the aggregated stats dashboard.
type Summary struct {
	TotalStreams    int          `json:"total_streams"`
	Succeeded       int          `json:"succeeded"`
	Failed          int          `json:"failed"`
	Cancelled       int          `json:"cancelled"`
	SuccessRate     float64      `json:"success_rate"`
	AvgFirstDeltaMs int64        `json:"avg_first_delta_ms"`
	AvgDurationMs   int64        `json:"avg_duration_ms"`
	TotalChars      int          `json:"total_chars"`
	TopModels       []ModelCount `json:"top_models"`
	TodayCount      int          `json:"today_count"`
	ThisWeekCount   int          `json:"this_week_count"`
}

// ModelCount pairs a model with its usage count.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

var fileMu sync.Mutex

func statsPath() string {
	return filepath.Join(config.Dir(), fileName)
}

// Save appends r to the stats file, keeping the most recent records. A
// file that cannot be decoded is left untouched and its error returned.
func Save(r Record) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	records, err := loadAll()
	if err != nil {
		return fmt.Errorf("load %s: %w", statsPath(), err)
	}
	records = append(records, r)
	if len(records) > maxRecords {
		records = records[len(records)-maxRecords:]
	}

	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statsPath(), data, 0o600)
}

// LoadAll returns all stored records.
func LoadAll() ([]Record, error) {
	fileMu.Lock()
	defer fileMu.Unlock()
	return loadAll()
}

func loadAll() ([]Record, error) {
	data, err := os.ReadFile(statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Summarize computes aggregated stats from all stored records.
func Summarize() (*Summary, error) {
	records, err := LoadAll()
	if err != nil {
		return nil, err
	}
	return summarize(records, time.Now()), nil
}

func summarize(records []Record, now time.Time) *Summary {
	s := &Summary{TopModels: []ModelCount{}}
	if len(records) == 0 {
		return s
	}
	s.TotalStreams = len(records)

	var totalFirst, totalDuration int64
	var firstCount int
	modelFreq := map[string]int{}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	weekAgo := now.AddDate(0, 0, -7)

	for _, r := range records {
		switch r.Outcome {
		case OutcomeSucceeded:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
		case OutcomeCancelled:
			s.Cancelled++
		}
		if r.FirstDeltaMs > 0 {
			totalFirst += r.FirstDeltaMs
			firstCount++
		}
		totalDuration += r.DurationMs
		s.TotalChars += r.Chars
		if r.Model != "" {
			modelFreq[r.Model]++
		}
		if !r.Timestamp.Before(today) {
			s.TodayCount++
		}
		if r.Timestamp.After(weekAgo) {
			s.ThisWeekCount++
		}
	}

	s.SuccessRate = float64(s.Succeeded) / float64(len(records)) * 100
	s.AvgDurationMs = totalDuration / int64(len(records))
	if firstCount > 0 {
		s.AvgFirstDeltaMs = totalFirst / int64(firstCount)
	}
	s.TopModels = topN(modelFreq, 5)
	return s
}

// topN returns the n most used models, ties broken by name.
func topN(freq map[string]int, n int) []ModelCount {
	all := make([]ModelCount, 0, len(freq))
	for model, count := range freq {
		all = append(all, ModelCount{Model: model, Count: count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Model < all[j].Model
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
