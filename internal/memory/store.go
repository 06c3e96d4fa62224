// Package memory persists past fix records and retrieves similar fixes
// to bias future generations.
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// FixRecord is one remembered (issue, fix) pair. Records are append-only;
// only the feedback fields are mutated in place when feedback arrives.
type FixRecord struct {
	IssueKey          string   `json:"issue_key"`
	Rule              string   `json:"rule"`
	Message           string   `json:"message"`
	FilePath          string   `json:"file_path"`
	FixedCode         string   `json:"fixed_code"`
	OriginalCode      string   `json:"original_code"`
	Explanation       string   `json:"explanation"`
	Timestamp         float64  `json:"timestamp"`
	Success           bool     `json:"success"`
	Feedback          *string  `json:"feedback,omitempty"`
	FeedbackTimestamp *float64 `json:"feedback_timestamp,omitempty"`
}

// Stats summarizes the store.
type Stats struct {
	Total       int                  `json:"total_memories"`
	Successful  int                  `json:"successful_fixes"`
	SuccessRate float64              `json:"success_rate"`
	Rules       map[string]RuleStats `json:"rules"`
}

// RuleStats counts records for a single rule.
type RuleStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// Store is a file-backed memory of fix records. The whole collection is
// rewritten on every mutation, so all writers go through the mutex.
type Store struct {
	mu      sync.Mutex
	path    string
	records []FixRecord
}

// NewStore loads (or initializes) a store at path. A corrupt or
// unreadable file is not fatal: the store resets to empty with a warning.
func NewStore(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read memory file, starting empty", "path", s.path, "error", err)
		}
		return
	}
	var records []FixRecord
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("memory file is corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	s.records = records
	slog.Info("loaded fix memories", "count", len(records), "path", s.path)
}

// persist rewrites the entire collection. Must be called with the lock held.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memories: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Add appends a record and persists. Existing entries are never overwritten.
func (s *Store) Add(rec FixRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp == 0 {
		rec.Timestamp = unixSeconds(time.Now())
	}
	s.records = append(s.records, rec)
	return s.persist()
}

// ByRule returns up to limit successful records for rule, newest first.
func (s *Store) ByRule(rule string, limit int) []FixRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRuleLocked(rule, limit)
}

func (s *Store) byRuleLocked(rule string, limit int) []FixRecord {
	var out []FixRecord
	for _, r := range s.records {
		if r.Rule == rule && r.Success {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SimilarFixes ranks past successful fixes for an issue. Same-rule records
// come first, newest first. If fewer than limit match, records of other
// rules backfill the list, ranked by how many case-insensitive words their
// message shares with the query message (store order breaks ties).
func (s *Store) SimilarFixes(issueKey, rule, message string, limit int) []FixRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	fixes := s.byRuleLocked(rule, limit)
	if len(fixes) >= limit {
		return fixes
	}

	queryWords := tokenize(message)

	type scored struct {
		rec     FixRecord
		overlap int
		order   int
	}
	var candidates []scored
	for i, r := range s.records {
		if r.Rule == rule || !r.Success {
			continue
		}
		overlap := wordOverlap(queryWords, tokenize(r.Message))
		if overlap > 0 {
			candidates = append(candidates, scored{rec: r, overlap: overlap, order: i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].order < candidates[j].order
	})

	for _, c := range candidates {
		if len(fixes) >= limit {
			break
		}
		if !containsRecord(fixes, c.rec) {
			fixes = append(fixes, c.rec)
		}
	}
	return fixes
}

// RecordFeedback mutates the first record matching issueKey. When several
// records share a key only the first is updated; that is the defined
// behavior, surprising as it is. Unknown keys are a logged no-op.
func (s *Store) RecordFeedback(issueKey, feedbackText string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].IssueKey == issueKey {
			now := unixSeconds(time.Now())
			s.records[i].Feedback = &feedbackText
			s.records[i].FeedbackTimestamp = &now
			s.records[i].Success = success
			if err := s.persist(); err != nil {
				return err
			}
			slog.Info("recorded feedback on fix memory", "issue", issueKey, "success", success)
			return nil
		}
	}

	slog.Warn("no fix memory found for issue", "issue", issueKey)
	return nil
}

// Stats summarizes record counts and success rates, overall and per rule.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Rules: make(map[string]RuleStats)}
	for _, r := range s.records {
		stats.Total++
		rs := stats.Rules[r.Rule]
		rs.Total++
		if r.Success {
			stats.Successful++
			rs.Successful++
		}
		stats.Rules[r.Rule] = rs
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func tokenize(message string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(message)) {
		words[w] = struct{}{}
	}
	return words
}

func wordOverlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func containsRecord(records []FixRecord, rec FixRecord) bool {
	for _, r := range records {
		if r.IssueKey == rec.IssueKey && r.Timestamp == rec.Timestamp && r.Rule == rec.Rule {
			return true
		}
	}
	return false
}
