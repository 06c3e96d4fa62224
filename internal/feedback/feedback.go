// Package feedback records judgments about fix quality and classifies
// generated fixes with a deterministic diff-sizing heuristic.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tobyh/sonarfix/internal/memory"
)

// SourceAutomated marks feedback produced by the classifier rather than
// a human reviewer.
const SourceAutomated = "automated"

// Item is one judgment about a fix, linked to a memory record by issue
// key. Items are append-only and never mutated after creation.
type Item struct {
	IssueKey     string  `json:"issue_key"`
	FeedbackText string  `json:"feedback_text"`
	Success      bool    `json:"success"`
	Timestamp    float64 `json:"timestamp"`
	Source       string  `json:"source"`
}

// SourceStats counts feedback per source.
type SourceStats struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
}

// Stats summarizes the feedback store.
type Stats struct {
	Total        int                    `json:"total_feedback"`
	Positive     int                    `json:"positive_feedback"`
	PositiveRate float64                `json:"positive_rate"`
	Sources      map[string]SourceStats `json:"sources"`
}

// Manager is a file-backed feedback store. Every recorded item is also
// forwarded to the memory store so the linked fix record reflects it.
type Manager struct {
	mu     sync.Mutex
	path   string
	items  []Item
	memory *memory.Store
}

// NewManager loads (or initializes) a manager at path. Corrupt data is
// non-fatal: the store resets to empty with a warning.
func NewManager(path string, mem *memory.Store) *Manager {
	m := &Manager{path: path, memory: mem}
	m.load()
	return m
}

func (m *Manager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("could not read feedback file, starting empty", "path", m.path, "error", err)
		}
		return
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("feedback file is corrupt, starting empty", "path", m.path, "error", err)
		return
	}
	m.items = items
	slog.Info("loaded feedback items", "count", len(items), "path", m.path)
}

func (m *Manager) persist() error {
	data, err := json.MarshalIndent(m.items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", m.path, err)
	}
	return nil
}

// Record appends an item, persists, and forwards it to the memory store.
func (m *Manager) Record(item Item) error {
	m.mu.Lock()
	if item.Timestamp == 0 {
		item.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	m.items = append(m.items, item)
	err := m.persist()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if m.memory != nil {
		if err := m.memory.RecordFeedback(item.IssueKey, item.FeedbackText, item.Success); err != nil {
			return fmt.Errorf("update memory feedback: %w", err)
		}
	}
	return nil
}

// ForIssue returns every feedback item recorded for issueKey.
func (m *Manager) ForIssue(issueKey string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Item
	for _, item := range m.items {
		if item.IssueKey == issueKey {
			out = append(out, item)
		}
	}
	return out
}

// StatsBySource summarizes feedback volume and positivity per source.
func (m *Manager) StatsBySource() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Sources: make(map[string]SourceStats)}
	for _, item := range m.items {
		stats.Total++
		ss := stats.Sources[item.Source]
		ss.Total++
		if item.Success {
			stats.Positive++
			ss.Positive++
		}
		stats.Sources[item.Source] = ss
	}
	if stats.Total > 0 {
		stats.PositiveRate = float64(stats.Positive) / float64(stats.Total)
	}
	return stats
}

// Classify applies the automated verdict rule to a generated fix:
//
//   - identical to the original: failure, "not changed"
//   - line-count delta above 20% of the original: success, size warning
//   - anything else: success, "minimal changes"
func Classify(issueKey, fixedCode, originalCode string) Item {
	var text string
	var success bool

	if fixedCode == originalCode {
		text = "The code was not changed."
		success = false
	} else {
		originalLines := strings.Split(strings.TrimSpace(originalCode), "\n")
		fixedLines := strings.Split(strings.TrimSpace(fixedCode), "\n")

		lineDiff := len(fixedLines) - len(originalLines)
		if lineDiff < 0 {
			lineDiff = -lineDiff
		}
		var diffPercent float64
		if len(originalLines) > 0 {
			diffPercent = float64(lineDiff) / float64(len(originalLines))
		}

		if diffPercent > 0.2 {
			text = fmt.Sprintf("The fix changed %.0f%% of the code, which is more than expected.", diffPercent*100)
			success = true
		} else {
			text = "The fix made minimal changes to the code."
			success = true
		}
	}

	return Item{
		IssueKey:     issueKey,
		FeedbackText: text,
		Success:      success,
		Source:       SourceAutomated,
	}
}
