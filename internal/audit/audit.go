// Package audit implements the append-only, checksummed event log.
//
// The in-memory log is bounded to the most recent 1000 entries; a
// secondary per-node index serves filtered queries. Every 10th append
// flushes the current log to the configured sinks.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filecluster/filecluster/internal/models"
)

const (
	// maxEntries bounds the in-memory log; the oldest entry is evicted first.
	maxEntries = 1000
	// queryLimit caps the number of entries a query returns.
	queryLimit = 100
	// flushEvery is the append interval between sink flushes.
	flushEvery = 10
)

// Sink receives batched flushes of the current log.
type Sink interface {
	Flush(entries []models.AuditEntry) error
}

// Filter selects entries by optional equality matches.
type Filter struct {
	UserID string
	NodeID string
	Event  models.EventKind
}

// Finding reports one inconsistency detected in the log.
type Finding struct {
	// Type is the inconsistency category; currently only DUPLICATE_LOG.
	Type string `json:"type"`
	// EntryID is the id of the repeated entry.
	EntryID string `json:"entryId"`
	// Details describes the finding.
	Details string `json:"details"`
}

// Log is the cluster's audit record.
type Log struct {
	mu       sync.Mutex
	entries  []models.AuditEntry
	byNode   map[string][]models.AuditEntry
	appended uint64
	sinks    []Sink
	log      *zap.Logger
	now      func() time.Time
}

// New returns an empty Log flushing to the given sinks.
func New(log *zap.Logger, sinks ...Sink) *Log {
	return &Log{
		byNode: make(map[string][]models.AuditEntry),
		sinks:  sinks,
		log:    log,
		now:    time.Now,
	}
}

// Load seeds the log from persisted entries, rebuilding the per-node
// index and applying the in-memory bound.
func (l *Log) Load(entries []models.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}
	l.entries = append([]models.AuditEntry(nil), entries...)
	l.byNode = make(map[string][]models.AuditEntry)
	for _, e := range l.entries {
		l.byNode[e.NodeID] = append(l.byNode[e.NodeID], e)
	}
}

// Record appends a checksummed entry and returns it. The primary log
// is trimmed FIFO to the bound; every 10th append flushes the log to
// the sinks. Sink errors are logged, never surfaced: the in-memory log
// stays the source of truth.
func (l *Log) Record(event models.EventKind, userID, resourceID, nodeID string, outcome models.Outcome, details map[string]string) models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry := models.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Event:      event,
		UserID:     userID,
		ResourceID: resourceID,
		NodeID:     nodeID,
		Outcome:    outcome,
		Details:    details,
		Checksum:   entryChecksum(event, userID, resourceID, nodeID, now),
	}

	l.entries = append(l.entries, entry)
	l.byNode[nodeID] = append(l.byNode[nodeID], entry)
	if len(l.entries) > maxEntries {
		evicted := l.entries[0]
		l.entries = l.entries[1:]
		l.dropFromIndex(evicted)
	}

	l.appended++
	if l.appended%flushEvery == 0 {
		snapshot := append([]models.AuditEntry(nil), l.entries...)
		for _, sink := range l.sinks {
			if err := sink.Flush(snapshot); err != nil {
				l.log.Error("audit flush failed", zap.Error(err))
			}
		}
	}

	return entry
}

// dropFromIndex removes an evicted entry from its node index so the
// index stays bounded together with the primary log. Caller must hold
// l.mu.
func (l *Log) dropFromIndex(evicted models.AuditEntry) {
	indexed := l.byNode[evicted.NodeID]
	for i, e := range indexed {
		if e.ID == evicted.ID {
			l.byNode[evicted.NodeID] = append(indexed[:i], indexed[i+1:]...)
			break
		}
	}
	if len(l.byNode[evicted.NodeID]) == 0 {
		delete(l.byNode, evicted.NodeID)
	}
}

// Query returns at most the 100 most recent entries matching the
// filter, preserving original order.
func (l *Log) Query(f Filter) []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	matched := make([]models.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.NodeID != "" && e.NodeID != f.NodeID {
			continue
		}
		if f.Event != "" && e.Event != f.Event {
			continue
		}
		matched = append(matched, e)
	}
	if len(matched) > queryLimit {
		matched = matched[len(matched)-queryLimit:]
	}
	return matched
}

// ByNode returns the entries indexed for a node.
func (l *Log) ByNode(nodeID string) []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AuditEntry(nil), l.byNode[nodeID]...)
}

// Len returns the number of in-memory entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of the current log.
func (l *Log) Snapshot() []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AuditEntry(nil), l.entries...)
}

// FlushNow pushes the current log to all sinks, used at shutdown.
func (l *Log) FlushNow() {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := append([]models.AuditEntry(nil), l.entries...)
	for _, sink := range l.sinks {
		if err := sink.Flush(snapshot); err != nil {
			l.log.Error("audit flush failed", zap.Error(err))
		}
	}
}

// DetectInconsistencies scans for repeated entries. Two entries are
// duplicates when the full event tuple including the recorded
// timestamp matches, which flags double-appended or replayed records
// without false-positives on ordinary repetition.
func (l *Log) DetectInconsistencies() []Finding {
	l.mu.Lock()
	defer l.mu.Unlock()

	findings := []Finding{}
	seen := make(map[string]struct{}, len(l.entries))
	for _, e := range l.entries {
		key := duplicateKey(e)
		if _, dup := seen[key]; dup {
			findings = append(findings, Finding{
				Type:    "DUPLICATE_LOG",
				EntryID: e.ID,
				Details: "duplicate audit entry detected",
			})
		}
		seen[key] = struct{}{}
	}
	return findings
}

func duplicateKey(e models.AuditEntry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", e.Event, e.UserID, e.ResourceID, e.NodeID, e.Timestamp.UnixNano())
}

// entryChecksum hashes the event fields plus the record timestamp so
// persisted entries stay verifiable across restarts.
func entryChecksum(event models.EventKind, userID, resourceID, nodeID string, ts time.Time) string {
	data := fmt.Sprintf("%s%s%s%s%d", event, userID, resourceID, nodeID, ts.UnixNano())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
