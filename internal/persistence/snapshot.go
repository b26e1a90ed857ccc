// Package persistence stores and loads JSON snapshots of cluster state.
//
// Each kind of state lives in its own file under the data directory.
// Snapshots are best-effort durability: a failed write is the caller's
// to log, never a reason to touch in-memory state.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/filecluster/filecluster/internal/models"
)

const (
	usersFile = "users.json"
	nodesFile = "nodes.json"
	filesFile = "files.json"
	logsFile  = "logs.json"
)

// Store reads and writes per-kind snapshot files in a data directory.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// LoadUsers reads the users snapshot.
func (s *Store) LoadUsers() ([]models.User, error) {
	var users []models.User
	if err := s.load(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SaveUsers writes the users snapshot.
func (s *Store) SaveUsers(users []models.User) error {
	return s.save(usersFile, users)
}

// LoadNodes reads the nodes snapshot.
func (s *Store) LoadNodes() ([]models.Node, error) {
	var nodes []models.Node
	if err := s.load(nodesFile, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// SaveNodes writes the nodes snapshot.
func (s *Store) SaveNodes(nodes []models.Node) error {
	return s.save(nodesFile, nodes)
}

// LoadFiles reads the files snapshot.
func (s *Store) LoadFiles() ([]models.File, error) {
	var files []models.File
	if err := s.load(filesFile, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// SaveFiles writes the files snapshot.
func (s *Store) SaveFiles(files []models.File) error {
	return s.save(filesFile, files)
}

// LoadAuditLog reads the audit log snapshot.
func (s *Store) LoadAuditLog() ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := s.load(logsFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Flush writes the audit log snapshot. It satisfies audit.Sink so the
// store can serve as the log's batched flush target.
func (s *Store) Flush(entries []models.AuditEntry) error {
	return s.save(logsFile, entries)
}

func (s *Store) load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s *Store) save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
