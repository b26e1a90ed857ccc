// Package store implements the in-memory replicated file store with
// per-file locking and versioning.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filecluster/filecluster/internal/models"
)

var (
	// ErrFileNotFound is returned when a file id is unknown.
	ErrFileNotFound = errors.New("file not found")
	// ErrLockConflict is returned when a file is locked by another user.
	ErrLockConflict = errors.New("file locked by another user")
	// ErrUnauthorized is returned when a non-holder tries to unlock a file.
	ErrUnauthorized = errors.New("not the lock holder")
)

// Checksum returns the hex-encoded SHA-256 of the content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Store holds all file entries. It preserves insertion order for
// reproducible iteration and returns copies of entries.
type Store struct {
	mu    sync.RWMutex
	files map[string]*models.File
	order []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{files: make(map[string]*models.File)}
}

// Create allocates a new file at version 1 with a fresh checksum.
// Creation and modification timestamps are equal at creation.
func (s *Store) Create(name, content, ownerID, nodeID string) models.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	f := &models.File{
		ID:          uuid.NewString(),
		Name:        name,
		Content:     content,
		OwnerID:     ownerID,
		PrimaryNode: nodeID,
		Version:     1,
		Replicas:    []string{},
		CreatedAt:   now,
		ModifiedAt:  now,
		Checksum:    Checksum(content),
	}
	s.files[f.ID] = f
	s.order = append(s.order, f.ID)
	return copyFile(f)
}

// Get returns a copy of the file with the given id.
func (s *Store) Get(id string) (models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return models.File{}, ErrFileNotFound
	}
	return copyFile(f), nil
}

// Lock marks the file as held by userID. Locking a file already held
// by the same user is a no-op; a different holder yields ErrLockConflict.
func (s *Store) Lock(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if f.LockedBy != "" && f.LockedBy != userID {
		return ErrLockConflict
	}
	f.LockedBy = userID
	return nil
}

// Unlock clears the lock. Only the current holder may unlock.
func (s *Store) Unlock(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if f.LockedBy != userID {
		return ErrUnauthorized
	}
	f.LockedBy = ""
	return nil
}

// Update replaces the content, bumps the version and recomputes the
// checksum. The lock only blocks a different user's write; an unlocked
// file accepts an update from anyone.
func (s *Store) Update(id, content, userID string) (models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return models.File{}, ErrFileNotFound
	}
	if f.LockedBy != "" && f.LockedBy != userID {
		return models.File{}, ErrLockConflict
	}
	f.Content = content
	f.Version++
	f.ModifiedAt = time.Now()
	f.Checksum = Checksum(content)
	return copyFile(f), nil
}

// AddReplica appends a node to the file's replica set, ignoring duplicates.
func (s *Store) AddReplica(id, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	for _, r := range f.Replicas {
		if r == nodeID {
			return nil
		}
	}
	f.Replicas = append(f.Replicas, nodeID)
	return nil
}

// SetPrimary reroutes the file to a new primary node.
func (s *Store) SetPrimary(id, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return ErrFileNotFound
	}
	f.PrimaryNode = nodeID
	return nil
}

// Put inserts a file as-is, used when loading a snapshot.
func (s *Store) Put(file models.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[file.ID]; !ok {
		s.order = append(s.order, file.ID)
	}
	f := file
	f.Replicas = append([]string(nil), file.Replicas...)
	s.files[file.ID] = &f
}

// Count returns the number of stored files.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Snapshot returns copies of all files in insertion order.
func (s *Store) Snapshot() []models.File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.File, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyFile(s.files[id]))
	}
	return out
}

func copyFile(f *models.File) models.File {
	c := *f
	c.Replicas = append([]string(nil), f.Replicas...)
	return c
}
