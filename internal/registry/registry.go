// Package registry tracks the storage nodes of the cluster and their
// availability state.
package registry

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/filecluster/filecluster/internal/models"
)

// ErrNodeNotFound is returned when a node id is not registered.
var ErrNodeNotFound = errors.New("node not found")

// maxSimulatedLatencyMS bounds the latency assigned to new nodes.
const maxSimulatedLatencyMS = 50

// NewNode builds an ACTIVE node with a fixed simulated latency.
func NewNode(id, name string, capacity int) *models.Node {
	return &models.Node{
		ID:            id,
		Name:          name,
		Status:        models.NodeActive,
		Capacity:      capacity,
		LatencyMS:     rand.Float64() * maxSimulatedLatencyMS,
		Files:         []string{},
		LastHeartbeat: time.Now(),
	}
}

// Registry is the authoritative record of all nodes. It preserves
// insertion order so node selection stays reproducible, and returns
// copies to prevent external modification.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
	order []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{nodes: make(map[string]*models.Node)}
}

// Add registers a node. Re-adding an existing id replaces its state
// without changing its position.
func (r *Registry) Add(node *models.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[node.ID]; !ok {
		r.order = append(r.order, node.ID)
	}
	n := *node
	n.Files = append([]string(nil), node.Files...)
	r.nodes[node.ID] = &n
}

// Get returns a copy of the node with the given id.
func (r *Registry) Get(id string) (models.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return models.Node{}, ErrNodeNotFound
	}
	return copyNode(n), nil
}

// AddFile records that a node hosts a file and bumps its load.
// Adding a file the node already hosts is a no-op.
func (r *Registry) AddFile(nodeID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	for _, id := range n.Files {
		if id == fileID {
			return nil
		}
	}
	n.Files = append(n.Files, fileID)
	n.Load++
	return nil
}

// RemoveFile drops a hosted file and decrements load. Removing a file
// the node does not host is a no-op.
func (r *Registry) RemoveFile(nodeID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	for i, id := range n.Files {
		if id == fileID {
			n.Files = append(n.Files[:i], n.Files[i+1:]...)
			n.Load--
			return nil
		}
	}
	return nil
}

// LoadPercent returns the node's load as a percentage of capacity.
func (r *Registry) LoadPercent(nodeID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return 0, ErrNodeNotFound
	}
	return n.LoadPercent(), nil
}

// IsAvailable reports whether the node can accept new files.
func (r *Registry) IsAvailable(nodeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return false, ErrNodeNotFound
	}
	return n.IsAvailable(), nil
}

// Fail marks the node INACTIVE and increments its failure counter.
// Rerouting the files it hosted is the coordinator's follow-up, not
// a side effect of the transition.
func (r *Registry) Fail(nodeID string) (models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return models.Node{}, ErrNodeNotFound
	}
	n.Status = models.NodeInactive
	n.Failures++
	return copyNode(n), nil
}

// Recover marks the node ACTIVE and refreshes its heartbeat.
func (r *Registry) Recover(nodeID string) (models.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return models.Node{}, ErrNodeNotFound
	}
	n.Status = models.NodeActive
	n.LastHeartbeat = time.Now()
	return copyNode(n), nil
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// ActiveCount returns the number of nodes currently ACTIVE.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.nodes {
		if n.Status == models.NodeActive {
			count++
		}
	}
	return count
}

// Snapshot returns copies of all nodes in insertion order.
func (r *Registry) Snapshot() []models.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyNode(r.nodes[id]))
	}
	return out
}

func copyNode(n *models.Node) models.Node {
	c := *n
	c.Files = append([]string(nil), n.Files...)
	return c
}
