// Package balancer selects target nodes for new files and replicas.
package balancer

import (
	"errors"
	"sync"

	"github.com/filecluster/filecluster/internal/models"
)

// Policy names a node selection strategy.
type Policy string

const (
	// PolicyRoundRobin cycles through available nodes with a shared counter.
	PolicyRoundRobin Policy = "ROUND_ROBIN"
	// PolicyLeastConnections picks the least loaded available node.
	PolicyLeastConnections Policy = "LEAST_CONNECTIONS"
	// PolicyWeighted scores nodes by free capacity over latency.
	PolicyWeighted Policy = "WEIGHTED"
)

var (
	// ErrNoNodesAvailable is returned when no node passes the availability filter.
	ErrNoNodesAvailable = errors.New("no nodes available")
	// ErrUnknownPolicy is returned for an unrecognized policy name.
	ErrUnknownPolicy = errors.New("unknown balancer policy")
)

// Balancer picks nodes according to a runtime-switchable policy.
// The round-robin position is kept across policy switches.
type Balancer struct {
	mu     sync.Mutex
	policy Policy
	next   uint64
}

// New returns a Balancer using the given policy, falling back to
// round-robin for an unrecognized name.
func New(policy Policy) *Balancer {
	b := &Balancer{policy: PolicyRoundRobin}
	_ = b.SetPolicy(policy)
	return b
}

// Policy returns the active selection policy.
func (b *Balancer) Policy() Policy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.policy
}

// SetPolicy switches the active policy. Switching never resets the
// round-robin counter.
func (b *Balancer) SetPolicy(policy Policy) error {
	switch policy {
	case PolicyRoundRobin, PolicyLeastConnections, PolicyWeighted:
	default:
		return ErrUnknownPolicy
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policy = policy
	return nil
}

// Select picks a primary node for a write from the given node set.
// Unavailable nodes are filtered first; ties resolve to the first
// node encountered, so input ordering matters for reproducibility.
func (b *Balancer) Select(nodes []models.Node) (models.Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	available := make([]models.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.IsAvailable() {
			available = append(available, n)
		}
	}
	if len(available) == 0 {
		return models.Node{}, ErrNoNodesAvailable
	}

	switch b.policy {
	case PolicyRoundRobin:
		selected := available[b.next%uint64(len(available))]
		b.next++
		return selected, nil

	case PolicyLeastConnections:
		selected := available[0]
		for _, n := range available[1:] {
			if n.LoadPercent() < selected.LoadPercent() {
				selected = n
			}
		}
		return selected, nil

	case PolicyWeighted:
		selected := available[0]
		for _, n := range available[1:] {
			if weightedScore(n) > weightedScore(selected) {
				selected = n
			}
		}
		return selected, nil
	}
	return available[0], nil
}

// ReplicaTarget picks the least loaded available node other than the
// primary. It reports false when no eligible node exists; callers treat
// that as a degraded outcome, not an error.
func (b *Balancer) ReplicaTarget(nodes []models.Node, primaryID string) (models.Node, bool) {
	var candidates []models.Node
	for _, n := range nodes {
		if n.ID != primaryID && n.IsAvailable() {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return models.Node{}, false
	}

	selected := candidates[0]
	for _, n := range candidates[1:] {
		if n.LoadPercent() < selected.LoadPercent() {
			selected = n
		}
	}
	return selected, true
}

func weightedScore(n models.Node) float64 {
	return (100 - n.LoadPercent()) / (n.LatencyMS + 1)
}
