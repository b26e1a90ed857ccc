// Package models defines the core data structures for users, nodes,
// files, sessions and audit entries.
package models

import "time"

// Role identifies the permission level of a user.
type Role string

const (
	// RoleAdmin may modify any file and manage nodes.
	RoleAdmin Role = "admin"
	// RoleUser may only modify files it owns.
	RoleUser Role = "user"
)

// User represents an account known to the cluster.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Name is the user's first name.
	Name string `json:"name"`
	// Surname is the user's last name.
	Surname string `json:"surname"`
	// Email is the user's contact address, also usable as a login.
	Email string `json:"email"`
	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"passwordHash,omitempty"`
	// Role is the user's permission level.
	Role Role `json:"role"`
	// Token is the user's current session token, empty when logged out.
	Token string `json:"-"`
	// LastAccess is the time of the last successful authentication.
	LastAccess time.Time `json:"lastAccess"`
	// LastIP is the source address of the last session.
	LastIP string `json:"lastIp"`
}

// NodeStatus is the availability state of a storage node.
type NodeStatus string

const (
	// NodeActive nodes accept new files and serve reads.
	NodeActive NodeStatus = "ACTIVE"
	// NodeDegraded is a declared state reserved for future health
	// policies; no operation currently assigns it.
	NodeDegraded NodeStatus = "DEGRADED"
	// NodeInactive nodes are failed and excluded from selection.
	NodeInactive NodeStatus = "INACTIVE"
)

// Node represents a simulated storage server.
type Node struct {
	// ID is the unique identifier for the node.
	ID string `json:"id"`
	// Name is the human-readable node name.
	Name string `json:"name"`
	// Status is the node's availability state.
	Status NodeStatus `json:"status"`
	// Capacity is the number of file slots the node offers.
	Capacity int `json:"capacity"`
	// Load counts the files currently hosted, primaries and replicas alike.
	Load int `json:"load"`
	// LatencyMS is the simulated request latency, fixed at creation.
	LatencyMS float64 `json:"latencyMs"`
	// Files lists the ids of files hosted on this node.
	Files []string `json:"files"`
	// Failures counts how many times the node has been failed.
	Failures int `json:"failures"`
	// LastHeartbeat is the time of the last liveness signal.
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// LoadPercent returns the node's load as a percentage of its capacity.
func (n *Node) LoadPercent() float64 {
	if n.Capacity == 0 {
		return 0
	}
	return float64(n.Load) / float64(n.Capacity) * 100
}

// IsAvailable reports whether the node may receive new files.
// Only ACTIVE nodes below 90% load qualify.
func (n *Node) IsAvailable() bool {
	return n.Status == NodeActive && n.LoadPercent() < 90
}

// File represents a logical file replicated across nodes.
type File struct {
	// ID is the unique identifier for the file.
	ID string `json:"id"`
	// Name is the file name.
	Name string `json:"name"`
	// Content is the file payload.
	Content string `json:"content"`
	// OwnerID is the id of the user that created the file.
	OwnerID string `json:"ownerId"`
	// PrimaryNode is the node the file is routed to.
	PrimaryNode string `json:"nodeId"`
	// Version starts at 1 and increments on every successful update.
	Version int `json:"version"`
	// Replicas lists the ids of nodes holding a replica, without duplicates.
	Replicas []string `json:"replicas"`
	// LockedBy is the id of the user holding the edit lock, empty when unlocked.
	LockedBy string `json:"lockedBy,omitempty"`
	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"createdAt"`
	// ModifiedAt is the timestamp of the last content update.
	ModifiedAt time.Time `json:"modifiedAt"`
	// Checksum is the hex-encoded SHA-256 of the current content.
	Checksum string `json:"checksum"`
}

// Session is an authenticated context identified by an opaque token.
type Session struct {
	// Token is the opaque random session identifier.
	Token string `json:"token"`
	// UserID is the id of the user owning the session.
	UserID string `json:"userId"`
	// IP is the source address the session was opened from.
	IP string `json:"ip"`
	// StartedAt is the session creation time; sessions expire after 24h.
	StartedAt time.Time `json:"startedAt"`
}

// Outcome is the result recorded with an audit entry.
type Outcome string

const (
	// OutcomeSuccess marks a completed operation.
	OutcomeSuccess Outcome = "SUCCESS"
	// OutcomeFailure marks a rejected or failed operation.
	OutcomeFailure Outcome = "FAILURE"
)

// EventKind enumerates the auditable system events.
type EventKind string

const (
	EventSystemInit    EventKind = "SYSTEM_INIT"
	EventLoginSuccess  EventKind = "LOGIN_SUCCESS"
	EventLoginFailure  EventKind = "LOGIN_FAILURE"
	EventUnauthorized  EventKind = "UNAUTHORIZED_ACCESS"
	EventFileCreated   EventKind = "FILE_CREATED"
	EventFileModified  EventKind = "FILE_MODIFIED"
	EventFileRecovered EventKind = "FILE_RECOVERED"
	EventReplicaSynced EventKind = "REPLICA_SYNCHRONIZED"
	EventNodeFailed    EventKind = "NODE_FAILED"
	EventNodeRecovered EventKind = "NODE_RECOVERED"
	EventNodeAdded     EventKind = "NODE_ADDED"
)

// AuditEntry is one immutable record of a system event.
type AuditEntry struct {
	// ID is the unique identifier for the entry.
	ID string `json:"id"`
	// Timestamp is the time the event was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Event is the kind of event.
	Event EventKind `json:"event"`
	// UserID is the acting user, or "system" for internal events.
	UserID string `json:"userId"`
	// ResourceID is the affected resource.
	ResourceID string `json:"resourceId"`
	// NodeID is the node the event relates to, if any.
	NodeID string `json:"nodeId"`
	// Outcome is SUCCESS or FAILURE.
	Outcome Outcome `json:"outcome"`
	// Details carries free-form event metadata.
	Details map[string]string `json:"details,omitempty"`
	// Checksum is the hex-encoded SHA-256 over the event fields and timestamp.
	Checksum string `json:"checksum"`
}
