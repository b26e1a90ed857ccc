// Package cluster composes the node registry, file store, balancer,
// auth controller and audit log into end-to-end cluster operations.
package cluster

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/auth"
	"github.com/filecluster/filecluster/internal/balancer"
	"github.com/filecluster/filecluster/internal/models"
	"github.com/filecluster/filecluster/internal/persistence"
	"github.com/filecluster/filecluster/internal/registry"
	"github.com/filecluster/filecluster/internal/store"
)

var (
	// ErrUserNotFound is returned when no user matches a login or id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized is returned on ownership or role mismatches.
	ErrUnauthorized = errors.New("not authorized")
)

// systemUser is the acting principal recorded for internal events.
const systemUser = "system"

// Coordinator exclusively owns the cluster registries and exposes every
// operation through methods that keep the invariants: node load mirrors
// hosted files, file locks bracket updates, and every auth or mutation
// failure is audited before it surfaces.
type Coordinator struct {
	// mu serializes mutating operations so node selection and load
	// bookkeeping form one atomic unit per operation.
	mu        sync.Mutex
	users     map[string]*models.User
	userOrder []string

	nodes    *registry.Registry
	files    *store.Store
	auth     *auth.Controller
	balancer *balancer.Balancer
	audit    *audit.Log
	snaps    *persistence.Store
	log      *zap.Logger
}

// New wires a Coordinator from its injected dependencies.
func New(
	nodes *registry.Registry,
	files *store.Store,
	authc *auth.Controller,
	lb *balancer.Balancer,
	auditLog *audit.Log,
	snaps *persistence.Store,
	log *zap.Logger,
) *Coordinator {
	return &Coordinator{
		users:    make(map[string]*models.User),
		nodes:    nodes,
		files:    files,
		auth:     authc,
		balancer: lb,
		audit:    auditLog,
		snaps:    snaps,
		log:      log,
	}
}

// LoadOrBootstrap restores users, nodes, files and the audit log from
// snapshots, falling back per kind to the default bootstrap set when a
// snapshot is absent or corrupt, then records the SYSTEM_INIT event.
func (c *Coordinator) LoadOrBootstrap() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	users, err := c.snaps.LoadUsers()
	if err != nil || len(users) == 0 {
		c.log.Warn("users snapshot unavailable, bootstrapping defaults", zap.Error(err))
		if err := c.bootstrapUsers(); err != nil {
			return err
		}
	} else {
		for i := range users {
			c.putUser(&users[i])
		}
		c.log.Info("users loaded", zap.Int("count", len(users)))
	}

	nodes, err := c.snaps.LoadNodes()
	if err != nil || len(nodes) == 0 {
		c.log.Warn("nodes snapshot unavailable, bootstrapping defaults", zap.Error(err))
		c.bootstrapNodes()
	} else {
		for i := range nodes {
			c.nodes.Add(&nodes[i])
		}
		c.log.Info("nodes loaded", zap.Int("count", len(nodes)))
	}

	files, err := c.snaps.LoadFiles()
	if err != nil {
		c.log.Warn("files snapshot unavailable, bootstrapping defaults", zap.Error(err))
		c.bootstrapFiles()
	} else {
		for _, f := range files {
			c.files.Put(f)
		}
		c.log.Info("files loaded", zap.Int("count", len(files)))
	}

	if entries, err := c.snaps.LoadAuditLog(); err == nil {
		c.audit.Load(entries)
	}

	initNode := ""
	if snap := c.nodes.Snapshot(); len(snap) > 0 {
		initNode = snap[0].ID
	}
	c.audit.Record(models.EventSystemInit, systemUser, "cluster", initNode, models.OutcomeSuccess, nil)
	return nil
}

// Login resolves the principal by name or email, authenticates it and
// returns the public user view with a fresh session token.
func (c *Coordinator) Login(nameOrEmail, password, ip string) (LoginResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user := c.findUser(nameOrEmail)
	if user == nil {
		c.audit.Record(models.EventLoginFailure, nameOrEmail, "auth", "", models.OutcomeFailure,
			map[string]string{"reason": "unknown user"})
		return LoginResult{}, ErrUserNotFound
	}

	token, err := c.auth.Authenticate(user, password, ip)
	if err != nil {
		c.audit.Record(models.EventLoginFailure, user.ID, "auth", "", models.OutcomeFailure,
			map[string]string{"error": err.Error(), "ip": ip})
		return LoginResult{}, err
	}

	c.audit.Record(models.EventLoginSuccess, user.ID, "auth", "", models.OutcomeSuccess,
		map[string]string{"ip": ip})
	c.saveUsers()
	return LoginResult{User: publicUser(user), Token: token}, nil
}

// Logout closes the session; unknown tokens are a silent no-op.
func (c *Coordinator) Logout(token string) {
	c.auth.Logout(token)
}

// ValidateSession resolves the token into its user.
func (c *Coordinator) ValidateSession(token string) (models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateSession(token)
}

// validateSession is ValidateSession for callers already holding c.mu.
func (c *Coordinator) validateSession(token string) (models.User, error) {
	session, err := c.auth.Validate(token)
	if err != nil {
		return models.User{}, err
	}
	user, ok := c.users[session.UserID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return *user, nil
}

// CreateFile places a new file on a balancer-selected primary node and
// replicates it to the least-loaded remaining node when one is
// available. A missing replica target is a degraded outcome, not an
// error.
func (c *Coordinator) CreateFile(name, content, ownerID, token string) (models.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, err := c.validateSession(token)
	if err != nil {
		c.audit.Record(models.EventUnauthorized, ownerID, name, "", models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}
	if user.ID != ownerID {
		c.audit.Record(models.EventUnauthorized, user.ID, name, "", models.OutcomeFailure,
			map[string]string{"reason": "owner mismatch"})
		return models.File{}, ErrUnauthorized
	}

	primary, err := c.balancer.Select(c.nodes.Snapshot())
	if err != nil {
		c.audit.Record(models.EventFileCreated, ownerID, name, "", models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}

	file := c.files.Create(name, content, ownerID, primary.ID)
	if err := c.nodes.AddFile(primary.ID, file.ID); err != nil {
		return models.File{}, fmt.Errorf("register file on primary: %w", err)
	}

	if replica, ok := c.balancer.ReplicaTarget(c.nodes.Snapshot(), primary.ID); ok {
		_ = c.files.AddReplica(file.ID, replica.ID)
		_ = c.nodes.AddFile(replica.ID, file.ID)
	}

	c.audit.Record(models.EventFileCreated, ownerID, file.ID, primary.ID, models.OutcomeSuccess,
		map[string]string{"name": name})
	c.saveFiles()
	c.saveNodes()

	created, err := c.files.Get(file.ID)
	if err != nil {
		return models.File{}, err
	}
	return created, nil
}

// UpdateFile rewrites a file's content inside a scoped lock that is
// released on every exit path, then acknowledges each ACTIVE replica
// with a REPLICA_SYNCHRONIZED audit event.
func (c *Coordinator) UpdateFile(fileID, content, userID, token string) (models.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user, err := c.validateSession(token)
	if err != nil {
		c.audit.Record(models.EventUnauthorized, userID, fileID, "", models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}

	file, err := c.files.Get(fileID)
	if err != nil {
		c.audit.Record(models.EventFileModified, userID, fileID, "", models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}

	if file.OwnerID != userID && user.Role != models.RoleAdmin {
		c.audit.Record(models.EventUnauthorized, userID, fileID, file.PrimaryNode, models.OutcomeFailure, nil)
		return models.File{}, ErrUnauthorized
	}

	if err := c.files.Lock(fileID, userID); err != nil {
		c.audit.Record(models.EventFileModified, userID, fileID, file.PrimaryNode, models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}
	locked := true
	defer func() {
		if !locked {
			return
		}
		if uerr := c.files.Unlock(fileID, userID); uerr != nil {
			c.log.Warn("unlock after update failed", zap.String("file", fileID), zap.Error(uerr))
		}
	}()

	updated, err := c.files.Update(fileID, content, userID)
	if err != nil {
		c.audit.Record(models.EventFileModified, userID, fileID, file.PrimaryNode, models.OutcomeFailure,
			map[string]string{"error": err.Error()})
		return models.File{}, err
	}

	c.syncReplicas(updated)

	// Release before the snapshot write so files.json never records a
	// held lock.
	if uerr := c.files.Unlock(fileID, userID); uerr != nil {
		c.log.Warn("unlock after update failed", zap.String("file", fileID), zap.Error(uerr))
	}
	locked = false

	c.audit.Record(models.EventFileModified, userID, fileID, updated.PrimaryNode, models.OutcomeSuccess,
		map[string]string{"version": strconv.Itoa(updated.Version)})
	c.saveFiles()

	updated.LockedBy = ""
	return updated, nil
}

// syncReplicas acknowledges replication to every ACTIVE replica node.
// Replication is bookkeeping here: all nodes share the same logical
// content, so the acknowledgment is audit-visible rather than a push.
func (c *Coordinator) syncReplicas(file models.File) {
	for _, replicaID := range file.Replicas {
		node, err := c.nodes.Get(replicaID)
		if err != nil || node.Status != models.NodeActive {
			continue
		}
		c.audit.Record(models.EventReplicaSynced, systemUser, file.ID, replicaID, models.OutcomeSuccess, nil)
	}
}

// FailNode marks the node INACTIVE and reroutes every file whose
// primary it was to the first ACTIVE replica in stored order. Files
// with no ACTIVE replica keep the failed primary and stay unavailable
// until recovery.
func (c *Coordinator) FailNode(nodeID string) (models.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, err := c.nodes.Fail(nodeID)
	if err != nil {
		return models.Node{}, err
	}
	c.audit.Record(models.EventNodeFailed, systemUser, nodeID, nodeID, models.OutcomeFailure, nil)

	c.failover(nodeID)
	c.saveNodes()
	c.saveFiles()
	return node, nil
}

func (c *Coordinator) failover(failedID string) {
	for _, file := range c.files.Snapshot() {
		if file.PrimaryNode != failedID {
			continue
		}
		for _, replicaID := range file.Replicas {
			node, err := c.nodes.Get(replicaID)
			if err != nil || node.Status != models.NodeActive {
				continue
			}
			_ = c.files.SetPrimary(file.ID, replicaID)
			c.audit.Record(models.EventFileRecovered, systemUser, file.ID, replicaID, models.OutcomeSuccess,
				map[string]string{"previousPrimary": failedID})
			break
		}
	}
}

// RecoverNode marks the node ACTIVE again. Files failed over away from
// it are not reassigned back.
func (c *Coordinator) RecoverNode(nodeID string) (models.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, err := c.nodes.Recover(nodeID)
	if err != nil {
		return models.Node{}, err
	}
	c.audit.Record(models.EventNodeRecovered, systemUser, nodeID, nodeID, models.OutcomeSuccess, nil)
	c.saveNodes()
	return node, nil
}

// AddNode registers a new node with an id derived from the current
// registry size.
func (c *Coordinator) AddNode(name string, capacity int) (models.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := fmt.Sprintf("node%d", c.nodes.Count()+1)
	c.nodes.Add(registry.NewNode(id, name, capacity))

	c.audit.Record(models.EventNodeAdded, systemUser, id, id, models.OutcomeSuccess, nil)
	c.saveNodes()
	return c.nodes.Get(id)
}

// SetBalancerPolicy switches the node selection policy at runtime.
func (c *Coordinator) SetBalancerPolicy(policy string) error {
	return c.balancer.SetPolicy(balancer.Policy(policy))
}

// SystemStatus assembles a read-only snapshot of the whole cluster.
func (c *Coordinator) SystemStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodes := c.nodes.Snapshot()
	views := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, NodeView{Node: n, LoadPercent: n.LoadPercent()})
	}

	users := make([]UserView, 0, len(c.userOrder))
	for _, id := range c.userOrder {
		users = append(users, publicUser(c.users[id]))
	}

	return Status{
		Nodes:           views,
		Files:           c.files.Snapshot(),
		Users:           users,
		Logs:            c.audit.Query(audit.Filter{}),
		Inconsistencies: c.audit.DetectInconsistencies(),
		Stats: Stats{
			TotalNodes:     c.nodes.Count(),
			ActiveNodes:    c.nodes.ActiveCount(),
			TotalFiles:     c.files.Count(),
			TotalUsers:     len(c.users),
			ActiveSessions: c.auth.ActiveSessions(),
		},
	}
}

// QueryLogs returns audit entries matching the filter.
func (c *Coordinator) QueryLogs(f audit.Filter) []models.AuditEntry {
	return c.audit.Query(f)
}

// SaveAll persists every snapshot kind and flushes the audit log,
// used at graceful shutdown.
func (c *Coordinator) SaveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.saveUsers()
	c.saveNodes()
	c.saveFiles()
	c.audit.FlushNow()
}

func (c *Coordinator) findUser(nameOrEmail string) *models.User {
	for _, id := range c.userOrder {
		u := c.users[id]
		if u.Name == nameOrEmail || u.Email == nameOrEmail {
			return u
		}
	}
	return nil
}

func (c *Coordinator) putUser(u *models.User) {
	if _, ok := c.users[u.ID]; !ok {
		c.userOrder = append(c.userOrder, u.ID)
	}
	c.users[u.ID] = u
}

func (c *Coordinator) bootstrapUsers() error {
	defaults := []struct {
		id, name, surname, email, password string
		role                               models.Role
	}{
		{"admin", "Carlos", "Administrator", "admin@cluster.local", "admin123", models.RoleAdmin},
		{"user1", "Juan", "Perez", "juan.perez@example.com", "demo123", models.RoleUser},
	}

	for _, d := range defaults {
		hash, err := c.auth.HashPassword(d.password)
		if err != nil {
			return fmt.Errorf("bootstrap user %s: %w", d.id, err)
		}
		c.putUser(&models.User{
			ID:           d.id,
			Name:         d.name,
			Surname:      d.surname,
			Email:        d.email,
			PasswordHash: hash,
			Role:         d.role,
		})
	}
	c.saveUsers()
	return nil
}

func (c *Coordinator) bootstrapNodes() {
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("node%d", i)
		c.nodes.Add(registry.NewNode(id, fmt.Sprintf("Server %d", i), 100))
	}
	c.saveNodes()
}

func (c *Coordinator) bootstrapFiles() {
	file := c.files.Create("example.txt", "Example content for the storage cluster", "admin", "node1")
	if err := c.nodes.AddFile("node1", file.ID); err == nil {
		if _, err := c.nodes.Get("node2"); err == nil {
			_ = c.files.AddReplica(file.ID, "node2")
			_ = c.nodes.AddFile("node2", file.ID)
		}
	}
	c.saveFiles()
	c.saveNodes()
}

// Snapshot writes are best-effort: a failed write is logged and the
// in-memory registries remain the source of truth.

func (c *Coordinator) saveUsers() {
	users := make([]models.User, 0, len(c.userOrder))
	for _, id := range c.userOrder {
		u := *c.users[id]
		u.Token = ""
		users = append(users, u)
	}
	if err := c.snaps.SaveUsers(users); err != nil {
		c.log.Error("save users snapshot failed", zap.Error(err))
	}
}

func (c *Coordinator) saveNodes() {
	if err := c.snaps.SaveNodes(c.nodes.Snapshot()); err != nil {
		c.log.Error("save nodes snapshot failed", zap.Error(err))
	}
}

func (c *Coordinator) saveFiles() {
	if err := c.snaps.SaveFiles(c.files.Snapshot()); err != nil {
		c.log.Error("save files snapshot failed", zap.Error(err))
	}
}
