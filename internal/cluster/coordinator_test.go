package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/auth"
	"github.com/filecluster/filecluster/internal/balancer"
	"github.com/filecluster/filecluster/internal/models"
	"github.com/filecluster/filecluster/internal/persistence"
	"github.com/filecluster/filecluster/internal/registry"
	"github.com/filecluster/filecluster/internal/store"
)

const testIP = "10.0.0.1"

// seedSnapshots writes a deterministic cluster state: three users and
// five empty nodes, no files.
func seedSnapshots(t *testing.T, dir string) {
	t.Helper()

	snaps, err := persistence.New(dir)
	require.NoError(t, err)

	hasher := auth.NewController(bcrypt.MinCost, zap.NewNop())
	hash := func(pw string) string {
		h, err := hasher.HashPassword(pw)
		require.NoError(t, err)
		return h
	}

	require.NoError(t, snaps.SaveUsers([]models.User{
		{ID: "admin", Name: "Carlos", Surname: "Administrator", Email: "admin@cluster.local", PasswordHash: hash("admin123"), Role: models.RoleAdmin},
		{ID: "user1", Name: "Juan", Surname: "Perez", Email: "juan.perez@example.com", PasswordHash: hash("demo123"), Role: models.RoleUser},
		{ID: "user2", Name: "Maria", Surname: "Lopez", Email: "maria.lopez@example.com", PasswordHash: hash("demo456"), Role: models.RoleUser},
	}))

	nodes := make([]models.Node, 0, 5)
	for i := 1; i <= 5; i++ {
		nodes = append(nodes, models.Node{
			ID:        fmt.Sprintf("node%d", i),
			Name:      fmt.Sprintf("Server %d", i),
			Status:    models.NodeActive,
			Capacity:  100,
			LatencyMS: float64(i),
			Files:     []string{},
		})
	}
	require.NoError(t, snaps.SaveNodes(nodes))
	require.NoError(t, snaps.SaveFiles([]models.File{}))
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	dir := t.TempDir()
	seedSnapshots(t, dir)

	snaps, err := persistence.New(dir)
	require.NoError(t, err)

	c := New(
		registry.New(),
		store.New(),
		auth.NewController(bcrypt.MinCost, zap.NewNop()),
		balancer.New(balancer.PolicyRoundRobin),
		audit.New(zap.NewNop(), snaps),
		snaps,
		zap.NewNop(),
	)
	require.NoError(t, c.LoadOrBootstrap())
	return c
}

func login(t *testing.T, c *Coordinator, nameOrEmail, password string) string {
	t.Helper()
	result, err := c.Login(nameOrEmail, password, testIP)
	require.NoError(t, err)
	return result.Token
}

func lastEntry(t *testing.T, c *Coordinator, f audit.Filter) models.AuditEntry {
	t.Helper()
	entries := c.QueryLogs(f)
	require.NotEmpty(t, entries)
	return entries[len(entries)-1]
}

func TestLoadOrBootstrap_RecordsSystemInit(t *testing.T) {
	c := newTestCoordinator(t)

	entries := c.QueryLogs(audit.Filter{Event: models.EventSystemInit})
	require.Len(t, entries, 1)
	assert.Equal(t, "system", entries[0].UserID)
}

func TestLoadOrBootstrap_DefaultsWhenSnapshotsAbsent(t *testing.T) {
	snaps, err := persistence.New(t.TempDir())
	require.NoError(t, err)

	c := New(
		registry.New(),
		store.New(),
		auth.NewController(bcrypt.MinCost, zap.NewNop()),
		balancer.New(balancer.PolicyRoundRobin),
		audit.New(zap.NewNop(), snaps),
		snaps,
		zap.NewNop(),
	)
	require.NoError(t, c.LoadOrBootstrap())

	status := c.SystemStatus()
	assert.Equal(t, 5, status.Stats.TotalNodes)
	assert.Equal(t, 2, status.Stats.TotalUsers)
	assert.Equal(t, 1, status.Stats.TotalFiles, "bootstrap example file")
	require.Len(t, status.Files, 1)
	assert.Equal(t, "node1", status.Files[0].PrimaryNode)
	assert.Equal(t, []string{"node2"}, status.Files[0].Replicas)
}

func TestLogin_ByNameAndByEmail(t *testing.T) {
	c := newTestCoordinator(t)

	byName, err := c.Login("Juan", "demo123", testIP)
	require.NoError(t, err)
	assert.Equal(t, "user1", byName.User.ID)
	assert.NotEmpty(t, byName.Token)

	byEmail, err := c.Login("juan.perez@example.com", "demo123", testIP)
	require.NoError(t, err)
	assert.Equal(t, "user1", byEmail.User.ID)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventLoginSuccess})
	assert.Equal(t, "user1", entry.UserID)
	assert.Equal(t, models.OutcomeSuccess, entry.Outcome)
}

func TestLogin_UnknownUserIsAudited(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Login("nobody", "pw", testIP)
	assert.ErrorIs(t, err, ErrUserNotFound)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventLoginFailure})
	assert.Equal(t, "nobody", entry.UserID)
	assert.Equal(t, models.OutcomeFailure, entry.Outcome)
}

func TestLogin_BadPasswordIsAudited(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Login("Juan", "wrong", testIP)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventLoginFailure})
	assert.Equal(t, "user1", entry.UserID)
}

func TestCreateFile_RoundRobinPrimaryAndLeastLoadedReplica(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)

	assert.Equal(t, "node1", file.PrimaryNode, "first round-robin pick")
	assert.Equal(t, []string{"node2"}, file.Replicas, "least-loaded node excluding primary")
	assert.Equal(t, 1, file.Version)
	assert.Equal(t, store.Checksum("hello"), file.Checksum)

	status := c.SystemStatus()
	for _, n := range status.Nodes {
		switch n.ID {
		case "node1", "node2":
			assert.Equal(t, 1, n.Load, "node %s", n.ID)
		default:
			assert.Equal(t, 0, n.Load, "node %s", n.ID)
		}
	}

	entry := lastEntry(t, c, audit.Filter{Event: models.EventFileCreated})
	assert.Equal(t, file.ID, entry.ResourceID)
	assert.Equal(t, "node1", entry.NodeID)
}

func TestCreateFile_InvalidToken(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.CreateFile("a.txt", "hello", "user1", "bogus")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventUnauthorized})
	assert.Equal(t, models.OutcomeFailure, entry.Outcome)
}

func TestCreateFile_OwnerMismatch(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	_, err := c.CreateFile("a.txt", "hello", "user2", token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateFile_NoNodesAvailable(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	for i := 1; i <= 5; i++ {
		_, err := c.FailNode(fmt.Sprintf("node%d", i))
		require.NoError(t, err)
	}

	_, err := c.CreateFile("a.txt", "hello", "user1", token)
	assert.ErrorIs(t, err, balancer.ErrNoNodesAvailable)
}

func TestFailNode_ReroutesToActiveReplica(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)
	require.Equal(t, "node1", file.PrimaryNode)

	node, err := c.FailNode("node1")
	require.NoError(t, err)
	assert.Equal(t, models.NodeInactive, node.Status)
	assert.Equal(t, 1, node.Failures)

	status := c.SystemStatus()
	require.Len(t, status.Files, 1)
	assert.Equal(t, "node2", status.Files[0].PrimaryNode)

	recovered := lastEntry(t, c, audit.Filter{Event: models.EventFileRecovered})
	assert.Equal(t, file.ID, recovered.ResourceID)
	assert.Equal(t, "node2", recovered.NodeID)
	assert.Equal(t, "node1", recovered.Details["previousPrimary"])
}

func TestFailNode_NoActiveReplicaKeepsPrimary(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)

	// Take the replica down first, then the primary.
	_, err = c.FailNode("node2")
	require.NoError(t, err)
	_, err = c.FailNode("node1")
	require.NoError(t, err)

	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Equal(t, "node1", got.PrimaryNode, "no ACTIVE replica: data stays on the failed node")
}

func TestRecoverNode_NoFailback(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)

	_, err = c.FailNode("node1")
	require.NoError(t, err)

	node, err := c.RecoverNode("node1")
	require.NoError(t, err)
	assert.Equal(t, models.NodeActive, node.Status)

	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Equal(t, "node2", got.PrimaryNode, "recovery must not reassign failed-over files")
}

func TestUpdateFile_NonOwnerNonAdminRejectedAndAudited(t *testing.T) {
	c := newTestCoordinator(t)
	ownerToken := login(t, c, "Juan", "demo123")
	otherToken := login(t, c, "Maria", "demo456")

	file, err := c.CreateFile("a.txt", "hello", "user1", ownerToken)
	require.NoError(t, err)

	_, err = c.UpdateFile(file.ID, "hacked", "user2", otherToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventUnauthorized})
	assert.Equal(t, "user2", entry.UserID)
	assert.Equal(t, file.ID, entry.ResourceID)
	assert.Equal(t, models.OutcomeFailure, entry.Outcome)

	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version, "failed attempt never bumps the version")
	assert.Equal(t, "hello", got.Content)
}

func TestUpdateFile_OwnerSucceedsAndReleasesLock(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)

	updated, err := c.UpdateFile(file.ID, "hello world", "user1", token)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, store.Checksum("hello world"), updated.Checksum)
	assert.Empty(t, updated.LockedBy)

	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LockedBy, "lock released after update")

	synced := c.QueryLogs(audit.Filter{Event: models.EventReplicaSynced})
	require.Len(t, synced, 1)
	assert.Equal(t, "node2", synced[0].NodeID)
	assert.Equal(t, file.ID, synced[0].ResourceID)

	modified := lastEntry(t, c, audit.Filter{Event: models.EventFileModified})
	assert.Equal(t, "2", modified.Details["version"])
}

func TestUpdateFile_SnapshotHasNoLockHolder(t *testing.T) {
	dir := t.TempDir()
	seedSnapshots(t, dir)

	snaps, err := persistence.New(dir)
	require.NoError(t, err)

	c := New(registry.New(), store.New(), auth.NewController(bcrypt.MinCost, zap.NewNop()),
		balancer.New(balancer.PolicyRoundRobin), audit.New(zap.NewNop(), snaps), snaps, zap.NewNop())
	require.NoError(t, c.LoadOrBootstrap())

	token := login(t, c, "Juan", "demo123")
	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)
	_, err = c.UpdateFile(file.ID, "hello world", "user1", token)
	require.NoError(t, err)

	// Read the snapshot written by UpdateFile itself; an unclean stop
	// here must not reload the file locked by its last editor.
	persisted, err := snaps.LoadFiles()
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Empty(t, persisted[0].LockedBy)
	assert.Equal(t, 2, persisted[0].Version)

	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LockedBy)
}

func TestUpdateFile_AdminMayEditForeignFile(t *testing.T) {
	c := newTestCoordinator(t)
	ownerToken := login(t, c, "Juan", "demo123")
	adminToken := login(t, c, "Carlos", "admin123")

	file, err := c.CreateFile("a.txt", "hello", "user1", ownerToken)
	require.NoError(t, err)

	updated, err := c.UpdateFile(file.ID, "admin edit", "admin", adminToken)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
}

func TestUpdateFile_LockedByOtherUser(t *testing.T) {
	c := newTestCoordinator(t)
	ownerToken := login(t, c, "Juan", "demo123")
	adminToken := login(t, c, "Carlos", "admin123")

	file, err := c.CreateFile("a.txt", "hello", "user1", ownerToken)
	require.NoError(t, err)
	require.NoError(t, c.files.Lock(file.ID, "user1"))

	_, err = c.UpdateFile(file.ID, "admin edit", "admin", adminToken)
	assert.ErrorIs(t, err, store.ErrLockConflict)

	// The conflicting caller must not have clobbered the holder's lock.
	got, err := c.files.Get(file.ID)
	require.NoError(t, err)
	assert.Equal(t, "user1", got.LockedBy)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventFileModified})
	assert.Equal(t, models.OutcomeFailure, entry.Outcome)
}

func TestUpdateFile_UnknownFile(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	_, err := c.UpdateFile("missing", "content", "user1", token)
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestAddNode_DerivesIDFromRegistrySize(t *testing.T) {
	c := newTestCoordinator(t)

	node, err := c.AddNode("Server 6", 50)
	require.NoError(t, err)
	assert.Equal(t, "node6", node.ID)
	assert.Equal(t, 50, node.Capacity)
	assert.Equal(t, models.NodeActive, node.Status)

	entry := lastEntry(t, c, audit.Filter{Event: models.EventNodeAdded})
	assert.Equal(t, "node6", entry.ResourceID)
}

func TestLogout_InvalidatesSession(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	c.Logout(token)
	_, err := c.ValidateSession(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Unknown tokens are silently ignored.
	c.Logout("bogus")
}

func TestSetBalancerPolicy(t *testing.T) {
	c := newTestCoordinator(t)

	require.NoError(t, c.SetBalancerPolicy("LEAST_CONNECTIONS"))
	assert.ErrorIs(t, c.SetBalancerPolicy("FASTEST"), balancer.ErrUnknownPolicy)
}

func TestSystemStatus_CountersAndProjections(t *testing.T) {
	c := newTestCoordinator(t)
	token := login(t, c, "Juan", "demo123")

	_, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)
	_, err = c.FailNode("node5")
	require.NoError(t, err)

	status := c.SystemStatus()
	assert.Equal(t, 5, status.Stats.TotalNodes)
	assert.Equal(t, 4, status.Stats.ActiveNodes)
	assert.Equal(t, 1, status.Stats.TotalFiles)
	assert.Equal(t, 3, status.Stats.TotalUsers)
	assert.Equal(t, 1, status.Stats.ActiveSessions)
	assert.NotEmpty(t, status.Logs)
	assert.Empty(t, status.Inconsistencies)
	require.Len(t, status.Users, 3)
	assert.Equal(t, "admin", status.Users[0].ID, "insertion order preserved")
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	seedSnapshots(t, dir)

	snaps, err := persistence.New(dir)
	require.NoError(t, err)

	c := New(registry.New(), store.New(), auth.NewController(bcrypt.MinCost, zap.NewNop()),
		balancer.New(balancer.PolicyRoundRobin), audit.New(zap.NewNop(), snaps), snaps, zap.NewNop())
	require.NoError(t, c.LoadOrBootstrap())

	token := login(t, c, "Juan", "demo123")
	file, err := c.CreateFile("a.txt", "hello", "user1", token)
	require.NoError(t, err)
	_, err = c.UpdateFile(file.ID, "hello world", "user1", token)
	require.NoError(t, err)
	c.SaveAll()

	// A fresh coordinator over the same data directory sees the state.
	snaps2, err := persistence.New(dir)
	require.NoError(t, err)
	c2 := New(registry.New(), store.New(), auth.NewController(bcrypt.MinCost, zap.NewNop()),
		balancer.New(balancer.PolicyRoundRobin), audit.New(zap.NewNop(), snaps2), snaps2, zap.NewNop())
	require.NoError(t, c2.LoadOrBootstrap())

	got, err := c2.files.Get(file.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, store.Checksum("hello world"), got.Checksum)
	assert.Equal(t, "node1", got.PrimaryNode)

	// Sessions are process-local: the old token is gone after restart.
	_, err = c2.ValidateSession(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	status := c2.SystemStatus()
	assert.Equal(t, 3, status.Stats.TotalUsers)
	assert.Equal(t, 5, status.Stats.TotalNodes)
}
