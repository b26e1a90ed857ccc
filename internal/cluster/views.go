package cluster

import (
	"time"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/models"
)

// LoginResult is the payload returned on successful authentication.
type LoginResult struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

// UserView is the public projection of a user, without credentials.
type UserView struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Surname    string      `json:"surname"`
	Email      string      `json:"email"`
	Role       models.Role `json:"role"`
	LastAccess time.Time   `json:"lastAccess"`
	LastIP     string      `json:"lastIp"`
}

// NodeView is a node snapshot annotated with its load percentage.
type NodeView struct {
	models.Node
	LoadPercent float64 `json:"loadPercent"`
}

// Stats aggregates cluster-wide counters.
type Stats struct {
	TotalNodes     int `json:"totalNodes"`
	ActiveNodes    int `json:"activeNodes"`
	TotalFiles     int `json:"totalFiles"`
	TotalUsers     int `json:"totalUsers"`
	ActiveSessions int `json:"activeSessions"`
}

// Status is the read-only snapshot assembled by SystemStatus.
type Status struct {
	Nodes           []NodeView          `json:"nodes"`
	Files           []models.File       `json:"files"`
	Users           []UserView          `json:"users"`
	Logs            []models.AuditEntry `json:"logs"`
	Inconsistencies []audit.Finding     `json:"inconsistencies"`
	Stats           Stats               `json:"stats"`
}

func publicUser(u *models.User) UserView {
	return UserView{
		ID:         u.ID,
		Name:       u.Name,
		Surname:    u.Surname,
		Email:      u.Email,
		Role:       u.Role,
		LastAccess: u.LastAccess,
		LastIP:     u.LastIP,
	}
}
