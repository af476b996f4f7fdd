package observability

import (
	"sync"
	"time"
)

// Role is the agent currently holding the control loop.
type Role string

const (
	RoleIdle        Role = "IDLE"
	RolePlanner     Role = "PLANNER"
	RoleExecutor    Role = "EXECUTOR"
	RoleReplanner   Role = "REPLANNER"
	RoleOperator    Role = "OPERATOR"
	RoleSynthesizer Role = "SYNTHESIZER"
)

type SystemStatus struct {
	mu          sync.RWMutex
	CurrentRole Role
	ActiveTask  string
	Since       time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole: RoleIdle,
	Since:       time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(role Role, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveTask = task
	globalStatus.Since = time.Now()
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveTask, globalStatus.Since
}
