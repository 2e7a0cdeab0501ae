package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessReconcile prunes assignments whose permission is gone.
	TaskAccessReconcile = "access:reconcile"
	// TaskUsersBootstrapAdmin creates or refreshes a super_admin account.
	TaskUsersBootstrapAdmin = "users:bootstrap_admin"
)

// ReconcilePayload describes why a reconcile run was requested.
type ReconcilePayload struct {
	Reason string `json:"reason"`
}

// NewReconcileTask constructs an access reconcile task.
func NewReconcileTask(reason string) (*asynq.Task, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "scheduled"
	}
	data, err := json.Marshal(ReconcilePayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessReconcile, data), nil
}

// BootstrapAdminPayload carries the admin credentials.
type BootstrapAdminPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewBootstrapAdminTask constructs an admin bootstrap task.
func NewBootstrapAdminTask(payload BootstrapAdminPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsersBootstrapAdmin, data), nil
}
