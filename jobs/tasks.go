// Package jobs hosts the Asynq worker and background task definitions.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskACLIntegrityScan walks ACL entries looking for rows that violate
	// the engine's invariants.
	TaskACLIntegrityScan = "acl:integrity_scan"
	// TaskSeedAccessRoles re-runs the idempotent default role seeding.
	TaskSeedAccessRoles = "acl:seed_roles"
)

// IntegrityScanPayload scopes an integrity scan. An empty ResourceType scans
// every type.
type IntegrityScanPayload struct {
	ResourceType string `json:"resource_type,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskACLIntegrityScan, data), nil
}

// NewSeedAccessRolesTask constructs an Asynq task carrying no payload.
func NewSeedAccessRolesTask() *asynq.Task {
	return asynq.NewTask(TaskSeedAccessRoles, nil)
}
