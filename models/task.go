package models

import "time"

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOverdue    TaskStatus = "overdue"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

type Task struct {
	ID           string     `json:"id" bson:"_id"`
	ProjectID    string     `json:"projectId" bson:"project_id"`
	Name         string     `json:"name" bson:"name"`
	Description  string     `json:"description" bson:"description"`
	Status       TaskStatus `json:"status" bson:"status"`
	NeedApproval bool       `json:"needApproval" bson:"need_approval"`
	ApprovedBy   *string    `json:"approvedBy" bson:"approved_by"`
	CreatedBy    string     `json:"createdBy" bson:"created_by"`
	DueDate      *time.Time `json:"dueDate,omitempty" bson:"due_date,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
	Assignees    []string   `json:"assignees,omitempty" bson:"-"`
}

// TaskAssignment links a user to a task. A (task, user) pair exists at most once.
type TaskAssignment struct {
	TaskID     string    `json:"taskId" bson:"task_id"`
	UserID     string    `json:"userId" bson:"user_id"`
	AssignedBy string    `json:"assignedBy" bson:"assigned_by"`
	AssignedAt time.Time `json:"assignedAt" bson:"assigned_at"`
}

type TaskFilter struct {
	ProjectIDs []string
	Status     TaskStatus
	AssigneeID string
}

// TaskUpdate lists the fields an edit writes; nil fields keep their stored value.
// A status change only lands while the stored status still equals ExpectStatus.
type TaskUpdate struct {
	Name         *string
	Description  *string
	Status       *TaskStatus
	ExpectStatus TaskStatus
	NeedApproval *bool
	DueDate      *time.Time
	UpdatedAt    time.Time
}
