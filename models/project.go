package models

import "time"

type ProjectStatus string

const (
	ProjectNotStarted ProjectStatus = "not_started"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectArchived   ProjectStatus = "archived"
)

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectNotStarted, ProjectInProgress, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

type Project struct {
	ID          string        `json:"id" bson:"_id"`
	Name        string        `json:"name" bson:"name"`
	Description string        `json:"description" bson:"description"`
	Status      ProjectStatus `json:"status" bson:"status"`
	OwnerID     string        `json:"ownerId" bson:"owner_id"`
	StartDate   *time.Time    `json:"startDate,omitempty" bson:"start_date,omitempty"`
	EndDate     *time.Time    `json:"endDate,omitempty" bson:"end_date,omitempty"`
	MemberCount int           `json:"memberCount" bson:"member_count"`
	TaskCount   int           `json:"taskCount" bson:"task_count"`
	CreatedAt   time.Time     `json:"createdAt" bson:"created_at"`
}

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// ProjectMembership links a user to a project. A (project, user) pair exists at most once.
type ProjectMembership struct {
	ID        string     `json:"id" bson:"_id"`
	ProjectID string     `json:"projectId" bson:"project_id"`
	UserID    string     `json:"userId" bson:"user_id"`
	Role      MemberRole `json:"role" bson:"role"`
	JoinedAt  time.Time  `json:"joinedAt" bson:"joined_at"`
}
