package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// StatusChangeRequest records an assignee's request to have a task marked completed.
// Once it leaves pending, Status and ApprovedBy never change again.
type StatusChangeRequest struct {
	ID          string        `json:"id" bson:"_id"`
	TaskID      string        `json:"task" bson:"task_id"`
	ProjectID   string        `json:"project" bson:"project_id"`
	RequestedBy string        `json:"requestedBy" bson:"requested_by"`
	RequestTime time.Time     `json:"requestTime" bson:"request_time"`
	Reason      string        `json:"reason" bson:"reason"`
	Status      RequestStatus `json:"status" bson:"status"`
	ApprovedBy  *string       `json:"approvedBy" bson:"approved_by"`
	DecidedAt   *time.Time    `json:"decidedAt,omitempty" bson:"decided_at,omitempty"`
}

// RequestFilter selects requests; empty fields do not constrain. Results are ordered by
// RequestTime descending, then ID descending.
type RequestFilter struct {
	TaskID      string
	ProjectID   string
	RequestedBy string
	Offset      int
	Limit       int
}

type Decision struct {
	Action Action
	Actor  string
	At     time.Time
}

// Outcome is the request status a decision produces.
func (d Decision) Outcome() RequestStatus {
	if d.Action == ActionAccept {
		return RequestApproved
	}
	return RequestRejected
}
