package repositories

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrNotPending   = errors.New("request is not pending")
	ErrLimitReached = errors.New("plan limit reached")
	ErrStale        = errors.New("record changed since it was read")
	ErrApproved     = errors.New("task has an approved status change request")
)
