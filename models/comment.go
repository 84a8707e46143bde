package models

import "time"

const MaxCommentLength = 1000

type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	TaskID    string    `json:"taskId" bson:"task_id"`
	AuthorID  string    `json:"authorId" bson:"author_id"`
	ParentID  *string   `json:"parentId" bson:"parent_id"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}
