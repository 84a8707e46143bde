package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateTask(ctx context.Context, t *models.Task, assignments []models.TaskAssignment) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if err := s.projects.FindOne(sc, bson.M{"_id": t.ProjectID}).Err(); err != nil {
			return notFound(err)
		}
		if _, err := s.tasks.InsertOne(sc, t); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		if len(assignments) > 0 {
			docs := make([]interface{}, len(assignments))
			for i := range assignments {
				docs[i] = assignments[i]
			}
			_, err := s.assignments.InsertMany(sc, docs)
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicate
			}
			if err != nil {
				return fmt.Errorf("failed to assign users: %w", err)
			}
		}
		_, _, err := s.recomputeProjectCounts(sc, t.ProjectID)
		return err
	})
}

func (s *MongoStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *MongoStore) ListTasks(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	filter := bson.M{}
	if f.ProjectIDs != nil {
		if len(f.ProjectIDs) == 0 {
			return []models.Task{}, nil
		}
		filter["project_id"] = bson.M{"$in": f.ProjectIDs}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.AssigneeID != "" {
		ids, err := distinctStrings(ctx, s.assignments, "task_id", bson.M{"user_id": f.AssigneeID})
		if err != nil {
			return nil, err
		}
		filter["_id"] = bson.M{"$in": ids}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve tasks: %w", err)
	}
	return decodeAll[models.Task](ctx, cursor)
}

// UpdateTask writes the fields set in u. A status change is filtered on the status that was
// read and refused once an approved request exists for the task.
func (s *MongoStore) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	set := bson.M{"updated_at": u.UpdatedAt}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.NeedApproval != nil {
		set["need_approval"] = *u.NeedApproval
	}
	if u.DueDate != nil {
		set["due_date"] = *u.DueDate
	}
	filter := bson.M{"_id": id}
	if u.Status == nil {
		res, err := s.tasks.UpdateOne(ctx, filter, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		return matchedOne(res)
	}

	set["status"] = *u.Status
	filter["status"] = u.ExpectStatus
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		approved, err := s.requests.CountDocuments(sc, bson.M{"task_id": id, "status": models.RequestApproved})
		if err != nil {
			return fmt.Errorf("failed to check approvals: %w", err)
		}
		if approved > 0 {
			return ErrApproved
		}
		res, err := s.tasks.UpdateOne(sc, filter, bson.M{"$set": set})
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if res.MatchedCount > 0 {
			return nil
		}
		if err := s.tasks.FindOne(sc, bson.M{"_id": id}).Err(); err != nil {
			return notFound(err)
		}
		return ErrStale
	})
}

func (s *MongoStore) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		var t models.Task
		if err := s.tasks.FindOneAndDelete(sc, bson.M{"_id": id}).Decode(&t); err != nil {
			return notFound(err)
		}
		for _, coll := range []*mongo.Collection{s.assignments, s.comments, s.requests} {
			if _, err := coll.DeleteMany(sc, bson.M{"task_id": id}); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", coll.Name(), err)
			}
		}
		_, _, err := s.recomputeProjectCounts(sc, t.ProjectID)
		return err
	})
}

func (s *MongoStore) SetTaskStatus(ctx context.Context, id string, status models.TaskStatus, at time.Time) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": id, "need_approval": false},
		bson.M{"$set": bson.M{"status": status, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return matchedOne(res)
}

func (s *MongoStore) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.tasks.UpdateMany(ctx,
		bson.M{
			"due_date": bson.M{"$ne": nil, "$lt": now},
			"status":   bson.M{"$in": []models.TaskStatus{models.StatusNotStarted, models.StatusInProgress}},
		},
		bson.M{"$set": bson.M{"status": models.StatusOverdue, "updated_at": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue tasks: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) AddAssignment(ctx context.Context, a *models.TaskAssignment) error {
	_, err := s.assignments.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to assign user: %w", err)
	}
	return nil
}

func (s *MongoStore) RemoveAssignment(ctx context.Context, taskID, userID string) error {
	res, err := s.assignments.DeleteOne(ctx, bson.M{"task_id": taskID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to unassign user: %w", err)
	}
	return deletedOne(res)
}

func (s *MongoStore) ListAssignees(ctx context.Context, taskID string) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "assigned_at", Value: 1}, {Key: "user_id", Value: 1}})
	cursor, err := s.assignments.Find(ctx, bson.M{"task_id": taskID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	assignments, err := decodeAll[models.TaskAssignment](ctx, cursor)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.UserID)
	}
	return ids, nil
}

func (s *MongoStore) IsAssignee(ctx context.Context, taskID, userID string) (bool, error) {
	n, err := s.assignments.CountDocuments(ctx, bson.M{"task_id": taskID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return n > 0, nil
}
