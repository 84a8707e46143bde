package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateRequest(ctx context.Context, r *models.StatusChangeRequest) error {
	_, err := s.requests.InsertOne(ctx, r)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create status change request: %w", err)
	}
	return nil
}

func (s *MongoStore) GetRequest(ctx context.Context, id string) (*models.StatusChangeRequest, error) {
	var r models.StatusChangeRequest
	if err := s.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *MongoStore) ListRequests(ctx context.Context, f models.RequestFilter) ([]models.StatusChangeRequest, int, error) {
	filter := bson.M{}
	if f.TaskID != "" {
		filter["task_id"] = f.TaskID
	}
	if f.ProjectID != "" {
		filter["project_id"] = f.ProjectID
	}
	if f.RequestedBy != "" {
		filter["requested_by"] = f.RequestedBy
	}

	total, err := s.requests.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count status change requests: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "request_time", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetSkip(int64(f.Offset)).SetLimit(int64(f.Limit))
	}
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list status change requests: %w", err)
	}
	requests, err := decodeAll[models.StatusChangeRequest](ctx, cursor)
	if err != nil {
		return nil, 0, err
	}
	return requests, int(total), nil
}

func (s *MongoStore) UpdateRequestReason(ctx context.Context, id, reason string) error {
	res, err := s.requests.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.RequestPending},
		bson.M{"$set": bson.M{"reason": reason}})
	if err != nil {
		return fmt.Errorf("failed to update reason: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return s.missingOrDecided(ctx, id)
}

// DecideRequest applies the decision inside one transaction. The filter on status makes the
// first decision win; a concurrent second one matches nothing and gets ErrNotPending.
func (s *MongoStore) DecideRequest(ctx context.Context, id string, d models.Decision) (*models.StatusChangeRequest, error) {
	var decided models.StatusChangeRequest
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		set := bson.M{"status": d.Outcome(), "decided_at": d.At}
		if d.Action == models.ActionAccept {
			set["approved_by"] = d.Actor
		}
		err := s.requests.FindOneAndUpdate(sc,
			bson.M{"_id": id, "status": models.RequestPending},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&decided)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return s.missingOrDecided(sc, id)
		}
		if err != nil {
			return fmt.Errorf("failed to decide status change request: %w", err)
		}

		if d.Action == models.ActionAccept {
			res, err := s.tasks.UpdateOne(sc, bson.M{"_id": decided.TaskID}, bson.M{"$set": bson.M{
				"status":      models.StatusCompleted,
				"approved_by": d.Actor,
				"updated_at":  d.At,
			}})
			if err != nil {
				return fmt.Errorf("failed to complete task: %w", err)
			}
			return matchedOne(res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &decided, nil
}

func (s *MongoStore) missingOrDecided(ctx context.Context, id string) error {
	n, err := s.requests.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to look up status change request: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}

func (s *MongoStore) CreateComment(ctx context.Context, c *models.Comment) error {
	if _, err := s.comments.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (s *MongoStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := s.comments.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *MongoStore) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.comments.Find(ctx, bson.M{"task_id": taskID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return decodeAll[models.Comment](ctx, cursor)
}

func (s *MongoStore) UpdateComment(ctx context.Context, id, content string, at time.Time) error {
	res, err := s.comments.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"content": content, "updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return matchedOne(res)
}

// DeleteComment removes the comment and its replies.
func (s *MongoStore) DeleteComment(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		res, err := s.comments.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		if err := deletedOne(res); err != nil {
			return err
		}
		_, err = s.comments.DeleteMany(sc, bson.M{"parent_id": id})
		return err
	})
}
