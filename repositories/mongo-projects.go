package repositories

import (
	"context"
	"fmt"

	"github.com/NAHIAN-19/project-planner/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *MongoStore) UpdateUserPlan(ctx context.Context, id, plan string) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"plan": plan}})
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return matchedOne(res)
}

func (s *MongoStore) CreateProject(ctx context.Context, p *models.Project, owner *models.ProjectMembership, maxOwned int) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if maxOwned != models.Unlimited {
			owned, err := s.projects.CountDocuments(sc, bson.M{"owner_id": p.OwnerID})
			if err != nil {
				return fmt.Errorf("failed to count owned projects: %w", err)
			}
			if owned >= int64(maxOwned) {
				return ErrLimitReached
			}
		}
		if _, err := s.projects.InsertOne(sc, p); err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		if _, err := s.memberships.InsertOne(sc, owner); err != nil {
			return fmt.Errorf("failed to add owner membership: %w", err)
		}
		members, tasks, err := s.recomputeProjectCounts(sc, p.ID)
		if err != nil {
			return err
		}
		p.MemberCount, p.TaskCount = members, tasks
		return nil
	})
}

func (s *MongoStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *MongoStore) ListProjectsForUser(ctx context.Context, userID string) ([]models.Project, error) {
	ids, err := distinctStrings(ctx, s.memberships, "project_id", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Project{}, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.projects.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return decodeAll[models.Project](ctx, cursor)
}

func (s *MongoStore) UpdateProject(ctx context.Context, p *models.Project) error {
	res, err := s.projects.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"name":        p.Name,
		"description": p.Description,
		"status":      p.Status,
		"start_date":  p.StartDate,
		"end_date":    p.EndDate,
	}})
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return matchedOne(res)
}

func (s *MongoStore) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		res, err := s.projects.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		if err := deletedOne(res); err != nil {
			return err
		}
		taskIDs, err := s.taskIDsOfProject(sc, id)
		if err != nil {
			return err
		}
		byTask := bson.M{"task_id": bson.M{"$in": taskIDs}}
		byProject := bson.M{"project_id": id}
		deletes := []struct {
			coll   *mongo.Collection
			filter bson.M
		}{
			{s.assignments, byTask},
			{s.comments, byTask},
			{s.requests, byProject},
			{s.tasks, byProject},
			{s.memberships, byProject},
		}
		for _, d := range deletes {
			if _, err := d.coll.DeleteMany(sc, d.filter); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", d.coll.Name(), err)
			}
		}
		return nil
	})
}

func (s *MongoStore) AddMembership(ctx context.Context, m *models.ProjectMembership, maxMembers int) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if err := s.projects.FindOne(sc, bson.M{"_id": m.ProjectID}).Err(); err != nil {
			return notFound(err)
		}
		if maxMembers != models.Unlimited {
			current, err := s.memberships.CountDocuments(sc, bson.M{"project_id": m.ProjectID})
			if err != nil {
				return fmt.Errorf("failed to count members: %w", err)
			}
			if current >= int64(maxMembers) {
				return ErrLimitReached
			}
		}
		_, err := s.memberships.InsertOne(sc, m)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("failed to add membership: %w", err)
		}
		_, _, err = s.recomputeProjectCounts(sc, m.ProjectID)
		return err
	})
}

func (s *MongoStore) RemoveMembership(ctx context.Context, projectID, userID string) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		res, err := s.memberships.DeleteOne(sc, bson.M{"project_id": projectID, "user_id": userID})
		if err != nil {
			return fmt.Errorf("failed to remove membership: %w", err)
		}
		if err := deletedOne(res); err != nil {
			return err
		}
		taskIDs, err := s.taskIDsOfProject(sc, projectID)
		if err != nil {
			return err
		}
		if len(taskIDs) > 0 {
			_, err = s.assignments.DeleteMany(sc, bson.M{"user_id": userID, "task_id": bson.M{"$in": taskIDs}})
			if err != nil {
				return fmt.Errorf("failed to remove assignments: %w", err)
			}
		}
		_, _, err = s.recomputeProjectCounts(sc, projectID)
		return err
	})
}

func (s *MongoStore) GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	var m models.ProjectMembership
	err := s.memberships.FindOne(ctx, bson.M{"project_id": projectID, "user_id": userID}).Decode(&m)
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *MongoStore) ListMemberships(ctx context.Context, projectID string) ([]models.ProjectMembership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.memberships.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return decodeAll[models.ProjectMembership](ctx, cursor)
}
