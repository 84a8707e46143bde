package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NAHIAN-19/project-planner/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps the relational data in MongoDB. Multi-document writes run in session
// transactions, so the server must be a replica set.
type MongoStore struct {
	client      *mongo.Client
	users       *mongo.Collection
	projects    *mongo.Collection
	memberships *mongo.Collection
	tasks       *mongo.Collection
	assignments *mongo.Collection
	requests    *mongo.Collection
	comments    *mongo.Collection
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("database connection for MongoDB failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB connection ping error: %w", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB")
	return client, nil
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:      client,
		users:       db.Collection("users"),
		projects:    db.Collection("projects"),
		memberships: db.Collection("project_memberships"),
		tasks:       db.Collection("tasks"),
		assignments: db.Collection("task_assignments"),
		requests:    db.Collection("status_change_requests"),
		comments:    db.Collection("comments"),
	}
}

// EnsureIndexes creates the unique and lookup indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	onePending := options.Index().SetUnique(true).SetName("one_pending_per_task").
		SetPartialFilterExpression(bson.M{"status": "pending"})
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		s.projects: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
		s.memberships: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		s.tasks: {
			{Keys: bson.D{{Key: "project_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
		},
		s.assignments: {
			{Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		s.requests: {
			{Keys: bson.D{{Key: "task_id", Value: 1}}, Options: onePending},
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "request_time", Value: -1}}},
			{Keys: bson.D{{Key: "requested_by", Value: 1}, {Key: "request_time", Value: -1}}},
		},
		s.comments: {
			{Keys: bson.D{{Key: "task_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for coll, indexes := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// withTx runs fn inside a session transaction; the driver retries transient failures.
func (s *MongoStore) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) recomputeProjectCounts(ctx context.Context, projectID string) (int, int, error) {
	members, err := s.memberships.CountDocuments(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count members: %w", err)
	}
	tasks, err := s.tasks.CountDocuments(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	_, err = s.projects.UpdateOne(ctx, bson.M{"_id": projectID},
		bson.M{"$set": bson.M{"member_count": members, "task_count": tasks}})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to recompute project counts: %w", err)
	}
	return int(members), int(tasks), nil
}

func (s *MongoStore) taskIDsOfProject(ctx context.Context, projectID string) ([]string, error) {
	return distinctStrings(ctx, s.tasks, "_id", bson.M{"project_id": projectID})
}

func distinctStrings(ctx context.Context, coll *mongo.Collection, field string, filter bson.M) ([]string, error) {
	values, err := coll.Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s: %w", field, coll.Name(), err)
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]T, error) {
	defer cursor.Close(ctx)
	items := []T{}
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		items = append(items, item)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return items, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func matchedOne(res *mongo.UpdateResult) error {
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func deletedOne(res *mongo.DeleteResult) error {
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
