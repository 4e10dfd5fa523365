// Package mongodb persists applications, interview responses, and analysis
// tasks in MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollTasks        = "analysis_tasks"
	CollApplications = "applications"
	CollResponses    = "interview_responses"
)

// Connect opens a client against the given URI, verifies it with a ping, and
// returns the named database handle.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(20)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("op=mongo.connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("op=mongo.ping: %w", err)
	}
	return client, client.Database(dbName), nil
}

// EnsureIndexes creates the indexes the repositories rely on. Safe to call on
// every startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollTasks).Indexes().CreateMany(ctx, []mongo.IndexModel{
		// Backs the one-active-task-per-application lookup at enqueue time.
		{Keys: bson.D{{Key: "applicationId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("op=mongo.indexes.tasks: %w", err)
	}
	_, err = db.Collection(CollResponses).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "applicationId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("op=mongo.indexes.responses: %w", err)
	}
	return nil
}
