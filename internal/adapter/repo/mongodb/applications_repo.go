package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// ApplicationRepo reads interview applications.
type ApplicationRepo struct {
	coll *mongo.Collection
}

// NewApplicationRepo constructs an ApplicationRepo over the given database.
func NewApplicationRepo(db *mongo.Database) *ApplicationRepo {
	return &ApplicationRepo{coll: db.Collection(CollApplications)}
}

type applicationDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	WorkspaceID    string             `bson:"workspaceId"`
	CandidateName  string             `bson:"candidateName"`
	CandidateEmail string             `bson:"candidateEmail"`
	JobTitle       string             `bson:"jobTitle"`
	JobDescription string             `bson:"jobDescription"`
	Status         string             `bson:"status"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

func (d applicationDoc) toDomain() domain.Application {
	return domain.Application{
		ID:             d.ID.Hex(),
		WorkspaceID:    d.WorkspaceID,
		CandidateName:  d.CandidateName,
		CandidateEmail: d.CandidateEmail,
		JobTitle:       d.JobTitle,
		JobDescription: d.JobDescription,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
	}
}

// Get loads an application by its hex id.
func (r *ApplicationRepo) Get(ctx context.Context, id string) (domain.Application, error) {
	tracer := otel.Tracer("repo.applications")
	ctx, span := tracer.Start(ctx, "applications.Get")
	defer span.End()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Application{}, fmt.Errorf("op=application.get: %w", domain.ErrInvalidArgument)
	}
	var d applicationDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Application{}, fmt.Errorf("op=application.get: %w", domain.ErrNotFound)
		}
		return domain.Application{}, fmt.Errorf("op=application.get: %w", err)
	}
	return d.toDomain(), nil
}
