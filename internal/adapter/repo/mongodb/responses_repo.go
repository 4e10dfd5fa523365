package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// ResponseRepo reads and annotates interview responses.
type ResponseRepo struct {
	coll *mongo.Collection
}

// NewResponseRepo constructs a ResponseRepo over the given database.
func NewResponseRepo(db *mongo.Database) *ResponseRepo {
	return &ResponseRepo{coll: db.Collection(CollResponses)}
}

type responseDoc struct {
	ID                  primitive.ObjectID `bson:"_id"`
	ApplicationID       string             `bson:"applicationId"`
	Question            string             `bson:"question"`
	AudioURL            string             `bson:"audioUrl,omitempty"`
	TranscriptText      string             `bson:"transcriptText,omitempty"`
	TranscriptionStatus string             `bson:"transcriptionStatus,omitempty"`
	TranscriptionError  string             `bson:"transcriptionError,omitempty"`
	DurationSeconds     float64            `bson:"durationSeconds,omitempty"`
	CreatedAt           time.Time          `bson:"createdAt"`
}

func (d responseDoc) toDomain() domain.InterviewResponse {
	return domain.InterviewResponse{
		ID:                  d.ID.Hex(),
		ApplicationID:       d.ApplicationID,
		Question:            d.Question,
		AudioURL:            d.AudioURL,
		TranscriptText:      d.TranscriptText,
		TranscriptionStatus: d.TranscriptionStatus,
		TranscriptionError:  d.TranscriptionError,
		DurationSeconds:     d.DurationSeconds,
		CreatedAt:           d.CreatedAt,
	}
}

// ListByApplication returns the application's responses in interview order.
func (r *ResponseRepo) ListByApplication(ctx context.Context, applicationID string) ([]domain.InterviewResponse, error) {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.ListByApplication")
	defer span.End()
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"applicationId": applicationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("op=response.list: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []domain.InterviewResponse
	for cur.Next(ctx) {
		var d responseDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("op=response.list: %w", err)
		}
		out = append(out, d.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("op=response.list: %w", err)
	}
	return out, nil
}

// SetTranscription updates the transcription fields of one response.
func (r *ResponseRepo) SetTranscription(ctx context.Context, responseID, status, text, transcriptionErr string) error {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.SetTranscription")
	defer span.End()
	oid, err := primitive.ObjectIDFromHex(responseID)
	if err != nil {
		return fmt.Errorf("op=response.set_transcription: %w", domain.ErrInvalidArgument)
	}
	set := bson.M{
		"transcriptionStatus": status,
		"updatedAt":           time.Now().UTC(),
	}
	if text != "" {
		set["transcriptText"] = text
	}
	if transcriptionErr != "" {
		set["transcriptionError"] = transcriptionErr
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("op=response.set_transcription: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=response.set_transcription: %w", domain.ErrNotFound)
	}
	return nil
}
