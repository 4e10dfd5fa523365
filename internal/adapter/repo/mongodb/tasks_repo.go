package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// TaskRepo persists analysis task records in the analysis_tasks collection.
type TaskRepo struct {
	coll *mongo.Collection
}

// NewTaskRepo constructs a TaskRepo over the given database.
func NewTaskRepo(db *mongo.Database) *TaskRepo {
	return &TaskRepo{coll: db.Collection(CollTasks)}
}

// taskDoc is the persisted shape of a domain.AnalysisTask. Identifier fields
// are plain strings to survive serialization round-trips unchanged.
type taskDoc struct {
	TaskID        string               `bson:"_id"`
	ApplicationID string               `bson:"applicationId"`
	WorkspaceID   string               `bson:"workspaceId"`
	Priority      domain.TaskPriority  `bson:"priority"`
	Status        domain.TaskStatus    `bson:"status"`
	RetryCount    int                  `bson:"retryCount"`
	Result        *domain.Analysis     `bson:"result,omitempty"`
	Error         *domain.TaskError    `bson:"error,omitempty"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
	CompletedAt   *time.Time           `bson:"completedAt,omitempty"`
	FailedAt      *time.Time           `bson:"failedAt,omitempty"`
	CancelledAt   *time.Time           `bson:"cancelledAt,omitempty"`
}

func toTaskDoc(t domain.AnalysisTask) taskDoc {
	return taskDoc{
		TaskID:        t.TaskID,
		ApplicationID: t.ApplicationID,
		WorkspaceID:   t.WorkspaceID,
		Priority:      t.Priority,
		Status:        t.Status,
		RetryCount:    t.RetryCount,
		Result:        t.Result,
		Error:         t.Error,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		CompletedAt:   t.CompletedAt,
		FailedAt:      t.FailedAt,
		CancelledAt:   t.CancelledAt,
	}
}

func (d taskDoc) toDomain() domain.AnalysisTask {
	return domain.AnalysisTask{
		TaskID:        d.TaskID,
		ApplicationID: d.ApplicationID,
		WorkspaceID:   d.WorkspaceID,
		Priority:      d.Priority,
		Status:        d.Status,
		RetryCount:    d.RetryCount,
		Result:        d.Result,
		Error:         d.Error,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		CompletedAt:   d.CompletedAt,
		FailedAt:      d.FailedAt,
		CancelledAt:   d.CancelledAt,
	}
}

// Create inserts a new task record.
func (r *TaskRepo) Create(ctx context.Context, t domain.AnalysisTask) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Create")
	defer span.End()
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, toTaskDoc(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("op=task.create: %w", domain.ErrConflict)
		}
		return fmt.Errorf("op=task.create: %w", err)
	}
	return nil
}

// Get loads a task by its id.
func (r *TaskRepo) Get(ctx context.Context, taskID string) (domain.AnalysisTask, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()
	var d taskDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": taskID}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.AnalysisTask{}, fmt.Errorf("op=task.get: %w", domain.ErrNotFound)
		}
		return domain.AnalysisTask{}, fmt.Errorf("op=task.get: %w", err)
	}
	return d.toDomain(), nil
}

// FindActiveByApplication returns the pending or processing task for the
// application, preferring the most recent one.
func (r *TaskRepo) FindActiveByApplication(ctx context.Context, applicationID string) (domain.AnalysisTask, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.FindActiveByApplication")
	defer span.End()
	filter := bson.M{
		"applicationId": applicationID,
		"status":        bson.M{"$in": bson.A{domain.TaskPending, domain.TaskProcessing}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var d taskDoc
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.AnalysisTask{}, fmt.Errorf("op=task.find_active: %w", domain.ErrNotFound)
		}
		return domain.AnalysisTask{}, fmt.Errorf("op=task.find_active: %w", err)
	}
	return d.toDomain(), nil
}

func (r *TaskRepo) update(ctx context.Context, op, taskID string, set bson.M, unset bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": taskID}, update)
	if err != nil {
		return fmt.Errorf("op=%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

// SetProcessing transitions a task to processing.
func (r *TaskRepo) SetProcessing(ctx context.Context, taskID string) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SetProcessing")
	defer span.End()
	return r.update(ctx, "task.set_processing", taskID, bson.M{
		"status": domain.TaskProcessing,
	}, nil)
}

// SetCompleted transitions a task to completed with its result payload.
func (r *TaskRepo) SetCompleted(ctx context.Context, taskID string, result *domain.Analysis) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SetCompleted")
	defer span.End()
	now := time.Now().UTC()
	return r.update(ctx, "task.set_completed", taskID, bson.M{
		"status":      domain.TaskCompleted,
		"result":      result,
		"completedAt": now,
	}, nil)
}

// SetFailed transitions a task to terminal failed with its error record.
func (r *TaskRepo) SetFailed(ctx context.Context, taskID string, taskErr *domain.TaskError) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SetFailed")
	defer span.End()
	now := time.Now().UTC()
	return r.update(ctx, "task.set_failed", taskID, bson.M{
		"status":   domain.TaskFailed,
		"error":    taskErr,
		"failedAt": now,
	}, nil)
}

// SetCancelled transitions a task to cancelled.
func (r *TaskRepo) SetCancelled(ctx context.Context, taskID string, taskErr *domain.TaskError) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SetCancelled")
	defer span.End()
	now := time.Now().UTC()
	set := bson.M{
		"status":      domain.TaskCancelled,
		"cancelledAt": now,
	}
	if taskErr != nil {
		set["error"] = taskErr
	}
	return r.update(ctx, "task.set_cancelled", taskID, set, nil)
}

// SetPendingRetry returns a failed attempt to pending, bumping the retry count
// and rewriting the (possibly repaired) identifiers.
func (r *TaskRepo) SetPendingRetry(ctx context.Context, taskID string, retryCount int, applicationID, workspaceID string) error {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.SetPendingRetry")
	defer span.End()
	return r.update(ctx, "task.set_pending_retry", taskID, bson.M{
		"status":        domain.TaskPending,
		"retryCount":    retryCount,
		"applicationId": applicationID,
		"workspaceId":   workspaceID,
	}, bson.M{"error": ""})
}

// ListStaleProcessing returns processing tasks whose last update predates the
// cutoff, oldest first.
func (r *TaskRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]domain.AnalysisTask, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.ListStaleProcessing")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	filter := bson.M{
		"status":    domain.TaskProcessing,
		"updatedAt": bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("op=task.list_stale: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []domain.AnalysisTask
	for cur.Next(ctx) {
		var d taskDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("op=task.list_stale: %w", err)
		}
		out = append(out, d.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("op=task.list_stale: %w", err)
	}
	return out, nil
}
