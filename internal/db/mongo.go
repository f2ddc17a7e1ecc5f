package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"

	"wiki_harvester/internal/config"
	"wiki_harvester/internal/models"
	"wiki_harvester/internal/queue"
)

// MongoDB stores datasets by key in one collection and task records in
// another. It implements both Store and queue.Queue.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dataset  *mongo.Collection
	tasks    *mongo.Collection
	logger   *slog.Logger
}

type storedDocument struct {
	Key       string      `bson:"key"`
	Dataset   interface{} `bson:"dataset"`
	Hash      string      `bson:"hash"`
	UpdatedAt int64       `bson:"updated_at"`
}

func NewMongoDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.Connection).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	d := &MongoDB{
		client:   client,
		database: db,
		dataset:  db.Collection(cfg.Collections.Dataset),
		tasks:    db.Collection(cfg.Collections.Tasks),
		logger:   logger,
	}

	d.createIndexes(ctx)

	return d, nil
}

func (d *MongoDB) createIndexes(ctx context.Context) {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := d.dataset.Indexes().CreateOne(ctx, indexModel); err != nil {
		d.logger.Warn("creating dataset key index", "error", err)
	}

	indexModel = mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
	}
	if _, err := d.tasks.Indexes().CreateOne(ctx, indexModel); err != nil {
		d.logger.Warn("creating task status index", "error", err)
	}
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// Write upserts the dataset under key. When the stored hash matches, only
// updated_at is touched.
func (d *MongoDB) Write(ctx context.Context, key string, dataset interface{}) error {
	hash, _, err := datasetHash(dataset)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().Unix()
	filter := bson.M{"key": key}

	var existing struct {
		Hash string `bson:"hash"`
	}
	err = d.dataset.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"hash": 1})).Decode(&existing)
	switch {
	case err == nil && existing.Hash == hash:
		_, err = d.dataset.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"updated_at": now}})
		return err
	case err != nil && !errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("looking up %s: %w", key, err)
	}

	update := bson.M{
		"$set": storedDocument{Key: key, Dataset: dataset, Hash: hash, UpdatedAt: now},
		"$inc": bson.M{"writes": 1},
	}
	if _, err := d.dataset.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (d *MongoDB) Read(ctx context.Context, key string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc struct {
		Dataset bson.RawValue `bson:"dataset"`
	}
	err := d.dataset.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}

	if err := doc.Dataset.Unmarshal(out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (d *MongoDB) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := d.dataset.DeleteOne(ctx, bson.M{"key": key})
	return err
}

func (d *MongoDB) FindRevisions(ctx context.Context, pattern string, limit int) ([]models.RevisionDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	filter := bson.M{"key": primitive.Regex{Pattern: pattern}}
	opts := options.Find().
		SetProjection(bson.M{"key": 1, "dataset": 1}).
		SetSort(bson.D{{Key: "key", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := d.dataset.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("finding revisions %q: %w", pattern, err)
	}
	defer cursor.Close(ctx)

	var docs []models.RevisionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (d *MongoDB) Count(ctx context.Context, pattern string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return d.dataset.CountDocuments(ctx, bson.M{"key": primitive.Regex{Pattern: pattern}})
}

func (d *MongoDB) Enqueue(ctx context.Context, name, arg string) (*models.Task, error) {
	if name == "" {
		return nil, fmt.Errorf("task name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	task := &models.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Arg:       arg,
		Status:    models.TaskPending,
		CreatedAt: time.Now().UnixNano(),
	}
	if _, err := d.tasks.InsertOne(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	return task, nil
}

// Claim atomically moves the oldest pending task to STARTED.
func (d *MongoDB) Claim(ctx context.Context, worker string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"status": models.TaskPending}
	update := bson.M{"$set": bson.M{
		"status":     models.TaskStarted,
		"worker":     worker,
		"started_at": time.Now().UnixNano(),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var task models.Task
	err := d.tasks.FindOneAndUpdate(ctx, filter, update, opts).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, queue.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("claiming task: %w", err)
	}
	return &task, nil
}

func (d *MongoDB) updateTask(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := d.tasks.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating task %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	return nil
}

func (d *MongoDB) Progress(ctx context.Context, id string, current, total int) error {
	return d.updateTask(ctx, id, bson.M{
		"status":  models.TaskProgress,
		"current": current,
		"total":   total,
	})
}

func (d *MongoDB) Complete(ctx context.Context, id string, result interface{}) error {
	return d.updateTask(ctx, id, bson.M{
		"status":      models.TaskSuccess,
		"result":      result,
		"finished_at": time.Now().UnixNano(),
	})
}

func (d *MongoDB) Fail(ctx context.Context, id string, cause error) error {
	return d.updateTask(ctx, id, bson.M{
		"status":      models.TaskFailure,
		"error":       cause.Error(),
		"finished_at": time.Now().UnixNano(),
	})
}

func (d *MongoDB) Get(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var task models.Task
	err := d.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (d *MongoDB) List(ctx context.Context, limit int) ([]*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := d.tasks.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Counts aggregates task records by status.
func (d *MongoDB) Counts(ctx context.Context) (map[models.TaskStatus]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := d.tasks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.TaskStatus `bson:"_id"`
		Count  int64             `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

var (
	_ Store       = (*MongoDB)(nil)
	_ Store       = (*MemoryStore)(nil)
	_ queue.Queue = (*MongoDB)(nil)
)
