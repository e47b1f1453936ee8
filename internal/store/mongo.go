package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CZERTAINLY/Evaluator/internal/model"
)

const (
	collectionEvaluations = "evaluations"
	mongoTimeout          = 5 * time.Second
)

// Mongo stores evaluations in the evaluations collection, keyed by uuid.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to uri and pings the server.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	slog.InfoContext(ctx, "connecting to MongoDB", "database", database)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return &Mongo{
		client:     client,
		collection: client.Database(database).Collection(collectionEvaluations),
	}, nil
}

func (s *Mongo) Create(ctx context.Context, e model.Evaluation) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	_, err := s.collection.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", e.UUID, model.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("create evaluation %s: %w", e.UUID, err)
	}
	return nil
}

func (s *Mongo) Get(ctx context.Context, id string) (model.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var e model.Evaluation
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return e, fmt.Errorf("evaluation %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return e, fmt.Errorf("get evaluation %s: %w", id, err)
	}
	return e, nil
}

func (s *Mongo) List(ctx context.Context) ([]model.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "start_time", Value: -1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var ret []model.Evaluation
	if err := cursor.All(ctx, &ret); err != nil {
		return nil, fmt.Errorf("decode evaluations: %w", err)
	}
	return ret, nil
}

// Claim is a single FindOneAndUpdate filtered on the status, so of two
// concurrent claims only one matches.
func (s *Mongo) Claim(ctx context.Context, id string) (model.Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "evaluate_status": bson.M{"$ne": model.StatusInProgress}}
	update := bson.M{
		"$set":   bson.M{"evaluate_status": model.StatusInProgress},
		"$unset": bson.M{"end_time": "", "exit_code": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var e model.Evaluation
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := s.Get(ctx, id); err != nil {
			return e, err
		}
		return e, fmt.Errorf("%s: %w", id, model.ErrAlreadyRunning)
	}
	if err != nil {
		return e, fmt.Errorf("claim evaluation %s: %w", id, err)
	}
	return e, nil
}

func (s *Mongo) Release(ctx context.Context, id string) error {
	matched, err := s.set(ctx, id, model.StatusInProgress, bson.M{"evaluate_status": model.StatusNotStarted})
	if err != nil || matched {
		return err
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return e.Release()
}

// Finalize writes the terminal state with a single UpdateOne filtered on
// IN_PROGRESS. Like model.Finalization.Apply, a record already in f.Status
// only gains a missing exit code and any other record is left untouched.
func (s *Mongo) Finalize(ctx context.Context, f model.Finalization) error {
	fields := bson.M{
		"evaluate_status": f.Status,
		"end_time":        f.EndTime,
	}
	if f.ExitCode != nil {
		fields["exit_code"] = *f.ExitCode
	}
	if !f.Status.Terminal() {
		return fmt.Errorf("%s: -> %s: %w", f.ID, f.Status, model.ErrInvalidTransition)
	}
	matched, err := s.set(ctx, f.ID, model.StatusInProgress, fields)
	if err != nil || matched {
		return err
	}

	e, err := s.Get(ctx, f.ID)
	if err != nil {
		return err
	}
	if e.Status != f.Status {
		return fmt.Errorf("%s: %s -> %s: %w", f.ID, e.Status, f.Status, model.ErrInvalidTransition)
	}
	if e.ExitCode != nil || f.ExitCode == nil {
		return nil
	}
	filter := bson.M{"_id": f.ID, "evaluate_status": f.Status, "exit_code": bson.M{"$exists": false}}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()
	if _, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"exit_code": *f.ExitCode}}); err != nil {
		return fmt.Errorf("update evaluation %s: %w", f.ID, err)
	}
	return nil
}

func (s *Mongo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete evaluation %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("evaluation %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

// set updates the record only while it is in status from. It reports if the
// record matched, an unknown id is ErrNotFound.
func (s *Mongo) set(ctx context.Context, id string, from model.Status, fields bson.M) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id, "evaluate_status": from}, bson.M{"$set": fields})
	if err != nil {
		return false, fmt.Errorf("update evaluation %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return false, nil
	}
	return true, nil
}
