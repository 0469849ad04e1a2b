// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/store"
)

type Store struct {
	db        *mongo.Database
	registry  *store.Registry
	batchSize int32
	log       *logger.Logger
}

var _ store.Store = (*Store)(nil)

// Connect dials MongoDB with the shared BSON registry and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri).SetRegistry(store.BSONRegistry())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classify(err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, classify(err)
	}
	return client, nil
}

// New wraps db. batchSize is the server-side batch size used by paged
// queries; zero leaves the driver default.
func New(db *mongo.Database, registry *store.Registry, batchSize int32, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, registry: registry, batchSize: batchSize, log: log.WithComponent("mongostore")}
}

func (s *Store) collection(kind store.Kind) (*mongo.Collection, error) {
	c, err := s.registry.Resolve(kind)
	if err != nil {
		return nil, err
	}
	return s.db.Collection(c.Name), nil
}

// EnsureIndexes creates a unique index for every unique field in the registry.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, kind := range s.registry.Kinds() {
		c, err := s.registry.Resolve(kind)
		if err != nil {
			return err
		}
		for _, field := range c.UniqueFields {
			model := mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_" + field),
			}
			if _, err := s.db.Collection(c.Name).Indexes().CreateOne(ctx, model); err != nil {
				return classify(fmt.Errorf("create index %s.%s: %w", c.Name, field, err))
			}
			s.log.Infow("index ensured", "collection", c.Name, "field", field)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind store.Kind, id string, out any) (bool, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return false, err
	}
	if err := coll.FindOne(ctx, bson.M{store.IDField: id}).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, classify(err)
	}
	return true, nil
}

func (s *Store) Query(ctx context.Context, kind store.Kind, q store.Query, out any) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	opts := options.Find()
	if q.SortField != "" {
		opts.SetSort(bson.D{{Key: q.SortField, Value: 1}})
	}
	cursor, err := coll.Find(ctx, toFilter(q.Conditions), opts)
	if err != nil {
		return classify(err)
	}
	defer cursor.Close(ctx)

	sink, err := store.NewSliceSink(out)
	if err != nil {
		return err
	}
	for cursor.Next(ctx) {
		if err := sink.Append(cursor.Decode); err != nil {
			return apperror.NewPermanent(err)
		}
	}
	if err := cursor.Err(); err != nil {
		return classify(err)
	}
	sink.Done()
	return nil
}

// QueryPaged reads in _id order, asking the server for one document more than
// the page holds so an exhausted query never hands out a cursor.
func (s *Store) QueryPaged(ctx context.Context, kind store.Kind, req store.PageRequest, out any) (string, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return "", err
	}
	q := req.Scoped()
	fp := q.Fingerprint(kind)
	after, err := store.DecodeCursor(req.Cursor, fp)
	if err != nil {
		return "", err
	}
	conds := q.Conditions
	if after != "" {
		conds = q.And(store.IDField, store.Gt, after).Conditions
	}

	size := req.Size()
	opts := options.Find().
		SetSort(bson.D{{Key: store.IDField, Value: 1}}).
		SetLimit(int64(size + 1))
	if s.batchSize > 0 {
		opts.SetBatchSize(s.batchSize)
	}

	cursor, err := coll.Find(ctx, toFilter(conds), opts)
	if err != nil {
		return "", classify(err)
	}
	defer cursor.Close(ctx)

	sink, err := store.NewSliceSink(out)
	if err != nil {
		return "", err
	}
	var (
		last string
		more bool
	)
	for cursor.Next(ctx) {
		if sink.Len() == size {
			more = true
			break
		}
		id, ok := cursor.Current.Lookup(store.IDField).StringValueOK()
		if !ok {
			return "", apperror.NewPermanent(fmt.Errorf("%s document without string id", kind))
		}
		if err := sink.Append(cursor.Decode); err != nil {
			return "", apperror.NewPermanent(err)
		}
		last = id
	}
	if err := cursor.Err(); err != nil {
		return "", classify(err)
	}
	sink.Done()

	if !more {
		return "", nil
	}
	return store.EncodeCursor(last, fp)
}

func (s *Store) Create(ctx context.Context, kind store.Kind, id string, doc any) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return classifyWrite(kind, id, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, kind store.Kind, id string, doc any) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := coll.ReplaceOne(ctx, bson.M{store.IDField: id}, doc, opts); err != nil {
		return classifyWrite(kind, id, err)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, kind store.Kind, id string, expectedVersion int64, doc any) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	filter := bson.D{
		{Key: store.IDField, Value: id},
		{Key: models.FieldVersion, Value: expectedVersion},
	}
	res, err := coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return classifyWrite(kind, id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{store.IDField: id})
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return apperror.NewNotFound(string(kind), id)
	}
	return apperror.NewConflict(string(kind), id).WithDetail("expectedVersion", expectedVersion)
}

func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	coll, err := s.collection(kind)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{store.IDField: id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return apperror.NewNotFound(string(kind), id)
	}
	return nil
}

// toFilter groups conditions by field so several bounds on one field end up
// in a single operator document.
func toFilter(conds []store.Condition) bson.D {
	filter := bson.D{}
	index := make(map[string]int, len(conds))
	for _, c := range conds {
		i, ok := index[c.Field]
		if !ok {
			filter = append(filter, bson.E{Key: c.Field, Value: bson.D{}})
			i = len(filter) - 1
			index[c.Field] = i
		}
		ops := filter[i].Value.(bson.D)
		filter[i].Value = append(ops, bson.E{Key: string(c.Op), Value: c.Value})
	}
	return filter
}

func classifyWrite(kind store.Kind, id string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return apperror.NewDuplicate(string(kind), "key", id).WithCause(err)
	}
	return classify(err)
}

// classify maps driver errors onto the transient/permanent split.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperror.NewConflict("document", "").WithCause(err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return apperror.NewTransient(err)
	}
	var labeled mongo.ServerError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("RetryableWriteError") {
		return apperror.NewTransient(err)
	}
	var selection topology.ServerSelectionError
	if errors.As(err, &selection) {
		return apperror.NewTransient(err)
	}
	return apperror.NewPermanent(err)
}
