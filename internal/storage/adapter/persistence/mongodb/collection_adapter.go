package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// --- Narrow seams over the driver so repositories can be tested with mocks ---

// DatabaseInterface is the database-scoped accessor handed to repositories.
type DatabaseInterface interface {
	Name() string
	Collection(name string) CollectionInterface
}

type CollectionInterface interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error)
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultInterface, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface
	DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	Indexes() IndexManager
}

type IndexManager interface {
	CreateOne(ctx context.Context, model mongo.IndexModel) (string, error)
	DropOne(ctx context.Context, name string) error
	ListNames(ctx context.Context) ([]string, error)
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}
type UpdateResultInterface interface {
	Matched() int64
	Upserted() bool
}
type DeleteResultInterface interface{ Deleted() int64 }
type CursorInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// MongoDatabaseAdapter makes *mongo.Database satisfy DatabaseInterface.
type MongoDatabaseAdapter struct {
	db *mongo.Database
}

func NewMongoDatabaseAdapter(db *mongo.Database) *MongoDatabaseAdapter {
	return &MongoDatabaseAdapter{db: db}
}

func (m *MongoDatabaseAdapter) Name() string { return m.db.Name() }

func (m *MongoDatabaseAdapter) Collection(name string) CollectionInterface {
	return NewMongoCollectionAdapter(m.db.Collection(name))
}

// MongoCollectionAdapter makes *mongo.Collection compatible with CollectionInterface.
type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func NewMongoCollectionAdapter(col *mongo.Collection) *MongoCollectionAdapter {
	return &MongoCollectionAdapter{col: col}
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface {
	return &MongoSingleResultAdapter{res: m.col.FindOne(ctx, filter, opts...)}
}

func (m *MongoCollectionAdapter) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoCursorAdapter{cur: cur}, nil
}

func (m *MongoCollectionAdapter) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	res, err := m.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (m *MongoCollectionAdapter) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	res, err := m.col.ReplaceOne(ctx, filter, replacement, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{matched: res.MatchedCount, upserted: res.UpsertedID != nil}, nil
}

func (m *MongoCollectionAdapter) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultInterface, error) {
	res, err := m.col.UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{matched: res.MatchedCount, upserted: res.UpsertedID != nil}, nil
}

func (m *MongoCollectionAdapter) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface {
	return &MongoSingleResultAdapter{res: m.col.FindOneAndUpdate(ctx, filter, update, opts...)}
}

func (m *MongoCollectionAdapter) DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MongoDeleteResultAdapter{deleted: res.DeletedCount}, nil
}

func (m *MongoCollectionAdapter) DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MongoDeleteResultAdapter{deleted: res.DeletedCount}, nil
}

func (m *MongoCollectionAdapter) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.col.CountDocuments(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) Indexes() IndexManager {
	return &MongoIndexManagerAdapter{iv: m.col.Indexes()}
}

// MongoIndexManagerAdapter wraps mongo.IndexView.
type MongoIndexManagerAdapter struct {
	iv mongo.IndexView
}

func (m *MongoIndexManagerAdapter) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	return m.iv.CreateOne(ctx, model)
}

func (m *MongoIndexManagerAdapter) DropOne(ctx context.Context, name string) error {
	_, err := m.iv.DropOne(ctx, name)
	return err
}

func (m *MongoIndexManagerAdapter) ListNames(ctx context.Context) ([]string, error) {
	cur, err := m.iv.List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var spec bson.M
		if err := cur.Decode(&spec); err != nil {
			return nil, err
		}
		if name, ok := spec["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, cur.Err()
}

// --- Adapters for result types ---
type MongoSingleResultAdapter struct {
	res *mongo.SingleResult
}

func (m *MongoSingleResultAdapter) Decode(v interface{}) error {
	return m.res.Decode(v)
}

type MongoUpdateResultAdapter struct {
	matched  int64
	upserted bool
}

func (m *MongoUpdateResultAdapter) Matched() int64 { return m.matched }
func (m *MongoUpdateResultAdapter) Upserted() bool { return m.upserted }

type MongoDeleteResultAdapter struct {
	deleted int64
}

func (m *MongoDeleteResultAdapter) Deleted() int64 { return m.deleted }

type MongoCursorAdapter struct {
	cur *mongo.Cursor
}

func (m *MongoCursorAdapter) Next(ctx context.Context) bool   { return m.cur.Next(ctx) }
func (m *MongoCursorAdapter) Decode(val interface{}) error    { return m.cur.Decode(val) }
func (m *MongoCursorAdapter) Close(ctx context.Context) error { return m.cur.Close(ctx) }
func (m *MongoCursorAdapter) Err() error                      { return m.cur.Err() }

// decodeAll drains cur into a slice of T.
func decodeAll[T any](ctx context.Context, cur CursorInterface) ([]*T, error) {
	defer cur.Close(ctx)
	out := make([]*T, 0)
	for cur.Next(ctx) {
		v := new(T)
		if err := cur.Decode(v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}
