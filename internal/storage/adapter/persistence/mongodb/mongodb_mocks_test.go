package mongodb

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MockDatabase hands out one MockCollection per name, created on demand.
type MockDatabase struct {
	mu          sync.Mutex
	name        string
	collections map[string]*MockCollection
}

func NewMockDatabase(name string) *MockDatabase {
	return &MockDatabase{name: name, collections: make(map[string]*MockCollection)}
}

func (d *MockDatabase) Name() string { return d.name }

func (d *MockDatabase) Collection(name string) CollectionInterface {
	return d.Mock(name)
}

// Mock returns the collection mock for name so tests can set expectations.
func (d *MockDatabase) Mock(name string) *MockCollection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.collections[name]
	if !ok {
		c = &MockCollection{indexes: &MockIndexManager{}}
		d.collections[name] = c
	}
	return c
}

// MockCollection is a testify mock of CollectionInterface.
type MockCollection struct {
	mock.Mock
	indexes *MockIndexManager
}

func (m *MockCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface {
	args := m.Called(ctx, filter)
	return args.Get(0).(SingleResultInterface)
}

func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	args := m.Called(ctx, filter, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(CursorInterface), args.Error(1)
}

func (m *MockCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	args := m.Called(ctx, doc)
	return args.Get(0), args.Error(1)
}

func (m *MockCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	args := m.Called(ctx, filter, replacement)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(UpdateResultInterface), args.Error(1)
}

func (m *MockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultInterface, error) {
	args := m.Called(ctx, filter, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(UpdateResultInterface), args.Error(1)
}

func (m *MockCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(SingleResultInterface)
}

func (m *MockCollection) DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(DeleteResultInterface), args.Error(1)
}

func (m *MockCollection) DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(DeleteResultInterface), args.Error(1)
}

func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) Indexes() IndexManager { return m.indexes }

// MockIndexManager is a testify mock of IndexManager.
type MockIndexManager struct {
	mock.Mock
}

func (m *MockIndexManager) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	args := m.Called(ctx, model)
	return args.String(0), args.Error(1)
}

func (m *MockIndexManager) DropOne(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockIndexManager) ListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

// MockClient is a testify mock of Client.
type MockClient struct {
	mock.Mock
	db DatabaseInterface
}

func (m *MockClient) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) Database(name string) DatabaseInterface {
	return m.db
}

func (m *MockClient) Disconnect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// --- Result fakes: documents round-trip through bson like real driver results ---

type fakeSingleResult struct {
	doc interface{}
	err error
}

func singleResult(doc interface{}) *fakeSingleResult { return &fakeSingleResult{doc: doc} }
func noDocuments() *fakeSingleResult                 { return &fakeSingleResult{err: mongo.ErrNoDocuments} }

func (r *fakeSingleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return bsonCopy(r.doc, v)
}

type fakeCursor struct {
	docs []interface{}
	pos  int
}

func cursorOf(docs ...interface{}) *fakeCursor { return &fakeCursor{docs: docs, pos: -1} }

func (c *fakeCursor) Next(ctx context.Context) bool {
	c.pos++
	return c.pos < len(c.docs)
}
func (c *fakeCursor) Decode(val interface{}) error    { return bsonCopy(c.docs[c.pos], val) }
func (c *fakeCursor) Close(ctx context.Context) error { return nil }
func (c *fakeCursor) Err() error                      { return nil }

func bsonCopy(src, dst interface{}) error {
	raw, err := bson.Marshal(src)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, dst)
}

type updateResult struct {
	matched  int64
	upserted bool
}

func (u updateResult) Matched() int64 { return u.matched }
func (u updateResult) Upserted() bool { return u.upserted }

type deleteResult int64

func (d deleteResult) Deleted() int64 { return int64(d) }

func duplicateKeyError() error {
	return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
}

// --- Scheduler fake: timers fire only when the test says so ---

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return &fakeTimerHandle{s: s, t: t}
}

type fakeTimerHandle struct {
	s *fakeScheduler
	t *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	active := !h.t.stopped && !h.t.fired
	h.t.stopped = true
	return active
}

// pending returns the delays of timers that are neither stopped nor fired.
func (s *fakeScheduler) pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

// scheduled returns the delays of every timer ever created with delay != skip.
func (s *fakeScheduler) scheduled(skip time.Duration) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if t.delay != skip {
			out = append(out, t.delay)
		}
	}
	return out
}

// fire runs the oldest pending timer with the given delay. It reports false if
// there was none.
func (s *fakeScheduler) fire(delay time.Duration) bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.delay == delay {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// fireAnyExcept runs the oldest pending timer whose delay is not skip.
func (s *fakeScheduler) fireAnyExcept(skip time.Duration) bool {
	s.mu.Lock()
	var next *fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired && t.delay != skip {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}
