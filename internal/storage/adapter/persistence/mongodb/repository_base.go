package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RepositoryOption customises the repositories built by NewRepositories.
type RepositoryOption func(*repoDeps)

// WithRepositoryClock overrides time.Now for stored timestamps.
func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(d *repoDeps) { d.now = now }
}

type repoDeps struct {
	db      DatabaseInterface
	objects *cache.ObjectCache
	queries *cache.QueryCache
	logger  logger.Logger
	now     func() time.Time
}

// NewRepositories builds every mongo repository over db. The caches are
// shared by all of them.
func NewRepositories(db DatabaseInterface, objects *cache.ObjectCache, queries *cache.QueryCache, log logger.Logger, opts ...RepositoryOption) *repository.Repositories {
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &repoDeps{db: db, objects: objects, queries: queries, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return &repository.Repositories{
		RoleMappings:     &RoleMappingRepository{base: newBase(d, model.CollectionRoleMappings)},
		TemporaryRoles:   &TemporaryRoleRepository{base: newBase(d, model.CollectionTemporaryRoles)},
		UserExperience:   &UserExperienceRepository{base: newBase(d, model.CollectionUserExperience)},
		GuildSettings:    &GuildSettingsRepository{base: newBase(d, model.CollectionGuildSettings)},
		WelcomeSettings:  &WelcomeSettingsRepository{base: newBase(d, model.CollectionWelcomeSettings)},
		GoodbyeSettings:  &GoodbyeSettingsRepository{base: newBase(d, model.CollectionGoodbyeSettings)},
		Polls:            &PollRepository{base: newBase(d, model.CollectionPolls)},
		ModerationLogs:   &ModerationLogRepository{base: newBase(d, model.CollectionModerationLogs)},
		ScheduledRoles:   &ScheduledRoleRepository{base: newBase(d, model.CollectionScheduledRoles)},
		Supporters:       &SupporterRepository{base: newBase(d, model.CollectionSupporters)},
		CommandAnalytics: &AnalyticsRepository{base: newBase(d, model.CollectionCommandAnalytics)},
	}
}

// base is what every repository composes: one collection, the shared caches
// and a component logger.
type base struct {
	name    string
	col     CollectionInterface
	objects *cache.ObjectCache
	queries *cache.QueryCache
	logger  logger.Logger
	now     func() time.Time
}

func newBase(d *repoDeps, collection string) base {
	return base{
		name:    collection,
		col:     d.db.Collection(collection),
		objects: d.objects,
		queries: d.queries,
		logger:  d.logger.WithComponent(collection + "-repository"),
		now:     d.now,
	}
}

func (b *base) key(parts ...string) string {
	return model.CacheKey(b.name, parts...)
}

// remember replaces the cached copy of a just-written document. The delete
// goes first so peers drop their copy too.
func (b *base) remember(key string, doc interface{}) {
	if b.objects == nil {
		return
	}
	b.objects.Delete(key)
	b.cacheDoc(key, doc)
}

// cacheDoc stores doc in its encoded form. Readers decode a private copy, so
// mutating a returned document never reaches the cache.
func (b *base) cacheDoc(key string, doc interface{}) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		b.logger.WithFields(map[string]interface{}{"key": key, "error": err.Error()}).
			Warn("Document not cached, encoding failed")
		return
	}
	b.objects.Set(key, bson.Raw(raw))
}

func cachedDoc[T any](b *base, key string) (*T, bool) {
	raw, ok := cache.Typed[bson.Raw](b.objects, key)
	if !ok {
		return nil, false
	}
	var doc T
	if err := bson.Unmarshal(raw, &doc); err != nil {
		b.objects.DeleteLocal(key)
		return nil, false
	}
	return &doc, true
}

func (b *base) forget(key string) {
	if b.objects != nil {
		b.objects.Delete(key)
	}
}

// forgetAll drops every cached document of this collection.
func (b *base) forgetAll() {
	if b.objects == nil {
		return
	}
	prefix := b.name + ":"
	for _, k := range b.objects.Keys() {
		if strings.HasPrefix(k, prefix) {
			b.objects.Delete(k)
		}
	}
}

func (b *base) invalidateQueries() {
	if b.queries != nil {
		b.queries.InvalidateCollection(b.name)
	}
}

// storeError maps driver errors onto the storage taxonomy: duplicate keys are
// conflicts, network trouble means the store is unavailable.
func (b *base) storeError(err error, op string) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return apperrors.NewConflictError(fmt.Sprintf("%s: duplicate key on %s", b.name, op)).
			WithComponent(b.name).
			WithDetail("cause", err.Error())
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return apperrors.NewUnavailableError(fmt.Sprintf("failed to %s in %s", op, b.name)).
			WithComponent(b.name).
			WithCause(err)
	default:
		return fmt.Errorf("failed to %s in %s: %w", op, b.name, err)
	}
}

// findOne reads one document through the object cache. A missing document is
// nil, nil and is not cached.
func findOne[T any](ctx context.Context, b *base, key string, filter interface{}) (*T, error) {
	if key != "" && b.objects != nil {
		if doc, ok := cachedDoc[T](b, key); ok {
			return doc, nil
		}
	}
	var doc T
	if err := b.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, b.storeError(err, "find document")
	}
	if key != "" && b.objects != nil {
		b.cacheDoc(key, &doc)
	}
	return &doc, nil
}

func findMany[T any](ctx context.Context, b *base, filter interface{}, opts ...*options.FindOptions) ([]*T, error) {
	cur, err := b.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, b.storeError(err, "list documents")
	}
	out, err := decodeAll[T](ctx, cur)
	if err != nil {
		return nil, b.storeError(err, "decode documents")
	}
	return out, nil
}

// rememberMany serves a listing through the query cache. Results are cached
// encoded and every call decodes fresh documents.
func rememberMany[T any](b *base, key string, load func() ([]*T, error)) ([]*T, error) {
	if b.queries == nil {
		return load()
	}
	raws, err := cache.Remember(b.queries, key, func() ([]bson.Raw, error) {
		docs, err := load()
		if err != nil {
			return nil, err
		}
		out := make([]bson.Raw, 0, len(docs))
		for _, doc := range docs {
			raw, err := bson.Marshal(doc)
			if err != nil {
				return nil, b.storeError(err, "encode documents")
			}
			out = append(out, raw)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		var doc T
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, b.storeError(err, "decode documents")
		}
		out = append(out, &doc)
	}
	return out, nil
}

// upsert replaces the document matching filter, inserting it if absent.
func (b *base) upsert(ctx context.Context, filter, doc interface{}) error {
	if _, err := b.col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return b.storeError(err, "upsert document")
	}
	return nil
}

func (b *base) insert(ctx context.Context, doc interface{}) error {
	if _, err := b.col.InsertOne(ctx, doc); err != nil {
		return b.storeError(err, "insert document")
	}
	return nil
}

// deleteOne removes the document matching filter and reports whether one went.
func (b *base) deleteOne(ctx context.Context, filter interface{}) (bool, error) {
	res, err := b.col.DeleteOne(ctx, filter)
	if err != nil {
		return false, b.storeError(err, "delete document")
	}
	return res.Deleted() > 0, nil
}

func (b *base) deleteMany(ctx context.Context, filter interface{}) (int64, error) {
	res, err := b.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, b.storeError(err, "delete documents")
	}
	return res.Deleted(), nil
}
