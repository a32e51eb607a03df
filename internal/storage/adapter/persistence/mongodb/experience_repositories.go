package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultLeaderboardLimit = 10

var (
	_ repository.UserExperienceRepository = (*UserExperienceRepository)(nil)
	_ repository.AnalyticsRepository      = (*AnalyticsRepository)(nil)
)

// UserExperienceRepository stores XP per guild member. Every write
// invalidates the collection's query cache because leaderboards derive from it.
type UserExperienceRepository struct{ base }

func memberFilter(guildID, userID string) bson.M {
	return bson.M{"guildId": guildID, "userId": userID}
}

func (r *UserExperienceRepository) Get(ctx context.Context, guildID, userID string) (*model.UserExperience, error) {
	return findOne[model.UserExperience](ctx, &r.base, r.key(guildID, userID), memberFilter(guildID, userID))
}

func (r *UserExperienceRepository) AddXP(ctx context.Context, guildID, userID string, xp int64) (*model.UserExperience, error) {
	now := r.now()
	update := bson.M{
		"$inc": bson.M{"totalXP": xp, "messageCount": 1},
		"$set": bson.M{"lastMessageAt": now, "updatedAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc model.UserExperience
	if err := r.col.FindOneAndUpdate(ctx, memberFilter(guildID, userID), update, opts).Decode(&doc); err != nil {
		return nil, r.storeError(err, "add xp")
	}

	// the level is derived from the new total, so it needs a second write
	total := doc.TotalXP
	if total < 0 {
		total = 0
	}
	level := model.LevelForXP(total)
	if level != doc.Level || total != doc.TotalXP {
		if _, err := r.col.UpdateOne(ctx, memberFilter(guildID, userID),
			bson.M{"$set": bson.M{"level": level, "totalXP": total}}); err != nil {
			return nil, r.storeError(err, "update level")
		}
		doc.Level = level
		doc.TotalXP = total
	}

	r.remember(r.key(guildID, userID), doc)
	r.invalidateQueries()
	return &doc, nil
}

func (r *UserExperienceRepository) SetLevel(ctx context.Context, guildID, userID string, level int) error {
	if level < 0 {
		level = 0
	}
	update := bson.M{"$set": bson.M{
		"level":     level,
		"totalXP":   model.XPForLevel(level),
		"updatedAt": r.now(),
	}}
	if _, err := r.col.UpdateOne(ctx, memberFilter(guildID, userID), update, options.Update().SetUpsert(true)); err != nil {
		return r.storeError(err, "set level")
	}
	r.forget(r.key(guildID, userID))
	r.invalidateQueries()
	return nil
}

// GetLeaderboard returns the top members by total XP. Results are served from
// the query cache until a write to the collection or the TTL invalidates them.
func (r *UserExperienceRepository) GetLeaderboard(ctx context.Context, guildID string, limit int) ([]*model.UserExperience, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	load := func() ([]*model.UserExperience, error) {
		opts := options.Find().
			SetSort(bson.D{{Key: "totalXP", Value: -1}, {Key: "userId", Value: 1}}).
			SetLimit(int64(limit))
		return findMany[model.UserExperience](ctx, &r.base, bson.M{"guildId": guildID}, opts)
	}
	return rememberMany(&r.base, cache.QueryKey(r.name, "leaderboard", guildID, limit), load)
}

func (r *UserExperienceRepository) Reset(ctx context.Context, guildID, userID string) error {
	if _, err := r.deleteOne(ctx, memberFilter(guildID, userID)); err != nil {
		return err
	}
	r.forget(r.key(guildID, userID))
	r.invalidateQueries()
	return nil
}

// AnalyticsRepository keeps one counter document per guild per day.
type AnalyticsRepository struct{ base }

func (r *AnalyticsRepository) IncrementCommand(ctx context.Context, guildID, command string, at time.Time) error {
	date := at.UTC().Format(model.AnalyticsDateLayout)
	update := bson.M{
		"$inc": bson.M{"commands." + model.CommandField(command): 1, "total": 1},
		"$set": bson.M{"updatedAt": r.now()},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"date": date, "guildId": guildID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return r.storeError(err, "increment command")
	}
	return nil
}

func (r *AnalyticsRepository) GetDaily(ctx context.Context, guildID, date string) (*model.CommandAnalytics, error) {
	var doc model.CommandAnalytics
	if err := r.col.FindOne(ctx, bson.M{"date": date, "guildId": guildID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, r.storeError(err, "get daily analytics")
	}
	return &doc, nil
}
