package mongodb

import (
	"context"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ repository.PollRepository          = (*PollRepository)(nil)
	_ repository.ModerationLogRepository = (*ModerationLogRepository)(nil)
	_ repository.SupporterRepository     = (*SupporterRepository)(nil)
)

// PollRepository stores polls keyed by pollId. Guild listings go through the
// query cache.
type PollRepository struct{ base }

func (r *PollRepository) Create(ctx context.Context, poll *model.Poll) error {
	if poll.ID == "" {
		poll.ID = model.NewID()
	}
	if err := model.Validate(poll); err != nil {
		return err
	}
	now := r.now()
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = now
	}
	poll.UpdatedAt = now
	if poll.Votes == nil {
		poll.Votes = map[string][]int{}
	}
	if err := r.insert(ctx, poll); err != nil {
		return err
	}
	r.remember(r.key(poll.ID), *poll)
	r.invalidateQueries()
	return nil
}

func (r *PollRepository) GetByID(ctx context.Context, pollID string) (*model.Poll, error) {
	return findOne[model.Poll](ctx, &r.base, r.key(pollID), bson.M{"pollId": pollID})
}

func (r *PollRepository) GetByGuild(ctx context.Context, guildID string, activeOnly bool) ([]*model.Poll, error) {
	load := func() ([]*model.Poll, error) {
		filter := bson.M{"guildId": guildID}
		if activeOnly {
			filter["isActive"] = true
		}
		return findMany[model.Poll](ctx, &r.base, filter,
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	}
	return rememberMany(&r.base, cache.QueryKey(r.name, "guild", guildID, activeOnly), load)
}

func (r *PollRepository) Update(ctx context.Context, poll *model.Poll) error {
	if err := model.Validate(poll); err != nil {
		return err
	}
	poll.UpdatedAt = r.now()
	res, err := r.col.ReplaceOne(ctx, bson.M{"pollId": poll.ID}, poll)
	if err != nil {
		return r.storeError(err, "update poll")
	}
	if res.Matched() == 0 {
		r.forget(r.key(poll.ID))
		return apperrors.NewNotFoundError("poll").WithDetail("pollId", poll.ID)
	}
	r.remember(r.key(poll.ID), *poll)
	r.invalidateQueries()
	return nil
}

func (r *PollRepository) Delete(ctx context.Context, pollID string) error {
	if _, err := r.deleteOne(ctx, bson.M{"pollId": pollID}); err != nil {
		return err
	}
	r.forget(r.key(pollID))
	r.invalidateQueries()
	return nil
}

// DeleteEnded removes polls whose deadline passed, or that were closed, at or
// before the given time.
func (r *PollRepository) DeleteEnded(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"endsAt": bson.M{"$lte": before}},
		bson.M{"isActive": false, "updatedAt": bson.M{"$lte": before}},
	}}
	n, err := r.deleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.forgetAll()
		r.invalidateQueries()
	}
	return n, nil
}

// ModerationLogRepository stores moderation cases. caseId is unique, so a
// repeated Record is a conflict.
type ModerationLogRepository struct{ base }

func (r *ModerationLogRepository) Record(ctx context.Context, entry *model.ModerationLog) error {
	if entry.CaseID == "" {
		entry.CaseID = model.NewID()
	}
	if err := model.Validate(entry); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if err := r.insert(ctx, entry); err != nil {
		return err
	}
	r.remember(r.key(entry.CaseID), *entry)
	return nil
}

func (r *ModerationLogRepository) GetByCase(ctx context.Context, caseID string) (*model.ModerationLog, error) {
	return findOne[model.ModerationLog](ctx, &r.base, r.key(caseID), bson.M{"caseId": caseID})
}

func (r *ModerationLogRepository) GetByUser(ctx context.Context, guildID, userID string) ([]*model.ModerationLog, error) {
	return findMany[model.ModerationLog](ctx, &r.base, memberFilter(guildID, userID),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *ModerationLogRepository) CountWarnings(ctx context.Context, guildID, userID string) (int64, error) {
	filter := memberFilter(guildID, userID)
	filter["action"] = model.ActionWarn
	n, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, r.storeError(err, "count warnings")
	}
	return n, nil
}

func (r *ModerationLogRepository) RemoveCase(ctx context.Context, caseID string) error {
	deleted, err := r.deleteOne(ctx, bson.M{"caseId": caseID})
	if err != nil {
		return err
	}
	r.forget(r.key(caseID))
	if !deleted {
		return apperrors.NewNotFoundError("moderation case").WithDetail("caseId", caseID)
	}
	return nil
}

// SupporterRepository stores supporters, one document per guild member.
type SupporterRepository struct{ base }

// AddSupporter inserts the supporter. The unique index turns a repeat into a
// conflict, which is treated as success.
func (r *SupporterRepository) AddSupporter(ctx context.Context, supporter *model.Supporter) error {
	if err := model.Validate(supporter); err != nil {
		return err
	}
	if supporter.AddedAt.IsZero() {
		supporter.AddedAt = r.now()
	}
	if err := r.insert(ctx, supporter); err != nil {
		if apperrors.IsConflict(err) {
			r.logger.Debugf("Supporter %s already present in guild %s", supporter.UserID, supporter.GuildID)
			return nil
		}
		return err
	}
	r.remember(r.key(supporter.GuildID, supporter.UserID), *supporter)
	return nil
}

func (r *SupporterRepository) RemoveSupporter(ctx context.Context, guildID, userID string) error {
	if _, err := r.deleteOne(ctx, memberFilter(guildID, userID)); err != nil {
		return err
	}
	r.forget(r.key(guildID, userID))
	return nil
}

func (r *SupporterRepository) GetByGuild(ctx context.Context, guildID string) ([]*model.Supporter, error) {
	return findMany[model.Supporter](ctx, &r.base, bson.M{"guildId": guildID},
		options.Find().SetSort(bson.D{{Key: "addedAt", Value: 1}}))
}

func (r *SupporterRepository) IsSupporter(ctx context.Context, guildID, userID string) (bool, error) {
	s, err := findOne[model.Supporter](ctx, &r.base, r.key(guildID, userID), memberFilter(guildID, userID))
	return s != nil, err
}
