package mongodb

import (
	"context"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	_ repository.RoleMappingRepository   = (*RoleMappingRepository)(nil)
	_ repository.TemporaryRoleRepository = (*TemporaryRoleRepository)(nil)
	_ repository.ScheduledRoleRepository = (*ScheduledRoleRepository)(nil)
)

// RoleMappingRepository stores one reaction-role document per message.
type RoleMappingRepository struct{ base }

func (r *RoleMappingRepository) GetByMessage(ctx context.Context, messageID string) (*model.RoleMapping, error) {
	return findOne[model.RoleMapping](ctx, &r.base, r.key(messageID), bson.M{"messageId": messageID})
}

func (r *RoleMappingRepository) GetByGuild(ctx context.Context, guildID string) ([]*model.RoleMapping, error) {
	return findMany[model.RoleMapping](ctx, &r.base, bson.M{"guildId": guildID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *RoleMappingRepository) Set(ctx context.Context, mapping *model.RoleMapping) error {
	if err := model.Validate(mapping); err != nil {
		return err
	}
	now := r.now()
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now

	if err := r.upsert(ctx, bson.M{"messageId": mapping.MessageID}, mapping); err != nil {
		return err
	}
	r.remember(r.key(mapping.MessageID), *mapping)
	return nil
}

func (r *RoleMappingRepository) Delete(ctx context.Context, messageID string) error {
	if _, err := r.deleteOne(ctx, bson.M{"messageId": messageID}); err != nil {
		return err
	}
	r.forget(r.key(messageID))
	return nil
}

// TemporaryRoleRepository stores time-limited grants. Lists are always read
// from the store since expiry sweeps change them in bulk.
type TemporaryRoleRepository struct{ base }

func tempRoleFilter(guildID, userID, roleID string) bson.M {
	return bson.M{"guildId": guildID, "userId": userID, "roleId": roleID}
}

var byExpiry = options.Find().SetSort(bson.D{{Key: "expiresAt", Value: 1}})

func (r *TemporaryRoleRepository) Add(ctx context.Context, role *model.TemporaryRole) error {
	if err := model.Validate(role); err != nil {
		return err
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = r.now()
	}
	return r.upsert(ctx, tempRoleFilter(role.GuildID, role.UserID, role.RoleID), role)
}

func (r *TemporaryRoleRepository) Remove(ctx context.Context, guildID, userID, roleID string) error {
	_, err := r.deleteOne(ctx, tempRoleFilter(guildID, userID, roleID))
	return err
}

func (r *TemporaryRoleRepository) GetByUser(ctx context.Context, guildID, userID string) ([]*model.TemporaryRole, error) {
	return findMany[model.TemporaryRole](ctx, &r.base, bson.M{"guildId": guildID, "userId": userID}, byExpiry)
}

func (r *TemporaryRoleRepository) GetByGuild(ctx context.Context, guildID string) ([]*model.TemporaryRole, error) {
	return findMany[model.TemporaryRole](ctx, &r.base, bson.M{"guildId": guildID}, byExpiry)
}

func (r *TemporaryRoleRepository) GetExpired(ctx context.Context, now time.Time) ([]*model.TemporaryRole, error) {
	return findMany[model.TemporaryRole](ctx, &r.base, bson.M{"expiresAt": bson.M{"$lte": now}}, byExpiry)
}

func (r *TemporaryRoleRepository) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.deleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Infof("Removed %d expired temporary roles", n)
	}
	return n, nil
}

// ScheduledRoleRepository stores deferred role jobs keyed by scheduleId.
type ScheduledRoleRepository struct{ base }

var bySchedule = options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}})

func (r *ScheduledRoleRepository) Create(ctx context.Context, job *model.ScheduledRole) error {
	if job.ID == "" {
		job.ID = model.NewID()
	}
	if err := model.Validate(job); err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.now()
	}
	if err := r.insert(ctx, job); err != nil {
		return err
	}
	r.remember(r.key(job.ID), *job)
	return nil
}

func (r *ScheduledRoleRepository) GetByID(ctx context.Context, id string) (*model.ScheduledRole, error) {
	return findOne[model.ScheduledRole](ctx, &r.base, r.key(id), bson.M{"scheduleId": id})
}

func (r *ScheduledRoleRepository) GetByGuild(ctx context.Context, guildID string) ([]*model.ScheduledRole, error) {
	return findMany[model.ScheduledRole](ctx, &r.base, bson.M{"guildId": guildID}, bySchedule)
}

func (r *ScheduledRoleRepository) GetDue(ctx context.Context, now time.Time) ([]*model.ScheduledRole, error) {
	return findMany[model.ScheduledRole](ctx, &r.base,
		bson.M{"executed": false, "scheduledAt": bson.M{"$lte": now}}, bySchedule)
}

func (r *ScheduledRoleRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"scheduleId": id},
		bson.M{"$set": bson.M{"executed": true, "executedAt": at}})
	if err != nil {
		return r.storeError(err, "mark executed")
	}
	r.forget(r.key(id))
	if res.Matched() == 0 {
		return apperrors.NewNotFoundError("scheduled role").WithDetail("scheduleId", id)
	}
	return nil
}

func (r *ScheduledRoleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.deleteOne(ctx, bson.M{"scheduleId": id}); err != nil {
		return err
	}
	r.forget(r.key(id))
	return nil
}
