package mongodb

import (
	"context"
	"errors"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongo server code for dropping an index that does not exist
const codeIndexNotFound = 27

// IndexSpec declares one index on one collection.
type IndexSpec struct {
	Collection string
	Name       string
	Keys       bson.D
	Unique     bool
}

// RequiredIndexes is the stable index set of every collection.
var RequiredIndexes = []IndexSpec{
	{model.CollectionRoleMappings, "messageId_unique", bson.D{{Key: "messageId", Value: 1}}, true},
	{model.CollectionRoleMappings, "guildId_1", bson.D{{Key: "guildId", Value: 1}}, false},

	{model.CollectionTemporaryRoles, "guild_user_role_unique", bson.D{{Key: "guildId", Value: 1}, {Key: "userId", Value: 1}, {Key: "roleId", Value: 1}}, true},
	{model.CollectionTemporaryRoles, "expiresAt_1", bson.D{{Key: "expiresAt", Value: 1}}, false},

	{model.CollectionUserExperience, "guild_user_unique", bson.D{{Key: "guildId", Value: 1}, {Key: "userId", Value: 1}}, true},
	{model.CollectionUserExperience, "guild_totalXP", bson.D{{Key: "guildId", Value: 1}, {Key: "totalXP", Value: -1}}, false},

	{model.CollectionGuildSettings, "guildId_unique", bson.D{{Key: "guildId", Value: 1}}, true},
	{model.CollectionWelcomeSettings, "guildId_unique", bson.D{{Key: "guildId", Value: 1}}, true},
	{model.CollectionGoodbyeSettings, "guildId_unique", bson.D{{Key: "guildId", Value: 1}}, true},

	{model.CollectionPolls, "pollId_unique", bson.D{{Key: "pollId", Value: 1}}, true},
	{model.CollectionPolls, "guild_active_created", bson.D{{Key: "guildId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}}, false},

	{model.CollectionModerationLogs, "caseId_unique", bson.D{{Key: "caseId", Value: 1}}, true},
	{model.CollectionModerationLogs, "guild_user_created", bson.D{{Key: "guildId", Value: 1}, {Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, false},

	{model.CollectionScheduledRoles, "scheduleId_unique", bson.D{{Key: "scheduleId", Value: 1}}, true},
	{model.CollectionScheduledRoles, "executed_scheduledAt", bson.D{{Key: "executed", Value: 1}, {Key: "scheduledAt", Value: 1}}, false},

	{model.CollectionSupporters, "guild_user_unique", bson.D{{Key: "guildId", Value: 1}, {Key: "userId", Value: 1}}, true},

	{model.CollectionCommandAnalytics, "date_guild_unique", bson.D{{Key: "date", Value: 1}, {Key: "guildId", Value: 1}}, true},
}

// ObsoleteIndexes are names left by earlier schema versions. They are dropped
// before the required set is created.
var ObsoleteIndexes = map[string][]string{
	model.CollectionRoleMappings:   {"guildId_1_messageId_1"},
	model.CollectionUserExperience: {"userId_1"},
	model.CollectionModerationLogs: {"caseId_1_guildId_1"},
}

// EnsureIndexes drops obsolete indexes and creates the required ones. Every
// failure is logged and counted; none is returned. It reports how many
// operations failed.
func EnsureIndexes(ctx context.Context, db DatabaseInterface, log logger.Logger, m *metrics.Collector) int {
	if log == nil {
		log = logger.NewNopLogger()
	}
	failures := 0

	for _, collection := range model.AllCollections {
		names, ok := ObsoleteIndexes[collection]
		if !ok {
			continue
		}
		indexes := db.Collection(collection).Indexes()
		for _, name := range names {
			if err := indexes.DropOne(ctx, name); err != nil && !isIndexNotFound(err) {
				failures++
				m.IndexFailure(collection)
				log.WithFields(map[string]interface{}{
					"collection": collection,
					"index":      name,
					"error":      err.Error(),
				}).Warn("Failed to drop obsolete index")
			}
		}
	}

	for _, spec := range RequiredIndexes {
		idx := mongo.IndexModel{
			Keys:    spec.Keys,
			Options: options.Index().SetName(spec.Name),
		}
		if spec.Unique {
			idx.Options.SetUnique(true)
		}
		if _, err := db.Collection(spec.Collection).Indexes().CreateOne(ctx, idx); err != nil {
			failures++
			m.IndexFailure(spec.Collection)
			log.WithFields(map[string]interface{}{
				"collection": spec.Collection,
				"index":      spec.Name,
				"error":      err.Error(),
			}).Warn("Failed to create index, continuing without it")
		}
	}

	if failures == 0 {
		log.Debugf("Provisioned %d indexes", len(RequiredIndexes))
	}
	return failures
}

func isIndexNotFound(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeIndexNotFound || cmdErr.Name == "IndexNotFound"
	}
	return false
}
